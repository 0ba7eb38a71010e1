package risk

import (
	"math"

	"recordkeeper-auth/internal/models"
)

// Scoring weights and caps. The total score is the weighted sum of the
// three contributions, each already scaled to its cap, so the result is
// an integer in [0,100] by construction.
const (
	DefaultMFAThreshold = 70

	biometricWeight  = 0.3
	deviceWeight     = 0.3
	locationWeight   = 0.4
	missingBiometric = 20
	deviceRiskCap    = 30
	locationRiskCap  = 40
)

var commonBrowsers = []string{"Chrome", "Firefox", "Safari", "Edge"}

var commonOS = []string{"Windows", "macOS", "Linux", "Android", "iOS"}

// Engine computes a deterministic 0-100 risk score from biometric,
// device and location signals. It holds configuration only; scoring
// performs no I/O and has no side effects.
type Engine struct {
	mfaThreshold      int
	highRiskCountries map[string]bool
}

func NewEngine(mfaThreshold int, highRiskCountries []string) *Engine {
	if mfaThreshold <= 0 {
		mfaThreshold = DefaultMFAThreshold
	}
	countries := make(map[string]bool, len(highRiskCountries))
	for _, c := range highRiskCountries {
		countries[c] = true
	}
	return &Engine{
		mfaThreshold:      mfaThreshold,
		highRiskCountries: countries,
	}
}

// Score computes the overall risk score. biometric is an optional 0-10
// sample where lower is better; nil means no biometric was supplied.
func (e *Engine) Score(biometric *float64, device models.DeviceInfo, location models.LocationInfo) int {
	total := biometricWeight*float64(biometricRisk(biometric)) +
		deviceWeight*float64(deviceRisk(device)) +
		locationWeight*float64(e.locationRisk(location))
	return int(math.Round(total))
}

// ShouldTriggerMFA reports whether the score demands a secondary
// verification step before a session may be issued.
func (e *Engine) ShouldTriggerMFA(score int) bool {
	return score >= e.mfaThreshold
}

// Threshold returns the configured MFA threshold.
func (e *Engine) Threshold() int {
	return e.mfaThreshold
}

func biometricRisk(biometric *float64) int {
	if biometric == nil {
		return missingBiometric
	}
	risk := (10 - *biometric) * 3
	if risk < 0 {
		return 0
	}
	return int(risk)
}

func deviceRisk(device models.DeviceInfo) int {
	risk := 0
	if device.IsMobile {
		risk += 10
	}
	if !contains(commonBrowsers, device.Browser) {
		risk += 10
	}
	if !contains(commonOS, device.OS) {
		risk += 10
	}
	if risk > deviceRiskCap {
		return deviceRiskCap
	}
	return risk
}

func (e *Engine) locationRisk(location models.LocationInfo) int {
	risk := 0
	if !location.Resolved() {
		risk += 20
	} else {
		risk += 10
	}
	if e.highRiskCountries[location.Country] {
		risk += 10
	}
	if risk > locationRiskCap {
		return locationRiskCap
	}
	return risk
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
