package risk

import (
	"testing"

	"recordkeeper-auth/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

func trustedDevice() models.DeviceInfo {
	return models.DeviceInfo{Browser: "Chrome", OS: "Windows", IsMobile: false, IsDesktop: true}
}

func resolvedLocation() models.LocationInfo {
	return models.LocationInfo{IP: "198.51.100.7", City: "Berlin", Country: "Germany"}
}

func TestScore(t *testing.T) {
	engine := NewEngine(DefaultMFAThreshold, []string{"Atlantis"})

	tests := []struct {
		name      string
		biometric *float64
		device    models.DeviceInfo
		location  models.LocationInfo
		want      int
	}{
		{
			// .3*0 + .3*0 + .4*10 = 4
			name:      "perfect biometric, trusted device, resolved location",
			biometric: floatPtr(10),
			device:    trustedDevice(),
			location:  resolvedLocation(),
			want:      4,
		},
		{
			// .3*20 + .3*0 + .4*10 = 10
			name:      "missing biometric",
			biometric: nil,
			device:    trustedDevice(),
			location:  resolvedLocation(),
			want:      10,
		},
		{
			// biometric above 10 clamps to zero contribution
			name:      "biometric above scale",
			biometric: floatPtr(12),
			device:    trustedDevice(),
			location:  resolvedLocation(),
			want:      4,
		},
		{
			// .3*30 + .3*30 + .4*30 = 30
			name:      "worst case",
			biometric: floatPtr(0),
			device:    models.DeviceInfo{Browser: "NetPioneer", OS: "TempleOS", IsMobile: true},
			location:  models.LocationInfo{IP: "203.0.113.9", Country: "Atlantis"},
			want:      30,
		},
		{
			// unresolved location: .3*20 + .3*0 + .4*20 = 14
			name:      "unresolved location",
			biometric: nil,
			device:    trustedDevice(),
			location:  models.LocationInfo{IP: "192.0.2.1"},
			want:      14,
		},
		{
			// resolved high-risk country: .4*(10+10) = 8 location part
			name:      "high-risk country",
			biometric: floatPtr(10),
			device:    trustedDevice(),
			location:  models.LocationInfo{IP: "203.0.113.9", City: "Poseidonia", Country: "Atlantis"},
			want:      8,
		},
		{
			// mobile + uncommon browser + uncommon OS caps at 30
			name:      "device risk capped",
			biometric: floatPtr(10),
			device:    models.DeviceInfo{Browser: "NetPioneer", OS: "TempleOS", IsMobile: true},
			location:  resolvedLocation(),
			want:      13,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Score(tt.biometric, tt.device, tt.location)
			if got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreMonotonicInBiometric(t *testing.T) {
	engine := NewEngine(DefaultMFAThreshold, nil)
	device := trustedDevice()
	location := resolvedLocation()

	prev := engine.Score(floatPtr(10), device, location)
	for b := 9.0; b >= 0; b-- {
		score := engine.Score(floatPtr(b), device, location)
		if score < prev {
			t.Fatalf("score decreased from %d to %d as biometric worsened to %v", prev, score, b)
		}
		prev = score
	}
}

func TestScoreMonotonicInDeviceSignals(t *testing.T) {
	engine := NewEngine(DefaultMFAThreshold, nil)
	location := resolvedLocation()

	baseline := engine.Score(nil, trustedDevice(), location)

	degradations := []struct {
		name   string
		device models.DeviceInfo
	}{
		{"mobile", models.DeviceInfo{Browser: "Chrome", OS: "Windows", IsMobile: true}},
		{"uncommon browser", models.DeviceInfo{Browser: "NetPioneer", OS: "Windows", IsDesktop: true}},
		{"uncommon OS", models.DeviceInfo{Browser: "Chrome", OS: "TempleOS", IsDesktop: true}},
		{"all three", models.DeviceInfo{Browser: "NetPioneer", OS: "TempleOS", IsMobile: true}},
	}

	for _, tt := range degradations {
		t.Run(tt.name, func(t *testing.T) {
			if score := engine.Score(nil, tt.device, location); score <= baseline {
				t.Errorf("score = %d, want above the trusted-device baseline %d", score, baseline)
			}
		})
	}
}

func TestScoreMonotonicInLocationSignals(t *testing.T) {
	engine := NewEngine(DefaultMFAThreshold, []string{"Atlantis"})
	device := trustedDevice()

	baseline := engine.Score(nil, device, resolvedLocation())

	unresolved := engine.Score(nil, device, models.LocationInfo{IP: "192.0.2.1"})
	if unresolved <= baseline {
		t.Errorf("unresolved location score = %d, want above the resolved baseline %d", unresolved, baseline)
	}

	highRisk := engine.Score(nil, device, models.LocationInfo{IP: "203.0.113.9", City: "Poseidonia", Country: "Atlantis"})
	if highRisk <= baseline {
		t.Errorf("high-risk country score = %d, want above the resolved baseline %d", highRisk, baseline)
	}

	unresolvedHighRisk := engine.Score(nil, device, models.LocationInfo{IP: "203.0.113.9", Country: "Atlantis"})
	if unresolvedHighRisk < unresolved || unresolvedHighRisk < highRisk {
		t.Errorf("combined location risk score = %d, want at least %d and %d", unresolvedHighRisk, unresolved, highRisk)
	}
}

func TestShouldTriggerMFA(t *testing.T) {
	engine := NewEngine(70, nil)

	if engine.ShouldTriggerMFA(69) {
		t.Error("score below threshold triggered MFA")
	}
	if !engine.ShouldTriggerMFA(70) {
		t.Error("score at threshold did not trigger MFA")
	}
	if !engine.ShouldTriggerMFA(100) {
		t.Error("maximum score did not trigger MFA")
	}
}

func TestNewEngineDefaultThreshold(t *testing.T) {
	engine := NewEngine(0, nil)
	if engine.Threshold() != DefaultMFAThreshold {
		t.Errorf("expected default threshold %d, got %d", DefaultMFAThreshold, engine.Threshold())
	}
}
