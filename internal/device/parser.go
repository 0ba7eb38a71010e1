package device

import (
	"strings"

	"recordkeeper-auth/internal/models"
)

const unknown = "Unknown"

// Parse extracts browser, OS and form factor from a raw User-Agent
// header. Fields that cannot be determined default to "Unknown". An
// indeterminate form factor counts as desktop, which is how the risk
// engine treats absent device signals.
func Parse(userAgent string) models.DeviceInfo {
	info := models.DeviceInfo{
		UserAgent: userAgent,
		Browser:   parseBrowser(userAgent),
		OS:        parseOS(userAgent),
	}
	info.IsMobile = isMobile(userAgent)
	info.IsDesktop = !info.IsMobile
	return info
}

// Order matters: Edge and Opera embed "Chrome" in their UA strings, and
// Chrome embeds "Safari".
var browserMarkers = []struct {
	marker string
	name   string
}{
	{"Edg/", "Edge"},
	{"Edge/", "Edge"},
	{"OPR/", "Opera"},
	{"Opera", "Opera"},
	{"Firefox/", "Firefox"},
	{"Chrome/", "Chrome"},
	{"CriOS/", "Chrome"},
	{"Safari/", "Safari"},
}

func parseBrowser(userAgent string) string {
	for _, b := range browserMarkers {
		if strings.Contains(userAgent, b.marker) {
			return b.name
		}
	}
	return unknown
}

var osMarkers = []struct {
	marker string
	name   string
}{
	{"Windows", "Windows"},
	{"Android", "Android"},
	{"iPhone", "iOS"},
	{"iPad", "iOS"},
	{"Mac OS X", "macOS"},
	{"Macintosh", "macOS"},
	{"Linux", "Linux"},
}

func parseOS(userAgent string) string {
	for _, o := range osMarkers {
		if strings.Contains(userAgent, o.marker) {
			return o.name
		}
	}
	return unknown
}

func isMobile(userAgent string) bool {
	for _, marker := range []string{"Mobile", "Android", "iPhone", "iPad"} {
		if strings.Contains(userAgent, marker) {
			return true
		}
	}
	return false
}
