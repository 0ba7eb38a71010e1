package device

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		browser   string
		os        string
		isMobile  bool
	}{
		{
			name:      "chrome on windows",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			browser:   "Chrome",
			os:        "Windows",
		},
		{
			name:      "firefox on linux",
			userAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			browser:   "Firefox",
			os:        "Linux",
		},
		{
			name:      "safari on iphone",
			userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
			browser:   "Safari",
			os:        "iOS",
			isMobile:  true,
		},
		{
			name:      "edge on windows",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
			browser:   "Edge",
			os:        "Windows",
		},
		{
			name:      "opera on mac",
			userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 13_5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 OPR/105.0.0.0",
			browser:   "Opera",
			os:        "macOS",
		},
		{
			name:      "chrome on android",
			userAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			browser:   "Chrome",
			os:        "Android",
			isMobile:  true,
		},
		{
			name:      "unknown agent",
			userAgent: "curl/8.4.0",
			browser:   "Unknown",
			os:        "Unknown",
		},
		{
			name:      "empty agent",
			userAgent: "",
			browser:   "Unknown",
			os:        "Unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Parse(tt.userAgent)
			if info.Browser != tt.browser {
				t.Errorf("Browser = %q, want %q", info.Browser, tt.browser)
			}
			if info.OS != tt.os {
				t.Errorf("OS = %q, want %q", info.OS, tt.os)
			}
			if info.IsMobile != tt.isMobile {
				t.Errorf("IsMobile = %v, want %v", info.IsMobile, tt.isMobile)
			}
			if info.IsDesktop == info.IsMobile {
				t.Error("IsDesktop must be the complement of IsMobile")
			}
			if info.UserAgent != tt.userAgent {
				t.Error("raw user agent not preserved")
			}
		})
	}
}
