package session

import "testing"

func TestParseUserAgent(t *testing.T) {
	cases := []struct {
		name    string
		ua      string
		browser string
		os      string
		device  string
		mobile  bool
	}{
		{
			name:    "windows chrome",
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36",
			browser: "Chrome", os: "Windows", device: "Desktop", mobile: false,
		},
		{
			name:    "android chrome mobile",
			ua:      "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36",
			browser: "Chrome", os: "Android", device: "Mobile", mobile: true,
		},
		{
			name:    "ipad safari",
			ua:      "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Safari/604.1",
			browser: "Safari", os: "iOS", device: "Tablet", mobile: true,
		},
		{
			name:    "mac firefox",
			ua:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 14.0; rv:120.0) Gecko/20100101 Firefox/120.0",
			browser: "Firefox", os: "macOS", device: "Desktop", mobile: false,
		},
		{
			name:    "windows edge",
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36 Edg/120.0",
			browser: "Edge", os: "Windows", device: "Desktop", mobile: false,
		},
		{
			name:    "empty",
			ua:      "",
			browser: "Unknown", os: "Unknown", device: "Desktop", mobile: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := ParseUserAgent(tc.ua)
			if info.Browser != tc.browser || info.OS != tc.os ||
				info.Device != tc.device || info.Mobile != tc.mobile {
				t.Fatalf("unexpected parse: %+v", info)
			}
		})
	}
}
