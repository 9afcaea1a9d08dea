package session

import "strings"

// ParseUserAgent extracts a coarse device fingerprint from a browser user
// agent. Only families the maintenance floor actually uses are distinguished;
// anything else reports as Unknown.
func ParseUserAgent(userAgent string) DeviceInfo {
	info := DeviceInfo{
		UserAgent: userAgent,
		Browser:   "Unknown",
		OS:        "Unknown",
		Device:    "Desktop",
	}
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return info
	}

	switch {
	case strings.Contains(ua, "edg/"), strings.Contains(ua, "edge/"):
		info.Browser = "Edge"
	case strings.Contains(ua, "opr/"), strings.Contains(ua, "opera"):
		info.Browser = "Opera"
	case strings.Contains(ua, "chrome/"):
		info.Browser = "Chrome"
	case strings.Contains(ua, "firefox/"):
		info.Browser = "Firefox"
	case strings.Contains(ua, "safari/"):
		info.Browser = "Safari"
	}

	switch {
	case strings.Contains(ua, "android"):
		info.OS = "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ios"):
		info.OS = "iOS"
	case strings.Contains(ua, "windows"):
		info.OS = "Windows"
	case strings.Contains(ua, "mac os"), strings.Contains(ua, "macintosh"):
		info.OS = "macOS"
	case strings.Contains(ua, "linux"):
		info.OS = "Linux"
	}

	if strings.Contains(ua, "mobile") || info.OS == "Android" || info.OS == "iOS" {
		info.Mobile = true
		info.Device = "Mobile"
	}
	if strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet") {
		info.Device = "Tablet"
	}

	return info
}
