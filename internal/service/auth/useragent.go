package auth

import "strings"

type agentInfo struct {
	platform string
	browser  string
	device   string
}

// sniffUserAgent extracts coarse platform/browser/device labels for the
// attempt log. Best effort; unknown agents stay "unknown".
func sniffUserAgent(ua string) agentInfo {
	info := agentInfo{platform: "unknown", browser: "unknown", device: "desktop"}
	if ua == "" {
		info.device = "unknown"
		return info
	}
	lowered := strings.ToLower(ua)

	switch {
	case strings.Contains(lowered, "android"):
		info.platform = "android"
	case strings.Contains(lowered, "iphone"), strings.Contains(lowered, "ipad"):
		info.platform = "ios"
	case strings.Contains(lowered, "windows"):
		info.platform = "windows"
	case strings.Contains(lowered, "mac os"), strings.Contains(lowered, "macintosh"):
		info.platform = "macos"
	case strings.Contains(lowered, "linux"):
		info.platform = "linux"
	}

	switch {
	case strings.Contains(lowered, "edg/"):
		info.browser = "edge"
	case strings.Contains(lowered, "chrome"):
		info.browser = "chrome"
	case strings.Contains(lowered, "firefox"):
		info.browser = "firefox"
	case strings.Contains(lowered, "safari"):
		info.browser = "safari"
	case strings.Contains(lowered, "curl"):
		info.browser = "curl"
	}

	if strings.Contains(lowered, "mobile") || info.platform == "android" || info.platform == "ios" {
		info.device = "mobile"
	}
	return info
}
