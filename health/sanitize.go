package health

import (
	"regexp"
)

var (
	schemeURLRegex   = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://[^\s]+`)
	fileURIRegex     = regexp.MustCompile(`\bfile:[^\s]+`)
	unixPathRegex    = regexp.MustCompile(`(^|[\s=("'])/[a-zA-Z0-9/_.-]+`)
	windowsPathRegex = regexp.MustCompile(`[A-Z]:\\[^:\s]+`)
	ipAddrRegex      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex        = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex  = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// SanitizeErrorMessage strips locations and credentials from an error
// message before it is served on the health endpoint:
//
//	nats://host:4222, objectstore://bucket/key  -> [URL]
//	file:/var/spool/a.mp4                       -> [URI]
//	/var/spool/a.mp4, C:\spool\a.mp4            -> [PATH]
//	192.168.1.100                               -> [IP]
//	:8080                                       -> [PORT]
//	token=abc                                   -> [REDACTED]
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// credentials first, they may sit inside a URL
	sanitized := credentialRegex.ReplaceAllString(msg, "[REDACTED]")
	sanitized = schemeURLRegex.ReplaceAllString(sanitized, "[URL]")
	sanitized = fileURIRegex.ReplaceAllString(sanitized, "[URI]")
	sanitized = unixPathRegex.ReplaceAllString(sanitized, "${1}[PATH]")
	sanitized = windowsPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")
	return sanitized
}
