package pathutil

import (
	"regexp"
	"strings"
)

// PathPattern maps a dynamic route onto its metrics label.
type PathPattern struct {
	Pattern  *regexp.Regexp
	Template string
}

// Most specific first.
var pathPatterns = []*PathPattern{
	{Pattern: regexp.MustCompile(`^/offers/category/[^/]+$`), Template: "/offers/category/:category"},
	{Pattern: regexp.MustCompile(`^/admin/providers/[^/]+/reset$`), Template: "/admin/providers/:id/reset"},
	{Pattern: regexp.MustCompile(`^/admin/providers/[^/]+/circuit$`), Template: "/admin/providers/:id/circuit"},
}

// NormalizePath collapses path parameters so that metrics labels stay bounded.
//
//	NormalizePath("/offers/category/gaming")       // "/offers/category/:category"
//	NormalizePath("/admin/providers/cpx/reset")    // "/admin/providers/:id/reset"
//	NormalizePath("/offers/matches?user_id=u-1")   // "/offers/matches"
//	NormalizePath("/providers/health/")            // "/providers/health"
//
// Unknown paths are returned unchanged.
func NormalizePath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}

	for _, p := range pathPatterns {
		if p.Pattern.MatchString(path) {
			return p.Template
		}
	}
	return path
}

// GetExpectedCardinality estimates the number of distinct path labels:
// one per template plus the static routes of the API.
func GetExpectedCardinality() int {
	const staticCount = 8 // /offers, /offers/matches, /matches, /providers/*, /health, /metrics
	return len(pathPatterns) + staticCount
}
