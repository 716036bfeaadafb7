package ratelimit

import (
	"strings"
)

// MatchEndpoint returns the configuration for a request, or nil when the
// default limit applies. Only configurations with the request's method are
// considered. Path patterns take three forms:
//
//	/health                 the exact path
//	/resources/*/jobs       "*" stands for one segment, e.g. /resources/widget/jobs
//	/jobs/*/approve         e.g. /jobs/0b7e.../approve
//	/jobs/                  a trailing slash matches every path below it
//
// Exact patterns win over wildcards, and wildcards win over prefixes.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	for i := range configs {
		if configs[i].Method == method && configs[i].Path == path {
			return &configs[i]
		}
	}

	segments := splitPath(path)
	for i := range configs {
		pattern := configs[i].Path
		if configs[i].Method != method || !strings.Contains(pattern, "*") {
			continue
		}
		if segmentsMatch(splitPath(pattern), segments) {
			return &configs[i]
		}
	}

	for i := range configs {
		pattern := configs[i].Path
		if configs[i].Method == method && strings.HasSuffix(pattern, "/") && strings.HasPrefix(path, pattern) {
			return &configs[i]
		}
	}
	return nil
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func segmentsMatch(pattern, segments []string) bool {
	if len(pattern) != len(segments) {
		return false
	}
	for i, p := range pattern {
		if p != "*" && p != segments[i] {
			return false
		}
	}
	return true
}
