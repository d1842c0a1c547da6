package api

import "strings"

// PathParam extracts the path segment following prefix, e.g. with prefix
// "/api/repos/" and path "/api/repos/abc-123", returns "abc-123". Returns
// "" if path does not start with prefix or nothing follows it.
func PathParam(path, prefix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	return strings.TrimPrefix(path, prefix)
}

// SplitTrailingSegment splits a path's suffix after prefix into its first
// segment and whatever remains, e.g. prefix "/api/mods/", path
// "/api/mods/abc-123/cancel" returns ("abc-123", "/cancel").
func SplitTrailingSegment(path, prefix string) (id string, rest string) {
	trimmed := PathParam(path, prefix)
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		return trimmed[:idx], trimmed[idx:]
	}
	return trimmed, ""
}
