package utils

import "strings"

// MatchPattern reports whether value matches pattern, where '*' matches any
// sequence of characters (including none). Patterns are the flat forms used
// by policies and permissions: "document:*", "doc-*", "read", "*".
func MatchPattern(value, pattern string) bool {
	if pattern == "*" || pattern == value {
		return true
	}
	vIdx, pIdx := 0, 0
	starIdx, backtrack := -1, 0
	for vIdx < len(value) {
		switch {
		case pIdx < len(pattern) && pattern[pIdx] == value[vIdx]:
			vIdx++
			pIdx++
		case pIdx < len(pattern) && pattern[pIdx] == '*':
			starIdx = pIdx
			backtrack = vIdx
			pIdx++
		case starIdx != -1:
			// retry the last '*' against one more character
			pIdx = starIdx + 1
			backtrack++
			vIdx = backtrack
		default:
			return false
		}
	}
	for pIdx < len(pattern) && pattern[pIdx] == '*' {
		pIdx++
	}
	return pIdx == len(pattern)
}

// MatchTypedPattern matches a "type:idPattern" style pattern against a
// resource type and id. Patterns without a ':' fall back to matching the
// unified "type:id" string.
func MatchTypedPattern(pattern, resourceType, resourceID string) bool {
	if pattern == "*" {
		return true
	}
	if idx := strings.Index(pattern, ":"); idx != -1 {
		typePart := pattern[:idx]
		idPart := pattern[idx+1:]
		if typePart != "*" && typePart != resourceType {
			return false
		}
		return MatchPattern(resourceID, idPart)
	}
	return MatchPattern(resourceType+":"+resourceID, pattern)
}
