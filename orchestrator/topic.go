package orchestrator

import (
	"fmt"
	"strings"
)

// MatchTopic reports whether a slash-delimited target id matches
// pattern under the subscription grammar: '+' matches exactly one
// segment, '#' matches one or more trailing segments and must be the
// pattern's last segment (callers should validate patterns with
// ValidateTopicPattern before subscribing).
func MatchTopic(pattern, target string) bool {
	pSegs := strings.Split(pattern, "/")
	tSegs := strings.Split(target, "/")

	for i, p := range pSegs {
		if p == "#" {
			return i < len(tSegs)
		}
		if i >= len(tSegs) {
			return false
		}
		if p == "+" {
			continue
		}
		if p != tSegs[i] {
			return false
		}
	}
	return len(pSegs) == len(tSegs)
}

// ValidateTopicPattern reports an error if pattern violates the
// subscription grammar: '#' may only appear as the final segment, and
// no segment may be empty.
func ValidateTopicPattern(pattern string) error {
	segs := strings.Split(pattern, "/")
	for i, s := range segs {
		if s == "" {
			return fmt.Errorf("orchestrator: empty segment in topic pattern %q", pattern)
		}
		if s == "#" && i != len(segs)-1 {
			return fmt.Errorf("orchestrator: '#' must be the last segment in topic pattern %q", pattern)
		}
	}
	return nil
}
