package fabric

import "strings"

// MatchesTopic reports whether key (a concrete "application.worker.state"
// routing key) satisfies pattern, a binding pattern using AMQP-style topic
// wildcards: "*" matches exactly one segment, "#" matches any number of
// segments (including zero), and may appear at any position (spec §4.1).
//
// This is a direct per-segment scan rather than a prefix-indexed structure
// (e.g. a radix tree): topic wildcards can anchor on any segment, including
// the first, which a prefix tree cannot exploit for lookup, so a tree buys
// nothing here.
func MatchesTopic(pattern, key string) bool {
	return matchSegments(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchSegments(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	head := pattern[0]
	switch head {
	case "#":
		if len(pattern) == 1 {
			return true
		}
		for i := 0; i <= len(key); i++ {
			if matchSegments(pattern[1:], key[i:]) {
				return true
			}
		}
		return false
	case "*":
		if len(key) == 0 {
			return false
		}
		return matchSegments(pattern[1:], key[1:])
	default:
		if len(key) == 0 || key[0] != head {
			return false
		}
		return matchSegments(pattern[1:], key[1:])
	}
}
