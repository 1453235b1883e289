// Package textutil holds small text-shaping helpers shared across pipeline
// stages that build bounded-size prompts from accumulating dialogue state.
package textutil

import "strings"

// TruncateWordsTail keeps at most maxWords trailing whitespace-separated
// words of s, dropping from the front. Used to bound history windows fed
// back into LM prompts while favoring the most recent context.
func TruncateWordsTail(s string, maxWords int) string {
	if maxWords <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[len(words)-maxWords:], " ")
}
