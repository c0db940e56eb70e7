package core

import "strings"

func isSentenceTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// splitSpeechSegments cuts a response into synthesizable sentences, splitting
// after each run of terminal punctuation. A trailing fragment without terminal
// punctuation is merged into the preceding segment rather than dropped, so the
// segments always concatenate back to the original text.
func splitSpeechSegments(text string) []string {
	if text == "" {
		return []string{""}
	}

	var segments []string
	var current strings.Builder
	inTerminalRun := false
	for _, r := range text {
		if isSentenceTerminal(r) {
			inTerminalRun = true
			current.WriteRune(r)
			continue
		}
		if inTerminalRun {
			segments = append(segments, current.String())
			current.Reset()
			inTerminalRun = false
		}
		current.WriteRune(r)
	}

	remainder := current.String()
	if remainder == "" {
		return segments
	}
	if inTerminalRun || len(segments) == 0 {
		return append(segments, remainder)
	}
	segments[len(segments)-1] += remainder
	return segments
}
