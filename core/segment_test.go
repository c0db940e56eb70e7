package core

import (
	"strings"
	"testing"
)

func TestSplitSpeechSegmentsNoTerminalPunctuation(t *testing.T) {
	segments := splitSpeechSegments("hello there")

	if len(segments) != 1 {
		t.Fatalf("expected one segment, got %d", len(segments))
	}
	if segments[0] != "hello there" {
		t.Fatalf("expected segment %q, got %q", "hello there", segments[0])
	}
}

func TestSplitSpeechSegmentsSplitsOnSentences(t *testing.T) {
	segments := splitSpeechSegments("Hello. How are you? Great!")

	if len(segments) != 3 {
		t.Fatalf("expected three segments, got %d: %q", len(segments), segments)
	}
	if segments[0] != "Hello." {
		t.Fatalf("expected first segment %q, got %q", "Hello.", segments[0])
	}
	if segments[1] != " How are you?" {
		t.Fatalf("expected second segment %q, got %q", " How are you?", segments[1])
	}
	if segments[2] != " Great!" {
		t.Fatalf("expected third segment %q, got %q", " Great!", segments[2])
	}
}

func TestSplitSpeechSegmentsKeepsPunctuationRunsTogether(t *testing.T) {
	segments := splitSpeechSegments("Really?! Yes...")

	if len(segments) != 2 {
		t.Fatalf("expected two segments, got %d: %q", len(segments), segments)
	}
	if segments[0] != "Really?!" {
		t.Fatalf("expected first segment %q, got %q", "Really?!", segments[0])
	}
	if segments[1] != " Yes..." {
		t.Fatalf("expected second segment %q, got %q", " Yes...", segments[1])
	}
}

func TestSplitSpeechSegmentsMergesUnterminatedTail(t *testing.T) {
	segments := splitSpeechSegments("Done. And one more thing")

	if len(segments) != 1 {
		t.Fatalf("expected one segment, got %d: %q", len(segments), segments)
	}
	if segments[0] != "Done. And one more thing" {
		t.Fatalf("expected merged segment, got %q", segments[0])
	}
}

func TestSplitSpeechSegmentsConcatenationRoundTrips(t *testing.T) {
	inputs := []string{
		"",
		"no punctuation at all",
		"One. Two. Three.",
		"Mixed?! Sure... trailing bit",
		"...",
	}
	for _, input := range inputs {
		segments := splitSpeechSegments(input)
		if got := strings.Join(segments, ""); got != input {
			t.Fatalf("expected segments of %q to concatenate back, got %q", input, got)
		}
	}
}

func TestSplitSpeechSegmentsEmptyInput(t *testing.T) {
	segments := splitSpeechSegments("")

	if len(segments) != 1 {
		t.Fatalf("expected one segment for empty input, got %d", len(segments))
	}
	if segments[0] != "" {
		t.Fatalf("expected empty segment, got %q", segments[0])
	}
}
