package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func runeCounter(s string) int { return utf8.RuneCountInString(s) }

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestSplitEmptyInput(t *testing.T) {
	if got := Split("", Config{}); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
	if got := Split("   \n\t ", Config{}); got != nil {
		t.Fatalf("expected nil for whitespace input, got %v", got)
	}
}

func TestSplitSingleFragmentUnderTarget(t *testing.T) {
	text := "  A short paragraph that fits in one fragment.  "
	out := Split(text, Config{ChunkSize: 100})
	if len(out) != 1 {
		t.Fatalf("expected one fragment, got %d", len(out))
	}
	if out[0].Text != strings.TrimSpace(text) {
		t.Fatalf("unexpected fragment text %q", out[0].Text)
	}
	if out[0].Dirty {
		t.Fatalf("generated fragment must not be dirty")
	}
	if out[0].ID == "" {
		t.Fatalf("fragment id missing")
	}
}

func TestSplitTwoParagraphScenario(t *testing.T) {
	first := "First paragraph content here."
	second := "Second paragraph content here."
	text := first + "\n\n" + second

	out := Split(text, Config{ChunkSize: len(first) + 5, Counter: runeCounter})
	if len(out) != 2 {
		t.Fatalf("expected two fragments, got %d: %v", len(out), out)
	}
	if out[0].Text != first {
		t.Fatalf("fragment 1 = %q, want %q", out[0].Text, first)
	}
	if out[1].Text != second {
		t.Fatalf("fragment 2 = %q, want %q", out[1].Text, second)
	}
}

func TestSplitLosslessConcatWithoutOverlap(t *testing.T) {
	texts := []string{
		"One sentence. Another sentence follows here. And a third one to push the size.",
		"para one line one\npara one line two\n\npara two line one\n\npara three is longer than the others by a fair margin",
		strings.Repeat("word ", 400),
	}
	for _, text := range texts {
		out := Split(text, Config{ChunkSize: 10})
		if len(out) == 0 {
			t.Fatalf("no fragments for %q", text[:20])
		}
		var joined strings.Builder
		for _, frag := range out {
			joined.WriteString(frag.Text)
		}
		if stripSpace(joined.String()) != stripSpace(text) {
			t.Fatalf("concatenation does not reconstruct input for %q", text[:20])
		}
	}
}

func TestSplitTerminatesAndNeverEmitsEmpty(t *testing.T) {
	text := strings.Repeat("abcdefghij", 200)
	configs := []Config{
		{ChunkSize: 5},
		{ChunkSize: 8, Overlap: 3},
		{ChunkSize: 50, Overlap: 10},
		{ChunkSize: 3, Counter: runeCounter},
	}
	for _, cfg := range configs {
		out := Split(text, cfg)
		if len(out) == 0 {
			t.Fatalf("expected fragments for config %+v", cfg)
		}
		for _, frag := range out {
			if strings.TrimSpace(frag.Text) == "" {
				t.Fatalf("empty fragment emitted for config %+v", cfg)
			}
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 60)
	cfg := Config{ChunkSize: 20, Overlap: 4}
	first := Split(text, cfg)
	second := Split(text, cfg)
	if len(first) != len(second) {
		t.Fatalf("fragment counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Text != second[i].Text {
			t.Fatalf("fragment %d differs between runs", i)
		}
	}
}

func TestSplitOverlapCarriesContent(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon. ", 50)
	out := Split(text, Config{ChunkSize: 20, Overlap: 5})
	if len(out) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(out))
	}
	// With overlap the follower restarts inside the previous span, so
	// the tail of one fragment reappears at the head of the next.
	prevTail := out[0].Text[len(out[0].Text)/2:]
	if !strings.Contains(text, prevTail) {
		t.Fatalf("fragment text diverged from input")
	}
}

func TestSplitMultiByteInputStaysValid(t *testing.T) {
	text := strings.Repeat("日本語のテキストです。", 100)
	out := Split(text, Config{ChunkSize: 10})
	if len(out) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(out))
	}
	for i, frag := range out {
		if !utf8.ValidString(frag.Text) {
			t.Fatalf("fragment %d contains invalid utf-8", i)
		}
	}
}
