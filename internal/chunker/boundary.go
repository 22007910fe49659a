package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/docloom/docloom/internal/token"
)

// DefaultChunkSize is the soft per-fragment token target.
const DefaultChunkSize = 1000

// Counter measures the token cost of a prefix. It must be deterministic
// and monotonic in the input length.
type Counter func(string) int

// Config controls the boundary splitter.
type Config struct {
	// ChunkSize is the soft token target per fragment.
	ChunkSize int
	// Overlap is the token overlap carried into the following fragment.
	Overlap int
	// Counter overrides the token counter. Defaults to token.Estimate.
	Counter Counter
}

func (c Config) normalized() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap >= c.ChunkSize {
		c.Overlap = c.ChunkSize / 4
	}
	if c.Counter == nil {
		c.Counter = token.Estimate
	}
	return c
}

// Split cuts text into size-bounded fragments at semantic boundaries,
// preferring paragraph breaks over line breaks over sentence ends. With
// zero overlap the emitted spans partition the input exactly; every
// returned fragment is trimmed and non-empty.
func Split(text string, cfg Config) []Fragment {
	cfg = cfg.normalized()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if cfg.Counter(text) <= cfg.ChunkSize {
		return []Fragment{NewFragment(strings.TrimSpace(text))}
	}

	hardLimit := cfg.ChunkSize + cfg.ChunkSize/2
	var out []Fragment
	start := 0
	for start < len(text) {
		rest := text[start:]
		if cfg.Counter(rest) <= cfg.ChunkSize {
			appendTrimmed(&out, rest)
			break
		}
		cut := findCut(rest, cfg, hardLimit)
		appendTrimmed(&out, rest[:cut])
		next := start + cut
		if cfg.Overlap > 0 {
			back := token.Offset(cfg.Overlap)
			if cand := next - back; cand > start {
				next = cand
			} else {
				next = start + 1
			}
		}
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

func appendTrimmed(out *[]Fragment, span string) {
	trimmed := strings.TrimSpace(span)
	if trimmed == "" {
		return
	}
	*out = append(*out, NewFragment(trimmed))
}

// findCut locates the split offset inside rest. Candidates are scanned
// backwards from the hard character limit so the fragment stays as close
// to the target as the text allows.
func findCut(rest string, cfg Config, hardLimit int) int {
	target := token.Offset(cfg.ChunkSize)
	if target >= len(rest) {
		target = len(rest) - 1
	}
	if target < 1 {
		target = 1
	}
	upper := token.Offset(hardLimit)
	if upper > len(rest) {
		upper = len(rest)
	}
	lower := target / 2

	if cut, ok := separatorCut(rest, "\n\n", lower, upper, cfg.Counter, hardLimit); ok {
		return cut
	}
	if cut, ok := separatorCut(rest, "\n", lower, upper, cfg.Counter, hardLimit); ok {
		return cut
	}
	if cut, ok := sentenceCut(rest, lower, upper, cfg.Counter, hardLimit); ok {
		return cut
	}
	return binaryCut(rest, upper, cfg.Counter, hardLimit)
}

// separatorCut finds the last occurrence of sep in [lower, upper) whose
// prefix stays within the hard token limit. The separator is kept with
// the leading fragment so the follower starts on fresh content.
func separatorCut(rest, sep string, lower, upper int, count Counter, hardLimit int) (int, bool) {
	window := rest
	if upper < len(window) {
		window = window[:upper]
	}
	for end := len(window); end > lower; {
		idx := strings.LastIndex(window[:end], sep)
		if idx < lower {
			return 0, false
		}
		cut := idx + len(sep)
		if cut >= 1 && count(rest[:cut]) <= hardLimit {
			return cut, true
		}
		end = idx
	}
	return 0, false
}

// sentenceCut splits after a sentence terminator followed by whitespace.
func sentenceCut(rest string, lower, upper int, count Counter, hardLimit int) (int, bool) {
	window := rest
	if upper < len(window) {
		window = window[:upper]
	}
	for i := len(window) - 1; i > lower; i-- {
		if !isSentenceEnd(window[i-1]) || !isSpaceByte(window[i]) {
			continue
		}
		cut := i
		if count(rest[:cut]) <= hardLimit {
			return cut, true
		}
	}
	return 0, false
}

// binaryCut finds the largest prefix within the hard token limit,
// aligned to a rune boundary. At least one rune of progress is always
// made.
func binaryCut(rest string, upper int, count Counter, hardLimit int) int {
	lo, hi := 1, upper
	if hi < 1 {
		hi = 1
	}
	best := 1
	for lo <= hi {
		mid := (lo + hi) / 2
		if count(rest[:mid]) <= hardLimit {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	for best < len(rest) && !utf8.RuneStart(rest[best]) {
		best--
		if best == 0 {
			_, size := utf8.DecodeRuneInString(rest)
			return size
		}
	}
	return best
}

func isSentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
