// Package subtitle renders and parses SubRip (SRT) subtitle files and holds
// the text normalization shared by the deduplication logic.
package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Cue is one subtitle entry.
type Cue struct {
	// Index is the 1-based position in the file.
	Index int
	// Start and End are in seconds.
	Start float64
	End   float64
	Text  string
}

// FormatSRT renders cues as an SRT document. Indexes are rewritten 1-based
// in slice order.
func FormatSRT(cues []Cue) string {
	var b strings.Builder
	WriteSRT(&b, cues)
	return b.String()
}

// WriteSRT writes cues as an SRT document.
func WriteSRT(w io.Writer, cues []Cue) {
	for i, c := range cues {
		fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			i+1, FormatTimestamp(c.Start), FormatTimestamp(c.End), c.Text)
	}
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm with millisecond rounding.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(math.Round(seconds * 1000))
	h := millis / 3600000
	millis -= h * 3600000
	m := millis / 60000
	millis -= m * 60000
	s := millis / 1000
	ms := millis - s*1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimestamp parses HH:MM:SS,mmm into seconds.
func ParseTimestamp(ts string) (float64, error) {
	ts = strings.TrimSpace(ts)
	parts := strings.Split(ts, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("subtitle: malformed timestamp %q", ts)
	}
	secParts := strings.SplitN(parts[2], ",", 2)
	if len(secParts) != 2 {
		return 0, fmt.Errorf("subtitle: malformed timestamp %q", ts)
	}

	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	s, err3 := strconv.Atoi(secParts[0])
	ms, err4 := strconv.Atoi(secParts[1])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return 0, fmt.Errorf("subtitle: malformed timestamp %q", ts)
	}
	return float64(h)*3600 + float64(m)*60 + float64(s) + float64(ms)/1000, nil
}

// ParseSRT reads an SRT document into cues. Multi-line cue text is joined
// with newlines. Blank-line separators between cues are required; a missing
// trailing separator is tolerated.
func ParseSRT(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []Cue
	for {
		cue, ok, err := parseCue(scanner)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		cues = append(cues, cue)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("subtitle: read: %w", err)
	}
	return cues, nil
}

func parseCue(scanner *bufio.Scanner) (Cue, bool, error) {
	// skip blank lines between cues
	var line string
	for {
		if !scanner.Scan() {
			return Cue{}, false, nil
		}
		line = strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\uFEFF"))
		if line != "" {
			break
		}
	}

	index, err := strconv.Atoi(line)
	if err != nil {
		return Cue{}, false, fmt.Errorf("subtitle: expected cue index, got %q", line)
	}

	if !scanner.Scan() {
		return Cue{}, false, fmt.Errorf("subtitle: cue %d: missing timing line", index)
	}
	timing := strings.TrimSpace(scanner.Text())
	startStr, endStr, found := strings.Cut(timing, "-->")
	if !found {
		return Cue{}, false, fmt.Errorf("subtitle: cue %d: malformed timing line %q", index, timing)
	}
	start, err := ParseTimestamp(startStr)
	if err != nil {
		return Cue{}, false, fmt.Errorf("cue %d: %w", index, err)
	}
	end, err := ParseTimestamp(endStr)
	if err != nil {
		return Cue{}, false, fmt.Errorf("cue %d: %w", index, err)
	}

	var textLines []string
	for scanner.Scan() {
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			break
		}
		textLines = append(textLines, text)
	}

	return Cue{
		Index: index,
		Start: start,
		End:   end,
		Text:  strings.Join(textLines, "\n"),
	}, true, nil
}

// NormalizeText lowercases, trims, and collapses runs of whitespace to a
// single space. Used for duplicate comparison, never for display text.
func NormalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
