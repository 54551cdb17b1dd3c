package stitch

import (
	"unicode"
	"unicode/utf8"
)

// PlausibilityConfig holds the thresholds for rejecting hallucinated or
// garbage segments. Zero values are replaced by defaults.
type PlausibilityConfig struct {
	// MinRunes rejects trimmed text shorter than this many runes.
	MinRunes int `yaml:"min_runes" mapstructure:"min_runes"`
	// MaxRepeatRun rejects text where any rune repeats this many times in
	// a row.
	MaxRepeatRun int `yaml:"max_repeat_run" mapstructure:"max_repeat_run"`
	// SymbolDominanceMinRunes is the trimmed length above which text with
	// more symbols than letters, digits, or CJK characters is rejected.
	SymbolDominanceMinRunes int `yaml:"symbol_dominance_min_runes" mapstructure:"symbol_dominance_min_runes"`
	// MinLatinLetters is the Latin letter floor for Latin-script languages.
	MinLatinLetters int `yaml:"min_latin_letters" mapstructure:"min_latin_letters"`
	// MinCJKChars is the CJK character floor for CJK languages.
	MinCJKChars int `yaml:"min_cjk_chars" mapstructure:"min_cjk_chars"`
	// CJKLanguages lists language codes checked against the CJK floor.
	CJKLanguages []string `yaml:"cjk_languages" mapstructure:"cjk_languages"`
}

// ApplyDefaults fills unset fields.
func (c *PlausibilityConfig) ApplyDefaults() {
	if c.MinRunes == 0 {
		c.MinRunes = 2
	}
	if c.MaxRepeatRun == 0 {
		c.MaxRepeatRun = 5
	}
	if c.SymbolDominanceMinRunes == 0 {
		c.SymbolDominanceMinRunes = 6
	}
	if c.MinLatinLetters == 0 {
		c.MinLatinLetters = 2
	}
	if c.MinCJKChars == 0 {
		c.MinCJKChars = 1
	}
	if c.CJKLanguages == nil {
		c.CJKLanguages = []string{"zh", "ja", "ko", "yue"}
	}
}

// PlausibilityFilter rejects segment text that looks like transcription
// garbage rather than speech.
type PlausibilityFilter struct {
	cfg    PlausibilityConfig
	cjkSet map[string]bool
}

// NewPlausibilityFilter creates a filter with the given thresholds.
func NewPlausibilityFilter(cfg PlausibilityConfig) *PlausibilityFilter {
	cfg.ApplyDefaults()
	set := make(map[string]bool, len(cfg.CJKLanguages))
	for _, l := range cfg.CJKLanguages {
		set[l] = true
	}
	return &PlausibilityFilter{cfg: cfg, cjkSet: set}
}

// Plausible reports whether text is plausible transcription output for the
// given language code. The text must already be trimmed.
func (f *PlausibilityFilter) Plausible(text, language string) bool {
	if utf8.RuneCountInString(text) < f.cfg.MinRunes {
		return false
	}
	if longestRun(text) >= f.cfg.MaxRepeatRun {
		return false
	}

	var latin, cjk, alnum, symbols, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		switch {
		case isCJK(r):
			cjk++
			alnum++
		case unicode.IsLetter(r):
			if r < 0x250 {
				latin++
			}
			alnum++
		case unicode.IsDigit(r):
			alnum++
		default:
			symbols++
		}
	}

	if total > f.cfg.SymbolDominanceMinRunes && symbols > alnum {
		return false
	}

	if f.cjkSet[language] {
		return cjk >= f.cfg.MinCJKChars || latin >= f.cfg.MinLatinLetters
	}
	return latin >= f.cfg.MinLatinLetters
}

// longestRun returns the length of the longest run of one repeated rune.
func longestRun(text string) int {
	var prev rune
	run, longest := 0, 0
	for _, r := range text {
		if r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

// isCJK reports whether a rune belongs to the Han, Hiragana, Katakana, or
// Hangul scripts.
func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
