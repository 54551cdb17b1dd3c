package stitch

import "testing"

func TestPlausibleBasicText(t *testing.T) {
	f := NewPlausibilityFilter(PlausibilityConfig{})
	if !f.Plausible("hello there", "en") {
		t.Error("expected plain speech to pass")
	}
}

func TestPlausibleRejectsTooShort(t *testing.T) {
	f := NewPlausibilityFilter(PlausibilityConfig{})
	if f.Plausible("a", "en") {
		t.Error("single rune must be rejected")
	}
	if f.Plausible("", "en") {
		t.Error("empty text must be rejected")
	}
}

func TestPlausibleRejectsRepeatRuns(t *testing.T) {
	f := NewPlausibilityFilter(PlausibilityConfig{})
	if f.Plausible("……………", "en") {
		t.Error("repeated ellipsis must be rejected")
	}
	if f.Plausible("aaaaargh", "en") {
		t.Error("five repeated runes must be rejected")
	}
	if !f.Plausible("aaah no", "en") {
		t.Error("short repeat runs are fine")
	}
}

func TestPlausibleRejectsSymbolDominated(t *testing.T) {
	f := NewPlausibilityFilter(PlausibilityConfig{})
	if f.Plausible("-*[)!?~=+&%$", "en") {
		t.Error("symbol soup must be rejected")
	}
	// Short symbol bursts are below the dominance length floor but still
	// fail the Latin letter floor.
	if f.Plausible("!?", "en") {
		t.Error("symbol-only text must be rejected")
	}
	if !f.Plausible("it's 50%! really", "en") {
		t.Error("text with some symbols must pass")
	}
}

func TestPlausibleLatinFloor(t *testing.T) {
	f := NewPlausibilityFilter(PlausibilityConfig{})
	if f.Plausible("12 34", "en") {
		t.Error("digits alone do not satisfy the Latin floor")
	}
	if !f.Plausible("ok", "en") {
		t.Error("two Latin letters suffice")
	}
}

func TestPlausibleCJKLanguages(t *testing.T) {
	f := NewPlausibilityFilter(PlausibilityConfig{})
	if !f.Plausible("你好", "zh") {
		t.Error("CJK text must pass for zh")
	}
	if !f.Plausible("こんにちは", "ja") {
		t.Error("hiragana must pass for ja")
	}
	if !f.Plausible("ok then", "zh") {
		t.Error("Latin fallback must pass for CJK languages")
	}
	if f.Plausible("12 34", "zh") {
		t.Error("neither CJK nor Latin floor met")
	}
	if f.Plausible("你好", "en") {
		t.Error("CJK-only text fails the Latin floor for Latin languages")
	}
}

func TestPlausibleConfigurableThresholds(t *testing.T) {
	f := NewPlausibilityFilter(PlausibilityConfig{MaxRepeatRun: 3})
	if f.Plausible("aaah no", "en") {
		t.Error("lowered repeat threshold must reject three-rune runs")
	}

	f = NewPlausibilityFilter(PlausibilityConfig{MinRunes: 5})
	if f.Plausible("okay", "en") {
		t.Error("raised length floor must reject four-rune text")
	}
}
