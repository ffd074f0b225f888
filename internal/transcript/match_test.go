package transcript

import "testing"

func words(specs ...any) []Word {
	var out []Word
	for i := 0; i+2 < len(specs); i += 3 {
		out = append(out, NewWord(specs[i].(string), float64(specs[i+1].(int)), float64(specs[i+2].(int))))
	}
	return out
}

func TestNormalizeToken(t *testing.T) {
	tests := map[string]string{
		"Hello,":  "hello",
		"don’t":   "dont",
		"it's":    "its",
		"--":      "",
		"_under_": "under",
		"Café!":   "café",
		"42.":     "42",
	}
	for in, want := range tests {
		if got := NormalizeToken(in); got != want {
			t.Errorf("NormalizeToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatchLine_Exact(t *testing.T) {
	ws := words("Hello,", 0, 400, "world.", 500, 900, "again", 1000, 1300)

	m := MatchLine("hello world", ws, 0)
	if m.Consumed != 2 {
		t.Fatalf("Consumed = %d, want 2", m.Consumed)
	}
	if m.Start != 0 || m.Stop != 0.9 {
		t.Errorf("span = [%v, %v], want [0, 0.9]", m.Start, m.Stop)
	}
	if m.BoundaryMissing {
		t.Error("BoundaryMissing = true, want false")
	}

	next := MatchLine("again", ws, m.Consumed)
	if next.Consumed != 1 || next.Start != 1.0 || next.Stop != 1.3 {
		t.Errorf("second line = %+v", next)
	}
}

func TestMatchLine_SubstringBothWays(t *testing.T) {
	// ASR merged "can not" into "cannot"; the wrapped line split "dropout" apart.
	ws := words("cannot", 0, 300, "drop", 300, 500, "out", 500, 700)

	m := MatchLine("can dropout", ws, 0)
	if m.Consumed != 2 {
		t.Fatalf("Consumed = %d, want 2", m.Consumed)
	}
	if m.Stop != 0.5 {
		t.Errorf("Stop = %v, want 0.5", m.Stop)
	}
}

func TestMatchLine_SkipsUnmatchedWords(t *testing.T) {
	ws := words("um", 0, 100, "yes", 200, 400)
	m := MatchLine("yes", ws, 0)
	if m.Consumed != 1 {
		t.Fatalf("Consumed = %d, want 1", m.Consumed)
	}
	if m.Cursor != 2 {
		t.Errorf("Cursor = %d, want 2", m.Cursor)
	}
	if m.Start != 0.2 {
		t.Errorf("Start = %v, want 0.2", m.Start)
	}
}

func TestMatchLine_NoMatch(t *testing.T) {
	ws := words("alpha", 0, 100)
	m := MatchLine("zulu", ws, 0)
	if m.OK() {
		t.Fatalf("expected failure, got %+v", m)
	}
	if !m.BoundaryMissing {
		t.Error("BoundaryMissing = false on failure")
	}
}

func TestMatchLine_NeverRescansBackward(t *testing.T) {
	ws := words("yes", 0, 100, "no", 200, 300)
	m := MatchLine("yes", ws, 1)
	if m.OK() {
		t.Errorf("matched a word before the offset: %+v", m)
	}
}

func TestMatchLine_BoundaryMissing(t *testing.T) {
	end := 500.0
	ws := []Word{{Text: "hi", End: &end}, NewWord("there", 600, 900)}
	m := MatchLine("hi there", ws, 0)
	if m.Consumed != 2 {
		t.Fatalf("Consumed = %d, want 2", m.Consumed)
	}
	if !m.BoundaryMissing {
		t.Error("BoundaryMissing = false, want true when first word has no start")
	}
	if m.Start != 0 {
		t.Errorf("Start = %v, want 0", m.Start)
	}
}

func TestMatchLine_EmptyInputs(t *testing.T) {
	if m := MatchLine("", words("a", 0, 1), 0); m.OK() {
		t.Error("empty line matched")
	}
	if m := MatchLine("a", nil, 0); m.OK() {
		t.Error("matched with no words")
	}
	if m := MatchLine("?! ...", words("a", 0, 1), 0); m.OK() {
		t.Error("punctuation-only line matched")
	}
}
