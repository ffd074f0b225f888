package transcript

import (
	"math"
	"testing"
)

func spans(pairs ...float64) []LineEntry {
	var out []LineEntry
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, LineEntry{Start: pairs[i], End: pairs[i+1]})
	}
	return out
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestEnforceMinDuration_SplitsEvenly(t *testing.T) {
	lines := spans(0, 1, 5, 5.25, 10, 11.25)
	EnforceMinDuration(lines, 20, 1.25)

	// Middle line needs 1.0s, takes 0.5s each side.
	if !approx(lines[1].Start, 4.5) || !approx(lines[1].End, 5.75) {
		t.Errorf("middle = [%v, %v], want [4.5, 5.75]", lines[1].Start, lines[1].End)
	}
	// First line needs 0.25s but has no room on the left.
	if !approx(lines[0].Start, 0) || !approx(lines[0].End, 1.25) {
		t.Errorf("first = [%v, %v], want [0, 1.25]", lines[0].Start, lines[0].End)
	}
	// Already long enough.
	if lines[2].Start != 10 || lines[2].End != 11.25 {
		t.Errorf("last = [%v, %v], want unchanged", lines[2].Start, lines[2].End)
	}
}

func TestEnforceMinDuration_SpillsToOtherSide(t *testing.T) {
	lines := spans(0, 2, 2.1, 2.6, 10, 12)
	EnforceMinDuration(lines, 12, 1.25)

	// Left gap is 0.1s, so the rest of the 0.75s deficit comes from the right.
	if !approx(lines[1].Start, 2.0) || !approx(lines[1].End, 3.25) {
		t.Errorf("middle = [%v, %v], want [2.0, 3.25]", lines[1].Start, lines[1].End)
	}
}

func TestEnforceMinDuration_SharedGapScaled(t *testing.T) {
	// Both lines want 0.5s of the same 0.4s gap.
	lines := spans(0, 0.25, 0.65, 0.9)
	EnforceMinDuration(lines, 0, 1.25)

	if lines[0].End > lines[1].Start+1e-12 {
		t.Fatalf("overlap: %v > %v", lines[0].End, lines[1].Start)
	}
	if !approx(lines[0].End, 0.45) || !approx(lines[1].Start, 0.45) {
		t.Errorf("shared gap split = %v / %v, want 0.45 / 0.45", lines[0].End, lines[1].Start)
	}
	// No audio duration: the last line cannot grow right.
	if lines[1].End != 0.9 {
		t.Errorf("last end = %v, want 0.9", lines[1].End)
	}
}

func TestEnforceMinDuration_Invariants(t *testing.T) {
	lines := spans(0.2, 0.3, 0.5, 0.6, 0.61, 3, 3.1, 3.2, 9.5, 9.9)
	orig := make([]LineEntry, len(lines))
	copy(orig, lines)
	const dur, floor = 10.0, 1.25
	EnforceMinDuration(lines, dur, floor)

	if lines[0].Start < 0 {
		t.Errorf("first start %v < 0", lines[0].Start)
	}
	if lines[len(lines)-1].End > dur {
		t.Errorf("last end %v > %v", lines[len(lines)-1].End, dur)
	}
	for i := 0; i+1 < len(lines); i++ {
		if lines[i].End > lines[i+1].Start+1e-12 {
			t.Errorf("lines %d/%d overlap: %v > %v", i, i+1, lines[i].End, lines[i+1].Start)
		}
	}
	for i, l := range lines {
		if l.End-l.Start < orig[i].End-orig[i].Start-1e-12 {
			t.Errorf("line %d shrank", i)
		}
	}
}

func TestEnforceMinDuration_ResolvesInputOverlap(t *testing.T) {
	lines := spans(0, 5, 3, 3.2, 8, 9.5)
	EnforceMinDuration(lines, 10, 1.25)

	for i := 0; i+1 < len(lines); i++ {
		if lines[i].End > lines[i+1].Start+1e-12 {
			t.Errorf("lines %d/%d overlap: %v > %v", i, i+1, lines[i].End, lines[i+1].Start)
		}
	}
	if !approx(lines[1].Start, 5) || !approx(lines[1].End, 6.25) {
		t.Errorf("second = [%v, %v], want [5, 6.25]", lines[1].Start, lines[1].End)
	}
}

func TestEnforceMinDuration_CapacityGuaranteesFloor(t *testing.T) {
	// Isolated short lines with plenty of room on both sides.
	lines := spans(2, 2.1, 6, 6.5, 12, 12.2)
	EnforceMinDuration(lines, 20, 1.25)
	for i, l := range lines {
		if l.End-l.Start < 1.25-1e-9 {
			t.Errorf("line %d duration %v < 1.25", i, l.End-l.Start)
		}
	}
}

func TestEnforceMinDuration_Noop(t *testing.T) {
	EnforceMinDuration(nil, 10, 1.25)

	lines := spans(1, 1.1)
	EnforceMinDuration(lines, 10, 0)
	if lines[0].Start != 1 || lines[0].End != 1.1 {
		t.Errorf("min duration 0 changed line: %+v", lines[0])
	}
}
