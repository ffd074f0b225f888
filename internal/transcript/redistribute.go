package transcript

// EnforceMinDuration widens lines shorter than minDuration by borrowing idle
// time from the gaps on either side. Lines never overlap and stay within
// [0, audioDuration]; when the gaps are too small a line stays short.
// Lines that overlap on input (cross-talk between turns) are first pushed to
// start where the previous line ends.
// audioDuration <= 0 means the last line cannot grow to the right.
func EnforceMinDuration(lines []LineEntry, audioDuration, minDuration float64) {
	n := len(lines)
	if n == 0 || minDuration <= 0 {
		return
	}

	starts := make([]float64, n)
	ends := make([]float64, n)
	for i, l := range lines {
		starts[i] = l.Start
		if i > 0 && starts[i] < ends[i-1] {
			starts[i] = ends[i-1]
		}
		ends[i] = l.End
		if ends[i] < starts[i] {
			ends[i] = starts[i]
		}
	}

	// gaps[i] is the idle time between line i and i+1.
	gaps := make([]float64, n-1)
	for i := range gaps {
		gaps[i] = max(starts[i+1]-ends[i], 0)
	}

	leftGap := make([]float64, n)
	rightGap := make([]float64, n)
	leftGap[0] = max(starts[0], 0)
	for i := 1; i < n; i++ {
		leftGap[i] = gaps[i-1]
	}
	for i := 0; i < n-1; i++ {
		rightGap[i] = gaps[i]
	}
	if audioDuration > 0 {
		rightGap[n-1] = max(audioDuration-ends[n-1], 0)
	}

	wantLeft := make([]float64, n)
	wantRight := make([]float64, n)
	for i := 0; i < n; i++ {
		dur := ends[i] - starts[i]
		if dur >= minDuration {
			continue
		}
		need := minDuration - dur
		half := need / 2
		left := min(half, leftGap[i])
		right := min(half, rightGap[i])
		if rem := need - left - right; rem > 0 {
			leftCap := max(leftGap[i]-left, 0)
			rightCap := max(rightGap[i]-right, 0)
			if rightCap > leftCap {
				extra := min(rem, rightCap)
				right += extra
				rem -= extra
			}
			left += min(rem, leftCap)
		}
		wantLeft[i] = left
		wantRight[i] = right
	}

	allocLeft := make([]float64, n)
	allocRight := make([]float64, n)
	allocLeft[0] = min(wantLeft[0], leftGap[0])
	allocRight[n-1] = min(wantRight[n-1], rightGap[n-1])

	// Two neighbours may both want the gap between them; scale them down to fit.
	for i, gap := range gaps {
		total := wantRight[i] + wantLeft[i+1]
		switch {
		case total <= 0:
		case total <= gap:
			allocRight[i] = wantRight[i]
			allocLeft[i+1] = wantLeft[i+1]
		default:
			scale := gap / total
			allocRight[i] = wantRight[i] * scale
			allocLeft[i+1] = wantLeft[i+1] * scale
		}
	}

	for i := range lines {
		start := max(starts[i]-allocLeft[i], 0)
		end := ends[i] + allocRight[i]
		if audioDuration > 0 && end > audioDuration {
			end = audioDuration
		}
		if end < start {
			end = start
		}
		lines[i].Start = start
		lines[i].End = end
	}
}
