package terminal

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// Snapshot is a point-in-time capture of a terminal buffer.
type Snapshot struct {
	Output       string     `json:"output"`
	CursorOffset int        `json:"cursorOffset"`
	Styles       []StyleRun `json:"styles"`
}

// Len returns the length of the output in runes.
func (s Snapshot) Len() int {
	return utf8.RuneCountInString(s.Output)
}

// LineCount returns the number of "\n" separated lines in the output.
func (s Snapshot) LineCount() int {
	return strings.Count(s.Output, "\n") + 1
}

// Equal compares two snapshots by value. Text, cursor and styles all count.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.Output == o.Output &&
		s.CursorOffset == o.CursorOffset &&
		slices.Equal(s.Styles, o.Styles)
}

// Normalize clamps the cursor and every style run to [0, Len()] and
// coalesces the runs. Snapshots handed over by a host go through this
// before they are trimmed or compared.
func (s Snapshot) Normalize() Snapshot {
	n := s.Len()
	s.CursorOffset = clamp(s.CursorOffset, 0, n)

	runs := make([]StyleRun, 0, len(s.Styles))
	for _, r := range s.Styles {
		r.Start = clamp(r.Start, 0, n)
		r.End = clamp(r.End, 0, n)
		runs = append(runs, r)
	}
	s.Styles = Coalesce(runs)
	return s
}

// Trim keeps at most maxLines trailing lines of output. The cursor offset is
// re-anchored to the trimmed text; style runs that end before the cut are
// dropped, runs straddling it are clipped and the rest are shifted.
// maxLines <= 0 means no trimming.
func (s Snapshot) Trim(maxLines int) Snapshot {
	if maxLines <= 0 {
		return s
	}

	runes := []rune(s.Output)
	cut := -1
	seen := 0
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] != '\n' {
			continue
		}
		seen++
		if seen == maxLines {
			cut = i + 1
			break
		}
	}
	if cut < 0 {
		return s
	}

	kept := runes[cut:]
	n := len(kept)
	out := Snapshot{
		Output:       string(kept),
		CursorOffset: clamp(s.CursorOffset-cut, 0, n),
	}

	runs := make([]StyleRun, 0, len(s.Styles))
	for _, r := range s.Styles {
		if r.End <= cut {
			continue
		}
		r.Start = clamp(r.Start-cut, 0, n)
		r.End = clamp(r.End-cut, 0, n)
		if r.Start >= r.End {
			continue
		}
		runs = append(runs, r)
	}
	out.Styles = Coalesce(runs)
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
