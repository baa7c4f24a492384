// Package terminal models styled terminal text: snapshots of a terminal
// buffer with a cursor offset and coalesced style runs, plus a small VT
// emulator that produces them from raw PTY output.
//
// All offsets are rune indexes into Snapshot.Output.
package terminal

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/charmbracelet/x/ansi"
)

// StyleRun is a contiguous range [Start, End) sharing one set of attributes.
type StyleRun struct {
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Fg        string `json:"fg,omitempty"`
	Bg        string `json:"bg,omitempty"`
	Bold      bool   `json:"bold"`
	Italic    bool   `json:"italic"`
	Underline bool   `json:"underline"`
}

// Attr is the attribute part of a StyleRun.
type Attr struct {
	Fg        string
	Bg        string
	Bold      bool
	Italic    bool
	Underline bool
}

// IsZero reports whether the attribute set is the terminal default.
func (a Attr) IsZero() bool {
	return a == Attr{}
}

// Attr returns the attributes of the run.
func (r StyleRun) Attr() Attr {
	return Attr{Fg: r.Fg, Bg: r.Bg, Bold: r.Bold, Italic: r.Italic, Underline: r.Underline}
}

// NewStyleRun creates a run over [start, end) with the given attributes.
func NewStyleRun(start, end int, a Attr) StyleRun {
	return StyleRun{
		Start:     start,
		End:       end,
		Fg:        a.Fg,
		Bg:        a.Bg,
		Bold:      a.Bold,
		Italic:    a.Italic,
		Underline: a.Underline,
	}
}

// Coalesce returns runs sorted by start, with empty runs dropped, overlaps
// clipped and adjacent runs with identical attributes merged.
// The input slice is not modified.
func Coalesce(runs []StyleRun) []StyleRun {
	if len(runs) == 0 {
		return nil
	}

	sorted := make([]StyleRun, 0, len(runs))
	for _, r := range runs {
		if r.Start < 0 {
			r.Start = 0
		}
		if r.Start >= r.End {
			continue
		}
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	out := make([]StyleRun, 0, len(sorted))
	for _, r := range sorted {
		if n := len(out); n > 0 {
			prev := &out[n-1]
			if r.Start < prev.End {
				r.Start = prev.End
				if r.Start >= r.End {
					continue
				}
			}
			if r.Start == prev.End && r.Attr() == prev.Attr() {
				prev.End = r.End
				continue
			}
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// colorHex formats a color as #rrggbb.
func colorHex(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

// indexedHex returns the xterm palette color for index n.
func indexedHex(n int) string {
	if n < 0 || n > 255 {
		return ""
	}
	return colorHex(ansi.IndexedColor(uint8(n)))
}

func rgbHex(r, g, b int) string {
	return colorHex(ansi.RGBColor{R: clampByte(r), G: clampByte(g), B: clampByte(b)})
}

func clampByte(v int) uint8 {
	return uint8(clamp(v, 0, 255))
}
