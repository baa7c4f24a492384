package terminal

import (
	"fmt"
	"strings"
	"testing"
)

func TestCoalesce(t *testing.T) {
	red := Attr{Fg: "#800000"}
	bold := Attr{Bold: true}

	tests := []struct {
		name string
		in   []StyleRun
		want []StyleRun
	}{
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
		{
			name: "merges adjacent equal runs",
			in:   []StyleRun{NewStyleRun(0, 2, red), NewStyleRun(2, 5, red)},
			want: []StyleRun{NewStyleRun(0, 5, red)},
		},
		{
			name: "keeps adjacent different runs",
			in:   []StyleRun{NewStyleRun(0, 2, red), NewStyleRun(2, 5, bold)},
			want: []StyleRun{NewStyleRun(0, 2, red), NewStyleRun(2, 5, bold)},
		},
		{
			name: "sorts and drops empty runs",
			in:   []StyleRun{NewStyleRun(6, 8, bold), NewStyleRun(3, 3, red), NewStyleRun(0, 1, red)},
			want: []StyleRun{NewStyleRun(0, 1, red), NewStyleRun(6, 8, bold)},
		},
		{
			name: "clips overlaps",
			in:   []StyleRun{NewStyleRun(0, 4, red), NewStyleRun(2, 6, bold)},
			want: []StyleRun{NewStyleRun(0, 4, red), NewStyleRun(4, 6, bold)},
		},
		{
			name: "does not merge across a gap",
			in:   []StyleRun{NewStyleRun(0, 2, red), NewStyleRun(3, 5, red)},
			want: []StyleRun{NewStyleRun(0, 2, red), NewStyleRun(3, 5, red)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Coalesce(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("Coalesce() = %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("run %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSnapshot_TrimNoop(t *testing.T) {
	s := Snapshot{Output: "a\nb\nc", CursorOffset: 4, Styles: []StyleRun{NewStyleRun(0, 1, Attr{Bold: true})}}

	for _, n := range []int{0, -1, 3, 10} {
		got := s.Trim(n)
		if !got.Equal(s) {
			t.Errorf("Trim(%d) = %+v, want unchanged", n, got)
		}
	}
}

func TestSnapshot_Trim(t *testing.T) {
	// "line0\nline1\nline2\nline3"
	s := Snapshot{
		Output:       "line0\nline1\nline2\nline3",
		CursorOffset: 23,
		Styles: []StyleRun{
			NewStyleRun(0, 5, Attr{Fg: "#ff0000"}),   // inside removed prefix
			NewStyleRun(8, 14, Attr{Bold: true}),     // straddles cut at 12
			NewStyleRun(18, 23, Attr{Italic: true}), // last line
		},
	}

	got := s.Trim(2)
	if got.Output != "line2\nline3" {
		t.Fatalf("Output = %q, want %q", got.Output, "line2\nline3")
	}
	if got.CursorOffset != 11 {
		t.Errorf("CursorOffset = %d, want 11", got.CursorOffset)
	}
	want := []StyleRun{
		NewStyleRun(0, 2, Attr{Bold: true}),
		NewStyleRun(6, 11, Attr{Italic: true}),
	}
	if len(got.Styles) != len(want) {
		t.Fatalf("Styles = %+v, want %+v", got.Styles, want)
	}
	for i := range want {
		if got.Styles[i] != want[i] {
			t.Errorf("Styles[%d] = %+v, want %+v", i, got.Styles[i], want[i])
		}
	}
}

func TestSnapshot_TrimCursorInRemovedPrefix(t *testing.T) {
	s := Snapshot{Output: "aa\nbb\ncc", CursorOffset: 1}

	got := s.Trim(1)
	if got.Output != "cc" {
		t.Fatalf("Output = %q, want cc", got.Output)
	}
	if got.CursorOffset != 0 {
		t.Errorf("CursorOffset = %d, want 0", got.CursorOffset)
	}
}

func TestSnapshot_TrimUsesRuneOffsets(t *testing.T) {
	s := Snapshot{
		Output:       "héllo\nwörld",
		CursorOffset: 11,
		Styles:       []StyleRun{NewStyleRun(6, 11, Attr{Underline: true})},
	}

	got := s.Trim(1)
	if got.Output != "wörld" {
		t.Fatalf("Output = %q", got.Output)
	}
	if got.CursorOffset != 5 {
		t.Errorf("CursorOffset = %d, want 5", got.CursorOffset)
	}
	if len(got.Styles) != 1 || got.Styles[0].Start != 0 || got.Styles[0].End != 5 {
		t.Errorf("Styles = %+v", got.Styles)
	}
}

// Every trim of an N-line buffer to fewer lines keeps exactly maxLines lines
// and keeps every run and the cursor inside the trimmed text.
func TestSnapshot_TrimInvariant(t *testing.T) {
	for n := 2; n <= 12; n++ {
		var b strings.Builder
		var runs []StyleRun
		offset := 0
		for i := 0; i < n; i++ {
			if i > 0 {
				b.WriteByte('\n')
				offset++
			}
			line := fmt.Sprintf("row %d %s", i, strings.Repeat("x", i%4))
			b.WriteString(line)
			runs = append(runs, NewStyleRun(offset, offset+3, Attr{Fg: "#00ff00"}))
			runs = append(runs, NewStyleRun(offset+2, offset+len(line)+1, Attr{Bold: i%2 == 0}))
			offset += len(line)
		}
		full := Snapshot{Output: b.String(), CursorOffset: offset, Styles: runs}.Normalize()

		for maxLines := 1; maxLines < n; maxLines++ {
			got := full.Trim(maxLines)
			if lc := got.LineCount(); lc != maxLines {
				t.Fatalf("n=%d maxLines=%d: LineCount = %d", n, maxLines, lc)
			}
			length := got.Len()
			if got.CursorOffset < 0 || got.CursorOffset > length {
				t.Errorf("n=%d maxLines=%d: cursor %d outside [0,%d]", n, maxLines, got.CursorOffset, length)
			}
			prev := 0
			for _, r := range got.Styles {
				if r.Start < 0 || r.End > length || r.Start >= r.End {
					t.Errorf("n=%d maxLines=%d: invalid run %+v for length %d", n, maxLines, r, length)
				}
				if r.Start < prev {
					t.Errorf("n=%d maxLines=%d: runs overlap or are unsorted: %+v", n, maxLines, got.Styles)
				}
				prev = r.End
			}
			if !strings.HasSuffix(full.Output, got.Output) {
				t.Errorf("n=%d maxLines=%d: trimmed text is not a suffix", n, maxLines)
			}
		}
	}
}

func TestSnapshot_Normalize(t *testing.T) {
	s := Snapshot{
		Output:       "abc",
		CursorOffset: 9,
		Styles: []StyleRun{
			NewStyleRun(-2, 1, Attr{Bold: true}),
			NewStyleRun(1, 10, Attr{Bold: true}),
			NewStyleRun(5, 8, Attr{Italic: true}),
		},
	}

	got := s.Normalize()
	if got.CursorOffset != 3 {
		t.Errorf("CursorOffset = %d, want 3", got.CursorOffset)
	}
	if len(got.Styles) != 1 || got.Styles[0] != NewStyleRun(0, 3, Attr{Bold: true}) {
		t.Errorf("Styles = %+v", got.Styles)
	}
}

func TestSnapshot_Equal(t *testing.T) {
	base := Snapshot{Output: "x", CursorOffset: 1, Styles: []StyleRun{NewStyleRun(0, 1, Attr{Bold: true})}}

	if !base.Equal(base) {
		t.Error("snapshot should equal itself")
	}
	if base.Equal(Snapshot{Output: "x", CursorOffset: 0, Styles: base.Styles}) {
		t.Error("cursor difference should count")
	}
	if base.Equal(Snapshot{Output: "x", CursorOffset: 1}) {
		t.Error("style difference should count")
	}
	if !(Snapshot{Output: "y"}).Equal(Snapshot{Output: "y", Styles: []StyleRun{}}) {
		t.Error("nil and empty styles should compare equal")
	}
}
