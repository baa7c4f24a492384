package terminal

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// Default screen geometry.
const (
	DefaultCols       = 120
	DefaultRows       = 40
	DefaultScrollback = 2000

	// maxPending bounds bytes held back for an unterminated escape sequence.
	maxPending = 64 * 1024
)

type cell struct {
	text string // one grapheme cluster; "" marks the right half of a wide glyph
	attr Attr
}

func (c cell) blank() bool {
	return (c.text == " " || c.text == "") && c.attr.Bg == "" && !c.attr.Underline
}

// Screen is a minimal VT-style terminal emulator. It understands printable
// text, CR/LF/BS/TAB, CSI cursor movement, erase in line/display,
// insert/delete/erase characters and SGR attributes including 256-color and
// truecolor. Lines that scroll off the top are kept as scrollback up to a
// fixed limit.
//
// Screen is safe for concurrent use; Snapshot is taken under the same lock
// that Write holds while mutating the buffer.
type Screen struct {
	mu sync.Mutex

	cols, rows    int
	maxScrollback int

	lines [][]cell
	top   int // first visible line
	row   int // absolute cursor line
	col   int // may equal cols while a wrap is pending
	attr  Attr

	savedRow, savedCol int
	savedAttr          Attr

	parser  *ansi.Parser
	pending []byte
}

// NewScreen creates a screen of the given size. Non-positive values fall
// back to the defaults.
func NewScreen(cols, rows, scrollback int) *Screen {
	if cols <= 0 {
		cols = DefaultCols
	}
	if rows <= 0 {
		rows = DefaultRows
	}
	if scrollback < 0 {
		scrollback = DefaultScrollback
	}
	return &Screen{
		cols:          cols,
		rows:          rows,
		maxScrollback: scrollback,
		lines:         make([][]cell, 1),
		parser:        ansi.NewParser(),
	}
}

// Size returns the screen geometry.
func (s *Screen) Size() (cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// Write feeds raw terminal output into the emulator. Incomplete escape
// sequences and UTF-8 tails at the end of p are held back until the next
// call. It never returns an error.
func (s *Screen) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := p
	if len(s.pending) > 0 {
		data = make([]byte, 0, len(s.pending)+len(p))
		data = append(data, s.pending...)
		data = append(data, p...)
		s.pending = nil
	}

	end := len(data) - incompleteUTF8Tail(data)
	i := 0
	for i < end {
		seq, width, n, state := ansi.DecodeSequence(data[i:end], ansi.NormalState, s.parser)
		if state != ansi.NormalState {
			break
		}
		if n <= 0 {
			n = 1
		}
		s.handle(seq, width)
		i += n
	}

	if i < len(data) && len(data)-i <= maxPending {
		s.pending = append([]byte(nil), data[i:]...)
	}
	return len(p), nil
}

// WriteString is a convenience wrapper around Write.
func (s *Screen) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// Snapshot renders scrollback and screen into text with a cursor offset and
// style runs. Trailing blanks are trimmed per line, except up to the cursor
// on the cursor's line, and trailing empty lines below the cursor are dropped.
func (s *Screen) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := s.row
	for i := len(s.lines) - 1; i > last; i-- {
		if visibleLen(s.lines[i]) > 0 {
			last = i
			break
		}
	}

	var (
		b      strings.Builder
		runs   []StyleRun
		offset int
		cursor int
	)
	for i := 0; i <= last && i < len(s.lines); i++ {
		if i > 0 {
			b.WriteByte('\n')
			offset++
		}

		line := s.lines[i]
		keep := visibleLen(line)
		if i == s.row {
			col := min(s.col, s.cols)
			if keep < col {
				keep = col
			}
		}

		for c := 0; c < keep; c++ {
			if i == s.row && c == s.col {
				cursor = offset
			}
			text := " "
			var attr Attr
			if c < len(line) {
				text, attr = line[c].text, line[c].attr
			}
			if text == "" {
				continue
			}
			n := utf8.RuneCountInString(text)
			if !attr.IsZero() {
				runs = append(runs, NewStyleRun(offset, offset+n, attr))
			}
			b.WriteString(text)
			offset += n
		}
		if i == s.row && s.col >= keep {
			cursor = offset
		}
	}

	return Snapshot{
		Output:       b.String(),
		CursorOffset: cursor,
		Styles:       Coalesce(runs),
	}
}

func visibleLen(line []cell) int {
	n := len(line)
	for n > 0 && line[n-1].blank() {
		n--
	}
	return n
}

func (s *Screen) handle(seq []byte, width int) {
	if len(seq) == 0 {
		return
	}

	switch {
	case ansi.HasCsiPrefix(seq):
		s.csi()
	case ansi.HasEscPrefix(seq):
		s.esc(seq)
	case width == 0 && len(seq) == 1:
		s.control(seq[0])
	case seq[0] == ansi.OSC || seq[0] == ansi.DCS || seq[0] == ansi.APC ||
		seq[0] == ansi.SOS || seq[0] == ansi.PM:
		// 8-bit string sequences carry nothing we render.
	case width == 0:
		s.combine(string(seq))
	default:
		s.put(string(seq), width)
	}
}

func (s *Screen) control(c byte) {
	switch c {
	case ansi.CR:
		s.col = 0
	case ansi.LF, ansi.VT, ansi.FF:
		s.lineFeed()
	case ansi.BS:
		if s.col >= s.cols {
			s.col = s.cols - 1
		}
		if s.col > 0 {
			s.col--
		}
	case ansi.HT:
		next := (s.col/8 + 1) * 8
		s.col = min(next, s.cols-1)
	}
}

func (s *Screen) esc(seq []byte) {
	if len(seq) != 2 {
		return
	}
	switch seq[1] {
	case '7':
		s.savedRow, s.savedCol, s.savedAttr = s.row-s.top, s.col, s.attr
	case '8':
		s.row = s.top + clamp(s.savedRow, 0, s.rows-1)
		s.col = clamp(s.savedCol, 0, s.cols-1)
		s.attr = s.savedAttr
		s.ensureRow(s.row)
	case 'D':
		s.lineFeed()
	case 'E':
		s.col = 0
		s.lineFeed()
	case 'M':
		if s.row > s.top {
			s.row--
		}
	case 'c':
		s.reset()
	}
}

func (s *Screen) reset() {
	s.lines = make([][]cell, 1)
	s.top, s.row, s.col = 0, 0, 0
	s.attr = Attr{}
}

func (s *Screen) put(text string, width int) {
	if width > s.cols {
		width = 1
	}
	if s.col+width > s.cols {
		s.col = 0
		s.lineFeed()
	}

	line := s.pad(s.row, s.col+width)
	line[s.col] = cell{text: text, attr: s.attr}
	for k := 1; k < width; k++ {
		line[s.col+k] = cell{attr: s.attr}
	}
	s.col += width
}

// combine appends a zero-width cluster to the previous glyph.
func (s *Screen) combine(text string) {
	line := s.lines[s.row]
	for c := min(s.col, len(line)) - 1; c >= 0; c-- {
		if line[c].text != "" {
			line[c].text += text
			return
		}
	}
}

func (s *Screen) lineFeed() {
	if s.row >= s.top+s.rows-1 {
		s.top++
	}
	s.row++
	s.ensureRow(s.row)

	if s.top > s.maxScrollback {
		d := s.top - s.maxScrollback
		s.lines = append([][]cell(nil), s.lines[d:]...)
		s.top -= d
		s.row -= d
	}
}

func (s *Screen) ensureRow(r int) {
	for len(s.lines) <= r {
		s.lines = append(s.lines, nil)
	}
}

// pad makes line r at least n cells wide and returns it.
func (s *Screen) pad(r, n int) []cell {
	s.ensureRow(r)
	line := s.lines[r]
	for len(line) < n {
		line = append(line, cell{text: " "})
	}
	s.lines[r] = line
	return line
}

// count returns numeric parameter i where 0 and missing both mean 1.
func (s *Screen) count(i int) int {
	v, _ := s.parser.Param(i, 1)
	if v < 1 {
		return 1
	}
	return v
}

func (s *Screen) csi() {
	cmd := ansi.Cmd(s.parser.Command())
	if cmd.Prefix() != 0 || cmd.Intermediate() != 0 {
		// Private modes (alternate screen, bracketed paste, ...) are ignored.
		return
	}
	if s.col >= s.cols && cmd.Final() != 'm' {
		s.col = s.cols - 1
	}

	switch cmd.Final() {
	case 'A':
		s.row = max(s.top, s.row-s.count(0))
	case 'B', 'e':
		s.row = min(s.top+s.rows-1, s.row+s.count(0))
		s.ensureRow(s.row)
	case 'C', 'a':
		s.col = min(s.cols-1, s.col+s.count(0))
	case 'D':
		s.col = max(0, s.col-s.count(0))
	case 'E':
		s.row = min(s.top+s.rows-1, s.row+s.count(0))
		s.col = 0
		s.ensureRow(s.row)
	case 'F':
		s.row = max(s.top, s.row-s.count(0))
		s.col = 0
	case 'G', '`':
		s.col = clamp(s.count(0)-1, 0, s.cols-1)
	case 'd':
		s.row = s.top + clamp(s.count(0)-1, 0, s.rows-1)
		s.ensureRow(s.row)
	case 'H', 'f':
		s.row = s.top + clamp(s.count(0)-1, 0, s.rows-1)
		s.col = clamp(s.count(1)-1, 0, s.cols-1)
		s.ensureRow(s.row)
	case 'J':
		mode, _ := s.parser.Param(0, 0)
		s.eraseDisplay(mode)
	case 'K':
		mode, _ := s.parser.Param(0, 0)
		s.eraseLine(s.row, mode)
	case 'P':
		s.deleteChars(s.count(0))
	case '@':
		s.insertChars(s.count(0))
	case 'X':
		s.eraseChars(s.count(0))
	case 'm':
		s.sgr()
	}
}

func (s *Screen) eraseLine(r, mode int) {
	line := s.lines[r]
	switch mode {
	case 0:
		if s.col < len(line) {
			s.lines[r] = line[:s.col]
		}
	case 1:
		line = s.pad(r, min(s.col+1, s.cols))
		for c := 0; c <= s.col && c < len(line); c++ {
			line[c] = cell{text: " "}
		}
	case 2:
		s.lines[r] = nil
	}
}

func (s *Screen) eraseDisplay(mode int) {
	switch mode {
	case 0:
		s.eraseLine(s.row, 0)
		s.lines = s.lines[:s.row+1]
	case 1:
		for r := s.top; r < s.row; r++ {
			s.lines[r] = nil
		}
		s.eraseLine(s.row, 1)
	case 2:
		for r := s.top; r < len(s.lines); r++ {
			s.lines[r] = nil
		}
	case 3:
		s.lines = append([][]cell(nil), s.lines[s.top:]...)
		s.row -= s.top
		s.top = 0
	}
}

func (s *Screen) deleteChars(n int) {
	line := s.lines[s.row]
	if s.col >= len(line) {
		return
	}
	end := min(s.col+n, len(line))
	s.lines[s.row] = append(line[:s.col], line[end:]...)
}

func (s *Screen) insertChars(n int) {
	line := s.lines[s.row]
	if s.col >= len(line) {
		return
	}
	blanks := make([]cell, n)
	for i := range blanks {
		blanks[i] = cell{text: " "}
	}
	tail := append(blanks, line[s.col:]...)
	line = append(line[:s.col], tail...)
	if len(line) > s.cols {
		line = line[:s.cols]
	}
	s.lines[s.row] = line
}

func (s *Screen) eraseChars(n int) {
	line := s.lines[s.row]
	for c := s.col; c < s.col+n && c < len(line); c++ {
		line[c] = cell{text: " "}
	}
}

func (s *Screen) sgr() {
	params := s.parser.Params()
	if len(params) == 0 {
		s.attr = Attr{}
		return
	}

	for i := 0; i < len(params); i++ {
		p := params[i].Param(0)
		switch {
		case p == 0:
			s.attr = Attr{}
		case p == 1:
			s.attr.Bold = true
		case p == 3:
			s.attr.Italic = true
		case p == 4:
			s.attr.Underline = true
		case p == 22:
			s.attr.Bold = false
		case p == 23:
			s.attr.Italic = false
		case p == 24:
			s.attr.Underline = false
		case p >= 30 && p <= 37:
			s.attr.Fg = indexedHex(p - 30)
		case p == 39:
			s.attr.Fg = ""
		case p >= 40 && p <= 47:
			s.attr.Bg = indexedHex(p - 40)
		case p == 49:
			s.attr.Bg = ""
		case p >= 90 && p <= 97:
			s.attr.Fg = indexedHex(p - 90 + 8)
		case p >= 100 && p <= 107:
			s.attr.Bg = indexedHex(p - 100 + 8)
		case p == 38 || p == 48:
			hex, last := extendedColor(params, i)
			if hex != "" {
				if p == 38 {
					s.attr.Fg = hex
				} else {
					s.attr.Bg = hex
				}
			}
			i = last
		}
	}
}

// extendedColor decodes the 256-color and truecolor forms following a 38 or
// 48 at index i, in both the ";" and ":" separated syntaxes. It returns the
// color and the index of the last parameter consumed.
func extendedColor(params ansi.Params, i int) (string, int) {
	if params[i].HasMore() {
		var sub []int
		j := i + 1
		for ; j < len(params); j++ {
			sub = append(sub, params[j].Param(0))
			if !params[j].HasMore() {
				break
			}
		}
		last := min(j, len(params)-1)
		switch {
		case len(sub) >= 2 && sub[0] == 5:
			return indexedHex(sub[1]), last
		case len(sub) >= 5 && sub[0] == 2:
			return rgbHex(sub[len(sub)-3], sub[len(sub)-2], sub[len(sub)-1]), last
		case len(sub) == 4 && sub[0] == 2:
			return rgbHex(sub[1], sub[2], sub[3]), last
		}
		return "", last
	}

	if i+1 >= len(params) {
		return "", i
	}
	switch params[i+1].Param(0) {
	case 5:
		if i+2 < len(params) {
			return indexedHex(params[i+2].Param(0)), i + 2
		}
	case 2:
		if i+4 < len(params) {
			return rgbHex(params[i+2].Param(0), params[i+3].Param(0), params[i+4].Param(0)), i + 4
		}
	}
	return "", len(params) - 1
}

// incompleteUTF8Tail returns how many bytes at the end of b form the start
// of a UTF-8 sequence that is not complete yet.
func incompleteUTF8Tail(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		c := b[i]
		if c < utf8.RuneSelf {
			return 0
		}
		if !utf8.RuneStart(c) {
			continue
		}
		need := 2
		switch {
		case c >= 0xF0:
			need = 4
		case c >= 0xE0:
			need = 3
		}
		if need > len(b)-i {
			return len(b) - i
		}
		return 0
	}
	return 0
}
