package oled

import "fmt"

// printfLimit bounds the formatted output of Printf, in bytes.
const printfLimit = 127

// SetCursor moves the text cursor. Coordinates past the panel edge are
// clamped to the last pixel.
func (d *Display) SetCursor(x, y int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x >= d.width {
		x = d.width - 1
	}
	if y >= d.height {
		y = d.height - 1
	}
	d.cursorX = x
	d.cursorY = y
}

// Cursor returns the current text cursor position.
func (d *Display) Cursor() (x, y int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursorX, d.cursorY
}

// PutChar renders one glyph at the cursor and advances the cursor by the
// glyph width. Background pixels within the glyph cell are set to the
// complement color. It returns false, touching neither the framebuffer
// nor the cursor, if the font does not cover ch or the glyph does not
// fit at the current cursor position. There is no line wrapping.
func (d *Display) PutChar(ch rune, font *Font, color Color) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.putCharLocked(ch, font, color)
}

func (d *Display) putCharLocked(ch rune, font *Font, color Color) bool {
	if font == nil {
		return false
	}
	rows := font.glyphRows(ch)
	if rows == nil {
		return false
	}
	if d.cursorX+font.Width > d.width || d.cursorY+font.Height > d.height {
		return false
	}

	background := White
	if color == White {
		background = Black
	}

	for row, bits := range rows {
		for col := 0; col < font.Width; col++ {
			pixelColor := background
			if (bits<<col)&0x8000 != 0 {
				pixelColor = color
			}
			d.drawPixelLocked(d.cursorX+col, d.cursorY+row, pixelColor)
		}
	}

	d.cursorX += font.Width
	return true
}

// PutString renders a string glyph by glyph. It stops at the first rune
// that cannot be rendered and returns it along with false; on full
// success it returns 0 and true.
func (d *Display) PutString(s string, font *Font, color Color) (rune, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.putStringLocked(s, font, color)
}

func (d *Display) putStringLocked(s string, font *Font, color Color) (rune, bool) {
	for _, ch := range s {
		if !d.putCharLocked(ch, font, color) {
			return ch, false
		}
	}
	return 0, true
}

// Printf formats its arguments and renders the result at the cursor.
// Output longer than 127 bytes is truncated before rendering.
func (d *Display) Printf(font *Font, color Color, format string, args ...interface{}) (rune, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := fmt.Sprintf(format, args...)
	if len(s) > printfLimit {
		s = s[:printfLimit]
	}
	return d.putStringLocked(s, font, color)
}
