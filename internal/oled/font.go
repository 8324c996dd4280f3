package oled

// Font describes a fixed-width bitmap font. Each glyph is Height rows of
// Width pixels, one uint16 per row with the leftmost pixel in the most
// significant bit. Glyphs cover the printable ASCII range 0x20-0x7E.
type Font struct {
	Width  int
	Height int
	Data   []uint16
}

// glyphRows returns the rows for ch, or nil if the font does not cover it.
func (f *Font) glyphRows(ch rune) []uint16 {
	if ch < 0x20 || ch > 0x7E {
		return nil
	}
	start := int(ch-0x20) * f.Height
	if start+f.Height > len(f.Data) {
		return nil
	}
	return f.Data[start : start+f.Height]
}

// Font8x8 is an 8x8 fixed-width font derived from the public domain
// font8x8 bitmap set.
var Font8x8 = &Font{
	Width:  8,
	Height: 8,
	Data: []uint16{
		0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // ' '
		0x1800, 0x3C00, 0x3C00, 0x1800, 0x1800, 0x0000, 0x1800, 0x0000, // '!'
		0x6C00, 0x6C00, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // '"'
		0x6C00, 0x6C00, 0xFE00, 0x6C00, 0xFE00, 0x6C00, 0x6C00, 0x0000, // '#'
		0x3000, 0x7C00, 0xC000, 0x7800, 0x0C00, 0xF800, 0x3000, 0x0000, // '$'
		0x0000, 0xC600, 0xCC00, 0x1800, 0x3000, 0x6600, 0xC600, 0x0000, // '%'
		0x3800, 0x6C00, 0x3800, 0x7600, 0xDC00, 0xCC00, 0x7600, 0x0000, // '&'
		0x6000, 0x6000, 0xC000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // 0x27
		0x1800, 0x3000, 0x6000, 0x6000, 0x6000, 0x3000, 0x1800, 0x0000, // '('
		0x6000, 0x3000, 0x1800, 0x1800, 0x1800, 0x3000, 0x6000, 0x0000, // ')'
		0x0000, 0x6600, 0x3C00, 0xFF00, 0x3C00, 0x6600, 0x0000, 0x0000, // '*'
		0x0000, 0x3000, 0x3000, 0xFC00, 0x3000, 0x3000, 0x0000, 0x0000, // '+'
		0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x3000, 0x3000, 0x6000, // ','
		0x0000, 0x0000, 0x0000, 0xFC00, 0x0000, 0x0000, 0x0000, 0x0000, // '-'
		0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x3000, 0x3000, 0x0000, // '.'
		0x0600, 0x0C00, 0x1800, 0x3000, 0x6000, 0xC000, 0x8000, 0x0000, // '/'
		0x7C00, 0xC600, 0xCE00, 0xDE00, 0xF600, 0xE600, 0x7C00, 0x0000, // '0'
		0x3000, 0x7000, 0x3000, 0x3000, 0x3000, 0x3000, 0xFC00, 0x0000, // '1'
		0x7800, 0xCC00, 0x0C00, 0x3800, 0x6000, 0xCC00, 0xFC00, 0x0000, // '2'
		0x7800, 0xCC00, 0x0C00, 0x3800, 0x0C00, 0xCC00, 0x7800, 0x0000, // '3'
		0x1C00, 0x3C00, 0x6C00, 0xCC00, 0xFE00, 0x0C00, 0x1E00, 0x0000, // '4'
		0xFC00, 0xC000, 0xF800, 0x0C00, 0x0C00, 0xCC00, 0x7800, 0x0000, // '5'
		0x3800, 0x6000, 0xC000, 0xF800, 0xCC00, 0xCC00, 0x7800, 0x0000, // '6'
		0xFC00, 0xCC00, 0x0C00, 0x1800, 0x3000, 0x3000, 0x3000, 0x0000, // '7'
		0x7800, 0xCC00, 0xCC00, 0x7800, 0xCC00, 0xCC00, 0x7800, 0x0000, // '8'
		0x7800, 0xCC00, 0xCC00, 0x7C00, 0x0C00, 0x1800, 0x7000, 0x0000, // '9'
		0x0000, 0x3000, 0x3000, 0x0000, 0x0000, 0x3000, 0x3000, 0x0000, // ':'
		0x0000, 0x3000, 0x3000, 0x0000, 0x0000, 0x3000, 0x3000, 0x6000, // ';'
		0x1800, 0x3000, 0x6000, 0xC000, 0x6000, 0x3000, 0x1800, 0x0000, // '<'
		0x0000, 0x0000, 0xFC00, 0x0000, 0x0000, 0xFC00, 0x0000, 0x0000, // '='
		0x6000, 0x3000, 0x1800, 0x0C00, 0x1800, 0x3000, 0x6000, 0x0000, // '>'
		0x7800, 0xCC00, 0x0C00, 0x1800, 0x3000, 0x0000, 0x3000, 0x0000, // '?'
		0x7C00, 0xC600, 0xDE00, 0xDE00, 0xDE00, 0xC000, 0x7800, 0x0000, // '@'
		0x3000, 0x7800, 0xCC00, 0xCC00, 0xFC00, 0xCC00, 0xCC00, 0x0000, // 'A'
		0xFC00, 0x6600, 0x6600, 0x7C00, 0x6600, 0x6600, 0xFC00, 0x0000, // 'B'
		0x3C00, 0x6600, 0xC000, 0xC000, 0xC000, 0x6600, 0x3C00, 0x0000, // 'C'
		0xF800, 0x6C00, 0x6600, 0x6600, 0x6600, 0x6C00, 0xF800, 0x0000, // 'D'
		0xFE00, 0x6200, 0x6800, 0x7800, 0x6800, 0x6200, 0xFE00, 0x0000, // 'E'
		0xFE00, 0x6200, 0x6800, 0x7800, 0x6800, 0x6000, 0xF000, 0x0000, // 'F'
		0x3C00, 0x6600, 0xC000, 0xC000, 0xCE00, 0x6600, 0x3E00, 0x0000, // 'G'
		0xCC00, 0xCC00, 0xCC00, 0xFC00, 0xCC00, 0xCC00, 0xCC00, 0x0000, // 'H'
		0x7800, 0x3000, 0x3000, 0x3000, 0x3000, 0x3000, 0x7800, 0x0000, // 'I'
		0x1E00, 0x0C00, 0x0C00, 0x0C00, 0xCC00, 0xCC00, 0x7800, 0x0000, // 'J'
		0xE600, 0x6600, 0x6C00, 0x7800, 0x6C00, 0x6600, 0xE600, 0x0000, // 'K'
		0xF000, 0x6000, 0x6000, 0x6000, 0x6200, 0x6600, 0xFE00, 0x0000, // 'L'
		0xC600, 0xEE00, 0xFE00, 0xFE00, 0xD600, 0xC600, 0xC600, 0x0000, // 'M'
		0xC600, 0xE600, 0xF600, 0xDE00, 0xCE00, 0xC600, 0xC600, 0x0000, // 'N'
		0x3800, 0x6C00, 0xC600, 0xC600, 0xC600, 0x6C00, 0x3800, 0x0000, // 'O'
		0xFC00, 0x6600, 0x6600, 0x7C00, 0x6000, 0x6000, 0xF000, 0x0000, // 'P'
		0x7800, 0xCC00, 0xCC00, 0xCC00, 0xDC00, 0x7800, 0x1C00, 0x0000, // 'Q'
		0xFC00, 0x6600, 0x6600, 0x7C00, 0x6C00, 0x6600, 0xE600, 0x0000, // 'R'
		0x7800, 0xCC00, 0xE000, 0x7000, 0x1C00, 0xCC00, 0x7800, 0x0000, // 'S'
		0xFC00, 0xB400, 0x3000, 0x3000, 0x3000, 0x3000, 0x7800, 0x0000, // 'T'
		0xCC00, 0xCC00, 0xCC00, 0xCC00, 0xCC00, 0xCC00, 0xFC00, 0x0000, // 'U'
		0xCC00, 0xCC00, 0xCC00, 0xCC00, 0xCC00, 0x7800, 0x3000, 0x0000, // 'V'
		0xC600, 0xC600, 0xC600, 0xD600, 0xFE00, 0xEE00, 0xC600, 0x0000, // 'W'
		0xC600, 0xC600, 0x6C00, 0x3800, 0x3800, 0x6C00, 0xC600, 0x0000, // 'X'
		0xCC00, 0xCC00, 0xCC00, 0x7800, 0x3000, 0x3000, 0x7800, 0x0000, // 'Y'
		0xFE00, 0xC600, 0x8C00, 0x1800, 0x3200, 0x6600, 0xFE00, 0x0000, // 'Z'
		0x7800, 0x6000, 0x6000, 0x6000, 0x6000, 0x6000, 0x7800, 0x0000, // '['
		0xC000, 0x6000, 0x3000, 0x1800, 0x0C00, 0x0600, 0x0200, 0x0000, // 0x5C
		0x7800, 0x1800, 0x1800, 0x1800, 0x1800, 0x1800, 0x7800, 0x0000, // ']'
		0x1000, 0x3800, 0x6C00, 0xC600, 0x0000, 0x0000, 0x0000, 0x0000, // '^'
		0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0xFF00, // '_'
		0x3000, 0x3000, 0x1800, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // '`'
		0x0000, 0x0000, 0x7800, 0x0C00, 0x7C00, 0xCC00, 0x7600, 0x0000, // 'a'
		0xE000, 0x6000, 0x6000, 0x7C00, 0x6600, 0x6600, 0xDC00, 0x0000, // 'b'
		0x0000, 0x0000, 0x7800, 0xCC00, 0xC000, 0xCC00, 0x7800, 0x0000, // 'c'
		0x1C00, 0x0C00, 0x0C00, 0x7C00, 0xCC00, 0xCC00, 0x7600, 0x0000, // 'd'
		0x0000, 0x0000, 0x7800, 0xCC00, 0xFC00, 0xC000, 0x7800, 0x0000, // 'e'
		0x3800, 0x6C00, 0x6000, 0xF000, 0x6000, 0x6000, 0xF000, 0x0000, // 'f'
		0x0000, 0x0000, 0x7600, 0xCC00, 0xCC00, 0x7C00, 0x0C00, 0xF800, // 'g'
		0xE000, 0x6000, 0x6C00, 0x7600, 0x6600, 0x6600, 0xE600, 0x0000, // 'h'
		0x3000, 0x0000, 0x7000, 0x3000, 0x3000, 0x3000, 0x7800, 0x0000, // 'i'
		0x0C00, 0x0000, 0x0C00, 0x0C00, 0x0C00, 0xCC00, 0xCC00, 0x7800, // 'j'
		0xE000, 0x6000, 0x6600, 0x6C00, 0x7800, 0x6C00, 0xE600, 0x0000, // 'k'
		0x7000, 0x3000, 0x3000, 0x3000, 0x3000, 0x3000, 0x7800, 0x0000, // 'l'
		0x0000, 0x0000, 0xCC00, 0xFE00, 0xFE00, 0xD600, 0xC600, 0x0000, // 'm'
		0x0000, 0x0000, 0xF800, 0xCC00, 0xCC00, 0xCC00, 0xCC00, 0x0000, // 'n'
		0x0000, 0x0000, 0x7800, 0xCC00, 0xCC00, 0xCC00, 0x7800, 0x0000, // 'o'
		0x0000, 0x0000, 0xDC00, 0x6600, 0x6600, 0x7C00, 0x6000, 0xF000, // 'p'
		0x0000, 0x0000, 0x7600, 0xCC00, 0xCC00, 0x7C00, 0x0C00, 0x1E00, // 'q'
		0x0000, 0x0000, 0xDC00, 0x7600, 0x6600, 0x6000, 0xF000, 0x0000, // 'r'
		0x0000, 0x0000, 0x7C00, 0xC000, 0x7800, 0x0C00, 0xF800, 0x0000, // 's'
		0x1000, 0x3000, 0x7C00, 0x3000, 0x3000, 0x3400, 0x1800, 0x0000, // 't'
		0x0000, 0x0000, 0xCC00, 0xCC00, 0xCC00, 0xCC00, 0x7600, 0x0000, // 'u'
		0x0000, 0x0000, 0xCC00, 0xCC00, 0xCC00, 0x7800, 0x3000, 0x0000, // 'v'
		0x0000, 0x0000, 0xC600, 0xD600, 0xFE00, 0xFE00, 0x6C00, 0x0000, // 'w'
		0x0000, 0x0000, 0xC600, 0x6C00, 0x3800, 0x6C00, 0xC600, 0x0000, // 'x'
		0x0000, 0x0000, 0xCC00, 0xCC00, 0xCC00, 0x7C00, 0x0C00, 0xF800, // 'y'
		0x0000, 0x0000, 0xFC00, 0x9800, 0x3000, 0x6400, 0xFC00, 0x0000, // 'z'
		0x1C00, 0x3000, 0x3000, 0xE000, 0x3000, 0x3000, 0x1C00, 0x0000, // '{'
		0x1800, 0x1800, 0x1800, 0x0000, 0x1800, 0x1800, 0x1800, 0x0000, // '|'
		0xE000, 0x3000, 0x3000, 0x1C00, 0x3000, 0x3000, 0xE000, 0x0000, // '}'
		0x7600, 0xDC00, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, 0x0000, // '~'
	},
}
