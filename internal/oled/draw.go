package oled

// DrawPixel sets one pixel in the framebuffer. Out-of-bounds coordinates
// are silently ignored.
func (d *Display) DrawPixel(x, y int, color Color) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drawPixelLocked(x, y, color)
}

func (d *Display) drawPixelLocked(x, y int, color Color) {
	if x < 0 || x >= d.width || y < 0 || y >= d.height {
		return
	}
	byteIndex := x + (y/pageHeight)*d.width
	bitMask := byte(1) << (y % pageHeight)
	if color == White {
		d.buffer[byteIndex] |= bitMask
	} else {
		d.buffer[byteIndex] &^= bitMask
	}
}

// GetPixel returns the framebuffer state of one pixel. Out-of-bounds
// coordinates read as Black.
func (d *Display) GetPixel(x, y int) Color {
	d.mu.Lock()
	defer d.mu.Unlock()

	if x < 0 || x >= d.width || y < 0 || y >= d.height {
		return Black
	}
	byteIndex := x + (y/pageHeight)*d.width
	bitMask := byte(1) << (y % pageHeight)
	if d.buffer[byteIndex]&bitMask != 0 {
		return White
	}
	return Black
}

// DrawLine draws a line between two points with Bresenham's algorithm.
// Endpoints may lie outside the panel; only the visible part is drawn.
func (d *Display) DrawLine(x0, y0, x1, y1 int, color Color) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drawLineLocked(x0, y0, x1, y1, color)
}

func (d *Display) drawLineLocked(x0, y0, x1, y1 int, color Color) {
	dx := abs(x1 - x0)
	dy := abs(y1 - y0)
	sx := 1
	if x0 >= x1 {
		sx = -1
	}
	sy := 1
	if y0 >= y1 {
		sy = -1
	}
	err := dx / 2
	if dx <= dy {
		err = -dy / 2
	}

	for {
		d.drawPixelLocked(x0, y0, color)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := err
		if e2 > -dx {
			err -= dy
			x0 += sx
		}
		if e2 < dy {
			err += dx
			y0 += sy
		}
	}
}

// DrawRectangle draws a one-pixel outline. Rectangles extending past the
// panel edge are clipped; a zero width or height draws nothing.
func (d *Display) DrawRectangle(x, y, width, height int, color Color) {
	d.mu.Lock()
	defer d.mu.Unlock()

	x, y, width, height, ok := d.clipRect(x, y, width, height)
	if !ok {
		return
	}

	d.drawLineLocked(x, y, x+width-1, y, color)
	d.drawLineLocked(x, y+height-1, x+width-1, y+height-1, color)
	d.drawLineLocked(x, y, x, y+height-1, color)
	d.drawLineLocked(x+width-1, y, x+width-1, y+height-1, color)
}

// DrawFilledRectangle draws a solid rectangle, clipped like DrawRectangle.
func (d *Display) DrawFilledRectangle(x, y, width, height int, color Color) {
	d.mu.Lock()
	defer d.mu.Unlock()

	x, y, width, height, ok := d.clipRect(x, y, width, height)
	if !ok {
		return
	}

	for row := 0; row < height; row++ {
		d.drawLineLocked(x, y+row, x+width-1, y+row, color)
	}
}

func (d *Display) clipRect(x, y, width, height int) (int, int, int, int, bool) {
	if width <= 0 || height <= 0 {
		return 0, 0, 0, 0, false
	}
	if x >= d.width || y >= d.height {
		return 0, 0, 0, 0, false
	}
	if x+width > d.width {
		width = d.width - x
	}
	if y+height > d.height {
		height = d.height - y
	}
	return x, y, width, height, true
}

// DrawCircle draws a circle outline with the midpoint algorithm. A
// non-positive radius draws nothing.
func (d *Display) DrawCircle(x0, y0, radius int, color Color) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if radius <= 0 {
		return
	}

	f := 1 - radius
	ddfX := 1
	ddfY := -2 * radius
	x := 0
	y := radius

	d.drawPixelLocked(x0, y0+radius, color)
	d.drawPixelLocked(x0, y0-radius, color)
	d.drawPixelLocked(x0+radius, y0, color)
	d.drawPixelLocked(x0-radius, y0, color)

	for x < y {
		if f >= 0 {
			y--
			ddfY += 2
			f += ddfY
		}
		x++
		ddfX += 2
		f += ddfX

		d.drawPixelLocked(x0+x, y0+y, color)
		d.drawPixelLocked(x0-x, y0+y, color)
		d.drawPixelLocked(x0+x, y0-y, color)
		d.drawPixelLocked(x0-x, y0-y, color)
		d.drawPixelLocked(x0+y, y0+x, color)
		d.drawPixelLocked(x0-y, y0+x, color)
		d.drawPixelLocked(x0+y, y0-x, color)
		d.drawPixelLocked(x0-y, y0-x, color)
	}
}

// DrawFilledCircle draws a solid circle.
func (d *Display) DrawFilledCircle(x0, y0, radius int, color Color) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if radius <= 0 {
		return
	}

	f := 1 - radius
	ddfX := 1
	ddfY := -2 * radius
	x := 0
	y := radius

	d.drawLineLocked(x0-radius, y0, x0+radius, y0, color)
	d.drawPixelLocked(x0, y0+radius, color)
	d.drawPixelLocked(x0, y0-radius, color)

	for x < y {
		if f >= 0 {
			y--
			ddfY += 2
			f += ddfY
		}
		x++
		ddfX += 2
		f += ddfX

		d.drawLineLocked(x0-x, y0+y, x0+x, y0+y, color)
		d.drawLineLocked(x0-x, y0-y, x0+x, y0-y, color)
		d.drawLineLocked(x0-y, y0+x, x0+y, y0+x, color)
		d.drawLineLocked(x0-y, y0-x, x0+y, y0-x, color)
	}
}

// DrawTriangle draws the outline of a triangle.
func (d *Display) DrawTriangle(x1, y1, x2, y2, x3, y3 int, color Color) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.drawLineLocked(x1, y1, x2, y2, color)
	d.drawLineLocked(x2, y2, x3, y3, color)
	d.drawLineLocked(x3, y3, x1, y1, color)
}

// DrawFilledTriangle draws a solid triangle by sorting the vertices by Y
// and filling flat-top and flat-bottom halves with horizontal spans.
// Degenerate triangles collapse to their line or point.
func (d *Display) DrawFilledTriangle(x1, y1, x2, y2, x3, y3 int, color Color) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if y1 > y2 {
		x1, x2 = x2, x1
		y1, y2 = y2, y1
	}
	if y1 > y3 {
		x1, x3 = x3, x1
		y1, y3 = y3, y1
	}
	if y2 > y3 {
		x2, x3 = x3, x2
		y2, y3 = y3, y2
	}

	span := func(y int, xa, ya, xb, yb int) int {
		// interpolate x along the edge (xa,ya)-(xb,yb) at row y
		return xa + (xb-xa)*(y-ya)/(yb-ya)
	}

	switch {
	case y1 == y3:
		// fully flat: a single horizontal span
		lo, hi := minMax3(x1, x2, x3)
		d.drawLineLocked(lo, y1, hi, y1, color)
	case y2 == y3:
		for y := y1; y <= y2; y++ {
			xa := span(y, x1, y1, x2, y2)
			xb := span(y, x1, y1, x3, y3)
			if xa > xb {
				xa, xb = xb, xa
			}
			d.drawLineLocked(xa, y, xb, y, color)
		}
	case y1 == y2:
		for y := y1; y <= y3; y++ {
			xa := span(y, x1, y1, x3, y3)
			xb := span(y, x2, y2, x3, y3)
			if xa > xb {
				xa, xb = xb, xa
			}
			d.drawLineLocked(xa, y, xb, y, color)
		}
	default:
		// split at the middle vertex into two flat triangles
		x4 := span(y2, x1, y1, x3, y3)

		for y := y1; y <= y2; y++ {
			xa := span(y, x1, y1, x2, y2)
			xb := span(y, x1, y1, x3, y3)
			if xa > xb {
				xa, xb = xb, xa
			}
			d.drawLineLocked(xa, y, xb, y, color)
		}
		for y := y2; y <= y3; y++ {
			xa := span(y, x2, y2, x3, y3)
			xb := span(y, x4, y2, x3, y3)
			if xa > xb {
				xa, xb = xb, xa
			}
			d.drawLineLocked(xa, y, xb, y, color)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func minMax3(a, b, c int) (int, int) {
	lo, hi := a, a
	if b < lo {
		lo = b
	}
	if b > hi {
		hi = b
	}
	if c < lo {
		lo = c
	}
	if c > hi {
		hi = c
	}
	return lo, hi
}
