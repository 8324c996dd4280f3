// SPDX-License-Identifier: GPL-3.0-only

// Package contrast provides utilities for converting between raw SSD1306
// contrast register values and user-friendly percentages.
package contrast

import "math"

const (
	// MinContrast is the lowest usable contrast register value. Panels
	// tend to go fully dark below it.
	MinContrast uint8 = 1

	// MaxContrast is the maximum contrast register value.
	MaxContrast uint8 = 255

	// ContrastRange is the difference between maximum and minimum contrast.
	ContrastRange uint8 = MaxContrast - MinContrast
)

// LevelToPercent converts a raw contrast register value to a percentage
// (0-100). Values outside the valid range are clamped before conversion.
// Uses rounding to ensure round-trip consistency with PercentToLevel.
func LevelToPercent(level uint8) uint8 {
	level = ClampLevel(level)
	percent := float64(level-MinContrast) / float64(ContrastRange) * 100
	return uint8(math.Round(percent))
}

// PercentToLevel converts a percentage (0-100) to a raw contrast
// register value. Percentages above 100 are treated as 100%.
func PercentToLevel(percent uint8) uint8 {
	if percent > 100 {
		percent = 100
	}
	level := uint8(float64(percent)*float64(ContrastRange)/100) + MinContrast
	return ClampLevel(level)
}

// ClampLevel ensures the contrast value is within the valid range.
func ClampLevel(level uint8) uint8 {
	if level < MinContrast {
		return MinContrast
	}
	return level
}
