package condrv

import "image/color"

// DefaultColorTable is the 16-entry COLORREF palette a freshly created
// screen buffer starts with. Index order matches the classic console
// palette: 0-7 dark, 8-15 bright, with bit 0=B,
// bit 1=G, bit 2=R in the conventional console bit layout rather than the
// ANSI 30-37 ordering — SGR color mapping translates between the
// two in vt_handler.go.
var DefaultColorTable = [16]color.RGBA{
	{0, 0, 0, 255},       // 0 black
	{0, 0, 128, 255},     // 1 dark blue
	{0, 128, 0, 255},     // 2 dark green
	{0, 128, 128, 255},   // 3 dark cyan
	{128, 0, 0, 255},     // 4 dark red
	{128, 0, 128, 255},   // 5 dark magenta
	{128, 128, 0, 255},   // 6 dark yellow
	{192, 192, 192, 255}, // 7 light gray
	{128, 128, 128, 255}, // 8 dark gray
	{0, 0, 255, 255},     // 9 blue
	{0, 255, 0, 255},     // 10 green
	{0, 255, 255, 255},   // 11 cyan
	{255, 0, 0, 255},     // 12 red
	{255, 0, 255, 255},   // 13 magenta
	{255, 255, 0, 255},   // 14 yellow
	{255, 255, 255, 255}, // 15 white
}

// ansiToConsoleIndex maps an ANSI color index (0-7, the order used by SGR
// 30-37/40-47) to the console's native palette ordering (which swaps the
// red and blue bit positions relative to ANSI).
var ansiToConsoleIndex = [8]int{0, 4, 2, 6, 1, 5, 3, 7}

// ANSIToConsole converts an ANSI 8-color index (0-7) to the corresponding
// index into a console color table.
func ANSIToConsole(ansi int) int {
	return ansiToConsoleIndex[ansi&0x07]
}

// nearestColorIndex returns the index into table whose RGB value is closest
// (by squared Euclidean distance) to c, for truecolor/256-color
// approximation.
func nearestColorIndex(table [16]color.RGBA, c color.RGBA) int {
	best := 0
	bestDist := -1
	for i, entry := range table {
		dr := int(entry.R) - int(c.R)
		dg := int(entry.G) - int(c.G)
		db := int(entry.B) - int(c.B)
		dist := dr*dr + dg*dg + db*db
		if bestDist == -1 || dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return best
}

// xterm256ToRGB expands an xterm 256-color palette index (as used by SGR
// 38;5;n / 48;5;n) to an RGB triple, using the standard 16 + 6x6x6 cube +
// 24-step grayscale ramp layout.
func xterm256ToRGB(n int) color.RGBA {
	switch {
	case n < 16:
		return DefaultColorTable[ANSIToConsole(n&0x07)|(n&0x08)]
	case n < 232:
		n -= 16
		r := (n / 36) % 6
		g := (n / 6) % 6
		b := n % 6
		step := func(v int) uint8 {
			if v == 0 {
				return 0
			}
			return uint8(55 + v*40)
		}
		return color.RGBA{R: step(r), G: step(g), B: step(b), A: 255}
	default:
		gray := uint8(8 + (n-232)*10)
		return color.RGBA{R: gray, G: gray, B: gray, A: 255}
	}
}
