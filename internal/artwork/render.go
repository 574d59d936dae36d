package artwork

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"
)

// RenderFile draws the image at path as half-block cells using the 256-color
// palette. Each text row covers two pixel rows.
func RenderFile(path string, cols, rows int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open art: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode art: %w", err)
	}
	return Render(img, cols, rows), nil
}

// Render scales img into cols x rows half-block cells.
func Render(img image.Image, cols, rows int) string {
	b := img.Bounds()
	if cols <= 0 || rows <= 0 || b.Dx() == 0 || b.Dy() == 0 {
		return ""
	}
	px := func(x, y int) int {
		sx := b.Min.X + x*b.Dx()/cols
		sy := b.Min.Y + y*b.Dy()/(rows*2)
		r, g, bl, _ := img.At(sx, sy).RGBA()
		return palette256(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
	}

	var sb strings.Builder
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			fmt.Fprintf(&sb, "\x1b[38;5;%dm\x1b[48;5;%dm▀", px(x, 2*y), px(x, 2*y+1))
		}
		sb.WriteString("\x1b[0m")
		if y < rows-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// palette256 maps a color onto the xterm grayscale ramp or the 6x6x6 cube.
func palette256(r, g, b uint8) int {
	if r == g && g == b {
		switch {
		case r < 8:
			return 16
		case r > 248:
			return 231
		default:
			return 232 + int(r-8)/10
		}
	}
	q := func(v uint8) int { return int(v) * 5 / 255 }
	return 16 + 36*q(r) + 6*q(g) + q(b)
}
