package shell

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// Icon sizes the install manifest references.
const (
	IconSmall = 192
	IconLarge = 512
)

var (
	iconGreen = color.RGBA{R: 0x1D, G: 0xB9, B: 0x54, A: 0xFF}
	iconBlack = color.RGBA{A: 0xFF}
	iconWhite = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
)

// stemAngle tilts the note stem 20 degrees clockwise.
var stemAngle = 20 * math.Pi / 180

// IconPath returns where an icon of the given size lives under dir.
func IconPath(dir string, size int) string {
	return filepath.Join(dir, "icons", fmt.Sprintf("icon-%dx%d.png", size, size))
}

// RenderIcon draws the round music icon: a green disc, a black ring, a white
// centre dot and a tilted white stem. Pixels outside the disc stay transparent.
func RenderIcon(size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	s := float64(size)
	c := s / 2
	sin, cos := math.Sincos(stemAngle)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := float64(x) + 0.5 - c
			dy := float64(y) + 0.5 - c
			r := math.Hypot(dx, dy)

			if r > s/2 {
				continue
			}
			px := iconGreen
			if r <= s/3 {
				px = iconBlack
			}

			// Undo the canvas rotation to test against the upright stem.
			lx := dx*cos + dy*sin
			ly := -dx*sin + dy*cos
			if lx >= -s/40 && lx < s/40 && ly >= -s/3 && ly < s/6 {
				px = iconWhite
			}
			if r <= s/10 {
				px = iconWhite
			}
			img.SetRGBA(x, y, px)
		}
	}
	return img
}

// Scale resizes an icon to size x size.
func Scale(src image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// GenerateIcons writes the large icon and a scaled-down small icon under
// dir/icons and returns the written paths.
func GenerateIcons(dir string) ([]string, error) {
	iconDir := filepath.Join(dir, "icons")
	if err := os.MkdirAll(iconDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create icon directory: %w", err)
	}

	large := RenderIcon(IconLarge)
	icons := []struct {
		size int
		img  image.Image
	}{
		{IconLarge, large},
		{IconSmall, Scale(large, IconSmall)},
	}

	paths := make([]string, 0, len(icons))
	for _, icon := range icons {
		p := IconPath(dir, icon.size)
		if err := writePNG(p, icon.img); err != nil {
			return paths, err
		}
		log.Info().Str("path", p).Int("size", icon.size).Msg("Created icon")
		paths = append(paths, p)
	}
	return paths, nil
}

func writePNG(path string, img image.Image) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create icon file: %w", err)
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return fmt.Errorf("failed to encode icon: %w", err)
	}
	return out.Close()
}
