// Package imaging builds the composite image of a sheet from its two sides.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/sheetscan/internal/filex"
	"golang.org/x/image/draw"
)

// JPEGQuality is used when the composite is written as JPEG.
var JPEGQuality = 90

// CompositePath is where the composite of front and back is written:
// the front path without its extension, an underscore, then the back
// file's base name.
func CompositePath(frontPath, backPath string) string {
	return strings.TrimSuffix(frontPath, filepath.Ext(frontPath)) + "_" + filepath.Base(backPath)
}

// Compose stacks back under front, stretching back to front's exact size,
// and returns the path of the written composite. The composite is named by
// CompositePath and encoded in the format of the back page's extension.
func Compose(frontPath, backPath string) (string, error) {
	front, err := load(frontPath)
	if err != nil {
		return "", err
	}
	back, err := load(backPath)
	if err != nil {
		return "", err
	}

	fb := front.Bounds()
	w, h := fb.Dx(), fb.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, 2*h))
	draw.Draw(dst, image.Rect(0, 0, w, h), front, fb.Min, draw.Src)
	draw.CatmullRom.Scale(dst, image.Rect(0, h, w, 2*h), back, back.Bounds(), draw.Src, nil)

	out := CompositePath(frontPath, backPath)
	var buf bytes.Buffer
	if err := encode(&buf, dst, filepath.Ext(out)); err != nil {
		return "", fmt.Errorf("encode composite: %w", err)
	}
	if _, err := filex.SaveStream(out, &buf); err != nil {
		return "", fmt.Errorf("write composite: %w", err)
	}
	return out, nil
}

func load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func encode(buf *bytes.Buffer, img image.Image, ext string) error {
	switch strings.ToLower(ext) {
	case ".png":
		return png.Encode(buf, img)
	case ".jpg", ".jpeg", "":
		return jpeg.Encode(buf, img, &jpeg.Options{Quality: JPEGQuality})
	default:
		return fmt.Errorf("unsupported image extension %q", ext)
	}
}
