package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/apex/log"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/bryanwahyu/derma-lens/internal/domain/ai"
)

// ErrUnsupportedImage is returned for bytes that are not a decodable image.
var ErrUnsupportedImage = errors.New("unsupported or corrupt image")

const (
	DefaultMaxDimension = 1024
	DefaultQuality      = 85
)

// Processor normalizes uploads before they are sent to a vision model.
type Processor struct {
	MaxDimension int
	Quality      int
}

func NewProcessor(maxDimension, quality int) *Processor {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Processor{MaxDimension: maxDimension, Quality: quality}
}

// Prepare decodes data, applies EXIF orientation and downscales it so that
// neither side exceeds MaxDimension. PNG input stays PNG, everything else is
// re-encoded as JPEG. Untouched JPEG and PNG input is returned as-is.
func (p *Processor) Prepare(data []byte) (ai.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return ai.Image{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	changed := false
	if orientation := Orientation(data); orientation > 1 {
		img = Orient(img, orientation)
		changed = true
		log.WithField("orientation", orientation).Debug("applied exif orientation")
	}

	if scaled, ok := p.fit(img); ok {
		img = scaled
		changed = true
	}

	if !changed && (format == "jpeg" || format == "png") {
		return ai.Image{Data: data, MIMEType: "image/" + format}, nil
	}

	var buf bytes.Buffer
	if format == "png" {
		if err := png.Encode(&buf, img); err != nil {
			return ai.Image{}, fmt.Errorf("encode png: %w", err)
		}
		return ai.Image{Data: buf.Bytes(), MIMEType: "image/png"}, nil
	}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.Quality}); err != nil {
		return ai.Image{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return ai.Image{Data: buf.Bytes(), MIMEType: "image/jpeg"}, nil
}

func (p *Processor) fit(img image.Image) (image.Image, bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= p.MaxDimension && h <= p.MaxDimension {
		return img, false
	}

	scale := float64(p.MaxDimension) / float64(w)
	if s := float64(p.MaxDimension) / float64(h); s < scale {
		scale = s
	}
	nw, nh := int(math.Round(float64(w)*scale)), int(math.Round(float64(h)*scale))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	log.WithFields(log.Fields{
		"from": fmt.Sprintf("%dx%d", w, h),
		"to":   fmt.Sprintf("%dx%d", nw, nh),
	}).Debug("downscaled image")
	return dst, true
}

// Orientation reads the EXIF orientation tag. It returns 1 when absent.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// Orient applies one of the eight EXIF orientations so the result displays upright.
func Orient(img image.Image, orientation int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	// (x, y) in source -> destination coordinates
	var dst *image.RGBA
	var to func(x, y int) (int, int)
	switch orientation {
	case 2:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		to = func(x, y int) (int, int) { return w - 1 - x, y }
	case 3:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		to = func(x, y int) (int, int) { return w - 1 - x, h - 1 - y }
	case 4:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		to = func(x, y int) (int, int) { return x, h - 1 - y }
	case 5:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		to = func(x, y int) (int, int) { return y, x }
	case 6:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		to = func(x, y int) (int, int) { return h - 1 - y, x }
	case 7:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		to = func(x, y int) (int, int) { return h - 1 - y, w - 1 - x }
	case 8:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		to = func(x, y int) (int, int) { return y, w - 1 - x }
	default:
		return img
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := to(x, y)
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
