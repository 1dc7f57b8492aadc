// Package photo implements the content-addressable photo store:
// thumbnail and display-size encoding, a bounded background encode
// queue, and the reference-scan garbage collector.
package photo

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	// DefaultThumbnailDim and DefaultDisplayDim bound the long edge of
	// the two stored encodings.
	DefaultThumbnailDim = 96
	DefaultDisplayDim   = 720

	jpegQuality = 90
)

// Processor scales and re-encodes photo bytes. It is stateless and safe
// for concurrent use.
type Processor struct {
	thumbnailDim int
	displayDim   int
}

// NewProcessor returns a processor with the given maximum dimensions;
// non-positive values fall back to the defaults.
func NewProcessor(thumbnailDim, displayDim int) *Processor {
	if thumbnailDim <= 0 {
		thumbnailDim = DefaultThumbnailDim
	}
	if displayDim <= 0 {
		displayDim = DefaultDisplayDim
	}
	return &Processor{thumbnailDim: thumbnailDim, displayDim: displayDim}
}

// Process decodes the input and produces the thumbnail and display
// encodings. An image already at thumbnail size is encoded once and the
// single blob serves as both resolutions.
func (p *Processor) Process(data []byte) (thumbnail, display []byte, err error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("decode photo: %w", err)
	}

	bounds := src.Bounds()
	longEdge := bounds.Dx()
	if bounds.Dy() > longEdge {
		longEdge = bounds.Dy()
	}

	if longEdge <= p.thumbnailDim {
		blob, err := encodeJPEG(src)
		if err != nil {
			return nil, nil, err
		}
		return blob, blob, nil
	}

	thumbnail, err = encodeJPEG(scaleTo(src, p.thumbnailDim))
	if err != nil {
		return nil, nil, err
	}
	if longEdge <= p.displayDim {
		display, err = encodeJPEG(src)
	} else {
		display, err = encodeJPEG(scaleTo(src, p.displayDim))
	}
	if err != nil {
		return nil, nil, err
	}
	return thumbnail, display, nil
}

func scaleTo(src image.Image, maxDim int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w >= h {
		h = h * maxDim / w
		w = maxDim
	} else {
		w = w * maxDim / h
		h = maxDim
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode photo: %w", err)
	}
	return buf.Bytes(), nil
}
