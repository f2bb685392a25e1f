// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package imaging re-encodes raster images for the migration pipeline.
// Exotic formats normalize to JPEG; oversized files get one bounded,
// format-preserving recompression pass.
package imaging

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// CanonicalExt is the extension forced onto normalized images.
const CanonicalExt = ".jpg"

const (
	normalizeQuality  = 85
	recompressQuality = 100 // maximum quality, the pass only shrinks via downscale
)

// 🎞️ StdCodec implements decoding via the standard registry (jpeg, png, gif
// plus the x/image bmp/tiff/webp decoders) and encoding via the standard
// jpeg/png/gif encoders.
type StdCodec struct{}

// 🏭 NewStdCodec creates the default codec.
func NewStdCodec() *StdCodec {
	return &StdCodec{}
}

// Convert re-encodes an image of any decodable format to the canonical
// format and returns the new bytes plus the canonical extension.
func (c *StdCodec) Convert(data []byte) ([]byte, string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Errorf("decoding image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: normalizeQuality}); err != nil {
		return nil, "", errors.Errorf("encoding canonical image: %w", err)
	}
	return buf.Bytes(), CanonicalExt, nil
}

// Recompress performs one format-preserving pass at maximum quality,
// downscaling when either dimension exceeds maxDim (0 disables scaling).
// The caller keeps whichever output is smaller.
func (c *StdCodec) Recompress(data []byte, ext string, maxDim int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Errorf("decoding image: %w", err)
	}

	if maxDim > 0 {
		img = Downscale(img, maxDim)
	}

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: recompressQuality})
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	default:
		return nil, errors.Errorf("no format-preserving encoder for %q (%s)", format, ext)
	}
	if err != nil {
		return nil, errors.Errorf("re-encoding %s image: %w", format, err)
	}
	return buf.Bytes(), nil
}

// 📐 Downscale scales img so neither dimension exceeds maxDim, preserving
// aspect ratio. Images already within bounds are returned unchanged.
func Downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	var nw, nh int
	if w >= h {
		nw = maxDim
		nh = h * maxDim / w
	} else {
		nh = maxDim
		nw = w * maxDim / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// flatten converts arbitrary image types to RGBA so the JPEG encoder never
// sees an alpha-carrying source it silently mangles.
func flatten(img image.Image) image.Image {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}
