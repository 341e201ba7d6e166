// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package imaging turns a generated cover image into bytes ready for
// storage. Images arrive either as a hosted URL or as an inline base64 data
// URI; both are loaded, decoded and scaled down into a JPEG thumbnail.
// Thumbnails are never upscaled.
package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"io"
	"net/http"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// MaxSourceBytes caps how much is read from a remote image.
const MaxSourceBytes = 20 << 20

// ThumbWidth is the width of the card thumbnail shown in the blog grid.
const ThumbWidth = 640

// ErrNotImage is returned when the payload cannot be decoded as an image.
var ErrNotImage = errors.New("imaging: unsupported image data")

// Source is a raw image as produced by a generator.
type Source struct {
	Data        []byte
	ContentType string
}

// Ext returns the file extension matching the content type.
func (s Source) Ext() string {
	switch s.ContentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// ProcessedImage holds one generated variant ready for upload.
type ProcessedImage struct {
	Width       int
	Height      int
	Data        []byte
	ContentType string // always "image/jpeg"
}

// Load resolves ref into raw bytes. Data URIs are decoded in place; http(s)
// URLs are fetched with client.
func Load(ctx context.Context, client *http.Client, ref string) (*Source, error) {
	if strings.HasPrefix(ref, "data:") {
		return decodeDataURI(ref)
	}
	if !strings.HasPrefix(ref, "https://") && !strings.HasPrefix(ref, "http://") {
		return nil, fmt.Errorf("imaging: unsupported image reference")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("imaging: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imaging: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imaging: fetch returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("imaging: read body: %w", err)
	}
	if len(data) > MaxSourceBytes {
		return nil, fmt.Errorf("imaging: image exceeds %d bytes", MaxSourceBytes)
	}

	return &Source{Data: data, ContentType: http.DetectContentType(data)}, nil
}

// decodeDataURI handles "data:<mime>;base64,<payload>".
func decodeDataURI(ref string) (*Source, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("imaging: malformed data URI")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("imaging: decode data URI: %w", err)
	}

	contentType := strings.TrimSuffix(meta, ";base64")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &Source{Data: data, ContentType: contentType}, nil
}

// Thumbnail scales the image down to width (keeping the aspect ratio) and
// encodes it as JPEG. Images narrower than width keep their size.
func Thumbnail(data []byte, width int) (*ProcessedImage, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, ErrNotImage
	}

	w, h := b.Dx(), b.Dy()
	if w > width {
		h = h * width / w
		w = width
		if h < 1 {
			h = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("imaging: encode thumbnail: %w", err)
	}

	return &ProcessedImage{
		Width:       w,
		Height:      h,
		Data:        buf.Bytes(),
		ContentType: "image/jpeg",
	}, nil
}
