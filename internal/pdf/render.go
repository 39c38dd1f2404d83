// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/tsawler/tabula/pages"
	"github.com/tsawler/tabula/reader"
	"github.com/tsawler/tabula/text"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultDPI       = 150
	MaxDPI           = 600
	DefaultOutputDir = "static/page_images"

	pointsPerInch   = 72.0
	defaultFontSize = 12.0

	// A letter page at MaxDPI is about 34M pixels.
	maxPixels = 50_000_000
)

var ErrInvalidDPI = fmt.Errorf("dpi must not exceed %d", MaxDPI)

var loadFont = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(goregular.TTF)
})

// Renderer rasterises single pages to PNG. The text layer is drawn at
// its recorded positions. Pages without a text layer fall back to their
// largest embedded image scaled to the page size.
type Renderer struct {
	outputDir  string
	defaultDPI int
}

type RendererOption func(*Renderer)

func WithOutputDir(dir string) RendererOption {
	return func(r *Renderer) {
		r.outputDir = dir
	}
}

func WithDefaultDPI(dpi int) RendererOption {
	return func(r *Renderer) {
		if dpi > 0 {
			r.defaultDPI = dpi
		}
	}
}

func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{
		outputDir:  DefaultOutputDir,
		defaultDPI: DefaultDPI,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) OutputDir() string {
	return r.outputDir
}

// Render writes the page as <document base>_page_<n>.png into the output
// directory and returns the written path.
func (r *Renderer) Render(ctx context.Context, document string, page, dpi int) (string, error) {
	data, err := r.RenderPNG(ctx, document, page, dpi)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	path := filepath.Join(r.outputDir, ImageName(document, page))
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("failed to write page image: %w", err)
	}

	slog.Debug("rendered page", "document", document, "page", page, "path", path)
	return path, nil
}

// RenderPNG returns the encoded PNG without touching the filesystem.
func (r *Renderer) RenderPNG(ctx context.Context, document string, page, dpi int) ([]byte, error) {
	if dpi <= 0 {
		dpi = r.defaultDPI
	}
	if dpi > MaxDPI {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDPI, dpi)
	}

	rd, err := reader.Open(document)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", document, err)
	}
	defer rd.Close()

	total, err := rd.PageCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count pages of %s: %w", document, err)
	}
	if page < 1 || page > total {
		return nil, api.InvalidPageError{Page: page, Total: total}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := rd.GetPage(page - 1)
	if err != nil {
		return nil, fmt.Errorf("failed to load page %d: %w", page, err)
	}

	img, err := rasterize(rd, p, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeFileAtomic renames a fully written temp file over path so readers
// never see a partial image.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	_, err = f.Write(data)
	err = errors.Join(err, f.Chmod(0o644), f.Close())
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
	}
	return err
}

func ImageName(document string, page int) string {
	base := filepath.Base(document)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_page_%d.png", base, page)
}

func rasterize(rd *reader.Reader, p *pages.Page, dpi int) (*image.RGBA, error) {
	width, err := p.Width()
	if err != nil {
		return nil, err
	}
	height, err := p.Height()
	if err != nil {
		return nil, err
	}

	scale := float64(dpi) / pointsPerInch
	w, h := math.Round(width*scale), math.Round(height*scale)
	if w*h > maxPixels {
		return nil, fmt.Errorf("%w: page would be %.0fx%.0f pixels", ErrInvalidDPI, w, h)
	}
	bounds := image.Rect(0, 0, int(w), int(h))
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, image.White, image.Point{}, draw.Src)

	fragments, err := rd.ExtractTextFragments(p)
	if err != nil {
		return nil, err
	}
	if len(fragments) > 0 {
		return canvas, drawText(canvas, fragments, height, scale, dpi)
	}

	images, err := rd.ExtractPageImages(p)
	if err != nil {
		return nil, err
	}
	if src := largestImage(images); src != nil {
		draw.CatmullRom.Scale(canvas, bounds, src, src.Bounds(), draw.Over, nil)
	}
	return canvas, nil
}

func drawText(dst *image.RGBA, fragments []text.TextFragment, pageHeight, scale float64, dpi int) error {
	f, err := loadFont()
	if err != nil {
		return err
	}

	faces := make(map[float64]font.Face)
	defer func() {
		for _, face := range faces {
			face.Close()
		}
	}()

	d := &font.Drawer{
		Dst: dst,
		Src: image.NewUniform(color.Black),
	}
	for _, frag := range fragments {
		if strings.TrimSpace(frag.Text) == "" {
			continue
		}

		size := math.Round(frag.FontSize*2) / 2
		if size <= 0 {
			size = defaultFontSize
		}
		face, ok := faces[size]
		if !ok {
			face, err = opentype.NewFace(f, &opentype.FaceOptions{
				Size:    size,
				DPI:     float64(dpi),
				Hinting: font.HintingFull,
			})
			if err != nil {
				return err
			}
			faces[size] = face
		}

		d.Face = face
		d.Dot = fixed.P(int(frag.X*scale), int((pageHeight-frag.Y)*scale))
		d.DrawString(frag.Text)
	}
	return nil
}

func largestImage(images []reader.PageImage) image.Image {
	var (
		best image.Image
		area int
	)
	for i := range images {
		pi := &images[i]
		if pi.Width*pi.Height <= area {
			continue
		}
		data, err := pi.ToPNG()
		if err != nil {
			continue
		}
		decoded, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			continue
		}
		best, area = decoded, pi.Width*pi.Height
	}
	return best
}
