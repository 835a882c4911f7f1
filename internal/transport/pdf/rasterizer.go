package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// CommandRunner runs an external program and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(out))
	}
	return out, nil
}

// Rasterizer renders PDF pages to PNG images with poppler's pdftoppm.
type Rasterizer struct {
	bin    string
	dpi    int
	runner CommandRunner
}

// RasterizerOption configures a Rasterizer.
type RasterizerOption func(*Rasterizer)

// WithRunner replaces the command runner.
func WithRunner(r CommandRunner) RasterizerOption {
	return func(z *Rasterizer) { z.runner = r }
}

// NewRasterizer creates a Rasterizer using the pdftoppm binary at bin.
func NewRasterizer(bin string, dpi int, opts ...RasterizerOption) *Rasterizer {
	if bin == "" {
		bin = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 200
	}
	z := &Rasterizer{bin: bin, dpi: dpi, runner: execRunner{}}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

// Rasterize renders every page of the PDF at path and returns PNG bytes in page order.
// Intermediate files live in a temporary directory that is always removed.
func (z *Rasterizer) Rasterize(ctx context.Context, path string) ([][]byte, error) {
	dir, err := os.MkdirTemp("", "ragdesk-raster-*")
	if err != nil {
		return nil, fmt.Errorf("create raster dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	prefix := filepath.Join(dir, "page")
	if _, err := z.runner.Run(ctx, z.bin, "-r", strconv.Itoa(z.dpi), "-png", path, prefix); err != nil {
		return nil, fmt.Errorf("rasterize %s: %w", filepath.Base(path), err)
	}

	files, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}
	slices.SortFunc(files, func(a, b string) int {
		return pageNumber(a) - pageNumber(b)
	})

	images := make([][]byte, 0, len(files))
	for _, f := range files {
		img, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read rendered page: %w", err)
		}
		images = append(images, img)
	}
	return images, nil
}

// pageNumber parses N from "<prefix>-N.png"; pdftoppm zero-pads N to the page count width.
func pageNumber(file string) int {
	base := strings.TrimSuffix(filepath.Base(file), ".png")
	i := strings.LastIndexByte(base, '-')
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(base[i+1:])
	if err != nil {
		return 0
	}
	return n
}
