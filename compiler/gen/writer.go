package gen

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/dave/jennifer/jen"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/imports"
)

// Writer renders and writes generated files in parallel.
type Writer struct {
	outDir  string
	workers int

	mu      sync.Mutex
	metrics *WriterMetrics
}

// WriterMetrics tracks generation performance.
type WriterMetrics struct {
	FilesGenerated int
	TotalBytes     int64
	RenderTime     time.Duration
	FormatTime     time.Duration
}

// fileTask is a single file to generate.
type fileTask struct {
	name   string // output path relative to the target
	phase  string
	render func() *jen.File
}

// NewWriter returns a Writer for outDir. A non-positive workers uses
// GOMAXPROCS.
func NewWriter(outDir string, workers int) *Writer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Writer{outDir: outDir, workers: workers, metrics: &WriterMetrics{}}
}

// Metrics returns the generation metrics.
func (w *Writer) Metrics() *WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := *w.metrics
	return &m
}

// WriteAll generates files in parallel and stops at the first failure.
func (w *Writer) WriteAll(ctx context.Context, files []fileTask) error {
	if err := os.MkdirAll(w.outDir, 0o755); err != nil {
		return NewGenerationError("", w.outDir, "create output directory", err)
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(w.workers)
	for _, f := range files {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return w.write(f)
			}
		})
	}
	return eg.Wait()
}

func (w *Writer) write(f fileTask) error {
	start := time.Now()
	var buf bytes.Buffer
	if err := f.render().Render(&buf); err != nil {
		return NewGenerationError(f.phase, f.name, "render", err)
	}
	rendered := time.Now()

	// Format with goimports.
	fullPath := filepath.Join(w.outDir, f.name)
	formatted, err := imports.Process(fullPath, buf.Bytes(), nil)
	if err != nil {
		// Keep the unformatted output for debugging.
		debugPath := fullPath + ".error"
		_ = os.MkdirAll(filepath.Dir(debugPath), 0o755)
		_ = os.WriteFile(debugPath, buf.Bytes(), 0o644)
		return NewGenerationError(f.phase, f.name, fmt.Sprintf("format (unformatted written to %s)", debugPath), err)
	}
	formattedAt := time.Now()

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return NewGenerationError(f.phase, f.name, "create directory", err)
	}
	if err := os.WriteFile(fullPath, formatted, 0o644); err != nil {
		return NewGenerationError(f.phase, f.name, "write", err)
	}

	w.mu.Lock()
	w.metrics.FilesGenerated++
	w.metrics.TotalBytes += int64(len(formatted))
	w.metrics.RenderTime += rendered.Sub(start)
	w.metrics.FormatTime += formattedAt.Sub(rendered)
	w.mu.Unlock()
	return nil
}
