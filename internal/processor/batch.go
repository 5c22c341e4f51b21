package processor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// LockFileName is created in the output directory while a batch runs.
const LockFileName = ".quote-overlay.lock"

// ErrBatchLocked is returned when another batch holds the output directory.
var ErrBatchLocked = errors.New("another batch is writing to the output directory")

// Run annotates every input video with every quote, in directory order
// then quote order. A failed pair is recorded and the batch moves on; only a
// cancelled context or an unusable input/output directory stops it early.
func (b *Batch) Run(ctx context.Context, quoteList []string) (*Report, error) {
	start := time.Now()
	report := &Report{}

	if err := os.MkdirAll(b.opts.OutputDir, 0755); err != nil {
		return nil, errors.Wrap(err, "error creating output directory")
	}

	lock := flock.New(filepath.Join(b.opts.OutputDir, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "lock output directory")
	}
	if !locked {
		return nil, ErrBatchLocked
	}
	defer lock.Unlock()

	videos, err := b.listVideos()
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		b.log.Warn(ctx, "No videos matching %v in %s", b.opts.VideoExtensions, b.opts.InputDir)
	}

	for _, name := range videos {
		inputPath := filepath.Join(b.opts.InputDir, name)
		videoStart := time.Now()

		for j, quote := range quoteList {
			if err := ctx.Err(); err != nil {
				report.Elapsed = time.Since(start)
				return report, errors.Wrap(err, "batch interrupted")
			}

			result := b.processPair(ctx, inputPath, name, j, quote)
			report.Pairs = append(report.Pairs, result)
		}

		b.log.Info(ctx, "Finished %s with %d quotes in %s", name, len(quoteList), formatSeconds(time.Since(videoStart)))
	}

	report.Elapsed = time.Since(start)
	return report, nil
}

func (b *Batch) processPair(ctx context.Context, inputPath, name string, quoteIndex int, quote string) (result PairResult) {
	result = PairResult{Input: inputPath, QuoteIndex: quoteIndex}
	pairStart := time.Now()
	defer func() { result.Elapsed = time.Since(pairStart) }()

	outputPath, err := UniqueOutputPath(filepath.Join(b.opts.OutputDir, OutputName(name, quoteIndex)))
	if err != nil {
		result.Err = err
		b.log.Error(ctx, "Skipping %s quote %d: %v", name, quoteIndex+1, err)
		return result
	}

	res, err := b.annotator.Annotate(ctx, inputPath, outputPath, quote)
	if err != nil {
		result.Err = err
		var openErr *InputOpenError
		if errors.As(err, &openErr) {
			b.log.Error(ctx, "Error opening video %s: %v", inputPath, openErr.Err)
		} else {
			b.log.Error(ctx, "Failed to process %s with quote %d: %v", name, quoteIndex+1, err)
		}
		return result
	}
	result.Output = res.OutputPath
	result.Frames = res.Frames
	result.FontFallback = res.FontFallback
	return result
}

// listVideos returns the names of input files carrying a video extension, in
// directory listing order.
func (b *Batch) listVideos() ([]string, error) {
	entries, err := os.ReadDir(b.opts.InputDir)
	if err != nil {
		return nil, errors.Wrap(err, "read input directory")
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if slices.ContainsFunc(b.opts.VideoExtensions, func(ext string) bool {
			return strings.HasSuffix(name, ext)
		}) {
			names = append(names, name)
		}
	}
	return names, nil
}
