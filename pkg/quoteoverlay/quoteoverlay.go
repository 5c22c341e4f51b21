// Package quoteoverlay burns quotes from a CSV file into every video of an
// input directory, one output video per (video, quote) pair.
package quoteoverlay

import (
	"context"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/ZacxDev/quote-overlay/internal/assets"
	"github.com/ZacxDev/quote-overlay/internal/config"
	"github.com/ZacxDev/quote-overlay/internal/ffmpeg"
	"github.com/ZacxDev/quote-overlay/internal/logger"
	"github.com/ZacxDev/quote-overlay/internal/processor"
	"github.com/ZacxDev/quote-overlay/internal/quotes"
)

type (
	// Options configures a run. See DefaultOptions and LoadOptions.
	Options = config.Options
	// Layout lists the paths a run works with after bootstrapping.
	Layout = assets.Layout
	// Report summarizes a finished batch.
	Report = processor.Report
)

// DefaultOptions returns options rooted at baseDir.
func DefaultOptions(baseDir string) *Options {
	return config.Default(baseDir)
}

// LoadOptions reads a YAML or TOML config file.
func LoadOptions(path string) (*Options, error) {
	return config.Load(path)
}

type pipeline struct {
	opts   *Options
	log    logger.Logger
	ffmpeg *ffmpeg.Processor
}

func newPipeline(opts *Options) (*pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	level := opts.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	log := logger.New(level)

	if _, err := exec.LookPath(opts.FFmpegPath); err != nil {
		return nil, errors.Wrapf(err, "ffmpeg not found (%s)", opts.FFmpegPath)
	}

	return &pipeline{
		opts:   opts,
		log:    log,
		ffmpeg: ffmpeg.NewProcessor(opts.FFmpegPath, log),
	}, nil
}

func (p *pipeline) bootstrap(ctx context.Context) (*Layout, error) {
	b := assets.NewBootstrapper(p.opts, nil, assets.NewExampleVideo(p.ffmpeg), p.log)
	return b.Ensure(ctx)
}

// Bootstrap creates the directories, example quotes, font and example video
// under the configured base directory, leaving existing files alone.
func Bootstrap(ctx context.Context, opts *Options) (*Layout, error) {
	p, err := newPipeline(opts)
	if err != nil {
		return nil, err
	}
	return p.bootstrap(ctx)
}

// Run bootstraps the base directory and annotates every input video with every
// quote. A returned error means the batch could not run at all; failed pairs
// are only recorded in the report.
func Run(ctx context.Context, opts *Options) (*Report, error) {
	p, err := newPipeline(opts)
	if err != nil {
		return nil, err
	}

	layout, err := p.bootstrap(ctx)
	if err != nil {
		return nil, err
	}

	// the batch works on a copy so a fallback does not leak into the caller's options
	runOpts := *opts
	runOpts.FontPath = layout.FontPath

	quoteList, err := quotes.LoadFile(layout.QuotesFile, runOpts.QuotesEncoding)
	if err != nil {
		p.log.Error(ctx, "Could not read quotes: %v", err)
		return nil, err
	}
	p.log.Info(ctx, "Loaded %d quotes from %s", len(quoteList), layout.QuotesFile)
	if len(quoteList) == 0 {
		p.log.Warn(ctx, "No quotes in %s, nothing to do", layout.QuotesFile)
	}

	annotator := processor.NewAnnotator(&runOpts, p.ffmpeg, p.log)
	batch := processor.NewBatch(&runOpts, annotator, p.log)
	report, err := batch.Run(ctx, quoteList)
	if report != nil {
		p.log.Info(ctx, "Batch finished: %d succeeded, %d failed", report.Succeeded(), report.Failed())
	}
	return report, err
}
