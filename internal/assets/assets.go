package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ZacxDev/quote-overlay/internal/config"
	"github.com/ZacxDev/quote-overlay/internal/logger"
	"github.com/ZacxDev/quote-overlay/internal/quotes"
)

// Layout is the set of paths a batch run works with once bootstrapping is done.
type Layout struct {
	InputDir   string
	OutputDir  string
	QuotesFile string
	// FontPath is empty when the embedded font has to be used.
	FontPath     string
	FontFallback bool
	// FontErr explains why FontFallback is set, if a download was tried.
	FontErr *NetworkError
}

// NetworkError means the font could not be downloaded. Processing goes on
// with the embedded font.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Synthesizer produces the example video placed in an empty input directory.
type Synthesizer interface {
	Synthesize(ctx context.Context, outputPath, fontPath string) error
}

// Bootstrapper creates whatever a batch run needs that is not there yet.
type Bootstrapper struct {
	opts        *config.Options
	client      HTTPDoer
	synthesizer Synthesizer
	log         logger.Logger
}

// NewBootstrapper creates a bootstrapper. A nil client uses http.DefaultClient.
func NewBootstrapper(opts *config.Options, client HTTPDoer, synthesizer Synthesizer, log logger.Logger) *Bootstrapper {
	if client == nil {
		client = defaultClient
	}
	return &Bootstrapper{
		opts:        opts,
		client:      client,
		synthesizer: synthesizer,
		log:         log,
	}
}

// Ensure makes the base directory layout complete. Running it again changes
// nothing. Only filesystem failures are returned as errors; a failed font
// download is reported in Layout.FontErr.
func (b *Bootstrapper) Ensure(ctx context.Context) (*Layout, error) {
	layout := &Layout{
		InputDir:   b.opts.InputDir,
		OutputDir:  b.opts.OutputDir,
		QuotesFile: b.opts.QuotesFile,
		FontPath:   b.opts.FontPath,
	}

	for _, dir := range []string{layout.InputDir, layout.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "create directory %s", dir)
		}
	}

	if err := b.ensureQuotes(ctx); err != nil {
		return nil, err
	}

	if err := b.ensureFont(ctx, layout); err != nil {
		return nil, err
	}

	if err := b.ensureExampleVideo(ctx, layout.FontPath); err != nil {
		return nil, err
	}

	return layout, nil
}

func (b *Bootstrapper) ensureQuotes(ctx context.Context) error {
	exists, err := fileExists(b.opts.QuotesFile)
	if err != nil || exists {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(b.opts.QuotesFile), 0755); err != nil {
		return errors.WithStack(err)
	}
	if err := quotes.WriteExample(b.opts.QuotesFile, b.opts.QuotesEncoding); err != nil {
		return err
	}
	b.log.Info(ctx, "Created example quotes file: %s", b.opts.QuotesFile)
	return nil
}

func (b *Bootstrapper) ensureFont(ctx context.Context, layout *Layout) error {
	if layout.FontPath == "" {
		layout.FontFallback = true
		return nil
	}
	exists, err := fileExists(layout.FontPath)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	b.log.Info(ctx, "Downloading font from %s", b.opts.FontURL)
	size, err := b.download(ctx, b.opts.FontURL, layout.FontPath)
	if err != nil {
		netErr := &NetworkError{URL: b.opts.FontURL, Err: err}
		b.log.Warn(ctx, "Could not download font, using built-in fallback: %v", netErr)
		layout.FontPath = ""
		layout.FontFallback = true
		layout.FontErr = netErr
		return nil
	}
	b.log.Info(ctx, "Font saved to %s (%s)", layout.FontPath, formatBytes(size))
	return nil
}

func (b *Bootstrapper) ensureExampleVideo(ctx context.Context, fontPath string) error {
	entries, err := os.ReadDir(b.opts.InputDir)
	if err != nil {
		return errors.Wrap(err, "read input directory")
	}
	if len(entries) > 0 || b.synthesizer == nil {
		return nil
	}

	if b.opts.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.ProcessTimeout)
		defer cancel()
	}

	path := filepath.Join(b.opts.InputDir, config.ExampleVideoName)
	if err := b.synthesizer.Synthesize(ctx, path, fontPath); err != nil {
		os.Remove(path)
		return errors.Wrap(err, "create example video")
	}
	b.log.Info(ctx, "Created example video: %s", path)
	return nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "check %s", path)
}
