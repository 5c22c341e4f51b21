package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZacxDev/quote-overlay/internal/config"
	"github.com/ZacxDev/quote-overlay/internal/ffmpeg"
	"github.com/ZacxDev/quote-overlay/internal/logger"
)

// PairAnnotator burns one quote into one video.
type PairAnnotator interface {
	Annotate(ctx context.Context, inputPath, outputPath, quote string) (*AnnotateResult, error)
}

// Annotator handles the per-video decode, overlay, encode and remux steps
type Annotator struct {
	opts   *config.Options
	ffmpeg *ffmpeg.Processor
	log    logger.Logger
}

// NewAnnotator creates a new video annotator
func NewAnnotator(opts *config.Options, ff *ffmpeg.Processor, log logger.Logger) *Annotator {
	return &Annotator{
		opts:   opts,
		ffmpeg: ff,
		log:    log,
	}
}

// Batch drives an annotator over every (video, quote) pair
type Batch struct {
	opts      *config.Options
	annotator PairAnnotator
	log       logger.Logger
}

// NewBatch creates a new batch driver
func NewBatch(opts *config.Options, annotator PairAnnotator, log logger.Logger) *Batch {
	return &Batch{
		opts:      opts,
		annotator: annotator,
		log:       log,
	}
}

// OutputName returns the base output file name for the quoteIndex-th quote
// applied to the video named inputName.
func OutputName(inputName string, quoteIndex int) string {
	stem := strings.TrimSuffix(inputName, filepath.Ext(inputName))
	return fmt.Sprintf("output_%s_%d%s", stem, quoteIndex+1, config.DefaultVideoExtension)
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
