package processor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/ZacxDev/quote-overlay/internal/config"
	ffmpegWrap "github.com/ZacxDev/quote-overlay/internal/ffmpeg"
	"github.com/ZacxDev/quote-overlay/internal/overlay"
	"github.com/ZacxDev/quote-overlay/internal/quotes"
)

// AnnotateResult describes one finished output video.
type AnnotateResult struct {
	OutputPath   string
	Frames       int
	Size         int64
	Elapsed      time.Duration
	FontFallback bool
	AudioCopied  bool
}

// Annotate burns quote into every frame of inputPath and writes the result,
// with the original audio, to outputPath.
func (a *Annotator) Annotate(ctx context.Context, inputPath, outputPath, quote string) (*AnnotateResult, error) {
	start := time.Now()
	a.log.Info(ctx, "Processing video: %s", inputPath)

	if a.opts.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.ProcessTimeout)
		defer cancel()
	}

	q := quotes.Split(quote)

	metadata, err := a.ffmpeg.GetVideoMetadata(ctx, inputPath)
	if err != nil {
		return nil, &InputOpenError{Path: inputPath, Err: err}
	}
	a.log.Debug(ctx, "Video metadata: Duration=%.2fs, Resolution=%dx%d, Codec=%s, FrameRate=%s, Audio=%v",
		metadata.Duration, metadata.Width, metadata.Height, metadata.Codec, metadata.FrameRate, metadata.HasAudio)

	fonts := overlay.LoadFaces(a.opts.FontPath, metadata.Height)
	defer fonts.Faces.Close()
	if fonts.Cause != nil {
		a.log.Warn(ctx, "Could not load font, using built-in fallback: %v", fonts.Cause)
	}

	compositor := overlay.NewCompositor(fonts.Faces, metadata.Width, metadata.Height, a.opts.Transparency)
	layer := compositor.Prepare(q.Text, q.Author)

	if err := ensureDir(filepath.Dir(outputPath)); err != nil {
		return nil, errors.Wrap(err, "create output directory")
	}

	silentPath := intermediatePath(outputPath)
	defer os.Remove(silentPath)

	frames, err := a.encodeAnnotated(ctx, inputPath, silentPath, metadata, layer)
	if err != nil {
		return nil, err
	}
	if metadata.Frames > 0 && frames != metadata.Frames {
		a.log.Warn(ctx, "Decoded %d frames, container reports %d", frames, metadata.Frames)
	}

	audioCopied, err := a.attachAudio(ctx, inputPath, silentPath, outputPath, metadata.HasAudio)
	if err != nil {
		return nil, err
	}

	res := &AnnotateResult{
		OutputPath:   outputPath,
		Frames:       frames,
		Elapsed:      time.Since(start),
		FontFallback: fonts.Fallback,
		AudioCopied:  audioCopied,
	}
	if info, err := os.Stat(outputPath); err == nil {
		res.Size = info.Size()
	}

	a.log.Info(ctx, "Video processed successfully: %s (%d frames, %s) in %s",
		outputPath, frames, humanize.Bytes(uint64(res.Size)), formatSeconds(res.Elapsed))
	return res, nil
}

// encodeAnnotated decodes inputPath, applies layer to each frame and encodes
// the frames, without audio, into silentPath.
func (a *Annotator) encodeAnnotated(ctx context.Context, inputPath, silentPath string, metadata *ffmpegWrap.VideoMetadata, layer *overlay.Overlay) (int, error) {
	reader, err := a.ffmpeg.OpenFrameReader(ctx, inputPath, metadata)
	if err != nil {
		return 0, &InputOpenError{Path: inputPath, Err: err}
	}
	defer reader.Close()

	writer, err := a.ffmpeg.CreateFrameWriter(ctx, silentPath, ffmpegWrap.EncodeOptions{
		Width:     metadata.Width,
		Height:    metadata.Height,
		FrameRate: metadata.FrameRate,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to start encoder")
	}
	defer writer.Close()

	for {
		frame, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, errors.Wrap(ctxErr, "processing interrupted")
			}
			return 0, errors.Wrap(err, "failed to decode video")
		}

		layer.ApplyInPlace(frame)
		if err := writer.Write(frame); err != nil {
			// the encoder's exit status explains a broken pipe better
			if closeErr := writer.Close(); closeErr != nil {
				return 0, errors.Wrap(closeErr, "failed to encode video")
			}
			return 0, err
		}

		if n := reader.Count(); n%config.ProgressEvery == 0 {
			a.log.Info(ctx, "Processed %d frames...", n)
		}
	}

	if err := reader.Close(); err != nil {
		return 0, &InputOpenError{Path: inputPath, Err: err}
	}
	if reader.Count() == 0 {
		return 0, &InputOpenError{Path: inputPath, Err: errors.New("no frames decoded")}
	}
	if err := writer.Close(); err != nil {
		return 0, errors.Wrap(err, "failed to encode video")
	}
	return reader.Count(), nil
}

// attachAudio produces outputPath from the silent encode. When the source
// has no audio the silent file becomes the output as is.
func (a *Annotator) attachAudio(ctx context.Context, inputPath, silentPath, outputPath string, hasAudio bool) (bool, error) {
	if !hasAudio {
		a.log.Warn(ctx, "No audio stream in %s, keeping the silent video", inputPath)
		if err := os.Rename(silentPath, outputPath); err != nil {
			return false, errors.Wrap(err, "move silent video into place")
		}
		return false, nil
	}

	remuxCtx := ctx
	if a.opts.RemuxTimeout > 0 {
		var cancel context.CancelFunc
		remuxCtx, cancel = context.WithTimeout(ctx, a.opts.RemuxTimeout)
		defer cancel()
	}

	if err := a.ffmpeg.Remux(remuxCtx, silentPath, inputPath, outputPath); err != nil {
		os.Remove(outputPath)
		return false, &RemuxError{Input: inputPath, Output: outputPath, Err: err}
	}
	return true, nil
}
