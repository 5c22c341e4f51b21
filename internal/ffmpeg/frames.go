package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// rawFormat is the pixel layout exchanged with ffmpeg over pipes. RGBA maps
// straight onto image.RGBA.Pix; the alpha byte is always opaque.
const rawFormat = "rgba"

// DecodeStream builds the command that decodes the video stream at
// streamIndex of inputPath to raw frames on stdout.
func DecodeStream(ctx context.Context, inputPath string, streamIndex int) *ffmpeg.Stream {
	return ffmpeg.OutputContext(ctx, []*ffmpeg.Stream{ffmpeg.Input(inputPath)}, "pipe:", ffmpeg.KwArgs{
		"map":     fmt.Sprintf("0:%d", streamIndex),
		"f":       "rawvideo",
		"pix_fmt": rawFormat,
	})
}

// EncodeOptions describes the stream a FrameWriter produces.
type EncodeOptions struct {
	Width     int
	Height    int
	FrameRate string
	// ToneSeconds adds a sine audio track of that length when positive.
	ToneSeconds int
}

// EncodeStream builds the command that encodes raw frames from stdin into
// outputPath.
func EncodeStream(ctx context.Context, outputPath string, opts EncodeOptions) *ffmpeg.Stream {
	frames := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"f":         "rawvideo",
		"pix_fmt":   rawFormat,
		"s":         fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"framerate": opts.FrameRate,
	})

	codecSettings := GetCodecSettings("mp4")
	outputKwargs := ffmpeg.KwArgs{
		"c:v":     codecSettings.VideoCodec,
		"pix_fmt": "yuv420p",
	}

	preset := "balanced"
	if opts.Width%2 != 0 || opts.Height%2 != 0 {
		preset = "odd_size"
	}
	for k, v := range codecSettings.EncoderPresets[preset] {
		outputKwargs[k] = v
	}

	streams := []*ffmpeg.Stream{frames}
	if opts.ToneSeconds > 0 {
		tone := ffmpeg.Input(fmt.Sprintf("sine=frequency=440:duration=%d", opts.ToneSeconds), ffmpeg.KwArgs{"f": "lavfi"})
		streams = append(streams, tone)
		outputKwargs["c:a"] = codecSettings.AudioCodec
	}

	return ffmpeg.OutputContext(ctx, streams, outputPath, outputKwargs).
		OverWriteOutput()
}

// FrameReader decodes a video one frame at a time.
type FrameReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	frame  *image.RGBA
	count  int
	done   bool
	closed bool
}

// OpenFrameReader starts decoding the stream of inputPath that meta, from
// GetVideoMetadata, describes.
func (p *Processor) OpenFrameReader(ctx context.Context, inputPath string, meta *VideoMetadata) (*FrameReader, error) {
	stderr := &bytes.Buffer{}
	cmd := p.compile(ctx, DecodeStream(ctx, inputPath, meta.StreamIndex), stderr)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "start decoder")
	}

	return &FrameReader{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		frame:  image.NewRGBA(image.Rect(0, 0, meta.Width, meta.Height)),
	}, nil
}

// Next returns the next frame or io.EOF after the last one. The returned
// image is reused by the following call.
func (r *FrameReader) Next() (*image.RGBA, error) {
	if r.done {
		return nil, io.EOF
	}
	_, err := io.ReadFull(r.stdout, r.frame.Pix)
	switch {
	case err == io.EOF:
		r.done = true
		return nil, io.EOF
	case err == io.ErrUnexpectedEOF:
		r.done = true
		return nil, errors.Errorf("truncated frame %d", r.count+1)
	case err != nil:
		r.done = true
		return nil, errors.Wrapf(err, "read frame %d", r.count+1)
	}
	r.count++
	return r.frame, nil
}

// Count returns the number of frames read so far.
func (r *FrameReader) Count() int {
	return r.count
}

// Close waits for the decoder to exit. A reader closed before EOF kills the
// decoder and only reports errors from starting it.
func (r *FrameReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if !r.done {
		_ = r.cmd.Process.Kill()
		drain(r.stdout)
		_ = r.cmd.Wait()
		return nil
	}
	if err := r.cmd.Wait(); err != nil {
		return commandError("decode", err, r.stderr)
	}
	return nil
}

// FrameWriter encodes raw frames into a video file.
type FrameWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	closed bool
}

// CreateFrameWriter starts an encoder writing to outputPath.
func (p *Processor) CreateFrameWriter(ctx context.Context, outputPath string, opts EncodeOptions) (*FrameWriter, error) {
	stderr := &bytes.Buffer{}
	cmd := p.compile(ctx, EncodeStream(ctx, outputPath, opts), stderr)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "start encoder")
	}

	return &FrameWriter{cmd: cmd, stdin: stdin, stderr: stderr}, nil
}

// Write sends one frame to the encoder. The frame must have the size the
// writer was created with.
func (w *FrameWriter) Write(frame *image.RGBA) error {
	b := frame.Bounds()
	if frame.Stride != b.Dx()*4 {
		return errors.Errorf("frame stride %d does not match width %d", frame.Stride, b.Dx())
	}
	if _, err := w.stdin.Write(frame.Pix); err != nil {
		return errors.Wrap(err, "write frame to encoder")
	}
	return nil
}

// Close flushes the encoder and waits for it to finish the file.
func (w *FrameWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.stdin.Close()
	if err := w.cmd.Wait(); err != nil {
		return commandError("encode", err, w.stderr)
	}
	return nil
}
