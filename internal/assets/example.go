package assets

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"github.com/ZacxDev/quote-overlay/internal/config"
	"github.com/ZacxDev/quote-overlay/internal/ffmpeg"
	"github.com/ZacxDev/quote-overlay/internal/overlay"
)

// ExampleVideo renders a black clip with a white label and a sine tone,
// encoded by ffmpeg from frames drawn here.
type ExampleVideo struct {
	ffmpeg  *ffmpeg.Processor
	Width   int
	Height  int
	FPS     int
	Seconds int
	Label   string
}

// NewExampleVideo returns the default 640x480, 30 fps, 5 second example.
func NewExampleVideo(ff *ffmpeg.Processor) *ExampleVideo {
	return &ExampleVideo{
		ffmpeg:  ff,
		Width:   config.ExampleVideoWidth,
		Height:  config.ExampleVideoHeight,
		FPS:     config.ExampleVideoFPS,
		Seconds: config.ExampleVideoSeconds,
		Label:   config.ExampleVideoLabel,
	}
}

// Frame returns the single still every frame of the example is made of.
func (e *ExampleVideo) Frame(fontPath string) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, e.Width, e.Height))
	draw.Draw(frame, frame.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	fonts := overlay.LoadFaces(fontPath, e.Height)
	defer fonts.Faces.Close()
	overlay.NewCompositor(fonts.Faces, e.Width, e.Height, 1).
		Prepare(e.Label, "").
		ApplyInPlace(frame)
	return frame
}

// Synthesize writes the example video to outputPath.
func (e *ExampleVideo) Synthesize(ctx context.Context, outputPath, fontPath string) error {
	frame := e.Frame(fontPath)

	writer, err := e.ffmpeg.CreateFrameWriter(ctx, outputPath, ffmpeg.EncodeOptions{
		Width:       e.Width,
		Height:      e.Height,
		FrameRate:   strconv.Itoa(e.FPS),
		ToneSeconds: e.Seconds,
	})
	if err != nil {
		return err
	}
	defer writer.Close()

	for i := 0; i < e.FPS*e.Seconds; i++ {
		if err := writer.Write(frame); err != nil {
			if closeErr := writer.Close(); closeErr != nil {
				return closeErr
			}
			return err
		}
	}
	return writer.Close()
}
