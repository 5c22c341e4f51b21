package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/ZacxDev/quote-overlay/internal/logger"
)

type CodecSettings struct {
	VideoCodec      string
	AudioCodec      string
	ContainerFormat string
	FileExtension   string
	EncoderPresets  map[string]ffmpeg.KwArgs
}

var codecPresets = map[string]CodecSettings{
	"mp4": {
		VideoCodec:      "libx264",
		AudioCodec:      "aac",
		ContainerFormat: "mp4",
		FileExtension:   ".mp4",
		EncoderPresets: map[string]ffmpeg.KwArgs{
			"balanced": {
				"preset":   "medium",
				"crf":      18,
				"movflags": "+faststart",
			},
			// MPEG-4 Part 2 tolerates odd frame sizes that libx264 rejects
			"odd_size": {
				"c:v":      "mpeg4",
				"tag:v":    "mp4v",
				"q:v":      2,
				"movflags": "+faststart",
			},
		},
	},
}

func GetCodecSettings(outputFormat string) CodecSettings {
	if settings, ok := codecPresets[outputFormat]; ok {
		return settings
	}
	return codecPresets["mp4"]
}

// VideoMetadata contains metadata about a video file
type VideoMetadata struct {
	Duration  float64
	Width     int
	Height    int
	Codec     string
	FrameRate string // rational, as reported by ffprobe (e.g. "30000/1001")
	FPS       float64
	Frames    int // 0 when the container does not report it
	HasAudio  bool
	// StreamIndex is the container index of the video stream described here.
	StreamIndex int
	// Rotation is the display rotation in degrees. Width and Height are
	// already swapped for quarter turns, matching what the decoder emits.
	Rotation int
}

// Processor wraps FFmpeg functionality
type Processor struct {
	binary string
	log    logger.Logger
}

// NewProcessor creates a new FFmpeg processor running the given binary
func NewProcessor(binary string, log logger.Logger) *Processor {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Processor{
		binary: binary,
		log:    log,
	}
}

// Binary returns the ffmpeg executable this processor runs.
func (p *Processor) Binary() string {
	return p.binary
}

// ProbeBinary returns the ffprobe executable installed next to Binary.
func (p *Processor) ProbeBinary() string {
	dir, name := filepath.Split(p.binary)
	probe := "ffprobe"
	if strings.Contains(name, "ffmpeg") {
		probe = strings.Replace(name, "ffmpeg", "ffprobe", 1)
	}
	if dir == "" {
		return probe
	}
	return filepath.Join(dir, probe)
}

// GetVideoMetadata retrieves metadata about a video file. The probe is
// killed when ctx ends.
func (p *Processor) GetVideoMetadata(ctx context.Context, inputPath string) (*VideoMetadata, error) {
	// same arguments ffmpeg.Probe passes, run under ctx with our binary
	cmd := exec.CommandContext(ctx, p.ProbeBinary(), "-show_format", "-show_streams", "-of", "json", inputPath)
	cmd.WaitDelay = waitDelay
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	p.log.Debug(ctx, "Running %s", strings.Join(cmd.Args, " "))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrap(ctxErr, "error probing video")
		}
		return nil, errors.Wrap(commandError("probe", err, stderr), "error probing video")
	}
	return ParseMetadata(stdout.String())
}

// ParseMetadata extracts VideoMetadata from ffprobe's JSON output
func ParseMetadata(probe string) (*VideoMetadata, error) {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(probe), &data); err != nil {
		return nil, errors.WithStack(err)
	}

	streams, ok := data["streams"].([]interface{})
	if !ok || len(streams) == 0 {
		return nil, fmt.Errorf("no streams found in video")
	}

	var videoStream map[string]interface{}
	hasAudio := false
	for _, stream := range streams {
		s, ok := stream.(map[string]interface{})
		if !ok {
			continue
		}
		switch s["codec_type"] {
		case "video":
			if videoStream == nil && !isAttachedPicture(s) {
				videoStream = s
			}
		case "audio":
			hasAudio = true
		}
	}

	if videoStream == nil {
		return nil, fmt.Errorf("no video stream found")
	}

	width, _ := videoStream["width"].(float64)
	height, _ := videoStream["height"].(float64)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid video dimensions %vx%v", width, height)
	}
	codec, _ := videoStream["codec_name"].(string)
	index, _ := videoStream["index"].(float64)

	// the decoder applies the display matrix, so quarter turns swap the frame
	rotation := streamRotation(videoStream)
	if rotation%180 != 0 {
		width, height = height, width
	}

	// Prefer the average rate; r_frame_rate can be a timebase artifact
	frameRate := ""
	fps := 0.0
	for _, key := range []string{"avg_frame_rate", "r_frame_rate"} {
		if rate, ok := videoStream[key].(string); ok {
			if v := parseRational(rate); v > 0 {
				frameRate, fps = rate, v
				break
			}
		}
	}
	if fps == 0 {
		return nil, fmt.Errorf("could not determine video frame rate")
	}

	frames := 0
	if nbFrames, ok := videoStream["nb_frames"].(string); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(nbFrames)); err == nil {
			frames = n
		}
	}

	var duration float64

	// First try video stream duration
	if durationStr, ok := videoStream["duration"].(string); ok {
		if d, err := strconv.ParseFloat(strings.TrimSpace(durationStr), 64); err == nil {
			duration = d
		}
	}

	// If stream duration is not available, try format duration
	if duration == 0 {
		if format, ok := data["format"].(map[string]interface{}); ok {
			if durationStr, ok := format["duration"].(string); ok {
				if d, err := strconv.ParseFloat(strings.TrimSpace(durationStr), 64); err == nil {
					duration = d
				}
			}
		}
	}

	// If still no duration found, try calculating from frames and frame rate
	if duration == 0 && frames > 0 {
		duration = float64(frames) / fps
	}

	return &VideoMetadata{
		Duration:  duration,
		Width:     int(width),
		Height:    int(height),
		Codec:     codec,
		FrameRate: frameRate,
		FPS:       fps,
		Frames:    frames,
		HasAudio:  hasAudio,

		StreamIndex: int(index),
		Rotation:    rotation,
	}, nil
}

// isAttachedPicture reports cover art, which ffprobe lists as a video stream.
func isAttachedPicture(stream map[string]interface{}) bool {
	disposition, ok := stream["disposition"].(map[string]interface{})
	if !ok {
		return false
	}
	v, _ := disposition["attached_pic"].(float64)
	return v != 0
}

// streamRotation returns the rotation normalized to [0, 360), read from the
// display matrix side data or, for older files, the rotate tag.
func streamRotation(stream map[string]interface{}) int {
	degrees := 0.0
	found := false
	if sideData, ok := stream["side_data_list"].([]interface{}); ok {
		for _, entry := range sideData {
			if m, ok := entry.(map[string]interface{}); ok {
				if r, ok := m["rotation"].(float64); ok {
					degrees, found = r, true
					break
				}
			}
		}
	}
	if !found {
		if tags, ok := stream["tags"].(map[string]interface{}); ok {
			if r, ok := tags["rotate"].(string); ok {
				if v, err := strconv.ParseFloat(strings.TrimSpace(r), 64); err == nil {
					degrees = v
				}
			}
		}
	}
	rotation := int(math.Round(degrees)) % 360
	if rotation < 0 {
		rotation += 360
	}
	return rotation
}

func parseRational(rate string) float64 {
	nums := strings.Split(strings.TrimSpace(rate), "/")
	switch len(nums) {
	case 1:
		v, err := strconv.ParseFloat(nums[0], 64)
		if err != nil {
			return 0
		}
		return v
	case 2:
		num, err1 := strconv.ParseFloat(nums[0], 64)
		den, err2 := strconv.ParseFloat(nums[1], 64)
		if err1 != nil || err2 != nil || den == 0 {
			return 0
		}
		return num / den
	}
	return 0
}

// RemuxStream builds the command that copies the video stream of videoPath
// and the audio stream of audioPath into outputPath without re-encoding.
func RemuxStream(ctx context.Context, videoPath, audioPath, outputPath string) *ffmpeg.Stream {
	video := ffmpeg.Input(videoPath).Video()
	audio := ffmpeg.Input(audioPath).Audio()
	return ffmpeg.OutputContext(ctx, []*ffmpeg.Stream{video, audio}, outputPath, ffmpeg.KwArgs{"c": "copy"}).
		OverWriteOutput()
}

// Remux combines the video of videoPath with the audio of audioPath.
func (p *Processor) Remux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	stderr := &bytes.Buffer{}
	cmd := p.compile(ctx, RemuxStream(ctx, videoPath, audioPath, outputPath), stderr)
	if err := cmd.Run(); err != nil {
		return commandError("remux", err, stderr)
	}
	return nil
}

// waitDelay bounds how long Wait lingers on pipes held open by a killed
// process's children.
const waitDelay = 2 * time.Second

// compile turns stream into a command for the configured binary, bound to ctx.
func (p *Processor) compile(ctx context.Context, stream *ffmpeg.Stream, stderr io.Writer) *exec.Cmd {
	stream = stream.GlobalArgs("-hide_banner", "-loglevel", "error")
	stream.Context = ctx
	cmd := stream.SetFfmpegPath(p.binary).WithErrorOutput(stderr).Compile()
	cmd.WaitDelay = waitDelay
	p.log.Debug(ctx, "Running %s", strings.Join(cmd.Args, " "))
	return cmd
}

// CommandError is a failed ffmpeg invocation with the tail of its stderr.
type CommandError struct {
	Op     string
	Err    error
	Stderr string
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ffmpeg %s failed: %v\nstderr: %s", e.Op, e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error { return e.Err }

const stderrTail = 2048

func commandError(op string, err error, stderr *bytes.Buffer) error {
	msg := strings.TrimSpace(stderr.String())
	if len(msg) > stderrTail {
		msg = "..." + msg[len(msg)-stderrTail:]
	}
	return &CommandError{Op: op, Err: err, Stderr: msg}
}

// drain discards whatever is left on r so a child process is not blocked on
// a full pipe.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}
