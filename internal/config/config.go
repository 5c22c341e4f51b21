package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Options defines everything a batch run needs. Paths left empty are derived
// from BaseDir by Validate. Transparency has no implicit default since zero
// is meaningful; start from Default or Load.
type Options struct {
	BaseDir         string        `yaml:"base_dir" toml:"base_dir"`
	InputDir        string        `yaml:"input_dir" toml:"input_dir"`
	OutputDir       string        `yaml:"output_dir" toml:"output_dir"`
	QuotesFile      string        `yaml:"quotes_file" toml:"quotes_file"`
	QuotesEncoding  string        `yaml:"quotes_encoding" toml:"quotes_encoding"`
	FontPath        string        `yaml:"font_path" toml:"font_path"`
	FontURL         string        `yaml:"font_url" toml:"font_url"`
	FFmpegPath      string        `yaml:"ffmpeg_path" toml:"ffmpeg_path"`
	VideoExtensions []string      `yaml:"video_extensions" toml:"video_extensions"`
	Transparency    float64       `yaml:"transparency" toml:"transparency"`
	ProcessTimeout  time.Duration `yaml:"process_timeout" toml:"-"`
	RemuxTimeout    time.Duration `yaml:"remux_timeout" toml:"-"`
	DownloadTimeout time.Duration `yaml:"download_timeout" toml:"-"`
	LogLevel        string        `yaml:"log_level" toml:"log_level"`
	Verbose         bool          `yaml:"verbose" toml:"verbose"`
}

const (
	// Directory and file names under the base directory
	InputDirName   = "video-input"
	OutputDirName  = "video-output"
	QuotesFileName = "quotes.csv"
	FontFileName   = "DejaVuSans-Bold.ttf"

	DefaultFontURL        = "https://github.com/dejavu-fonts/dejavu-fonts/raw/master/ttf/DejaVuSans-Bold.ttf"
	DefaultFFmpegPath     = "ffmpeg"
	DefaultQuotesEncoding = "iso-8859-1"
	DefaultVideoExtension = ".mp4"
	DefaultTransparency   = 0.5
	DefaultLogLevel       = "info"

	DefaultProcessTimeout  = 30 * time.Minute
	DefaultRemuxTimeout    = 5 * time.Minute
	DefaultDownloadTimeout = 30 * time.Second

	// Text overlay layout
	BodyFontScale   = 0.03 // body size as a fraction of frame height
	AuthorFontScale = 0.8  // author size as a fraction of body size
	SideMargin      = 40   // max line width is frame width minus this
	LineSpacing     = 4    // pixels between wrapped lines
	AuthorGap       = 10   // pixels between the last line and the author
	BlockBuffer     = 20   // extra height reserved around the text block

	// Frames between progress lines
	ProgressEvery = 50

	// Example video synthesized when the input directory is empty
	ExampleVideoName    = "example.mp4"
	ExampleVideoWidth   = 640
	ExampleVideoHeight  = 480
	ExampleVideoFPS     = 30
	ExampleVideoSeconds = 5
	ExampleVideoLabel   = "Exemplo"
)

// Default returns options rooted at baseDir with every default applied.
func Default(baseDir string) *Options {
	o := &Options{BaseDir: baseDir, Transparency: DefaultTransparency}
	o.applyDefaults()
	return o
}

// Load reads a YAML or TOML config file (chosen by extension) on top of the
// defaults. The file's base_dir, when relative, is resolved against the
// directory holding the file.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	// zero is a valid transparency, so its default is set before decoding
	opts := &Options{Transparency: DefaultTransparency}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, opts); err != nil {
			return nil, errors.Wrapf(err, "parse yaml config %s", path)
		}
	case ".toml":
		raw := tomlOptions{Options: *opts}
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrapf(err, "parse toml config %s", path)
		}
		if err := raw.apply(opts); err != nil {
			return nil, errors.Wrapf(err, "parse toml config %s", path)
		}
	default:
		return nil, errors.Errorf("unsupported config format: %s (supported: .yaml, .yml, .toml)", path)
	}

	if opts.BaseDir == "" {
		opts.BaseDir = filepath.Dir(path)
	} else if !filepath.IsAbs(opts.BaseDir) {
		opts.BaseDir = filepath.Join(filepath.Dir(path), opts.BaseDir)
	}
	opts.applyDefaults()
	return opts, nil
}

// tomlOptions mirrors Options with durations as strings, since TOML has no
// duration type.
type tomlOptions struct {
	Options
	ProcessTimeout  string `toml:"process_timeout"`
	RemuxTimeout    string `toml:"remux_timeout"`
	DownloadTimeout string `toml:"download_timeout"`
}

func (t *tomlOptions) apply(dst *Options) error {
	*dst = t.Options
	for _, d := range []struct {
		raw string
		out *time.Duration
	}{
		{t.ProcessTimeout, &dst.ProcessTimeout},
		{t.RemuxTimeout, &dst.RemuxTimeout},
		{t.DownloadTimeout, &dst.DownloadTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return errors.Wrapf(err, "invalid duration %q", d.raw)
		}
		*d.out = v
	}
	return nil
}

func (o *Options) applyDefaults() {
	if o.BaseDir == "" {
		o.BaseDir = "."
	}
	if o.InputDir == "" {
		o.InputDir = filepath.Join(o.BaseDir, InputDirName)
	}
	if o.OutputDir == "" {
		o.OutputDir = filepath.Join(o.BaseDir, OutputDirName)
	}
	if o.QuotesFile == "" {
		o.QuotesFile = filepath.Join(o.BaseDir, QuotesFileName)
	}
	if o.QuotesEncoding == "" {
		o.QuotesEncoding = DefaultQuotesEncoding
	}
	if o.FontPath == "" {
		o.FontPath = filepath.Join(o.BaseDir, FontFileName)
	}
	if o.FontURL == "" {
		o.FontURL = DefaultFontURL
	}
	if o.FFmpegPath == "" {
		o.FFmpegPath = DefaultFFmpegPath
	}
	if len(o.VideoExtensions) == 0 {
		o.VideoExtensions = []string{DefaultVideoExtension}
	}
	if o.ProcessTimeout == 0 {
		o.ProcessTimeout = DefaultProcessTimeout
	}
	if o.RemuxTimeout == 0 {
		o.RemuxTimeout = DefaultRemuxTimeout
	}
	if o.DownloadTimeout == 0 {
		o.DownloadTimeout = DefaultDownloadTimeout
	}
	if o.LogLevel == "" {
		o.LogLevel = DefaultLogLevel
	}
}

// SetProcessTimeout overrides the per-video time limit. A zero limit would be
// replaced by the default, so only positive limits are accepted.
func (o *Options) SetProcessTimeout(d time.Duration) error {
	if d <= 0 {
		return errors.Errorf("process timeout must be positive, got %s", d)
	}
	o.ProcessTimeout = d
	return nil
}

// Validate fills any missing defaults and rejects values a batch cannot run with.
func (o *Options) Validate() error {
	o.applyDefaults()

	if o.Transparency < 0 || o.Transparency > 1 {
		return errors.Errorf("transparency must be within [0,1], got %v", o.Transparency)
	}
	if o.ProcessTimeout < 0 || o.RemuxTimeout < 0 || o.DownloadTimeout < 0 {
		return errors.New("timeouts must be positive")
	}
	for _, ext := range o.VideoExtensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return errors.Errorf("invalid video extension %q", ext)
		}
	}
	switch strings.ToLower(o.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("unsupported log level: %s (supported: debug, info, warn, error)", o.LogLevel)
	}
	return nil
}
