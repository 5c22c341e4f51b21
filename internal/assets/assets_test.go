package assets

import (
	"context"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/ZacxDev/quote-overlay/internal/config"
	"github.com/ZacxDev/quote-overlay/internal/logger"
	"github.com/ZacxDev/quote-overlay/internal/quotes"
)

type fakeSynthesizer struct {
	calls    int
	err      error
	deadline time.Time
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, outputPath, fontPath string) error {
	f.calls++
	f.deadline, _ = ctx.Deadline()
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, []byte("video"), 0644)
}

func fontServer(t *testing.T, status int, body string) (*httptest.Server, *int) {
	t.Helper()
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestEnsureCreatesLayout(t *testing.T) {
	server, hits := fontServer(t, http.StatusOK, "font-bytes")
	opts := config.Default(t.TempDir())
	opts.FontURL = server.URL
	synth := &fakeSynthesizer{}

	layout, err := NewBootstrapper(opts, server.Client(), synth, logger.Nop()).Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	for _, dir := range []string{layout.InputDir, layout.OutputDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s is not a directory: %v", dir, err)
		}
	}

	got, err := quotes.LoadFile(layout.QuotesFile, opts.QuotesEncoding)
	if err != nil {
		t.Fatalf("example quotes unreadable: %v", err)
	}
	if len(got) != len(quotes.Examples) {
		t.Errorf("example quotes = %q", got)
	}

	data, err := os.ReadFile(layout.FontPath)
	if err != nil || string(data) != "font-bytes" {
		t.Errorf("font file = %q, %v", data, err)
	}
	if layout.FontFallback || layout.FontErr != nil {
		t.Errorf("unexpected fallback: %v", layout.FontErr)
	}
	if *hits != 1 || synth.calls != 1 {
		t.Errorf("hits=%d synth calls=%d, want 1/1", *hits, synth.calls)
	}
	if _, err := os.Stat(filepath.Join(layout.InputDir, config.ExampleVideoName)); err != nil {
		t.Errorf("example video missing: %v", err)
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	server, hits := fontServer(t, http.StatusOK, "font-bytes")
	opts := config.Default(t.TempDir())
	opts.FontURL = server.URL
	synth := &fakeSynthesizer{}
	b := NewBootstrapper(opts, server.Client(), synth, logger.Nop())

	if _, err := b.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(opts.QuotesFile, []byte("frase,autor\nMine,Me\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}

	if *hits != 1 {
		t.Errorf("font downloaded %d times", *hits)
	}
	if synth.calls != 1 {
		t.Errorf("example video synthesized %d times", synth.calls)
	}
	entries, err := os.ReadDir(opts.InputDir)
	if err != nil || len(entries) != 1 {
		t.Errorf("input dir has %d entries, %v", len(entries), err)
	}
	got, _ := quotes.LoadFile(opts.QuotesFile, opts.QuotesEncoding)
	if len(got) != 1 || got[0] != "Mine - Me" {
		t.Errorf("existing quotes file overwritten: %q", got)
	}
}

func TestEnsureSkipsSynthesisWhenInputPresent(t *testing.T) {
	opts := config.Default(t.TempDir())
	opts.FontPath = ""
	if err := os.MkdirAll(opts.InputDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(opts.InputDir, "mine.mp4"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	synth := &fakeSynthesizer{}

	layout, err := NewBootstrapper(opts, nil, synth, logger.Nop()).Ensure(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if synth.calls != 0 {
		t.Errorf("synthesizer called with a non-empty input directory")
	}
	if !layout.FontFallback || layout.FontErr != nil {
		t.Errorf("empty font path: fallback=%v err=%v", layout.FontFallback, layout.FontErr)
	}
}

func TestEnsureFontDownloadFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"server error", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := fontServer(t, tt.status, "nope")
			opts := config.Default(t.TempDir())
			opts.FontURL = server.URL
			fontPath := opts.FontPath

			layout, err := NewBootstrapper(opts, server.Client(), &fakeSynthesizer{}, logger.Nop()).Ensure(context.Background())
			if err != nil {
				t.Fatalf("Ensure() error = %v", err)
			}
			var netErr *NetworkError
			if !errors.As(layout.FontErr, &netErr) || netErr.URL != server.URL {
				t.Errorf("FontErr = %v, want NetworkError for %s", layout.FontErr, server.URL)
			}
			if !layout.FontFallback || layout.FontPath != "" {
				t.Errorf("fallback=%v path=%q", layout.FontFallback, layout.FontPath)
			}
			if _, err := os.Stat(fontPath); !os.IsNotExist(err) {
				t.Errorf("font file written on failure: %v", err)
			}
		})
	}
}

func TestEnsureFontDownloadTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	opts := config.Default(t.TempDir())
	opts.FontURL = server.URL
	opts.DownloadTimeout = 50 * time.Millisecond

	layout, err := NewBootstrapper(opts, server.Client(), &fakeSynthesizer{}, logger.Nop()).Ensure(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if layout.FontErr == nil || !errors.Is(layout.FontErr, context.DeadlineExceeded) {
		t.Errorf("FontErr = %v, want deadline exceeded", layout.FontErr)
	}
}

func TestEnsureSynthesisFailure(t *testing.T) {
	opts := config.Default(t.TempDir())
	opts.FontPath = ""
	synth := &fakeSynthesizer{err: errors.New("encoder missing")}

	if _, err := NewBootstrapper(opts, nil, synth, logger.Nop()).Ensure(context.Background()); err == nil {
		t.Error("Ensure() succeeded with a failing synthesizer")
	}
	if _, err := os.Stat(filepath.Join(opts.InputDir, config.ExampleVideoName)); !os.IsNotExist(err) {
		t.Errorf("partial example video left behind: %v", err)
	}
}

func TestExampleFrame(t *testing.T) {
	e := NewExampleVideo(nil)
	frame := e.Frame("")

	if frame.Bounds().Dx() != config.ExampleVideoWidth || frame.Bounds().Dy() != config.ExampleVideoHeight {
		t.Fatalf("frame size = %v", frame.Bounds())
	}
	if got := frame.RGBAAt(0, 0); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("corner pixel = %v, want black", got)
	}
	white := 0
	for i := 0; i < len(frame.Pix); i += 4 {
		if frame.Pix[i] == 255 && frame.Pix[i+1] == 255 && frame.Pix[i+2] == 255 {
			white++
		}
	}
	if white == 0 {
		t.Error("label not drawn")
	}
}

func TestEnsureSynthesisDeadline(t *testing.T) {
	opts := config.Default(t.TempDir())
	opts.FontPath = ""
	opts.ProcessTimeout = time.Minute
	synth := &fakeSynthesizer{}

	start := time.Now()
	if _, err := NewBootstrapper(opts, nil, synth, logger.Nop()).Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}
	if synth.deadline.IsZero() {
		t.Fatal("example video synthesized without a deadline")
	}
	if limit := start.Add(opts.ProcessTimeout); synth.deadline.After(limit.Add(time.Second)) {
		t.Errorf("deadline %v is later than the process timeout allows (%v)", synth.deadline, limit)
	}
}
