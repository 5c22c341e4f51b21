package processor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/ZacxDev/quote-overlay/internal/config"
	"github.com/ZacxDev/quote-overlay/internal/logger"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		input string
		index int
		want  string
	}{
		{"clip.mp4", 0, "output_clip_1.mp4"},
		{"clip.mp4", 4, "output_clip_5.mp4"},
		{"my.holiday.mov", 1, "output_my.holiday_2.mp4"},
		{"noext", 0, "output_noext_1.mp4"},
	}
	for _, tt := range tests {
		if got := OutputName(tt.input, tt.index); got != tt.want {
			t.Errorf("OutputName(%q, %d) = %q, want %q", tt.input, tt.index, got, tt.want)
		}
	}
}

func TestUniqueOutputPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "output_clip_1.mp4")

	got, err := UniqueOutputPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != path {
		t.Errorf("free path: got %q, want %q", got, path)
	}

	for _, want := range []string{"output_clip_1_1.mp4", "output_clip_1_2.mp4", "output_clip_1_3.mp4"} {
		touch(t, got)
		got, err = UniqueOutputPath(path)
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Base(got) != want {
			t.Errorf("got %q, want %q", filepath.Base(got), want)
		}
	}
}

func TestIntermediatePath(t *testing.T) {
	out := filepath.Join("dir", "output_clip_1.mp4")
	a, b := intermediatePath(out), intermediatePath(out)
	if a == b {
		t.Errorf("intermediatePath returned %q twice", a)
	}
	if !strings.HasPrefix(a, filepath.Join("dir", "output_clip_1_")) || !strings.HasSuffix(a, "_silent.mp4") {
		t.Errorf("intermediatePath() = %q", a)
	}
}

type call struct {
	input, output, quote string
}

type fakeAnnotator struct {
	calls []call
	fail  map[string]error // keyed by input base name
}

func (f *fakeAnnotator) Annotate(ctx context.Context, inputPath, outputPath, quote string) (*AnnotateResult, error) {
	f.calls = append(f.calls, call{inputPath, outputPath, quote})
	if err := f.fail[filepath.Base(inputPath)]; err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputPath, []byte("video"), 0644); err != nil {
		return nil, err
	}
	return &AnnotateResult{OutputPath: outputPath, Frames: 10}, nil
}

func newTestBatch(t *testing.T, fake *fakeAnnotator) (*Batch, *config.Options) {
	t.Helper()
	opts := config.Default(t.TempDir())
	if err := os.MkdirAll(opts.InputDir, 0755); err != nil {
		t.Fatal(err)
	}
	return NewBatch(opts, fake, logger.Nop()), opts
}

func TestBatchRunCrossProduct(t *testing.T) {
	fake := &fakeAnnotator{}
	batch, opts := newTestBatch(t, fake)

	touch(t, filepath.Join(opts.InputDir, "b.mp4"))
	touch(t, filepath.Join(opts.InputDir, "a.mp4"))
	touch(t, filepath.Join(opts.InputDir, "notes.txt"))
	if err := os.Mkdir(filepath.Join(opts.InputDir, "nested.mp4"), 0755); err != nil {
		t.Fatal(err)
	}

	report, err := batch.Run(context.Background(), []string{"One - X", "Two - Y"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []call{
		{filepath.Join(opts.InputDir, "a.mp4"), filepath.Join(opts.OutputDir, "output_a_1.mp4"), "One - X"},
		{filepath.Join(opts.InputDir, "a.mp4"), filepath.Join(opts.OutputDir, "output_a_2.mp4"), "Two - Y"},
		{filepath.Join(opts.InputDir, "b.mp4"), filepath.Join(opts.OutputDir, "output_b_1.mp4"), "One - X"},
		{filepath.Join(opts.InputDir, "b.mp4"), filepath.Join(opts.OutputDir, "output_b_2.mp4"), "Two - Y"},
	}
	if len(fake.calls) != len(want) {
		t.Fatalf("got %d calls, want %d: %+v", len(fake.calls), len(want), fake.calls)
	}
	for i := range want {
		if fake.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, fake.calls[i], want[i])
		}
	}
	if report.Succeeded() != 4 || report.Failed() != 0 || report.Err() != nil {
		t.Errorf("report: succeeded=%d failed=%d err=%v", report.Succeeded(), report.Failed(), report.Err())
	}
}

func TestBatchRunKeepsExistingOutputs(t *testing.T) {
	fake := &fakeAnnotator{}
	batch, opts := newTestBatch(t, fake)
	touch(t, filepath.Join(opts.InputDir, "clip.mp4"))

	for run := 0; run < 2; run++ {
		if _, err := batch.Run(context.Background(), []string{"Only - Me"}); err != nil {
			t.Fatal(err)
		}
	}

	if got := fake.calls[1].output; filepath.Base(got) != "output_clip_1_1.mp4" {
		t.Errorf("second run wrote %q, want output_clip_1_1.mp4", got)
	}
}

func TestBatchRunIsolatesFailures(t *testing.T) {
	fake := &fakeAnnotator{fail: map[string]error{
		"bad.mp4": &InputOpenError{Path: "bad.mp4", Err: errors.New("moov atom not found")},
	}}
	batch, opts := newTestBatch(t, fake)
	touch(t, filepath.Join(opts.InputDir, "bad.mp4"))
	touch(t, filepath.Join(opts.InputDir, "good.mp4"))

	report, err := batch.Run(context.Background(), []string{"q - a"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(report.Pairs))
	}
	if report.Succeeded() != 1 || report.Failed() != 1 {
		t.Errorf("succeeded=%d failed=%d, want 1/1", report.Succeeded(), report.Failed())
	}
	var openErr *InputOpenError
	if !errors.As(report.Pairs[0].Err, &openErr) {
		t.Errorf("first pair error = %v, want InputOpenError", report.Pairs[0].Err)
	}
	if report.Err() == nil {
		t.Error("Report.Err() = nil with a failed pair")
	}
	if got := report.Pairs[0].Output; got != "" {
		t.Errorf("failed pair reports output %q that was never written", got)
	}
	if !strings.Contains(report.Render(), "output_good_1.mp4") || strings.Contains(report.Render(), "output_bad_1.mp4") {
		t.Errorf("Render() lists the wrong outputs:\n%s", report.Render())
	}
	if _, err := os.Stat(filepath.Join(opts.OutputDir, "output_good_1.mp4")); err != nil {
		t.Errorf("good video not written: %v", err)
	}
}

func TestBatchRunExtensions(t *testing.T) {
	fake := &fakeAnnotator{}
	batch, opts := newTestBatch(t, fake)
	opts.VideoExtensions = []string{".mp4", ".mov"}
	for _, name := range []string{"a.mov", "b.mp4", "c.mkv", "d.MP4"} {
		touch(t, filepath.Join(opts.InputDir, name))
	}

	report, err := batch.Run(context.Background(), []string{"q"})
	if err != nil {
		t.Fatal(err)
	}
	var inputs []string
	for _, p := range report.Pairs {
		inputs = append(inputs, filepath.Base(p.Input))
	}
	if strings.Join(inputs, ",") != "a.mov,b.mp4" {
		t.Errorf("processed %v, want [a.mov b.mp4]", inputs)
	}
}

func TestBatchRunCancelled(t *testing.T) {
	fake := &fakeAnnotator{}
	batch, opts := newTestBatch(t, fake)
	touch(t, filepath.Join(opts.InputDir, "clip.mp4"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := batch.Run(ctx, []string{"q"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if len(fake.calls) != 0 {
		t.Errorf("annotator called %d times after cancellation", len(fake.calls))
	}
	if report == nil || len(report.Pairs) != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestBatchRunLocked(t *testing.T) {
	fake := &fakeAnnotator{}
	batch, opts := newTestBatch(t, fake)
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		t.Fatal(err)
	}

	held := flock.New(filepath.Join(opts.OutputDir, LockFileName))
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	defer held.Unlock()

	if _, err := batch.Run(context.Background(), []string{"q"}); !errors.Is(err, ErrBatchLocked) {
		t.Errorf("Run() error = %v, want ErrBatchLocked", err)
	}
}

func TestBatchRunMissingInputDir(t *testing.T) {
	fake := &fakeAnnotator{}
	batch, opts := newTestBatch(t, fake)
	if err := os.RemoveAll(opts.InputDir); err != nil {
		t.Fatal(err)
	}
	if _, err := batch.Run(context.Background(), []string{"q"}); err == nil {
		t.Error("Run() with missing input directory succeeded")
	}
}

func TestReportRender(t *testing.T) {
	report := &Report{Pairs: []PairResult{
		{Input: "/in/a.mp4", QuoteIndex: 0, Output: "/out/output_a_1.mp4", Frames: 150},
		{Input: "/in/b.mp4", QuoteIndex: 1, Output: "/out/output_b_2.mp4", Err: &RemuxError{Input: "b", Output: "o", Err: errors.New("boom\nmore detail")}},
	}}

	out := report.Render()
	for _, want := range []string{"output_a_1.mp4", "150", "failed: remux audio", "1 succeeded, 1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "more detail") {
		t.Errorf("Render() should keep only the first error line:\n%s", out)
	}
}
