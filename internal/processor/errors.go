package processor

import "fmt"

// InputOpenError means a source video could not be probed or decoded. The
// batch skips the video and carries on.
type InputOpenError struct {
	Path string
	Err  error
}

func (e *InputOpenError) Error() string {
	return fmt.Sprintf("open input video %s: %v", e.Path, e.Err)
}

func (e *InputOpenError) Unwrap() error { return e.Err }

// RemuxError means the annotated video could not be combined with the
// original audio. No output file is left behind.
type RemuxError struct {
	Input  string
	Output string
	Err    error
}

func (e *RemuxError) Error() string {
	return fmt.Sprintf("remux audio from %s into %s: %v", e.Input, e.Output, e.Err)
}

func (e *RemuxError) Unwrap() error { return e.Err }
