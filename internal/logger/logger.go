package logger

import (
	"context"
	"io"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Logger is the leveled console logger used across the pipeline.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...interface{})
	Info(ctx context.Context, msg string, args ...interface{})
	Warn(ctx context.Context, msg string, args ...interface{})
	Error(ctx context.Context, msg string, args ...interface{})
}

type implLogger struct {
	logger *log.Logger
	level  string
	tags   map[string]string
}

var levels = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

// New creates a Logger writing to stdout. Level tags are colored only when
// stdout is a terminal.
func New(level string) Logger {
	return NewWithWriter(os.Stdout, level, isatty.IsTerminal(os.Stdout.Fd()))
}

// NewWithWriter creates a Logger writing to w.
func NewWithWriter(w io.Writer, level string, colored bool) Logger {
	return &implLogger{
		logger: log.New(w, "", log.LstdFlags),
		level:  strings.ToLower(level),
		tags:   levelTags(colored),
	}
}

func levelTags(colored bool) map[string]string {
	tags := map[string]string{
		"debug": "[DEBUG]",
		"info":  "[INFO]",
		"warn":  "[WARN]",
		"error": "[ERROR]",
	}
	if !colored {
		return tags
	}
	paint := map[string]*color.Color{
		"debug": color.New(color.FgHiBlack),
		"info":  color.New(color.FgCyan),
		"warn":  color.New(color.FgYellow),
		"error": color.New(color.FgRed, color.Bold),
	}
	for lvl, c := range paint {
		c.EnableColor()
		tags[lvl] = c.Sprint(tags[lvl])
	}
	return tags
}

func (l *implLogger) shouldLog(level string) bool {
	currentLevel, ok := levels[l.level]
	if !ok {
		currentLevel = 1 // default to info
	}

	targetLevel, ok := levels[level]
	if !ok {
		return true
	}

	return targetLevel >= currentLevel
}

func (l *implLogger) printf(level, msg string, args ...interface{}) {
	if l.shouldLog(level) {
		l.logger.Printf(l.tags[level]+" "+msg, args...)
	}
}

func (l *implLogger) Debug(ctx context.Context, msg string, args ...interface{}) {
	l.printf("debug", msg, args...)
}

func (l *implLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	l.printf("info", msg, args...)
}

func (l *implLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	l.printf("warn", msg, args...)
}

func (l *implLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.printf("error", msg, args...)
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return NewWithWriter(io.Discard, "error", false)
}
