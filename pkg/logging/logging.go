package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

type Logger struct {
	out     io.Writer
	err     io.Writer
	json    bool
	quiet   bool
	verbose bool
	color   bool
}

type ctxKey struct{}

// DefaultLogger writes to the process standard streams.
func DefaultLogger() Logger {
	return NewLogger(os.Stdout, os.Stderr, false, false, false)
}

// NewLogger creates a logger.
// json suppresses human readable output on out, since out then carries a json document.
// quiet suppresses Info lines. verbose enables Debug lines.
// Color is used only when err is a terminal.
func NewLogger(out, err io.Writer, json, quiet, verbose bool) Logger {
	return Logger{
		out:     out,
		err:     err,
		json:    json,
		quiet:   quiet,
		verbose: verbose,
		color:   isTerminal(err),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// WithContext returns a context carrying this logger.
func (l Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// Ctx returns the logger carried by ctx.
// A context without a logger yields the default logger.
func Ctx(ctx context.Context) *Logger {
	l, ok := ctx.Value(ctxKey{}).(Logger)
	if !ok {
		l = DefaultLogger()
	}
	return &l
}

// Tee returns a copy of the logger that also writes log lines to w.
// Colour codes are never written to w.
func (l Logger) Tee(w io.Writer) Logger {
	l.err = &teeWriter{primary: l.err, plain: w}
	return l
}

func (l *Logger) Out(f string, args ...interface{}) {
	if l.json {
		return
	}
	fmt.Fprintf(l.out, f+"\n", args...)
}

func (l *Logger) OutRaw(s string) {
	fmt.Fprintf(l.out, "%s", s)
}

func (l *Logger) Info(tag string, f string, args ...interface{}) {
	if l.quiet {
		return
	}
	l.print(color.New(color.FgHiGreen), tag, f, args...)
}

// Warn is never suppressed by quiet.
func (l *Logger) Warn(tag string, f string, args ...interface{}) {
	l.print(color.New(color.FgHiYellow), tag, f, args...)
}

func (l *Logger) Debug(tag string, f string, args ...interface{}) {
	if l.verbose {
		l.print(color.New(color.FgGreen), tag, f, args...)
	}
}

func (l *Logger) print(tagColor *color.Color, tag, f string, args ...interface{}) {
	str := fmt.Sprintf(f, args...)
	lineColor := color.New(color.FgWhite)
	if !l.color {
		tagColor.DisableColor()
		lineColor.DisableColor()
	}
	for _, line := range strings.Split(str, "\n") {
		if t, ok := l.err.(*teeWriter); ok {
			fmt.Fprintf(t.plain, "%s  %s\n", tag, line)
			fmt.Fprintf(t.primary, "%s  %s\n", tagColor.Sprint(tag), lineColor.Sprint(line))
			continue
		}
		fmt.Fprintf(l.err, "%s  %s\n", tagColor.Sprint(tag), lineColor.Sprint(line))
	}
}

type teeWriter struct {
	primary io.Writer
	plain   io.Writer
}

func (t *teeWriter) Write(data []byte) (int, error) {
	t.plain.Write(data)
	return t.primary.Write(data)
}

type Writer struct {
	logger *Logger
	tag    string
}

// InfoWriter returns an io.Writer which logs every written line at Info level.
func (l *Logger) InfoWriter(tag string) *Writer {
	return &Writer{
		logger: l,
		tag:    tag,
	}
}

func (w *Writer) Write(data []byte) (n int, err error) {
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		w.logger.Info(w.tag, "%s", line)
	}
	return len(data), nil
}
