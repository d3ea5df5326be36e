package logging

import (
	"bytes"
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestLevels(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	logger := NewLogger(stdout, stderr, false, false, false)
	logger.Info("tag", "hello %d", 1)
	logger.Debug("tag", "hidden")
	logger.Out("result")
	qt.Assert(t, stderr.String(), qt.Equals, "tag  hello 1\n")
	qt.Assert(t, stdout.String(), qt.Equals, "result\n")
}

func TestQuietAndJson(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	logger := NewLogger(stdout, stderr, true, true, true)
	logger.Info("tag", "hidden")
	logger.Out("hidden")
	logger.Debug("tag", "shown")
	logger.Warn("tag", "also shown")
	qt.Assert(t, stdout.String(), qt.Equals, "")
	qt.Assert(t, stderr.String(), qt.Equals, "tag  shown\ntag  also shown\n")
}

func TestContextRoundTrip(t *testing.T) {
	stderr := &bytes.Buffer{}
	ctx := NewLogger(&bytes.Buffer{}, stderr, false, false, false).WithContext(context.Background())
	Ctx(ctx).Info("a", "line one\nline two")
	qt.Assert(t, stderr.String(), qt.Equals, "a  line one\na  line two\n")
}

func TestTee(t *testing.T) {
	stderr := &bytes.Buffer{}
	file := &bytes.Buffer{}
	logger := NewLogger(&bytes.Buffer{}, stderr, false, false, false).Tee(file)
	logger.Info("srv", "started")
	qt.Assert(t, file.String(), qt.Equals, "srv  started\n")
	qt.Assert(t, stderr.String(), qt.Equals, "srv  started\n")
}
