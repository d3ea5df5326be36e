package testutil

import (
	"bytes"
	"context"
	"testing"

	"github.com/warptools/fricon/pkg/logging"
)

// NewLogBuffers attaches a verbose logger writing into buffers to ctx.
// The returned func dumps both buffers into the test log.
func NewLogBuffers(t testing.TB, ctx context.Context) (context.Context, func()) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	logger := logging.NewLogger(stdout, stderr, false, false, true)
	ctx = logger.WithContext(ctx)
	return ctx, func() {
		t.Log("---")
		t.Logf("flush stdout:\n%s", stdout.String())
		t.Logf("flush stderr:\n%s", stderr.String())
	}
}
