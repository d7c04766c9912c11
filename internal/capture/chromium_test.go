package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureOptions_Normalize(t *testing.T) {
	o := CaptureOptions{URL: "http://127.0.0.1:8080/", OutputPath: "out.png"}
	require.NoError(t, o.normalize())
	assert.Equal(t, DefaultWidth, o.Width)
	assert.Equal(t, DefaultHeight, o.Height)
	assert.Equal(t, DefaultTimeoutSec*time.Second, o.Timeout)

	o = CaptureOptions{URL: "http://x/", OutputPath: "o.png", Width: 320, Height: 240, Timeout: time.Second}
	require.NoError(t, o.normalize())
	assert.Equal(t, 320, o.Width)
	assert.Equal(t, time.Second, o.Timeout)
}

func TestCapturePreviewPNG_RequiresTargets(t *testing.T) {
	err := CapturePreviewPNG(context.Background(), CaptureOptions{OutputPath: "o.png"})
	assert.ErrorContains(t, err, "URL is required")

	err = CapturePreviewPNG(context.Background(), CaptureOptions{URL: "http://x/"})
	assert.ErrorContains(t, err, "OutputPath is required")
}
