package procstat

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleCurrentProcess(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	got := s.Sample(context.Background())
	assert.Equal(t, int32(os.Getpid()), got.PID)
	assert.GreaterOrEqual(t, got.UptimeSec, int64(0))
	assert.Positive(t, got.Goroutines)
}
