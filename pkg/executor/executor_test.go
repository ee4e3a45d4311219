package executor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okulev/facs/pkg/executor"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func TestInvoke_ExitCodeSurfaced(t *testing.T) {
	exec := executor.New(testLogger(), nil)

	inv, err := exec.Invoke(context.Background(), []string{"sh", "-c", "exit 7"}, false)
	require.NoError(t, err)

	assert.Equal(t, 7, inv.ExitCode)

	// Unsampled runs carry the single "not measured" sentinel.
	assert.Equal(t, []float64{executor.UnsampledSentinel}, inv.Samples)

	assert.False(t, inv.Start.IsZero())
	assert.False(t, inv.End.IsZero())
	assert.False(t, inv.End.Before(inv.Start))
}

func TestInvoke_MissingBinary(t *testing.T) {
	exec := executor.New(testLogger(), nil)

	_, err := exec.Invoke(context.Background(), []string{"definitely-not-a-real-binary-xyz"}, false)

	var terr *executor.ToolError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "definitely-not-a-real-binary-xyz", terr.Binary)
}

func TestInvoke_MemorySampling(t *testing.T) {
	exec := executor.New(testLogger(), &executor.Config{
		SampleInterval: 50 * time.Millisecond,
	})

	inv, err := exec.Invoke(context.Background(), []string{"sh", "-c", "sleep 1"}, true)
	require.NoError(t, err)

	assert.Equal(t, 0, inv.ExitCode)
	require.NotEmpty(t, inv.Samples)

	for _, mb := range inv.Samples {
		assert.GreaterOrEqual(t, mb, 0.0)
	}

	assert.GreaterOrEqual(t, inv.End.Sub(inv.Start), 900*time.Millisecond)
}

func TestInvoke_FastExitFallsBackToSentinel(t *testing.T) {
	// A process that exits before the first tick yields no
	// measurements; the invocation falls back to the sentinel so the
	// sample slice is never empty.
	exec := executor.New(testLogger(), &executor.Config{
		SampleInterval: 10 * time.Second,
	})

	inv, err := exec.Invoke(context.Background(), []string{"true"}, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{executor.UnsampledSentinel}, inv.Samples)
}

func TestProbeAlignerVersion(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "bowtie")

	script := "#!/bin/sh\necho 'bowtie version 1.0.0'\necho 'extra line'\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	version, err := executor.ProbeAlignerVersion(bin)
	require.NoError(t, err)
	assert.Equal(t, "bowtie version 1.0.0", version)
}

func TestProbeAlignerVersion_Missing(t *testing.T) {
	_, err := executor.ProbeAlignerVersion("no-such-aligner-here")

	var terr *executor.ToolError
	require.ErrorAs(t, err, &terr)
}
