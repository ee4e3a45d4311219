package result_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okulev/facs/pkg/executor"
	"github.com/okulev/facs/pkg/fastqscreen"
	"github.com/okulev/facs/pkg/result"
)

func testParams() result.Params {
	begin := time.Date(2014, 2, 3, 12, 0, 0, 0, time.UTC)

	return result.Params{
		Report: &fastqscreen.Report{
			Version: "Fastq_screen version: 0.4.2",
			Organisms: []fastqscreen.Organism{{
				Library: "phiX",
				Values:  map[string]float64{fastqscreen.ColUnmappedPct: 1.0},
			}},
		},
		ContaminationRate: 0.65,
		Invocation: &executor.Invocation{
			ExitCode: 0,
			Samples:  []float64{10.0, 30.0, 20.0},
			Start:    begin,
			End:      begin.Add(90 * time.Second),
		},
		Threads:        2,
		Sample:         "simngs.random.100.fastq",
		Reference:      "phiX",
		AlignerVersion: "bowtie version 1.0.0",
	}
}

func TestAssemble(t *testing.T) {
	rep, err := result.Assemble(testParams())
	require.NoError(t, err)

	assert.Equal(t, "simngs.random.100.fastq", rep.Sample)
	assert.Equal(t, "phiX", rep.IndexName)
	assert.Equal(t, "Fastq_screen version: 0.4.2", rep.ToolVersion)
	assert.Equal(t, 2, rep.Threads)
	assert.InDelta(t, 0.65, rep.ContaminationRate, 1e-9)

	assert.InDelta(t, 30.0, rep.MaxMem, 1e-9)
	assert.InDelta(t, 10.0, rep.MinMem, 1e-9)
	assert.InDelta(t, 20.0, rep.MeanMem, 1e-9)

	assert.True(t, !rep.EndTimestamp.Before(rep.BeginTimestamp))
}

func TestAssemble_SentinelSamples(t *testing.T) {
	p := testParams()
	p.Invocation.Samples = []float64{executor.UnsampledSentinel}

	rep, err := result.Assemble(p)
	require.NoError(t, err)

	assert.InDelta(t, -1.0, rep.MaxMem, 1e-9)
	assert.InDelta(t, -1.0, rep.MinMem, 1e-9)
	assert.InDelta(t, -1.0, rep.MeanMem, 1e-9)
}

func TestAssemble_EmptySamples(t *testing.T) {
	p := testParams()
	p.Invocation.Samples = nil

	_, err := result.Assemble(p)
	require.ErrorIs(t, err, result.ErrNoSamples)
}

func TestRunReport_JSONDocumentKeys(t *testing.T) {
	rep, err := result.Assemble(testParams())
	require.NoError(t, err)

	data, err := json.Marshal(rep)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	for _, key := range []string{
		"sample", "begin_timestamp", "end_timestamp",
		"fastq_screen_version", "threads", "organisms",
		"contamination_rate", "fastq_screen_index",
		"max_mem", "min_mem", "mean_mem",
	} {
		assert.Contains(t, doc, key)
	}

	orgs, ok := doc["organisms"].([]any)
	require.True(t, ok)
	require.Len(t, orgs, 1)

	first, ok := orgs[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "phiX", first["Library"])
}

func TestRunReport_Key(t *testing.T) {
	rep, err := result.Assemble(testParams())
	require.NoError(t, err)

	key := rep.Key()
	assert.Contains(t, key, "simngs.random.100.fastq")
	assert.Contains(t, key, "phiX")
	assert.Contains(t, key, "2014-02-03")
}
