// Package result assembles the outgoing benchmark report record.
package result

import (
	"errors"
	"fmt"
	"time"

	"github.com/okulev/facs/pkg/executor"
	"github.com/okulev/facs/pkg/fastqscreen"
)

// ErrNoSamples flags an invocation with an empty sample slice. The
// executor always delivers at least the unsampled sentinel, so hitting
// this is an internal bug, not a user-facing condition.
var ErrNoSamples = errors.New("invocation carries no memory samples")

// RunReport is the normalized record of one benchmark run. The JSON
// keys follow the document schema downstream dashboards already
// consume. A report is immutable once assembled.
type RunReport struct {
	Sample            string                 `json:"sample"`
	BeginTimestamp    time.Time              `json:"begin_timestamp"`
	EndTimestamp      time.Time              `json:"end_timestamp"`
	ToolVersion       string                 `json:"fastq_screen_version"`
	AlignerVersion    string                 `json:"aligner_version,omitempty"`
	Threads           int                    `json:"threads"`
	Organisms         []fastqscreen.Organism `json:"organisms"`
	ContaminationRate float64                `json:"contamination_rate"`
	IndexName         string                 `json:"fastq_screen_index"`
	MaxMem            float64                `json:"max_mem"`
	MinMem            float64                `json:"min_mem"`
	MeanMem           float64                `json:"mean_mem"`
}

// Key identifies a report for storage and delivery. Reports are keyed
// by what was screened, against which index, and when.
func (r *RunReport) Key() string {
	return fmt.Sprintf("%s:%s:%s",
		r.Sample, r.IndexName, r.BeginTimestamp.Format(time.RFC3339Nano))
}

// Params carries everything Assemble merges into a report.
type Params struct {
	Report            *fastqscreen.Report
	ContaminationRate float64
	Invocation        *executor.Invocation
	Threads           int
	Sample            string
	Reference         string // reference identifier, becomes the index name
	AlignerVersion    string
}

// Assemble merges parser output, normalized metrics, timing and
// resource samples into one report. Pure aggregation; the only failure
// mode is an empty sample slice.
func Assemble(p Params) (*RunReport, error) {
	samples := p.Invocation.Samples
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	maxMem, minMem := samples[0], samples[0]
	sum := 0.0

	for _, mb := range samples {
		if mb > maxMem {
			maxMem = mb
		}

		if mb < minMem {
			minMem = mb
		}

		sum += mb
	}

	return &RunReport{
		Sample:            p.Sample,
		BeginTimestamp:    p.Invocation.Start,
		EndTimestamp:      p.Invocation.End,
		ToolVersion:       p.Report.Version,
		AlignerVersion:    p.AlignerVersion,
		Threads:           p.Threads,
		Organisms:         p.Report.Organisms,
		ContaminationRate: p.ContaminationRate,
		IndexName:         p.Reference,
		MaxMem:            maxMem,
		MinMem:            minMem,
		MeanMem:           sum / float64(len(samples)),
	}, nil
}
