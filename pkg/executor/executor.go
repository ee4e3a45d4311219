package executor

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/sirupsen/logrus"
)

// DefaultSampleInterval is how often resident memory is read while the
// tool runs.
const DefaultSampleInterval = 100 * time.Millisecond

// UnsampledSentinel is the single sample recorded for runs whose
// memory was not measured.
const UnsampledSentinel = -1

// Executor launches the screening tool and measures the run.
type Executor interface {
	// Invoke runs argv to completion, recording wall-clock timestamps
	// around the process lifetime. With sampleMemory the resident
	// memory of the process tree is sampled for the run's duration and
	// the sampler is fully drained before Invoke returns. Samples is
	// never empty: a run measured zero times carries the unsampled
	// sentinel. A non-zero exit is reported through ExitCode, not as
	// an error.
	Invoke(ctx context.Context, argv []string, sampleMemory bool) (*Invocation, error)
}

// Config for the executor.
type Config struct {
	// SampleInterval between memory reads. Zero means DefaultSampleInterval.
	SampleInterval time.Duration

	// ToolOutput receives the tool's stdout and stderr. Nil discards it.
	ToolOutput io.Writer
}

// Invocation is the measured outcome of one tool run.
type Invocation struct {
	ExitCode int
	Samples  []float64 // resident memory in MB, chronological
	Start    time.Time
	End      time.Time
}

// ToolError reports that the external binary could not be launched at
// all: missing, not executable, or otherwise unusable. No pair of the
// sweep can proceed past this.
type ToolError struct {
	Binary string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("screening tool %q unavailable: %v", e.Binary, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// New creates an executor.
func New(log logrus.FieldLogger, cfg *Config) Executor {
	if cfg == nil {
		cfg = &Config{}
	}

	if cfg.SampleInterval == 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}

	return &executor{
		log: log.WithField("component", "executor"),
		cfg: cfg,
	}
}

type executor struct {
	log logrus.FieldLogger
	cfg *Config
}

// Ensure interface compliance.
var _ Executor = (*executor)(nil)

func (e *executor) Invoke(ctx context.Context, argv []string, sampleMemory bool) (*Invocation, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command line")
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, &ToolError{Binary: argv[0], Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Deliberately not exec.CommandContext: a started run is always
	// waited on to completion so its measurements stay whole.
	cmd := exec.Command(path, argv[1:]...)
	if e.cfg.ToolOutput != nil {
		cmd.Stdout = e.cfg.ToolOutput
		cmd.Stderr = e.cfg.ToolOutput
	}

	e.log.WithField("cmd", argv).Debug("Launching screening tool")

	start := time.Now().UTC()

	if err := cmd.Start(); err != nil {
		return nil, &ToolError{Binary: argv[0], Err: err}
	}

	var (
		stop    chan struct{}
		sampled chan []float64
	)

	if sampleMemory {
		stop = make(chan struct{})
		sampled = make(chan []float64, 1)

		go e.sampleTree(cmd.Process.Pid, stop, sampled)
	}

	waitErr := cmd.Wait()
	end := time.Now().UTC()

	samples := []float64{UnsampledSentinel}
	if sampleMemory {
		close(stop)
		samples = <-sampled

		// A tool that exits before the first tick yields no
		// measurements; record that the same way an unsampled run is,
		// so downstream stats never see an empty slice.
		if len(samples) == 0 {
			samples = []float64{UnsampledSentinel}
		}
	}

	inv := &Invocation{
		Samples: samples,
		Start:   start,
		End:     end,
	}

	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("waiting for %s: %w", argv[0], waitErr)
		}

		inv.ExitCode = exitErr.ExitCode()
	}

	return inv, nil
}

// sampleTree reads the resident memory of pid and all its descendants
// until stop is closed, then delivers everything it collected. The
// result may be empty when the process exits before the first tick.
func (e *executor) sampleTree(pid int, stop <-chan struct{}, out chan<- []float64) {
	var samples []float64

	ticker := time.NewTicker(e.cfg.SampleInterval)
	defer ticker.Stop()

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		out <- samples

		return
	}

	for {
		select {
		case <-stop:
			out <- samples

			return
		case <-ticker.C:
			if mb, ok := treeResidentMB(proc); ok {
				samples = append(samples, mb)
			}
		}
	}
}

// treeResidentMB sums the RSS of proc and its descendants in MB.
// Processes that vanish mid-walk are skipped; the sample is dropped
// entirely only when the root itself is gone.
func treeResidentMB(proc *process.Process) (float64, bool) {
	mi, err := proc.MemoryInfo()
	if err != nil {
		return 0, false
	}

	total := mi.RSS

	children, err := proc.Children()
	if err == nil {
		for _, child := range children {
			total += subtreeRSS(child, 0)
		}
	}

	return float64(total) / (1024 * 1024), true
}

// maxTreeDepth bounds the descendant walk against pid-reuse cycles.
const maxTreeDepth = 32

func subtreeRSS(proc *process.Process, depth int) uint64 {
	if depth >= maxTreeDepth {
		return 0
	}

	var total uint64

	if mi, err := proc.MemoryInfo(); err == nil {
		total += mi.RSS
	}

	children, err := proc.Children()
	if err != nil {
		return total
	}

	for _, child := range children {
		total += subtreeRSS(child, depth+1)
	}

	return total
}
