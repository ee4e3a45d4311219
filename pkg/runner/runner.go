// Package runner drives the benchmark sweep: every fastq sample is
// screened against every reference, one pair at a time, and each
// successful lap yields a run report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"

	"github.com/okulev/facs/pkg/executor"
	"github.com/okulev/facs/pkg/fastqscreen"
	"github.com/okulev/facs/pkg/result"
)

// confFileName is the per-run tool configuration written into the
// working directory.
const confFileName = "fastq_screen.conf"

// Runner executes benchmark sweeps.
type Runner interface {
	// Sweep runs the full sample x reference matrix and returns the
	// reports of the laps that completed. Pairs that fail recoverably
	// are logged and skipped; a missing tool or an internal
	// inconsistency aborts the sweep.
	Sweep(ctx context.Context) ([]*result.RunReport, error)
}

// Config contains runner configuration.
type Config struct {
	// Binary is the fastq_screen executable.
	Binary string

	// AlignerBinary is probed once for version provenance. Empty skips
	// the probe and leaves reports without an aligner version.
	AlignerBinary string

	// FastqDir is scanned for *.fastq / *.fq sample files.
	FastqDir string

	// ReferenceDir holds one subdirectory per reference (bowtie only).
	ReferenceDir string

	// Bowtie2Indexes lists resolved index paths (bowtie2 only).
	Bowtie2Indexes []string

	// WorkDir receives tool output and is wiped between laps.
	WorkDir string

	Threads      int
	Aligner      fastqscreen.Aligner
	SampleMemory bool
}

type runner struct {
	log  logrus.FieldLogger
	cfg  *Config
	exec executor.Executor
}

var _ Runner = (*runner)(nil)

// New creates a new benchmark runner.
func New(log logrus.FieldLogger, cfg *Config, exec executor.Executor) Runner {
	return &runner{
		log:  log.WithField("component", "runner"),
		cfg:  cfg,
		exec: exec,
	}
}

// reference is one screening target. For bowtie the conf layer derives
// the index path from the reference root and name; for bowtie2 the
// configured index path is passed through verbatim.
type reference struct {
	id   string
	conf string
}

func (r *runner) Sweep(ctx context.Context) ([]*result.RunReport, error) {
	alignerVersion := ""

	if r.cfg.AlignerBinary != "" {
		version, err := executor.ProbeAlignerVersion(r.cfg.AlignerBinary)
		if err != nil {
			return nil, fmt.Errorf("probing aligner version: %w", err)
		}

		alignerVersion = version

		r.log.WithField("aligner_version", alignerVersion).Info("Probed aligner")
	}

	fastqs, err := r.discoverFastqs()
	if err != nil {
		return nil, err
	}

	refs, err := r.discoverReferences()
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"samples":    len(fastqs),
		"references": len(refs),
		"aligner":    string(r.cfg.Aligner),
	}).Info("Starting benchmark sweep")

	if err := r.cleanWorkDir(); err != nil {
		return nil, err
	}

	reports := make([]*result.RunReport, 0, len(fastqs)*len(refs))

	for _, fastq := range fastqs {
		for _, ref := range refs {
			if ctx.Err() != nil {
				return reports, ctx.Err()
			}

			report, err := r.lap(ctx, fastq, ref, alignerVersion)

			// The working directory is wiped after every lap so tool
			// output from one pair never leaks into the next.
			if cerr := r.cleanWorkDir(); cerr != nil {
				return reports, cerr
			}

			if err != nil {
				return reports, err
			}

			if report != nil {
				reports = append(reports, report)
			}
		}
	}

	r.log.WithField("reports", len(reports)).Info("Benchmark sweep complete")

	return reports, nil
}

// lap benchmarks one sample/reference pair. A nil report with a nil
// error means the pair was skipped.
func (r *runner) lap(ctx context.Context, fastq string, ref reference, alignerVersion string) (*result.RunReport, error) {
	sample := filepath.Base(fastq)

	log := r.log.WithFields(logrus.Fields{
		"sample":    sample,
		"reference": ref.id,
	})

	confPath := filepath.Join(r.cfg.WorkDir, confFileName)
	conf := fastqscreen.Conf(r.cfg.ReferenceDir, ref.conf, r.cfg.Threads, r.cfg.Aligner)

	if err := os.WriteFile(confPath, []byte(conf), 0o644); err != nil {
		return nil, fmt.Errorf("writing tool config: %w", err)
	}

	argv := []string{
		r.cfg.Binary,
		"--aligner", string(r.cfg.Aligner),
		"--outdir", r.cfg.WorkDir,
		"--conf", confPath,
		fastq,
	}

	inv, err := r.exec.Invoke(ctx, argv, r.cfg.SampleMemory)
	if err != nil {
		// A missing or unlaunchable tool will fail every remaining
		// pair the same way.
		return nil, fmt.Errorf("invoking %s: %w", r.cfg.Binary, err)
	}

	if inv.ExitCode != 0 {
		log.WithField("exit_code", inv.ExitCode).Warn("Tool exited non-zero, skipping pair")

		return nil, nil
	}

	artifact := filepath.Join(r.cfg.WorkDir, artifactName(sample))

	f, err := os.Open(artifact)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("No screen output produced, skipping pair")

			return nil, nil
		}

		return nil, fmt.Errorf("opening screen output: %w", err)
	}
	defer f.Close()

	screen, err := fastqscreen.ParseReport(f, ref.id)
	if err != nil {
		var perr *fastqscreen.ParseError
		if errors.As(err, &perr) {
			log.WithError(perr).Warn("Malformed screen output, skipping pair")

			return nil, nil
		}

		return nil, fmt.Errorf("parsing screen output: %w", err)
	}

	rate, err := fastqscreen.Normalize(screen.Organisms)
	if err != nil {
		var cerr *fastqscreen.ConsistencyError
		if errors.As(err, &cerr) {
			// The tool's own percentages don't add up; the pair's data
			// can't be trusted.
			log.WithError(cerr).Warn("Inconsistent screen percentages, skipping pair")

			return nil, nil
		}

		return nil, fmt.Errorf("normalizing contamination: %w", err)
	}

	report, err := result.Assemble(result.Params{
		Report:            screen,
		ContaminationRate: rate,
		Invocation:        inv,
		Threads:           r.cfg.Threads,
		Sample:            sample,
		Reference:         ref.id,
		AlignerVersion:    alignerVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("assembling report: %w", err)
	}

	log.WithFields(logrus.Fields{
		"contamination_rate": report.ContaminationRate,
		"duration":           report.EndTimestamp.Sub(report.BeginTimestamp).String(),
		"peak_mem":           humanMem(report.MaxMem),
	}).Info("Benchmark lap complete")

	return report, nil
}

// discoverFastqs globs the sample directory for read files, covering
// both the .fastq and .fq extensions.
func (r *runner) discoverFastqs() ([]string, error) {
	fastqs, err := filepath.Glob(filepath.Join(r.cfg.FastqDir, "*.f*q"))
	if err != nil {
		return nil, fmt.Errorf("globbing fastq dir: %w", err)
	}

	if len(fastqs) == 0 {
		return nil, fmt.Errorf("no fastq files found in %s", r.cfg.FastqDir)
	}

	sort.Strings(fastqs)

	return fastqs, nil
}

// discoverReferences resolves the screening targets for the configured
// aligner.
func (r *runner) discoverReferences() ([]reference, error) {
	if r.cfg.Aligner == fastqscreen.AlignerBowtie2 {
		refs := make([]reference, 0, len(r.cfg.Bowtie2Indexes))

		for _, index := range r.cfg.Bowtie2Indexes {
			refs = append(refs, reference{id: filepath.Base(index), conf: index})
		}

		sort.Slice(refs, func(i, j int) bool { return refs[i].id < refs[j].id })

		if len(refs) == 0 {
			return nil, fmt.Errorf("no bowtie2 indexes configured")
		}

		return refs, nil
	}

	entries, err := os.ReadDir(r.cfg.ReferenceDir)
	if err != nil {
		return nil, fmt.Errorf("reading reference dir: %w", err)
	}

	refs := make([]reference, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		refs = append(refs, reference{id: entry.Name(), conf: entry.Name()})
	}

	if len(refs) == 0 {
		return nil, fmt.Errorf("no reference subdirectories found in %s", r.cfg.ReferenceDir)
	}

	return refs, nil
}

// cleanWorkDir wipes and recreates the working directory.
func (r *runner) cleanWorkDir() error {
	if err := os.RemoveAll(r.cfg.WorkDir); err != nil {
		return fmt.Errorf("cleaning workdir: %w", err)
	}

	if err := os.MkdirAll(r.cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("recreating workdir: %w", err)
	}

	return nil
}

// artifactName derives the tool's output file name from the sample
// file name: the final extension is replaced with _screen.txt.
func artifactName(sample string) string {
	stem := strings.TrimSuffix(sample, filepath.Ext(sample))

	return stem + "_screen.txt"
}

// humanMem renders a sampled megabyte value for logs.
func humanMem(mb float64) string {
	if mb < 0 {
		return "unsampled"
	}

	return units.BytesSize(mb * units.MiB)
}
