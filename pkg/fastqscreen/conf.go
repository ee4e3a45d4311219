package fastqscreen

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Aligner selects which bowtie generation fastq_screen drives.
type Aligner string

const (
	AlignerBowtie  Aligner = "bowtie"
	AlignerBowtie2 Aligner = "bowtie2"
)

// Valid reports whether the aligner is one fastq_screen understands.
func (a Aligner) Valid() bool {
	return a == AlignerBowtie || a == AlignerBowtie2
}

// Conf renders a fastq_screen configuration for a single reference.
//
// The output is the tool's line-oriented format: a global block naming
// the aligner and thread count, followed by one DATABASE entry for the
// reference. The aligner name is lower-case in the global block and
// upper-case in the DATABASE line, as the tool's grammar requires.
//
// For bowtie the index path is resolved under referenceRoot using the
// reference's basename; bowtie2 callers supply a fully resolved index
// path which is used verbatim.
func Conf(referenceRoot, reference string, threads int, aligner Aligner) string {
	short := filepath.Base(reference)

	var index string
	if aligner == AlignerBowtie2 {
		index = reference
	} else {
		index = filepath.Join(referenceRoot, short, string(aligner)+"_index", short)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "BOWTIE\t%s\n", aligner)
	fmt.Fprintf(&b, "THREADS\t%d\n", threads)
	fmt.Fprintf(&b, "DATABASE\t%s\t%s\t%s\n", short, index, strings.ToUpper(string(aligner)))

	return b.String()
}
