package fastqscreen_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okulev/facs/pkg/fastqscreen"
)

func TestConf_Bowtie1IndexUnderReferenceRoot(t *testing.T) {
	conf := fastqscreen.Conf("/refs", "/data/reference/phiX", 4, fastqscreen.AlignerBowtie)

	lines := strings.Split(strings.TrimRight(conf, "\n"), "\n")
	require.Len(t, lines, 3)

	assert.Equal(t, "BOWTIE\tbowtie", lines[0])
	assert.Equal(t, "THREADS\t4", lines[1])

	wantIndex := filepath.Join("/refs", "phiX", "bowtie_index", "phiX")
	assert.Equal(t, "DATABASE\tphiX\t"+wantIndex+"\tBOWTIE", lines[2])
}

func TestConf_Bowtie2PathVerbatim(t *testing.T) {
	index := "/proj/genomes/Ecoli/eschColi_K12/bowtie2/eschColi_K12"
	conf := fastqscreen.Conf("/refs", index, 1, fastqscreen.AlignerBowtie2)

	lines := strings.Split(strings.TrimRight(conf, "\n"), "\n")
	require.Len(t, lines, 3)

	assert.Equal(t, "BOWTIE\tbowtie2", lines[0])
	assert.Equal(t, "DATABASE\teschColi_K12\t"+index+"\tBOWTIE2", lines[2])
}

func TestConf_SingleDatabaseLinePerReference(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		threads int
		aligner fastqscreen.Aligner
	}{
		{"bowtie relative ref", "dm3", 1, fastqscreen.AlignerBowtie},
		{"bowtie absolute ref", "/r/eschColi_K12", 8, fastqscreen.AlignerBowtie},
		{"bowtie2 index path", "/idx/phiX174/phiX", 2, fastqscreen.AlignerBowtie2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := fastqscreen.Conf("/refs", tt.ref, tt.threads, tt.aligner)

			var dbLines []string

			for _, line := range strings.Split(conf, "\n") {
				if strings.HasPrefix(line, "DATABASE\t") {
					dbLines = append(dbLines, line)
				}
			}

			require.Len(t, dbLines, 1)

			fields := strings.Split(dbLines[0], "\t")
			require.Len(t, fields, 4)
			assert.Equal(t, strings.ToUpper(string(tt.aligner)), fields[3])
		})
	}
}

func TestAligner_Valid(t *testing.T) {
	assert.True(t, fastqscreen.AlignerBowtie.Valid())
	assert.True(t, fastqscreen.AlignerBowtie2.Valid())
	assert.False(t, fastqscreen.Aligner("bwa").Valid())
}
