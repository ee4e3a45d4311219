package fastqscreen

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Column headers of the screen report that carry meaning beyond
// pass-through. The parser keeps every column it sees; these are the
// ones the rest of the pipeline reads back.
const (
	ColLibrary             = "Library"
	ColReadsProcessed      = "#Reads_processed"
	ColUnmappedPct         = "%Unmapped"
	ColOneHitOneLibPct     = "%One_hit_one_library"
	ColMultiHitOneLibPct   = "%Multiple_hits_one_library"
	ColOneHitMultiLibPct   = "%One_hit_multiple_libraries"
	ColMultiHitMultiLibPct = "%Multiple_hits_multiple_libraries"
)

// ParseError describes a malformed screen report.
type ParseError struct {
	Row int // 1-based row number in the report
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("screen report row %d: %s", e.Row, e.Msg)
}

// Organism holds one reference library's screening statistics, keyed
// by the report's own column headers.
type Organism struct {
	Library string
	Values  map[string]float64
}

// MarshalJSON flattens the organism into a single object so the
// document keeps the tool's original column names as keys.
func (o Organism) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(o.Values)+1)
	flat[ColLibrary] = o.Library

	for k, v := range o.Values {
		flat[k] = v
	}

	return json.Marshal(flat)
}

// Report is the parsed form of one fastq_screen output file.
type Report struct {
	Version   string
	Header    []string
	Organisms []Organism
}

// ParseReport reads a tab-delimited screen report. Row 1 is the tool's
// version line, row 2 the column header, and each following row one
// reference library. A blank row terminates parsing; anything after it
// is ignored.
//
// The library column of every row is overridden with referenceID: the
// tool prints the short name from its config file there, and the
// caller-side reference identity is the one reports are keyed by.
func ParseReport(r io.Reader, referenceID string) (*Report, error) {
	sc := bufio.NewScanner(r)

	version, ok := scanRow(sc)
	if !ok {
		return nil, &ParseError{Row: 1, Msg: "missing version line"}
	}

	headerLine, ok := scanRow(sc)
	if !ok {
		return nil, &ParseError{Row: 2, Msg: "missing column header"}
	}

	header := strings.Split(headerLine, "\t")

	rep := &Report{
		Version: version,
		Header:  header,
	}

	for row := 3; ; row++ {
		line, ok := scanRow(sc)
		if !ok {
			break
		}

		fields := strings.Split(line, "\t")
		if len(fields) != len(header) {
			return nil, &ParseError{
				Row: row,
				Msg: fmt.Sprintf("has %d columns, header has %d", len(fields), len(header)),
			}
		}

		org := Organism{
			Library: referenceID,
			Values:  make(map[string]float64, len(header)-1),
		}

		for i := 1; i < len(header); i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, &ParseError{
					Row: row,
					Msg: fmt.Sprintf("column %q: invalid value %q", header[i], fields[i]),
				}
			}

			org.Values[header[i]] = v
		}

		rep.Organisms = append(rep.Organisms, org)
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading screen report: %w", err)
	}

	return rep, nil
}

// scanRow returns the next row, reporting false on end of stream or on
// a blank row (the tool pads the table with an empty line before its
// hit-free summary, which terminates the parse).
func scanRow(sc *bufio.Scanner) (string, bool) {
	if !sc.Scan() {
		return "", false
	}

	line := strings.TrimRight(sc.Text(), "\r")
	if strings.TrimSpace(line) == "" {
		return "", false
	}

	return line, true
}
