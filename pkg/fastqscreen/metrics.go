package fastqscreen

import (
	"errors"
	"fmt"
)

// ErrNoOrganisms is returned when a report carries no library rows to
// derive a contamination rate from.
var ErrNoOrganisms = errors.New("screen report contains no organisms")

// contaminationSlack bounds mapped+unmapped percentages. The tool
// rounds each category independently, so the sum can legitimately
// exceed 100 by a little; one point of slack is a heuristic tolerance,
// not an exact guarantee.
const contaminationSlack = 101.0

// ConsistencyError signals that the mapped and unmapped percentages of
// the first library do not add up, pointing at a data-quality problem
// in the tool's output rather than a usage error.
type ConsistencyError struct {
	Contamination float64 // percentage points, pre-rescale
	Unmapped      float64
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf(
		"contamination %.2f%% + unmapped %.2f%% exceeds %.0f%%",
		e.Contamination, e.Unmapped, contaminationSlack,
	)
}

// Normalize derives the aggregate contamination rate from the first
// organism and rescales it to the unit interval so results are
// comparable across screening tools.
//
// Only the single-library and one-hit-multiple-library categories
// count as contamination; reads hitting multiple libraries multiple
// times are excluded. Runs screen one reference at a time, so only the
// first organism is consulted; any further organisms ride along in the
// report untouched.
//
// When the consistency bound is exceeded the rate is still returned
// alongside a *ConsistencyError so callers can log and skip.
func Normalize(organisms []Organism) (float64, error) {
	if len(organisms) == 0 {
		return 0, ErrNoOrganisms
	}

	first := organisms[0]

	raw := first.Values[ColOneHitOneLibPct] +
		first.Values[ColMultiHitOneLibPct] +
		first.Values[ColOneHitMultiLibPct]

	rate := raw / 100.0

	if unmapped := first.Values[ColUnmappedPct]; raw+unmapped > contaminationSlack {
		return rate, &ConsistencyError{Contamination: raw, Unmapped: unmapped}
	}

	return rate, nil
}
