package fastqscreen_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okulev/facs/pkg/fastqscreen"
)

func organismWith(unmapped, oneOne, multiOne, oneMulti, multiMulti float64) fastqscreen.Organism {
	return fastqscreen.Organism{
		Library: "phiX",
		Values: map[string]float64{
			fastqscreen.ColUnmappedPct:         unmapped,
			fastqscreen.ColOneHitOneLibPct:     oneOne,
			fastqscreen.ColMultiHitOneLibPct:   multiOne,
			fastqscreen.ColOneHitMultiLibPct:   oneMulti,
			fastqscreen.ColMultiHitMultiLibPct: multiMulti,
		},
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		org  fastqscreen.Organism
		want float64
	}{
		{"typical", organismWith(1.0, 50.0, 10.0, 5.0, 0.0), 0.65},
		{"fully unmapped", organismWith(100.0, 0, 0, 0, 0), 0.0},
		{"fully contaminated", organismWith(0, 100.0, 0, 0, 0), 1.0},
		// Multi-library multi-hit reads never count as contamination.
		{"multi-multi excluded", organismWith(1.0, 40.0, 0, 0, 59.0), 0.40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, err := fastqscreen.Normalize([]fastqscreen.Organism{tt.org})
			require.NoError(t, err)
			assert.InDelta(t, tt.want, rate, 1e-9)
		})
	}
}

func TestNormalize_UnitIntervalUnderBound(t *testing.T) {
	// Any stats satisfying the 101-point bound must normalize into
	// [0, 1.01]; slight overshoot of 1.0 is legitimate rounding.
	orgs := []fastqscreen.Organism{
		organismWith(0.0, 100.4, 0.3, 0.3, 0.0),
		organismWith(50.0, 25.0, 25.0, 1.0, 0.0),
		organismWith(101.0, 0, 0, 0, 0),
	}

	for _, org := range orgs {
		rate, err := fastqscreen.Normalize([]fastqscreen.Organism{org})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rate, 0.0)
		assert.LessOrEqual(t, rate, 1.01)
	}
}

func TestNormalize_FirstOrganismOnly(t *testing.T) {
	orgs := []fastqscreen.Organism{
		organismWith(1.0, 50.0, 10.0, 5.0, 0.0),
		organismWith(0.0, 99.0, 1.0, 0.0, 0.0),
	}

	rate, err := fastqscreen.Normalize(orgs)
	require.NoError(t, err)
	assert.InDelta(t, 0.65, rate, 1e-9)
}

func TestNormalize_ConsistencyBound(t *testing.T) {
	rate, err := fastqscreen.Normalize([]fastqscreen.Organism{
		organismWith(40.0, 50.0, 10.0, 5.0, 0.0), // 105 > 101
	})

	var cerr *fastqscreen.ConsistencyError
	require.ErrorAs(t, err, &cerr)
	assert.InDelta(t, 65.0, cerr.Contamination, 1e-9)
	assert.InDelta(t, 40.0, cerr.Unmapped, 1e-9)

	// The rate is still computed so callers can log it.
	assert.InDelta(t, 0.65, rate, 1e-9)

	assert.True(t, strings.Contains(cerr.Error(), "exceeds"))
}

func TestNormalize_Empty(t *testing.T) {
	_, err := fastqscreen.Normalize(nil)
	require.ErrorIs(t, err, fastqscreen.ErrNoOrganisms)
}
