package nr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrequency(t *testing.T) {
	for _, tc := range []struct {
		gscn    int
		want    int64
		wantErr bool
	}{
		// Fine raster (<3 GHz), one case per M value.
		{gscn: 2, want: 1250e3},       // M=1, N=1
		{gscn: 4, want: 1450e3},       // M=5, N=1
		{gscn: 3, want: 1350e3},       // M=3, N=1
		{gscn: 5279, want: 2112050e3}, // n1 lower edge
		{gscn: 2318, want: 927650e3},  // n8
		// Coarse raster (3-24.25 GHz).
		{gscn: 7499, want: 3000e6},
		{gscn: 7846, want: 3499680e3}, // n78 mid-band
		{gscn: 8051, want: 3794880e3},
		// FR2.
		{gscn: 22256, want: 24250080e3},
		{gscn: 22257, want: 24267360e3},
		// Out of range.
		{gscn: 0, wantErr: true},
		{gscn: 1, wantErr: true},
		{gscn: 26640, wantErr: true},
		{gscn: -5, wantErr: true},
	} {
		got, err := Frequency(tc.gscn)
		if tc.wantErr {
			assert.Error(t, err, "GSCN %d", tc.gscn)
			continue
		}
		require.NoError(t, err, "GSCN %d", tc.gscn)
		assert.Equal(t, tc.want, got, "GSCN %d", tc.gscn)
	}
}

func TestComputeRasterBounds(t *testing.T) {
	for id, band := range Bands {
		entries, err := ComputeRaster(id, 1, 0)
		require.NoError(t, err, "band %s", id)

		prev := -1
		for _, e := range entries {
			assert.Greater(t, e.FrequencyHz, band.FreqLow, "band %s GSCN %d", id, e.GSCN)
			assert.Less(t, e.FrequencyHz, band.FreqHigh, "band %s GSCN %d", id, e.GSCN)
			assert.Greater(t, e.GSCN, prev, "band %s not strictly ascending", id)
			prev = e.GSCN
		}
	}
}

func TestComputeRasterSubsampling(t *testing.T) {
	full, err := ComputeRaster("n78", 1, 0)
	require.NoError(t, err)
	require.NotEmpty(t, full)

	sub, err := ComputeRaster("n78", 2, 20)
	require.NoError(t, err)
	require.LessOrEqual(t, len(sub), 20)

	// Every entry of the subsampled raster is every second entry of the
	// full raster, truncated.
	for i, e := range sub {
		assert.Equal(t, full[2*i], e, "index %d", i)
	}
}

func TestComputeRasterMaxCandidates(t *testing.T) {
	entries, err := ComputeRaster("n78", 1, 5)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	full, err := ComputeRaster("n78", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, full[:5], entries)
}

func TestComputeRasterInvalidBand(t *testing.T) {
	_, err := ComputeRaster("n999", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidBand)
}

func TestComputeRasterEmptyBand(t *testing.T) {
	// n26 has no SSB raster entry in the band tables.
	entries, err := ComputeRaster("n26", 1, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestComputeRasterMultiRange(t *testing.T) {
	// n5 has overlapping 15kHz and 30kHz ranges; the overlap must not
	// produce duplicate GSCNs, and the first (15kHz) range wins.
	entries, err := ComputeRaster("n5", 1, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	seen := map[int]bool{}
	for _, e := range entries {
		assert.False(t, seen[e.GSCN], "duplicate GSCN %d", e.GSCN)
		seen[e.GSCN] = true
		assert.Equal(t, 15, e.SCS)
	}
}

func TestInfo(t *testing.T) {
	info, err := Info("n78")
	require.NoError(t, err)
	assert.Equal(t, "n78 (3500 MHz)", info.Name)
	assert.Equal(t, 30, info.SCS)
	assert.Equal(t, 341, info.TotalGSCN)

	_, err = Info("bogus")
	assert.ErrorIs(t, err, ErrInvalidBand)
}

func TestFrequencyToBands(t *testing.T) {
	assert.Contains(t, FrequencyToBands(3500e6), "n78")
	// 870 MHz is inside both n5 and n26.
	matches := FrequencyToBands(870e6)
	assert.Contains(t, matches, "n5")
	assert.Contains(t, matches, "n26")
	assert.Empty(t, FrequencyToBands(10e6))
}

func TestValidGSCN(t *testing.T) {
	assert.True(t, ValidGSCN(7846))
	assert.False(t, ValidGSCN(1))
}
