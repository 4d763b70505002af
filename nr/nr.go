// Package nr implements the 3GPP TS 38.104 synchronization raster:
// GSCN to frequency conversion and per-band candidate enumeration.
package nr

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidBand is returned when a band identifier is not part of the
// supported band table.
var ErrInvalidBand = errors.New("invalid band")

// GSCNRange is an inclusive range of GSCN values with the subcarrier
// spacing the raster uses in that range.
type GSCNRange struct {
	Min int
	Max int
	// SCS is the subcarrier spacing in kHz (15 or 30).
	SCS int
}

// Band describes a 5G NR band: its licensed frequency bounds and the
// GSCN ranges from the 3GPP band tables. A band may carry more than one
// range (e.g. n5 has a 15kHz and a 30kHz SSB case) or none at all (n26
// has no SSB raster entry in the tables).
type Band struct {
	ID       string
	Name     string
	FreqLow  int64 // Hz
	FreqHigh int64 // Hz
	Ranges   []GSCNRange
}

// Bands is the supported band table, based on 3GPP TS 38.101-1 and the
// local (AU) allocations.
var Bands = map[string]Band{
	"n1": {
		ID: "n1", Name: "n1 (2100 MHz)",
		FreqLow: 2110e6, FreqHigh: 2170e6,
		Ranges: []GSCNRange{{Min: 5279, Max: 5419, SCS: 15}},
	},
	"n3": {
		ID: "n3", Name: "n3 (1800 MHz)",
		FreqLow: 1805e6, FreqHigh: 1880e6,
		Ranges: []GSCNRange{{Min: 4517, Max: 4693, SCS: 15}},
	},
	"n5": {
		ID: "n5", Name: "n5 (850 MHz)",
		FreqLow: 869e6, FreqHigh: 894e6,
		Ranges: []GSCNRange{
			{Min: 2177, Max: 2230, SCS: 15},
			{Min: 2183, Max: 2224, SCS: 30},
		},
	},
	"n7": {
		ID: "n7", Name: "n7 (2600 MHz)",
		FreqLow: 2620e6, FreqHigh: 2690e6,
		Ranges: []GSCNRange{{Min: 6554, Max: 6718, SCS: 15}},
	},
	"n8": {
		ID: "n8", Name: "n8 (900 MHz)",
		FreqLow: 925e6, FreqHigh: 960e6,
		Ranges: []GSCNRange{{Min: 2318, Max: 2395, SCS: 15}},
	},
	"n26": {
		ID: "n26", Name: "n26 (850 MHz)",
		FreqLow: 859e6, FreqHigh: 894e6,
		// No SSB raster entry in the band tables.
		Ranges: nil,
	},
	"n28": {
		ID: "n28", Name: "n28 (700 MHz)",
		FreqLow: 758e6, FreqHigh: 803e6,
		Ranges: []GSCNRange{{Min: 1901, Max: 2002, SCS: 15}},
	},
	"n40": {
		ID: "n40", Name: "n40 (2300 MHz)",
		FreqLow: 2300e6, FreqHigh: 2400e6,
		Ranges: []GSCNRange{{Min: 5762, Max: 5989, SCS: 30}},
	},
	"n78": {
		ID: "n78", Name: "n78 (3500 MHz)",
		FreqLow: 3300e6, FreqHigh: 3800e6,
		Ranges: []GSCNRange{{Min: 7711, Max: 8051, SCS: 30}},
	},
}

// RasterEntry is a single synchronization raster candidate.
type RasterEntry struct {
	GSCN        int   `json:"gscn"`
	FrequencyHz int64 `json:"frequencyHz"`
	// SCS is the subcarrier spacing in kHz.
	SCS int `json:"scs"`
}

// Frequency converts a GSCN to its SSB center frequency in Hz per
// TS 38.104 section 5.4.3.1. The mapping has three disjoint regimes:
//   - GSCN 2..7498: fine raster below 3 GHz, f = N*1200kHz + M*50kHz
//     where M is derived from GSCN mod 3 (the standard's {1,3,5} set).
//   - GSCN 7499..22255: uniform 1.44 MHz steps from 3 GHz.
//   - GSCN 22256..26639: uniform 17.28 MHz steps from 24250.08 MHz (FR2).
//
// All resulting frequencies are exact in integer Hz.
func Frequency(gscn int) (int64, error) {
	switch {
	case gscn > 1 && gscn < 7499:
		var m int64
		switch gscn % 3 {
		case 2:
			m = 1
		case 1:
			m = 5
		default:
			m = 3
		}
		n := (int64(gscn)*2 - (m - 3)) / 6
		return n*1200e3 + m*50e3, nil
	case gscn >= 7499 && gscn < 22256:
		n := int64(gscn - 7499)
		return n*1440e3 + 3000e6, nil
	case gscn >= 22256 && gscn < 26640:
		n := int64(gscn - 22256)
		return n*17280e3 + 24250080e3, nil
	default:
		return 0, fmt.Errorf("GSCN %d outside valid ranges (2-7498, 7499-22255, 22256-26639)", gscn)
	}
}

// ValidGSCN reports whether a GSCN maps to a frequency at all.
func ValidGSCN(gscn int) bool {
	_, err := Frequency(gscn)
	return err == nil
}

// ComputeRaster returns the ordered raster candidates for a band.
// Candidates are ascending by GSCN, keep every stepSize-th GSCN of each
// range (stepSize < 1 is treated as 1) and the result is truncated to
// maxCandidates entries, lowest GSCN first (maxCandidates < 1 means no
// limit). Only GSCNs whose frequency falls strictly inside the band's
// licensed bounds are retained.
func ComputeRaster(band string, stepSize, maxCandidates int) ([]RasterEntry, error) {
	b, ok := Bands[band]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBand, band)
	}
	if stepSize < 1 {
		stepSize = 1
	}

	var retained []RasterEntry
	for _, r := range b.Ranges {
		for gscn := r.Min; gscn <= r.Max; gscn++ {
			freq, err := Frequency(gscn)
			if err != nil {
				continue
			}
			if freq <= b.FreqLow || freq >= b.FreqHigh {
				continue
			}
			retained = append(retained, RasterEntry{
				GSCN:        gscn,
				FrequencyHz: freq,
				SCS:         r.SCS,
			})
		}
	}
	// Ranges may overlap (n5); keep one entry per GSCN, earlier range
	// wins so the band's primary SCS applies.
	sort.SliceStable(retained, func(i, j int) bool { return retained[i].GSCN < retained[j].GSCN })
	dedup := retained[:0]
	for _, e := range retained {
		if len(dedup) > 0 && dedup[len(dedup)-1].GSCN == e.GSCN {
			continue
		}
		dedup = append(dedup, e)
	}
	retained = dedup

	// Subsample the retained candidates, then truncate keeping the
	// lowest GSCNs first.
	var entries []RasterEntry
	for i := 0; i < len(retained); i += stepSize {
		entries = append(entries, retained[i])
	}
	if maxCandidates > 0 && len(entries) > maxCandidates {
		entries = entries[:maxCandidates]
	}
	return entries, nil
}

// BandInfo is the band summary served to the UI.
type BandInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FreqLow   int64  `json:"freqLowHz"`
	FreqHigh  int64  `json:"freqHighHz"`
	SCS       int    `json:"scs"`
	TotalGSCN int    `json:"totalGscn"`
}

// Info returns the summary for one band or ErrInvalidBand.
func Info(band string) (BandInfo, error) {
	b, ok := Bands[band]
	if !ok {
		return BandInfo{}, fmt.Errorf("%w: %q", ErrInvalidBand, band)
	}
	info := BandInfo{
		ID:       b.ID,
		Name:     b.Name,
		FreqLow:  b.FreqLow,
		FreqHigh: b.FreqHigh,
	}
	for _, r := range b.Ranges {
		info.TotalGSCN += r.Max - r.Min + 1
	}
	if len(b.Ranges) > 0 {
		info.SCS = b.Ranges[0].SCS
	}
	return info, nil
}

// AllBands returns the summaries for every supported band, sorted by ID.
func AllBands() []BandInfo {
	infos := make([]BandInfo, 0, len(Bands))
	for id := range Bands {
		info, _ := Info(id)
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if len(infos[i].ID) != len(infos[j].ID) {
			return len(infos[i].ID) < len(infos[j].ID)
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// FrequencyToBands returns the IDs of all bands whose licensed bounds
// contain the given frequency.
func FrequencyToBands(freq int64) []string {
	var matches []string
	for _, info := range AllBands() {
		if freq >= info.FreqLow && freq <= info.FreqHigh {
			matches = append(matches, info.ID)
		}
	}
	return matches
}
