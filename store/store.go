// Package store persists SSB detection records, keyed by band and
// append-only.
package store

import (
	"context"
	"time"
)

// Detection is one confirmed SSB detection. Records are never mutated
// after creation.
type Detection struct {
	Band        string    `json:"band"`
	GSCN        int       `json:"gscn"`
	FrequencyHz int64     `json:"frequencyHz"`
	SCS         int       `json:"scs"`
	SSBCount    int       `json:"ssbCount"`
	Time        time.Time `json:"time"`
}

// Store is an append-only detection store. Append must be atomic: a
// crash mid-write leaves previously appended records intact.
type Store interface {
	Append(ctx context.Context, d Detection) error
	// Load returns the records for one band, in append order.
	Load(ctx context.Context, band string) ([]Detection, error)
	// All returns every record grouped by band.
	All(ctx context.Context) (map[string][]Detection, error)
}
