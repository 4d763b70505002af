package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// CSV stores detections as one line per record in a single file. Lines
// are written with O_APPEND in one Write call, so a crash mid-write
// never clobbers earlier records.
type CSV struct {
	Path string

	mu sync.Mutex
}

func (c *CSV) Append(ctx context.Context, d Detection) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("unable to open CSV store %q: %s", c.Path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		d.Band,
		fmt.Sprintf("%d", d.GSCN),
		fmt.Sprintf("%d", d.FrequencyHz),
		fmt.Sprintf("%d", d.SCS),
		fmt.Sprintf("%d", d.SSBCount),
		fmt.Sprintf("%d", d.Time.UnixMilli()),
	}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (c *CSV) readAll() ([]Detection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	var detections []Detection
	for _, row := range rows {
		if len(row) != 6 {
			continue
		}
		gscn, err := strconv.Atoi(row[1])
		if err != nil {
			continue
		}
		freq, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			continue
		}
		scs, err := strconv.Atoi(row[3])
		if err != nil {
			continue
		}
		count, err := strconv.Atoi(row[4])
		if err != nil {
			continue
		}
		unixMilli, err := strconv.ParseInt(row[5], 10, 64)
		if err != nil {
			continue
		}
		detections = append(detections, Detection{
			Band:        row[0],
			GSCN:        gscn,
			FrequencyHz: freq,
			SCS:         scs,
			SSBCount:    count,
			Time:        time.UnixMilli(unixMilli).UTC(),
		})
	}
	return detections, nil
}

func (c *CSV) Load(ctx context.Context, band string) ([]Detection, error) {
	all, err := c.readAll()
	if err != nil {
		return nil, err
	}
	var detections []Detection
	for _, d := range all {
		if d.Band == band {
			detections = append(detections, d)
		}
	}
	return detections, nil
}

func (c *CSV) All(ctx context.Context) (map[string][]Detection, error) {
	all, err := c.readAll()
	if err != nil {
		return nil, err
	}
	byBand := map[string][]Detection{}
	for _, d := range all {
		byBand[d.Band] = append(byBand[d.Band], d)
	}
	return byBand, nil
}
