package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	sqlCreateTableTmpl = `CREATE TABLE IF NOT EXISTS detections (
		"ID"           INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"Band"         TEXT NOT NULL,
		"GSCN"         INTEGER,
		"FrequencyHz"  INTEGER,
		"SCS"          INTEGER,
		"SSBCount"     INTEGER,
		"Time"         INTEGER
	);`
	sqlInsertDetectionTmpl = `INSERT INTO detections (
		Band,
		GSCN,
		FrequencyHz,
		SCS,
		SSBCount,
		Time
	) VALUES (?, ?, ?, ?, ?, ?);`
	sqlSelectBandTmpl = `SELECT
		Band, GSCN, FrequencyHz, SCS, SSBCount, Time
	FROM detections WHERE Band = ? ORDER BY ID ASC;`
	sqlSelectAllTmpl = `SELECT
		Band, GSCN, FrequencyHz, SCS, SSBCount, Time
	FROM detections ORDER BY ID ASC;`
)

// SQL stores detections in a SQL database. It works with both the
// sqlite3 and mysql drivers; a single INSERT per record keeps appends
// atomic.
type SQL struct {
	DB *sql.DB
}

// NewSQL creates the detections table if needed.
func NewSQL(db *sql.DB) (*SQL, error) {
	statement, err := db.Prepare(sqlCreateTableTmpl)
	if err != nil {
		return nil, fmt.Errorf("unable to create table: %s", err)
	}
	if _, err := statement.Exec(); err != nil {
		return nil, fmt.Errorf("unable to create table: %s", err)
	}
	return &SQL{DB: db}, nil
}

func (s *SQL) Append(ctx context.Context, d Detection) error {
	statement, err := s.DB.Prepare(sqlInsertDetectionTmpl)
	if err != nil {
		return err
	}
	if _, err := statement.ExecContext(ctx, d.Band, d.GSCN, d.FrequencyHz, d.SCS, d.SSBCount, d.Time.UnixMilli()); err != nil {
		return err
	}
	return nil
}

func scanDetections(rows *sql.Rows) ([]Detection, error) {
	var detections []Detection
	for rows.Next() {
		var d Detection
		var unixMilli int64
		if err := rows.Scan(&d.Band, &d.GSCN, &d.FrequencyHz, &d.SCS, &d.SSBCount, &unixMilli); err != nil {
			return nil, err
		}
		d.Time = time.UnixMilli(unixMilli).UTC()
		detections = append(detections, d)
	}
	return detections, rows.Err()
}

func (s *SQL) Load(ctx context.Context, band string) ([]Detection, error) {
	statement, err := s.DB.Prepare(sqlSelectBandTmpl)
	if err != nil {
		return nil, err
	}
	rows, err := statement.QueryContext(ctx, band)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDetections(rows)
}

func (s *SQL) All(ctx context.Context) (map[string][]Detection, error) {
	statement, err := s.DB.Prepare(sqlSelectAllTmpl)
	if err != nil {
		return nil, err
	}
	rows, err := statement.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	detections, err := scanDetections(rows)
	if err != nil {
		return nil, err
	}
	byBand := map[string][]Detection{}
	for _, d := range detections {
		byBand[d.Band] = append(byBand[d.Band], d)
	}
	return byBand, nil
}
