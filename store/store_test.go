package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func testDetection(band string, gscn int) Detection {
	return Detection{
		Band:        band,
		GSCN:        gscn,
		FrequencyHz: 3499680000,
		SCS:         30,
		SSBCount:    150,
		Time:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newSQLStore(t *testing.T) *SQL {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s, err := NewSQL(db)
	require.NoError(t, err)
	return s
}

func testStoreRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, testDetection("n78", 7846)))
	require.NoError(t, s.Append(ctx, testDetection("n78", 7900)))
	require.NoError(t, s.Append(ctx, testDetection("n40", 5800)))

	got, err := s.Load(ctx, "n78")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, testDetection("n78", 7846), got[0])
	assert.Equal(t, testDetection("n78", 7900), got[1])

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all["n78"], 2)
	assert.Len(t, all["n40"], 1)

	empty, err := s.Load(ctx, "n1")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLRoundTrip(t *testing.T) {
	testStoreRoundTrip(t, newSQLStore(t))
}

func TestCSVRoundTrip(t *testing.T) {
	testStoreRoundTrip(t, &CSV{Path: filepath.Join(t.TempDir(), "detections.csv")})
}

func TestCSVLoadMissingFile(t *testing.T) {
	c := &CSV{Path: filepath.Join(t.TempDir(), "never-written.csv")}
	got, err := c.Load(context.Background(), "n78")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCSVAppendOnly(t *testing.T) {
	ctx := context.Background()
	c := &CSV{Path: filepath.Join(t.TempDir(), "detections.csv")}

	require.NoError(t, c.Append(ctx, testDetection("n78", 7846)))
	first, err := c.Load(ctx, "n78")
	require.NoError(t, err)

	require.NoError(t, c.Append(ctx, testDetection("n78", 7900)))
	second, err := c.Load(ctx, "n78")
	require.NoError(t, err)

	// Earlier records are untouched by later appends.
	require.Len(t, second, 2)
	assert.Equal(t, first[0], second[0])
}
