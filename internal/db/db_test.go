package db

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/arbiter"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/progress"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "gesture.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return fixed }
	return db
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busy, sync, temp, fk int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busy))
	require.NoError(t, db.QueryRow("PRAGMA synchronous").Scan(&sync))
	require.NoError(t, db.QueryRow("PRAGMA temp_store").Scan(&temp))
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 5000, busy)
	assert.Equal(t, 1, sync)
	assert.Equal(t, 2, temp)
	assert.Equal(t, 1, fk)
}

func TestMigrationsReachLatest(t *testing.T) {
	db := newTestDB(t)

	status, err := db.MigrationStatus()
	require.NoError(t, err)
	assert.True(t, status.UpToDate(), status.String())
	assert.Equal(t, uint(3), status.Latest)

	require.NoError(t, db.MigrateDown())
	status, err = db.MigrationStatus()
	require.NoError(t, err)
	assert.False(t, status.UpToDate())
	assert.Equal(t, uint(2), status.Current)

	require.NoError(t, db.MigrateUp())
	require.NoError(t, db.MigrateUp())
	v, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(3), v)
	assert.False(t, dirty)
}

func TestOpenDBWithoutMigrations(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer db.Close()

	v, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)
}

func TestProgressStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore(newTestDB(t))

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, progress.ErrNotFound)

	s := progress.NewState()
	s.TrainProgress[1] = 0.6
	s.EnableCustom(gesture.Indexed(gesture.Heart))
	s.EnableCustom(gesture.Named("wave", gesture.Profile{Name: "demo", Sub: "a"}))
	s.IncUserGestureCount(gesture.Heart)
	s.IncCommonGestureCount(gesture.Down)
	s.IncCommonGestureCount(gesture.Down)
	s.IncFailedGestureCount(0)
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("loaded state mismatch (-want +got):\n%s", diff)
	}

	// a second save replaces rather than merges
	s2 := progress.NewState()
	s2.IncFailedGestureCount(0)
	require.NoError(t, store.Save(ctx, s2))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.UseUserGesture)
	assert.Empty(t, got.TrainProgress)
	assert.Equal(t, int64(1), got.FailedGestureCount[0])
	assert.Equal(t, int64(1), got.Total())
}

func sample(id gesture.SampleID, n int) gesture.Sample {
	s := gesture.Sample{ID: id}
	for i := 0; i < n; i++ {
		s.Entries = append(s.Entries, gesture.NewEntry(16, float32(i), float32(id), -1.5))
	}
	return s
}

func TestExemplarStoreReplacesPerLabel(t *testing.T) {
	ctx := context.Background()
	store := NewExemplarStore(newTestDB(t))

	heart := gesture.Indexed(gesture.Heart)
	waveA := gesture.Named("wave", gesture.Profile{Name: "demo", Sub: "a"})
	waveB := gesture.Named("wave", gesture.Profile{Name: "demo", Sub: "b"})

	require.NoError(t, store.SaveExemplars(ctx, heart, []gesture.Sample{sample(1, 3), sample(2, 4)}))
	require.NoError(t, store.SaveExemplars(ctx, waveA, []gesture.Sample{sample(3, 2)}))
	require.NoError(t, store.SaveExemplars(ctx, waveB, []gesture.Sample{sample(4, 2)}))
	require.NoError(t, store.SaveExemplars(ctx, heart, []gesture.Sample{sample(5, 1), sample(6, 2), sample(7, 3)}))

	got, err := store.LoadExemplars(ctx)
	require.NoError(t, err)
	want := map[gesture.Label][]gesture.Sample{
		heart: {sample(5, 1), sample(6, 2), sample(7, 3)},
		waveA: {sample(3, 2)},
		waveB: {sample(4, 2)},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(gesture.Label{})); diff != "" {
		t.Errorf("exemplars mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, store.SaveExemplars(ctx, waveA, nil))
	got, err = store.LoadExemplars(ctx)
	require.NoError(t, err)
	assert.NotContains(t, got, waveA)
	assert.Len(t, got, 2)

	var orphans int
	require.NoError(t, store.db.QueryRow(
		`SELECT COUNT(*) FROM exemplars WHERE set_id NOT IN (SELECT set_id FROM exemplar_sets)`).Scan(&orphans))
	assert.Zero(t, orphans)

	assert.Error(t, store.SaveExemplars(ctx, gesture.Label{}, []gesture.Sample{sample(8, 1)}))
}

func TestRecordIdentification(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.RecordIdentification(ctx, gesture.ModeSmartIdentify, arbiter.Decision{
		SampleID:        7,
		Label:           gesture.Indexed(gesture.Heart),
		Winner:          gesture.RecognizerCustom,
		CommonLabel:     gesture.Indexed(gesture.Down),
		CustomLabel:     gesture.Indexed(gesture.Heart),
		ConsultedCustom: true,
	}))
	require.NoError(t, db.RecordIdentification(ctx, gesture.ModeSmartIdentify, arbiter.Decision{SampleID: 8}))

	rows, err := db.RecentIdentifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(8), rows[0].SampleID)
	assert.Empty(t, rows[0].Label)
	assert.Empty(t, rows[0].Winner)

	first := rows[1]
	assert.Equal(t, "SmartIdentify", first.Mode)
	assert.Equal(t, "Heart", first.Label)
	assert.Equal(t, "custom", first.Winner)
	assert.Equal(t, "Down", first.CommonLabel)
	assert.False(t, first.CommonPassed)
	assert.True(t, first.ConsultedCustom)
	assert.Equal(t, db.now(), first.RecordedAt)
}

func TestBackupRoute(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.RecordIdentification(context.Background(), gesture.ModeSmartIdentify, arbiter.Decision{SampleID: 1}))

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "gesture-backup-")
	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
}
