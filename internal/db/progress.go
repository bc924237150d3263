package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/banshee-data/gesture.arbiter/internal/gesture/progress"
)

const (
	kindIndexed = "indexed"
	kindNamed   = "named"

	outcomeUser   = "user"
	outcomeCommon = "common"
	outcomeFailed = "failed"
)

// ProgressStore keeps progress.State in the train_progress,
// custom_gestures and gesture_counts tables.
type ProgressStore struct {
	db *DB
}

func NewProgressStore(db *DB) *ProgressStore { return &ProgressStore{db: db} }

// Load returns progress.ErrNotFound until the first Save.
func (p *ProgressStore) Load(ctx context.Context) (*progress.State, error) {
	var savedAt int64
	err := p.db.QueryRowContext(ctx, `SELECT saved_at FROM progress_meta WHERE id = 1`).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, progress.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read progress_meta: %w", err)
	}

	s := progress.NewState()
	if err := p.loadTrainProgress(ctx, s); err != nil {
		return nil, err
	}
	if err := p.loadCustom(ctx, s); err != nil {
		return nil, err
	}
	if err := p.loadCounts(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *ProgressStore) loadTrainProgress(ctx context.Context, s *progress.State) error {
	rows, err := p.db.QueryContext(ctx, `SELECT label_index, progress FROM train_progress`)
	if err != nil {
		return fmt.Errorf("read train_progress: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var idx int
		var v float64
		if err := rows.Scan(&idx, &v); err != nil {
			return err
		}
		s.TrainProgress[idx] = v
	}
	return rows.Err()
}

func (p *ProgressStore) loadCustom(ctx context.Context, s *progress.State) error {
	rows, err := p.db.QueryContext(ctx, `SELECT kind, label_key FROM custom_gestures`)
	if err != nil {
		return fmt.Errorf("read custom_gestures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, key string
		if err := rows.Scan(&kind, &key); err != nil {
			return err
		}
		switch kind {
		case kindIndexed:
			idx, err := strconv.Atoi(key)
			if err != nil {
				return fmt.Errorf("custom_gestures: bad index %q", key)
			}
			s.UseUserGesture[idx] = true
		case kindNamed:
			s.UsePredefinedUserGesture[key] = true
		}
	}
	return rows.Err()
}

func (p *ProgressStore) loadCounts(ctx context.Context, s *progress.State) error {
	rows, err := p.db.QueryContext(ctx, `SELECT label_index, outcome, count FROM gesture_counts`)
	if err != nil {
		return fmt.Errorf("read gesture_counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var idx int
		var outcome string
		var n int64
		if err := rows.Scan(&idx, &outcome, &n); err != nil {
			return err
		}
		switch outcome {
		case outcomeUser:
			s.UserGestureCount[idx] = n
		case outcomeCommon:
			s.CommonGestureCount[idx] = n
		case outcomeFailed:
			s.FailedGestureCount[idx] = n
		}
	}
	return rows.Err()
}

// Save replaces the stored state in one transaction.
func (p *ProgressStore) Save(ctx context.Context, s *progress.State) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"train_progress", "custom_gestures", "gesture_counts"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for idx, v := range s.TrainProgress {
		if _, err = tx.ExecContext(ctx, `INSERT INTO train_progress (label_index, progress) VALUES (?, ?)`, idx, v); err != nil {
			return fmt.Errorf("insert train_progress: %w", err)
		}
	}
	for idx, on := range s.UseUserGesture {
		if !on {
			continue
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO custom_gestures (kind, label_key) VALUES (?, ?)`, kindIndexed, strconv.Itoa(idx)); err != nil {
			return fmt.Errorf("insert custom_gestures: %w", err)
		}
	}
	for name, on := range s.UsePredefinedUserGesture {
		if !on {
			continue
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO custom_gestures (kind, label_key) VALUES (?, ?)`, kindNamed, name); err != nil {
			return fmt.Errorf("insert custom_gestures: %w", err)
		}
	}
	counts := []struct {
		outcome string
		m       map[int]int64
	}{
		{outcomeUser, s.UserGestureCount},
		{outcomeCommon, s.CommonGestureCount},
		{outcomeFailed, s.FailedGestureCount},
	}
	for _, c := range counts {
		for idx, n := range c.m {
			if _, err = tx.ExecContext(ctx, `INSERT INTO gesture_counts (label_index, outcome, count) VALUES (?, ?, ?)`, idx, c.outcome, n); err != nil {
				return fmt.Errorf("insert gesture_counts: %w", err)
			}
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO progress_meta (id, saved_at) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET saved_at = excluded.saved_at`,
		p.db.now().UnixMilli()); err != nil {
		return fmt.Errorf("update progress_meta: %w", err)
	}
	return tx.Commit()
}
