package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
)

// ExemplarStore keeps one exemplar set per label. Saving a label replaces
// its previous set.
type ExemplarStore struct {
	db *DB
}

func NewExemplarStore(db *DB) *ExemplarStore { return &ExemplarStore{db: db} }

func labelColumns(l gesture.Label) (kind, key, classifier, sub string, err error) {
	switch {
	case l.IsIndexed():
		return kindIndexed, l.Key(), "", "", nil
	case l.IsNamed():
		p := l.Profile()
		return kindNamed, l.Key(), p.Name, p.Sub, nil
	}
	return "", "", "", "", errors.New("exemplars: label is empty")
}

// SaveExemplars stores samples as the exemplar set of label. An empty
// slice removes the set.
func (e *ExemplarStore) SaveExemplars(ctx context.Context, label gesture.Label, samples []gesture.Sample) (err error) {
	kind, key, classifier, sub, err := labelColumns(label)
	if err != nil {
		return err
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	const match = `kind = ? AND label_key = ? AND classifier = ? AND sub_classifier = ?`
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM exemplars WHERE set_id IN (SELECT set_id FROM exemplar_sets WHERE `+match+`)`,
		kind, key, classifier, sub); err != nil {
		return fmt.Errorf("clear exemplars: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM exemplar_sets WHERE `+match, kind, key, classifier, sub); err != nil {
		return fmt.Errorf("clear exemplar_sets: %w", err)
	}
	if len(samples) == 0 {
		return tx.Commit()
	}

	setID := uuid.NewString()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO exemplar_sets (set_id, kind, label_key, classifier, sub_classifier, saved_at) VALUES (?, ?, ?, ?, ?, ?)`,
		setID, kind, key, classifier, sub, e.db.now().UnixMilli()); err != nil {
		return fmt.Errorf("insert exemplar_sets: %w", err)
	}
	for i, s := range samples {
		var data []byte
		data, err = json.Marshal(s.Flatten())
		if err != nil {
			return fmt.Errorf("encode sample %d: %w", s.ID, err)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO exemplars (set_id, ordinal, sample_id, entries) VALUES (?, ?, ?, ?)`,
			setID, i, int64(s.ID), string(data)); err != nil {
			return fmt.Errorf("insert exemplars: %w", err)
		}
	}
	log.Debugf("saved %d exemplars for %v as set %s", len(samples), label, setID)
	return tx.Commit()
}

// LoadExemplars returns every stored set keyed by label, samples in the
// order they were saved.
func (e *ExemplarStore) LoadExemplars(ctx context.Context) (map[gesture.Label][]gesture.Sample, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT s.kind, s.label_key, s.classifier, s.sub_classifier, x.sample_id, x.entries
		FROM exemplar_sets s JOIN exemplars x ON x.set_id = s.set_id
		ORDER BY s.set_id, x.ordinal`)
	if err != nil {
		return nil, fmt.Errorf("read exemplars: %w", err)
	}
	defer rows.Close()

	out := make(map[gesture.Label][]gesture.Sample)
	for rows.Next() {
		var kind, key, classifier, sub, entries string
		var id int64
		if err := rows.Scan(&kind, &key, &classifier, &sub, &id, &entries); err != nil {
			return nil, err
		}
		var label gesture.Label
		switch kind {
		case kindIndexed:
			idx, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("exemplar_sets: bad index %q", key)
			}
			label = gesture.Indexed(idx)
		case kindNamed:
			label = gesture.Named(key, gesture.Profile{Name: classifier, Sub: sub})
		default:
			continue
		}
		var flat []float32
		if err := json.Unmarshal([]byte(entries), &flat); err != nil {
			return nil, fmt.Errorf("decode exemplar %d: %w", id, err)
		}
		s, err := gesture.SampleFromFlat(gesture.SampleID(id), flat)
		if err != nil {
			return nil, fmt.Errorf("exemplar %d: %w", id, err)
		}
		out[label] = append(out[label], s)
	}
	return out, rows.Err()
}
