package db

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/arbiter"
)

// Identification is one row of the arbitration log.
type Identification struct {
	SampleID        int64     `json:"sample_id"`
	Mode            string    `json:"mode"`
	Label           string    `json:"label"`
	Winner          string    `json:"winner,omitempty"`
	CommonLabel     string    `json:"common_label"`
	CommonPassed    bool      `json:"common_passed"`
	CustomLabel     string    `json:"custom_label"`
	ConsultedCustom bool      `json:"consulted_custom"`
	RecordedAt      time.Time `json:"recorded_at"`
}

func labelText(l gesture.Label) string {
	if l.IsZero() {
		return ""
	}
	return l.String()
}

// RecordIdentification appends an arbitration decision made in mode.
func (db *DB) RecordIdentification(ctx context.Context, mode gesture.Mode, d arbiter.Decision) error {
	winner := ""
	if d.Matched() {
		winner = d.Winner.String()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO identifications (
			sample_id, mode, label, winner, common_label, common_passed,
			custom_label, consulted_custom, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(d.SampleID), mode.String(), labelText(d.Label), winner,
		labelText(d.CommonLabel), d.CommonPassed,
		labelText(d.CustomLabel), d.ConsultedCustom, db.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert identification: %w", err)
	}
	return nil
}

// RecentIdentifications returns up to limit rows, newest first.
func (db *DB) RecentIdentifications(ctx context.Context, limit int) ([]Identification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT sample_id, mode, label, winner, common_label, common_passed,
			custom_label, consulted_custom, recorded_at
		FROM identifications ORDER BY identification_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Identification
	for rows.Next() {
		var r Identification
		var at int64
		if err := rows.Scan(&r.SampleID, &r.Mode, &r.Label, &r.Winner, &r.CommonLabel,
			&r.CommonPassed, &r.CustomLabel, &r.ConsultedCustom, &at); err != nil {
			return nil, err
		}
		r.RecordedAt = time.UnixMilli(at).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
