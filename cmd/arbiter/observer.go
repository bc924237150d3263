package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/gesture.arbiter/internal/db"
	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/arbiter"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/engine"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/manager"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/progress"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/training"
	"github.com/banshee-data/gesture.arbiter/internal/monitoring"
)

type identificationRecorder interface {
	RecordIdentification(ctx context.Context, mode gesture.Mode, d arbiter.Decision) error
}

// logObserver logs session results and appends arbitration decisions to
// the identification log.
type logObserver struct {
	manager.NopObserver
	rec     identificationRecorder
	log     monitoring.Logger
	timeout time.Duration
}

func newLogObserver(rec identificationRecorder) *logObserver {
	return &logObserver{rec: rec, log: monitoring.Tagged("session"), timeout: time.Second}
}

func (o *logObserver) record(mode gesture.Mode, d arbiter.Decision) {
	if o.rec == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	if err := o.rec.RecordIdentification(ctx, mode, d); err != nil {
		o.log.Printf("failed to record gesture ID:%d: %v", d.SampleID, err)
	}
}

func (o *logObserver) OnSmartIdentifyMatch(id gesture.SampleID, d arbiter.Decision) {
	o.log.Printf("gesture ID:%d %s", id, d)
	o.record(gesture.ModeSmartIdentify, d)
}

func (o *logObserver) OnSmartIdentifyDeveloperDefinedMatch(id gesture.SampleID, d arbiter.Decision) {
	o.log.Printf("gesture ID:%d %s", id, d)
	o.record(gesture.ModeSmartIdentifyDeveloperDefined, d)
}

func (o *logObserver) OnDeveloperDefinedMatch(id gesture.SampleID, label gesture.Label, score gesture.Confidence) {
	o.log.Printf("gesture ID:%d developer-defined %v (%.3f)", id, label, float64(score))
}

func (o *logObserver) OnPlayerSignatureMatch(id gesture.SampleID, match bool, label gesture.Label) {
	o.log.Printf("gesture ID:%d signature match=%v %v", id, match, label)
}

func (o *logObserver) OnPlayerSignatureTrained(id gesture.SampleID, out training.Outcome) {
	if out.Err != nil {
		o.log.Printf("gesture ID:%d signature %v training failed: %v (deleted=%v)", id, out.Label, out.Err, out.Deleted)
		return
	}
	if out.Weak {
		o.log.Printf("gesture ID:%d signature %v rated too weak (%s)", id, out.Label, out.Security)
	}
	o.log.Printf("gesture ID:%d signature %v progress %.2f", id, out.Label, out.Progress)
}

func (o *logObserver) OnPlayerGestureMatch(id gesture.SampleID, label gesture.Label) {
	o.log.Printf("gesture ID:%d player gesture %v", id, label)
}

func parseTargets(s string) ([]gesture.Label, error) {
	var out []gesture.Label
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, gesture.Indexed(idx))
	}
	return out, nil
}

type progressSource interface {
	Progress() *progress.State
}

type exemplarLoader interface {
	LoadExemplars(ctx context.Context) (map[gesture.Label][]gesture.Sample, error)
}

// reseedCustom hands stored exemplars back to an in-memory engine for every
// label the progress state says was trained.
func reseedCustom(ctx context.Context, b engine.Binding, ex exemplarLoader, ps progressSource) error {
	collection, err := ex.LoadExemplars(ctx)
	if err != nil {
		return err
	}
	st := ps.Progress()
	for label, samples := range collection {
		if !st.CustomEnabled(label) || len(samples) == 0 {
			continue
		}
		if err := b.SetCustomGesture(ctx, label, samples); err != nil {
			return err
		}
	}
	return nil
}

// openProgressStore picks where training progress lives. The file
// backend keeps the JSON document next to the database in stateDir.
func openProgressStore(backend string, database *db.DB, stateDir string) (progress.Store, error) {
	switch backend {
	case "", "db":
		return db.NewProgressStore(database), nil
	case "file":
		return progress.NewFileStore(nil, stateDir, "")
	default:
		return nil, fmt.Errorf("unknown progress store %q; use db or file", backend)
	}
}
