package arbiter

import (
	"context"
	"sort"

	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/progress"
)

// UpdateStats replays every stored smart-train sample of one flavour
// through both recognizers and accumulates per-label error counts and
// confidence sums. The zero profile selects the indexed flavour.
//
// The pass is skipped when statistics for the profile already exist,
// unless force is set. Collection keys are the ground-truth labels.
func (a *Arbiter) UpdateStats(ctx context.Context, profile gesture.Profile, collection map[gesture.Label][]gesture.Sample, state *progress.State, force bool) error {
	if a.stats.Exists(profile) && !force {
		return nil
	}
	log := a.log.With("stats")

	var truths []gesture.Label
	for l := range collection {
		if profile.Valid() {
			if l.IsNamed() && l.Profile() == profile {
				truths = append(truths, l)
			}
		} else if l.IsIndexed() {
			truths = append(truths, l)
		}
	}
	sort.Slice(truths, func(i, j int) bool { return truths[i].Key() < truths[j].Key() })

	var custom []gesture.Label
	if state != nil {
		if profile.Valid() {
			custom = state.CustomNamed(profile)
		} else {
			custom = state.CustomIndexed()
		}
	}

	common := commonTargets()
	if profile.Valid() {
		common = truths
	}

	for _, truth := range truths {
		for _, s := range collection[truth] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(common) > 0 {
				matched, conf, err := a.classifyForStats(ctx, profile, s, common)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					log.Printf("common classify ID:%d failed: %v", s.ID, err)
				}
				a.stats.Ensure(profile, matched)
				if matched != truth {
					a.stats.RecordMismatch(profile, matched, gesture.RecognizerCommon)
				} else {
					a.stats.RecordConfidence(profile, matched, gesture.RecognizerCommon, conf)
				}
			}

			if len(custom) == 0 {
				continue
			}
			res, err := a.binding.ClassifyCustom(ctx, s, custom)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("custom classify ID:%d failed: %v", s.ID, err)
				continue
			}
			a.stats.Ensure(profile, res.Label)
			if res.Label != truth {
				a.stats.RecordMismatch(profile, res.Label, gesture.RecognizerCustom)
			} else {
				a.stats.RecordConfidence(profile, res.Label, gesture.RecognizerCustom, res.Confidence)
			}
		}
	}

	a.stats.MarkExists(profile)
	log.Printf("statistics updated for %q over %d labels", profile.Path(), len(truths))
	return nil
}

func (a *Arbiter) classifyForStats(ctx context.Context, profile gesture.Profile, s gesture.Sample, candidates []gesture.Label) (gesture.Label, float64, error) {
	if profile.Valid() {
		res, err := a.binding.ClassifyPredefined(ctx, s, profile, candidates)
		return res.Label, res.Conf, err
	}
	res, err := a.binding.ClassifyCommon(ctx, s, candidates)
	if err != nil || !res.Score.Passes(a.opts.CommonPass) {
		return gesture.Label{}, 0, err
	}
	return res.Label, float64(res.Score), nil
}

func commonTargets() []gesture.Label {
	out := make([]gesture.Label, 0, gesture.CommonEnd-gesture.CommonStart-1)
	for i := gesture.CommonStart + 1; i < gesture.CommonEnd; i++ {
		out = append(out, gesture.Indexed(i))
	}
	return out
}
