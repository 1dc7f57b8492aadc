package engine

import (
	"context"
	"math"
	"time"

	"github.com/jw6ventures/contactd/internal/store"
)

// Usage bucket boundaries: feedback younger than mediumAge counts as
// recent, younger than oldAge as medium, everything else as old.
const (
	usageMediumAge = 30 * 24 * time.Hour
	usageOldAge    = 180 * 24 * time.Hour
)

// ApplyUsageFeedback records one interaction with a data row. Counters
// are bucketed by age: existing counts are first rolled into older
// buckets based on how long ago the row was last used, then the new
// event lands in the recent bucket.
func (e *Engine) ApplyUsageFeedback(ctx context.Context, dataRowID int64, usageType store.UsageType, at time.Time) error {
	return e.inTx(ctx, "apply_usage_feedback", func(tx store.Tx) error {
		if _, err := tx.GetDataRow(ctx, dataRowID); err != nil {
			return err
		}
		stat, err := tx.GetUsageStat(ctx, dataRowID, usageType)
		if err != nil {
			stat = &store.DataUsageStat{DataRowID: dataRowID, Type: usageType}
		}
		ageUsageStat(stat, at)
		stat.Recent++
		if at.After(stat.LastUsed) {
			stat.LastUsed = at
		}
		return tx.UpsertUsageStat(ctx, stat)
	})
}

// ageUsageStat shifts counts into older buckets based on the gap since
// the last recorded use.
func ageUsageStat(stat *store.DataUsageStat, now time.Time) {
	if stat.LastUsed.IsZero() {
		return
	}
	gap := now.Sub(stat.LastUsed)
	switch {
	case gap >= usageOldAge:
		stat.Old += stat.Medium + stat.Recent
		stat.Medium = 0
		stat.Recent = 0
	case gap >= usageMediumAge:
		stat.Medium += stat.Recent
		stat.Recent = 0
	}
}

// RankScore produces the decayed ranking score for a data row from its
// usage stats: recent interactions dominate, and the whole score decays
// exponentially with time since last use so dormant rows sink. The
// function is pure so repeated ranking of unchanged stats is stable for
// a fixed reference time.
func RankScore(stats []*store.DataUsageStat, now time.Time) float64 {
	var score float64
	for _, s := range stats {
		weight := float64(5*s.Recent + 2*s.Medium + s.Old)
		if weight == 0 {
			continue
		}
		ageDays := 0.0
		if !s.LastUsed.IsZero() && now.After(s.LastUsed) {
			ageDays = now.Sub(s.LastUsed).Hours() / 24
		}
		score += weight * math.Exp(-ageDays/90)
	}
	return score
}
