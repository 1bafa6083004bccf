package engine

import "github.com/sells-group/visibility-cli/internal/model"

// WorkUnit is one (phrase, model) pair to be queried and scored. Units
// are built fresh per run against the full model set and never
// persisted; the adaptive selector may still veto a unit's model at
// dispatch time.
type WorkUnit struct {
	Phrase model.Phrase
	Model  string
}

// BuildUnits expands selected phrases against the model set, preserving
// phrase order and, within a phrase, model order.
func BuildUnits(phrases []model.Phrase, models []string) []WorkUnit {
	units := make([]WorkUnit, 0, len(phrases)*len(models))
	for _, p := range phrases {
		for _, m := range models {
			units = append(units, WorkUnit{Phrase: p, Model: m})
		}
	}
	return units
}

// batchSize returns the batch width for a given total unit count:
// smaller totals get wider batches, large runs are throttled harder.
func batchSize(total int) int {
	switch {
	case total <= 20:
		return 10
	case total <= 50:
		return 8
	case total <= 100:
		return 6
	default:
		return 4
	}
}

// partition splits units into ordered batches per the size policy.
func partition(units []WorkUnit) [][]WorkUnit {
	if len(units) == 0 {
		return nil
	}
	size := batchSize(len(units))
	batches := make([][]WorkUnit, 0, (len(units)+size-1)/size)
	for start := 0; start < len(units); start += size {
		end := start + size
		if end > len(units) {
			end = len(units)
		}
		batches = append(batches, units[start:end])
	}
	return batches
}
