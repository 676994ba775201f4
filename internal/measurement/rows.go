package measurement

import "sort"

// MergeRows returns a new row set combining existing and incoming by key.
// Value and pair lists are concatenated, counts summed and quality averaged
// weighted by count. Neither input is modified. The merged resolution is the
// coarser of the two.
func MergeRows(existing, incoming []Row) []Row {
	byKey := make(map[Key]Row, len(existing)+len(incoming))
	for _, src := range [][]Row{existing, incoming} {
		for _, row := range src {
			key := row.Key()
			acc, ok := byKey[key]
			if !ok {
				byKey[key] = cloneRow(row)
				continue
			}
			byKey[key] = combine(acc, row)
		}
	}

	merged := make([]Row, 0, len(byKey))
	for _, row := range byKey {
		merged = append(merged, row)
	}
	SortRows(merged)
	return merged
}

func cloneRow(r Row) Row {
	out := r
	out.Values = append([]float64(nil), r.Values...)
	out.Pairs = append([]Sample(nil), r.Pairs...)
	return out
}

func combine(a, b Row) Row {
	out := a
	out.Values = append(append([]float64(nil), a.Values...), b.Values...)
	out.Pairs = append(append([]Sample(nil), a.Pairs...), b.Pairs...)
	out.Count = a.Count + b.Count
	out.AvgQuality = weightedQuality(a.AvgQuality, a.Count, b.AvgQuality, b.Count)
	if b.Resolution > out.Resolution {
		out.Resolution = b.Resolution
	}
	return out
}

func weightedQuality(qa float64, ca int, qb float64, cb int) float64 {
	if ca+cb == 0 {
		return (qa + qb) / 2
	}
	return (qa*float64(ca) + qb*float64(cb)) / float64(ca+cb)
}

// SortRows orders rows by measurement type, state type, then unit
func SortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.MeasurementType != b.MeasurementType {
			return a.MeasurementType < b.MeasurementType
		}
		if a.StateType != b.StateType {
			return a.StateType < b.StateType
		}
		return a.Unit < b.Unit
	})
}

// Partition splits rows by the owner of each pair's sensor. Pairs whose
// sensor has no owner are dropped. Each partitioned row carries only its
// owner's pairs; values are rebuilt from those pairs.
func Partition(rows []Row, owner map[string]string) map[string][]Row {
	out := make(map[string][]Row)
	for _, row := range rows {
		split := make(map[string][]Sample)
		for _, p := range row.Pairs {
			entity, ok := owner[p.SensorID]
			if !ok {
				continue
			}
			split[entity] = append(split[entity], p)
		}
		for entity, pairs := range split {
			part := row
			part.Pairs = pairs
			part.Values = make([]float64, len(pairs))
			for i, p := range pairs {
				part.Values[i] = p.Value
			}
			part.Count = len(pairs)
			out[entity] = append(out[entity], part)
		}
	}
	return out
}

// SortSamples returns a copy of samples ordered by timestamp
func SortSamples(samples []Sample) []Sample {
	out := append([]Sample(nil), samples...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
