package engine

// EvaluateReadiness reports whether every required entry in the snapshot
// carries a value. Checks run primary, meta, groups, taxonomies and stop
// at the first miss. Optional entries never count.
func EvaluateReadiness(snap Snapshot) bool {
	for _, entry := range snap.RequiredPrimary {
		if entry.Value == "" {
			return false
		}
	}
	for _, entry := range snap.RequiredMeta {
		if entry.Value == "" {
			return false
		}
	}
	for _, entry := range snap.RequiredGroups {
		if entry.Value == "" {
			return false
		}
	}
	for _, entry := range snap.RequiredTaxonomies {
		if entry.Count == 0 {
			return false
		}
	}
	return true
}
