package statewire

// leafValue returns the first active leaf of a snapshot, useful in
// tests that exercise a single non-parallel branch and only care
// about one current leaf.
func leafValue[C any](s Snapshot[C]) StateID {
	if len(s.Leaves) == 0 {
		return ""
	}
	return s.Leaves[0]
}
