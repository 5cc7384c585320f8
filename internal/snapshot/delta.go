package snapshot

// LeaderDelta is what the dashboard shows next to a leader: either growth
// since the last comparable reading or a new-leader badge.
type LeaderDelta struct {
	Delta       *int `json:"delta"`
	IsNewLeader bool `json:"isNewLeader"`
}

// LeaderEntry is one historical reading of a leader slot.
type LeaderEntry struct {
	Name    string
	Efforts int
}

func (e LeaderEntry) valid() bool { return e.Name != "" && e.Efforts > 0 }

// LeaderHistory projects a snapshot history onto one leader slot.
func LeaderHistory(history []Snapshot, female bool) []LeaderEntry {
	out := make([]LeaderEntry, len(history))
	for i, s := range history {
		l := s.Male
		if female {
			l = s.Female
		}
		out[i] = LeaderEntry{Name: l.Name, Efforts: l.Efforts}
	}
	return out
}

// CalculateDelta derives a leader's delta from prior readings, newest first,
// excluding the current one. Deltas are never negative.
func CalculateDelta(currentName string, currentEfforts int, history []LeaderEntry) LeaderDelta {
	if currentName == "" || currentEfforts <= 0 || len(history) == 0 {
		return LeaderDelta{}
	}

	var (
		previousName    string
		previousEfforts int
		haveDifferent   bool
	)
	for _, h := range history {
		if !h.valid() {
			continue
		}
		if previousName == "" {
			previousName = h.Name
		}
		if h.Efforts != currentEfforts {
			previousEfforts = h.Efforts
			haveDifferent = true
			break
		}
	}

	if previousName != "" && previousName != currentName {
		baseline, ok := takeoverBaseline(currentName, history)
		if ok && currentEfforts > baseline {
			return LeaderDelta{Delta: intPtr(currentEfforts - baseline)}
		}
		return LeaderDelta{IsNewLeader: true}
	}

	if haveDifferent && currentEfforts > previousEfforts {
		return LeaderDelta{Delta: intPtr(currentEfforts - previousEfforts)}
	}
	return LeaderDelta{}
}

// takeoverBaseline walks back through the current leader's most recent
// contiguous run and returns the efforts at its oldest entry. Invalid entries
// are skipped; a differently named entry ends the run once it has started.
func takeoverBaseline(name string, history []LeaderEntry) (int, bool) {
	baseline, found := 0, false
	for _, h := range history {
		if !h.valid() {
			continue
		}
		if h.Name == name {
			baseline, found = h.Efforts, true
			continue
		}
		if found {
			break
		}
	}
	return baseline, found
}

func intPtr(n int) *int { return &n }
