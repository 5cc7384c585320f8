package snapshot

import "fmt"

// Decision is the admission verdict for one candidate.
type Decision struct {
	Action Action
	Reason string
}

// Admitted reports whether the candidate should be written.
func (d Decision) Admitted() bool { return d.Action == ActionInserted }

// Decide applies the high-water-mark rule to a candidate against the latest
// accepted snapshot for its segment (nil when there is none). Total efforts
// never go backwards; leader identity can only be filled in or grow.
func Decide(candidate Snapshot, existing *Snapshot) Decision {
	if !candidate.HasData() {
		return Decision{ActionNoData, "no efforts and no leaders returned"}
	}

	// HasData already guarantees a positive total or a leader name.
	if existing == nil {
		return Decision{ActionInserted, "first snapshot for segment"}
	}

	if candidate.TotalEfforts > existing.TotalEfforts {
		return Decision{ActionInserted, fmt.Sprintf("efforts increased %d -> %d",
			existing.TotalEfforts, candidate.TotalEfforts)}
	}

	if candidate.TotalEfforts == existing.TotalEfforts {
		switch {
		case candidate.Male.Present() && !existing.Male.Present():
			return Decision{ActionInserted, "male leader filled in"}
		case candidate.Female.Present() && !existing.Female.Present():
			return Decision{ActionInserted, "female leader filled in"}
		case candidate.Male.Efforts > existing.Male.Efforts:
			return Decision{ActionInserted, fmt.Sprintf("male leader efforts increased %d -> %d",
				existing.Male.Efforts, candidate.Male.Efforts)}
		case candidate.Female.Efforts > existing.Female.Efforts:
			return Decision{ActionInserted, fmt.Sprintf("female leader efforts increased %d -> %d",
				existing.Female.Efforts, candidate.Female.Efforts)}
		}
	}

	return Decision{ActionSkipped, fmt.Sprintf("existing data is better or equal (%d >= %d)",
		existing.TotalEfforts, candidate.TotalEfforts)}
}

// DecideForce admits anything with data, ignoring history. Operator use only.
func DecideForce(candidate Snapshot) Decision {
	if !candidate.HasData() {
		return Decision{ActionNoData, "no efforts and no leaders returned"}
	}
	return Decision{ActionInserted, "forced refresh"}
}
