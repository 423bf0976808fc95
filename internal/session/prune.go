package session

import (
	"sort"

	"github.com/helioshop/helioshop/internal/model"
)

// prune collapses records sharing an (IP, user-agent) fingerprint down to
// the most recently accessed one. It returns the survivors and the
// identifiers to delete. Deliberately a pure function: the compensation
// logic for non-transactional writes stays testable in isolation.
func prune(records []model.DeviceSession) (keep []model.DeviceSession, stale []string) {
	best := make(map[string]int, len(records))
	for i, rec := range records {
		fp := rec.Fingerprint()
		j, seen := best[fp]
		if !seen {
			best[fp] = i
			continue
		}
		if rec.LastAccessedAt.After(records[j].LastAccessedAt) {
			stale = append(stale, records[j].ID)
			best[fp] = i
		} else {
			stale = append(stale, rec.ID)
		}
	}

	keep = make([]model.DeviceSession, 0, len(best))
	for _, i := range best {
		keep = append(keep, records[i])
	}
	return keep, stale
}

func sortByLastAccess(records []model.DeviceSession) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].LastAccessedAt.After(records[j].LastAccessedAt)
	})
}

func containsID(records []model.DeviceSession, id string) bool {
	for i := range records {
		if records[i].ID == id {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
