package session

import (
	"testing"
	"time"

	"github.com/helioshop/helioshop/internal/model"
)

func rec(id, ip, ua string, lastAccess time.Time) model.DeviceSession {
	return model.DeviceSession{
		ID:             id,
		UserID:         "u1",
		IP:             ip,
		UserAgent:      ua,
		LastAccessedAt: lastAccess,
	}
}

func TestPruneKeepsMostRecentDuplicate(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []model.DeviceSession{
		rec("old", "1.2.3.4", "firefox", base),
		rec("new", "1.2.3.4", "firefox", base.Add(time.Hour)),
	}

	keep, stale := prune(records)
	if len(keep) != 1 || keep[0].ID != "new" {
		t.Fatalf("expected only the newer record to survive, got %+v", keep)
	}
	if len(stale) != 1 || stale[0] != "old" {
		t.Fatalf("expected the older record to be pruned, got %v", stale)
	}
}

func TestPruneOrderIndependent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []model.DeviceSession{
		rec("new", "1.2.3.4", "firefox", base.Add(time.Hour)),
		rec("old", "1.2.3.4", "firefox", base),
	}

	keep, stale := prune(records)
	if len(keep) != 1 || keep[0].ID != "new" {
		t.Fatalf("expected the newer record to survive regardless of order, got %+v", keep)
	}
	if len(stale) != 1 || stale[0] != "old" {
		t.Fatalf("expected old to be pruned, got %v", stale)
	}
}

func TestPruneDistinctFingerprintsUntouched(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []model.DeviceSession{
		rec("a", "1.2.3.4", "firefox", base),
		rec("b", "1.2.3.4", "chrome", base),
		rec("c", "5.6.7.8", "firefox", base),
	}

	keep, stale := prune(records)
	if len(keep) != 3 {
		t.Fatalf("expected all distinct fingerprints to survive, got %d", len(keep))
	}
	if len(stale) != 0 {
		t.Fatalf("expected nothing pruned, got %v", stale)
	}
}

func TestPruneThreeWayDuplicate(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []model.DeviceSession{
		rec("a", "1.2.3.4", "firefox", base),
		rec("b", "1.2.3.4", "firefox", base.Add(2*time.Hour)),
		rec("c", "1.2.3.4", "firefox", base.Add(time.Hour)),
	}

	keep, stale := prune(records)
	if len(keep) != 1 || keep[0].ID != "b" {
		t.Fatalf("expected b to survive, got %+v", keep)
	}
	if len(stale) != 2 {
		t.Fatalf("expected two pruned, got %v", stale)
	}
}

func TestSortByLastAccessDescending(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []model.DeviceSession{
		rec("oldest", "a", "x", base),
		rec("newest", "b", "y", base.Add(2*time.Hour)),
		rec("middle", "c", "z", base.Add(time.Hour)),
	}

	sortByLastAccess(records)
	want := []string{"newest", "middle", "oldest"}
	for i, id := range want {
		if records[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, records[i].ID)
		}
	}
}
