package memory

import "testing"

func TestGetStatisticsCountsByTypeConfidenceImportance(t *testing.T) {
	m, _ := newTestManager(t)
	opts := DefaultStoreOptions()
	opts.Confidence = ConfidenceHigh
	opts.Importance = ImportanceCritical
	if _, err := m.StoreMemory(TypeFact, "a fact", opts); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StoreMemory(TypePreference, "a preference", DefaultStoreOptions()); err != nil {
		t.Fatal(err)
	}

	stats := m.GetStatistics()
	if stats.TotalMemories != 2 {
		t.Errorf("expected 2 total memories, got %d", stats.TotalMemories)
	}
	if stats.ByType[TypeFact] != 1 || stats.ByType[TypePreference] != 1 {
		t.Errorf("unexpected type breakdown: %+v", stats.ByType)
	}
	if stats.ByConfidence[ConfidenceHigh] != 1 {
		t.Errorf("expected one high-confidence memory, got %+v", stats.ByConfidence)
	}
	if stats.ByImportance[ImportanceCritical] != 1 {
		t.Errorf("expected one critical-importance memory, got %+v", stats.ByImportance)
	}
	if stats.EmbeddingCount != 2 {
		t.Errorf("expected 2 embeddings, got %d", stats.EmbeddingCount)
	}
}

func TestGetStatisticsExcludesForgottenMemories(t *testing.T) {
	m, _ := newTestManager(t)
	id, err := m.StoreMemory(TypeFact, "temporary", DefaultStoreOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.ForgetMemory(id, 0, false); err != nil {
		t.Fatal(err)
	}
	stats := m.GetStatistics()
	if stats.TotalMemories != 0 {
		t.Errorf("expected forgotten memory excluded from totals, got %d", stats.TotalMemories)
	}
}

func TestGetStatisticsTracksSessions(t *testing.T) {
	m, _ := newTestManager(t)
	s1 := m.CreateSession("alice", "a")
	m.CreateSession("bob", "b")
	s, _ := m.GetSession(s1.SessionID)
	s.IsActive = false

	stats := m.GetStatistics()
	if stats.TotalSessions != 2 {
		t.Errorf("expected 2 total sessions, got %d", stats.TotalSessions)
	}
	if stats.ActiveSessions != 1 {
		t.Errorf("expected 1 active session, got %d", stats.ActiveSessions)
	}
}
