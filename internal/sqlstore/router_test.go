package sqlstore

import (
	"strings"
	"testing"

	"github.com/agentutil/membox/internal/memory"
)

func TestClassifyQuery(t *testing.T) {
	tests := []struct {
		query string
		want  queryStrategy
	}{
		{"list all endpoints", strategySimple},
		{"show recent decisions", strategySimple},
		{"what are the open items", strategySimple},
		{"找到所有設定", strategySimple},
		{"有哪些類別", strategySimple},
		{"why did the deploy fail", strategyComplex},
		{"explain the caching layer", strategyComplex},
		{"compare postgres and sqlite", strategyComplex},
		{"為什麼會失敗", strategyComplex},
		{"如何設定連線", strategyComplex},
		{"auth token", strategyHybrid},
		{"postgres", strategyHybrid},
		// Simple markers win over complex ones.
		{"how many items are in the list", strategySimple},
		// Length alone pushes a markerless query to the complex path.
		{strings.Repeat("q", complexLength+1), strategyComplex},
		{strings.Repeat("字", complexLength+1), strategyComplex},
	}
	for _, tt := range tests {
		if got := classifyQuery(tt.query); got != tt.want {
			t.Errorf("classifyQuery(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestSearchSimpleLookupPath(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "demo", "endpoint inventory body", "Endpoints", "api")
	mustSave(t, s, "demo", "unrelated note", "Other", "")

	results, err := s.Search("demo", "list endpoint entries", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Search(simple) returned no results")
	}
	// Index-only path serves summaries, never full bodies.
	for _, r := range results {
		if strings.Contains(r.Body, "\n") {
			t.Errorf("simple lookup returned multi-line body: %q", r.Body)
		}
	}
}

func TestSearchHybridFindsBodyMatch(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "demo", "the database password rotates weekly", "Ops note", "")
	mustSave(t, s, "demo", "unrelated", "Noise", "")

	results, err := s.Search("demo", "password", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	found := false
	for _, r := range results {
		if r.Title == "Ops note" {
			found = true
		}
	}
	if !found {
		t.Errorf("hybrid search missed body match, results = %+v", results)
	}
}

func TestSearchShortQueryFallback(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "demo", "issue 42 is fixed", "Bugfix", "")

	// Two characters is below the trigram floor; the LIKE fallback must
	// still find the entry.
	results, err := s.Search("demo", "42", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Search(sub-trigram query) returned no results, want fallback hit")
	}
}

func TestHybridHalfQuota(t *testing.T) {
	s := newTestStore(t)
	// "42" lives only in the second paragraph, so the index side (title,
	// keywords, summary) sees nothing and every hit comes from the
	// full-text side — which gets only its half of the quota.
	for _, title := range []string{"Note A", "Note B", "Note C", "Note D"} {
		mustSave(t, s, "demo", "Intro paragraph.\n\nissue 42 resolved", title, "")
	}

	results, err := s.Search("demo", "42", 4)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Errorf("hybrid results = %d, want 2 (half of limit 4)", len(results))
	}
}

func TestSearchMissingProjectEmpty(t *testing.T) {
	s := newTestStore(t)
	results, err := s.Search("ghost", "anything", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search(missing project) = %d results, want 0", len(results))
	}
}

func TestSearchValidatesQuery(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Search("demo", strings.Repeat("q", 2000), 10)
	if memory.KindOf(err) != memory.KindValidation {
		t.Errorf("Search(oversized query) kind = %q, want validation", memory.KindOf(err))
	}
}

func TestSearchIndexFilters(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "demo", "alpha body", "Alpha", "infra")
	mustSave(t, s, "demo", "beta body", "Beta", "security")

	hits, err := s.SearchIndex("demo", "", 10, &memory.IndexFilters{Category: "infra"})
	if err != nil {
		t.Fatalf("SearchIndex() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Title != "Alpha" {
		t.Errorf("filtered hits = %+v, want only Alpha", hits)
	}
}

func TestRebuildIndexAndStats(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "demo", "alpha", "One", "")
	mustSave(t, s, "demo", "beta", "Two", "")

	report, err := s.RebuildIndex("demo")
	if err != nil {
		t.Fatalf("RebuildIndex() error = %v", err)
	}
	if report.Indexed != 2 || report.Project != "demo" {
		t.Errorf("rebuild report = %+v", report)
	}

	st, err := s.GetIndexStats()
	if err != nil {
		t.Fatalf("GetIndexStats() error = %v", err)
	}
	if !st.InSync || st.Entries != 2 || st.Indexed != 2 {
		t.Errorf("index stats = %+v, want in-sync 2/2", st)
	}
	if !st.Migrated {
		t.Error("index stats migrated = false, want true")
	}
	if st.DBSizeB == 0 {
		t.Error("index stats db size = 0")
	}
}

func TestPrepareFTSQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"database password", `"database" OR "password"`},
		{`inject" OR 1`, `"inject"`}, // quotes stripped, short terms dropped
		{"a of 42", ""},
		{"資料庫連線", `"資料庫連線"`},
	}
	for _, tt := range tests {
		if got := prepareFTSQuery(tt.in); got != tt.want {
			t.Errorf("prepareFTSQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
