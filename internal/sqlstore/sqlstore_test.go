package sqlstore

import (
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/agentutil/membox/internal/config"
	"github.com/agentutil/membox/internal/memory"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default(t.TempDir())
	s, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func mustSave(t *testing.T, s *Store, project, body, title, category string) {
	t.Helper()
	if err := s.Save(project, body, title, category); err != nil {
		t.Fatalf("Save(%q) error = %v", title, err)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	cfg := config.Default(t.TempDir())
	s, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	mustSave(t, s, "demo", "migration survivor", "First", "")

	// Opening the store again re-runs the migration against the same
	// file. It must be a no-op with all data intact.
	s2, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	entries, err := s2.ListEntries("demo")
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Title != "First" {
		t.Errorf("after re-migration entries = %+v, want the original entry", entries)
	}

	db, err := openDB(cfg.DBPath)
	if err != nil {
		t.Fatalf("openDB() error = %v", err)
	}
	defer db.Close()
	var markers int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&markers); err != nil {
		t.Fatalf("counting markers: %v", err)
	}
	if markers != 1 {
		t.Errorf("migration markers = %d, want 1", markers)
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "demo", "We chose token auth.", "Auth decision", "security")

	text, ok, err := s.Get("demo")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	for _, want := range []string{"# AI Memory for demo", "Auth decision", "#security", "We chose token auth."} {
		if !strings.Contains(text, want) {
			t.Errorf("Get() missing %q in:\n%s", want, text)
		}
	}
}

func TestGetMissingProject(t *testing.T) {
	s := newTestStore(t)
	text, ok, err := s.Get("nothing-here")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok || text != "" {
		t.Errorf("Get(missing) = (%q, %v), want empty and false", text, ok)
	}
}

func TestSaveValidationRejected(t *testing.T) {
	s := newTestStore(t)
	err := s.Save("../escape", "body", "", "")
	if memory.KindOf(err) != memory.KindValidation {
		t.Fatalf("Save(bad project) kind = %q, want validation", memory.KindOf(err))
	}
	err = s.Save("demo", "<script>alert(1)</script>", "", "")
	if memory.KindOf(err) != memory.KindSecurity {
		t.Fatalf("Save(script body) kind = %q, want security", memory.KindOf(err))
	}
	// The rejected writes must leave no trace.
	if entries, _ := s.ListEntries("demo"); len(entries) != 0 {
		t.Errorf("rejected save left %d entries", len(entries))
	}
}

func TestSaveNeverOverwrites(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "demo", "first", "Same title", "")
	mustSave(t, s, "demo", "second", "Same title", "")

	entries, err := s.ListEntries("demo")
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (append, never overwrite)", len(entries))
	}
}

func TestGetRecentWindow(t *testing.T) {
	s := newTestStore(t)
	for _, title := range []string{"a", "b", "c", "d"} {
		mustSave(t, s, "demo", "body "+title, title, "")
	}

	recent, err := s.GetRecent("demo", 2)
	if err != nil {
		t.Fatalf("GetRecent() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("GetRecent() = %d entries, want 2", len(recent))
	}
	// Newest two, presented oldest first.
	if recent[0].Title != "c" || recent[1].Title != "d" {
		t.Errorf("GetRecent() titles = %q, %q, want c, d", recent[0].Title, recent[1].Title)
	}
}

func TestListEntriesPreview(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "demo", strings.Repeat("x", 300), "Long", "")

	entries, err := s.ListEntries("demo")
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if got := len([]rune(entries[0].Body)); got != listPreviewLen+3 {
		t.Errorf("preview length = %d, want %d with ellipsis", got, listPreviewLen+3)
	}
}

func TestListProjects(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "proj-one", "a", "", "infra")
	mustSave(t, s, "proj-one", "b", "", "security")
	mustSave(t, s, "proj-two", "c", "", "")

	projects, err := s.ListProjects()
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("projects = %d, want 2", len(projects))
	}
	byID := map[string]memory.ProjectSummary{}
	for _, p := range projects {
		byID[p.ID] = p
	}
	one := byID["proj-one"]
	if one.EntryCount != 2 || one.Name != "Proj One" {
		t.Errorf("proj-one summary = %+v", one)
	}
	if len(one.Categories) != 2 {
		t.Errorf("proj-one categories = %v, want infra and security", one.Categories)
	}
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t)
	st, err := s.GetStats("demo")
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if st.Exists || st.Entries != 0 {
		t.Errorf("empty project stats = %+v", st)
	}

	mustSave(t, s, "demo", "one two three", "T", "cat")
	mustSave(t, s, "demo", "four five", "", "cat")

	st, err = s.GetStats("demo")
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if !st.Exists || st.Entries != 2 || st.Words != 5 {
		t.Errorf("stats = %+v, want 2 entries and 5 words", st)
	}
	if len(st.Categories) != 1 || st.Categories[0] != "cat" {
		t.Errorf("stats categories = %v", st.Categories)
	}
	if st.Oldest == "" || st.Latest == "" || st.Oldest > st.Latest {
		t.Errorf("stats range = %q .. %q", st.Oldest, st.Latest)
	}
}

func TestEditEntryFirstMatch(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "demo", "alpha", "One", "shared")
	mustSave(t, s, "demo", "beta", "Two", "shared")

	newTitle := "Renamed"
	report, err := s.EditEntry("demo", memory.Selector{Category: "shared"},
		memory.EditFields{Title: &newTitle})
	if err != nil {
		t.Fatalf("EditEntry() error = %v", err)
	}
	if report == nil {
		t.Fatal("EditEntry() report = nil, want a match")
	}
	if report.Edited.Title != "Renamed" || report.Edited.Body != "alpha" {
		t.Errorf("edited = %+v, want first match only", report.Edited)
	}

	entries, _ := s.ListEntries("demo")
	if entries[1].Title != "Two" {
		t.Errorf("second entry title = %q, want untouched", entries[1].Title)
	}
}

func TestEditEntryNoMatch(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "demo", "alpha", "One", "")

	title := "x"
	report, err := s.EditEntry("demo", memory.Selector{Title: "absent"},
		memory.EditFields{Title: &title})
	if err != nil {
		t.Fatalf("EditEntry() error = %v", err)
	}
	if report != nil {
		t.Errorf("EditEntry(no match) report = %+v, want nil", report)
	}
}

func TestEditEntryValidatesInput(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "demo", "alpha", "One", "")

	bad := "<script>x</script>"
	_, err := s.EditEntry("demo", memory.Selector{ID: 1}, memory.EditFields{Body: &bad})
	if memory.KindOf(err) != memory.KindSecurity {
		t.Errorf("EditEntry(script body) kind = %q, want security", memory.KindOf(err))
	}
}

func TestDeleteEntryAllMatches(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "demo", "a", "One", "stale")
	mustSave(t, s, "demo", "b", "Two", "keep")
	mustSave(t, s, "demo", "c", "Three", "stale")

	report, err := s.DeleteEntry("demo", memory.Selector{Category: "stale"})
	if err != nil {
		t.Fatalf("DeleteEntry() error = %v", err)
	}
	if report == nil || len(report.Deleted) != 2 {
		t.Fatalf("DeleteEntry() report = %+v, want 2 deleted", report)
	}
	if report.Remaining != 1 {
		t.Errorf("remaining = %d, want 1", report.Remaining)
	}

	entries, _ := s.ListEntries("demo")
	if len(entries) != 1 || entries[0].Title != "Two" {
		t.Errorf("surviving entries = %+v", entries)
	}
}

func TestDeleteEntryNoMatch(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "demo", "a", "One", "")

	report, err := s.DeleteEntry("demo", memory.Selector{Content: "absent"})
	if err != nil {
		t.Fatalf("DeleteEntry() error = %v", err)
	}
	if report != nil {
		t.Errorf("DeleteEntry(no match) report = %+v, want nil", report)
	}
}

func TestDeleteProject(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "demo", "a", "", "")

	existed, err := s.DeleteProject("demo")
	if err != nil {
		t.Fatalf("DeleteProject() error = %v", err)
	}
	if !existed {
		t.Error("DeleteProject() = false, want true")
	}

	existed, err = s.DeleteProject("demo")
	if err != nil {
		t.Fatalf("second DeleteProject() error = %v", err)
	}
	if existed {
		t.Error("DeleteProject(gone) = true, want false")
	}
}

func TestRenameProject(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "old-name", "a", "Kept", "")

	renamed, err := s.RenameProject("old-name", "new-name")
	if err != nil {
		t.Fatalf("RenameProject() error = %v", err)
	}
	if !renamed {
		t.Fatal("RenameProject() = false, want true")
	}

	if _, ok, _ := s.Get("old-name"); ok {
		t.Error("old project still readable after rename")
	}
	entries, err := s.ListEntries("new-name")
	if err != nil {
		t.Fatalf("ListEntries(new) error = %v", err)
	}
	if len(entries) != 1 || entries[0].Title != "Kept" {
		t.Errorf("entries after rename = %+v", entries)
	}
}

func TestRenameProjectTargetExists(t *testing.T) {
	s := newTestStore(t)
	mustSave(t, s, "a", "1", "", "")
	mustSave(t, s, "b", "2", "", "")

	_, err := s.RenameProject("a", "b")
	if memory.KindOf(err) != memory.KindValidation {
		t.Errorf("RenameProject(existing target) kind = %q, want validation", memory.KindOf(err))
	}
	// Both projects untouched.
	if _, ok, _ := s.Get("a"); !ok {
		t.Error("source project lost after rejected rename")
	}
}

func TestRenameProjectMissingSource(t *testing.T) {
	s := newTestStore(t)
	renamed, err := s.RenameProject("ghost", "anything")
	if err != nil {
		t.Fatalf("RenameProject() error = %v", err)
	}
	if renamed {
		t.Error("RenameProject(missing) = true, want false")
	}
}

func TestNewCreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(dir)
	cfg.DBPath = filepath.Join(dir, "nested", "deeper", "memory.db")
	if _, err := New(cfg, zap.NewNop()); err != nil {
		t.Fatalf("New() with nested path error = %v", err)
	}
}

func TestMakeSummary(t *testing.T) {
	body := "Lead paragraph line one.\nline two.\n\nSecond paragraph."
	got := makeSummary(body)
	if got != "Lead paragraph line one. line two." {
		t.Errorf("makeSummary() = %q", got)
	}
	long := strings.Repeat("word ", 100)
	if got := makeSummary(long); len([]rune(got)) != summaryLen+3 {
		t.Errorf("makeSummary(long) length = %d, want %d with ellipsis", len([]rune(got)), summaryLen+3)
	}
}
