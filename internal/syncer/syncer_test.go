package syncer

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/agentutil/membox/internal/config"
	"github.com/agentutil/membox/internal/filestore"
	"github.com/agentutil/membox/internal/memory"
	"github.com/agentutil/membox/internal/sqlstore"
)

func newTestEngine(t *testing.T) (*Engine, memory.Backend, memory.Backend) {
	t.Helper()
	cfg := config.Default(t.TempDir())
	src, err := filestore.New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("filestore.New() error = %v", err)
	}
	tgt, err := sqlstore.New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("sqlstore.New() error = %v", err)
	}
	return New(src, tgt, zap.NewNop()), src, tgt
}

func TestSimilarityLaws(t *testing.T) {
	a := "the quick brown fox"
	b := "an entirely different sentence here"

	if got := Similarity(a, a); got != 1.0 {
		t.Errorf("Similarity(a, a) = %v, want 1.0", got)
	}
	if got := Similarity("", ""); got != 1.0 {
		t.Errorf("Similarity(empty, empty) = %v, want 1.0", got)
	}
	if got := Similarity("", b); got != 0.0 {
		t.Errorf("Similarity(empty, b) = %v, want 0.0", got)
	}
	if got := Similarity(a, ""); got != 0.0 {
		t.Errorf("Similarity(a, empty) = %v, want 0.0", got)
	}
	if Similarity(a, b) != Similarity(b, a) {
		t.Error("Similarity is not symmetric")
	}
	if got := Similarity(a, b); got != 0.0 {
		t.Errorf("Similarity(disjoint) = %v, want 0.0", got)
	}
}

func TestSimilarityPartialOverlap(t *testing.T) {
	// 2 shared tokens of 4 total: 2/4.
	got := Similarity("alpha beta", "beta alpha gamma delta")
	if got != 0.5 {
		t.Errorf("Similarity() = %v, want 0.5", got)
	}
	// Case-insensitive tokenization.
	if Similarity("Alpha", "alpha") != 1.0 {
		t.Error("Similarity is case-sensitive, want insensitive")
	}
}

func TestSyncProjectImport(t *testing.T) {
	e, src, tgt := newTestEngine(t)
	if err := src.Save("demo", "note body", "Title", "cat"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	d, err := e.SyncProject("demo", ModeAuto, DefaultThreshold)
	if err != nil {
		t.Fatalf("SyncProject() error = %v", err)
	}
	if d.Action != ActionImport || !d.Applied || d.Entries != 1 {
		t.Errorf("decision = %+v, want applied import of 1 entry", d)
	}

	entries, err := tgt.ListEntries("demo")
	if err != nil {
		t.Fatalf("target ListEntries() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Title != "Title" || entries[0].Category != "cat" {
		t.Errorf("target entries = %+v", entries)
	}
}

func TestSyncProjectPreviewDoesNotMutate(t *testing.T) {
	e, src, tgt := newTestEngine(t)
	if err := src.Save("demo", "note body", "", ""); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	d, err := e.SyncProject("demo", ModePreview, DefaultThreshold)
	if err != nil {
		t.Fatalf("SyncProject() error = %v", err)
	}
	if d.Action != ActionImport || d.Applied {
		t.Errorf("decision = %+v, want unapplied import", d)
	}
	if _, ok, _ := tgt.Get("demo"); ok {
		t.Error("preview mode mutated the target")
	}
}

func TestSyncProjectReplaceWhenSimilar(t *testing.T) {
	e, src, tgt := newTestEngine(t)
	if err := src.Save("demo", "shared body text plus a fix", "Title", ""); err != nil {
		t.Fatalf("source Save() error = %v", err)
	}
	if err := tgt.Save("demo", "shared body text", "Title", ""); err != nil {
		t.Fatalf("target Save() error = %v", err)
	}
	if err := tgt.Save("demo", "stale extra entry", "Old", ""); err != nil {
		t.Fatalf("target Save() error = %v", err)
	}

	d, err := e.SyncProject("demo", ModeAuto, 0.3)
	if err != nil {
		t.Fatalf("SyncProject() error = %v", err)
	}
	if d.Action != ActionReplace || !d.Applied {
		t.Errorf("decision = %+v, want applied replace", d)
	}

	// Wipe-then-reinsert: only the source's single entry survives.
	entries, _ := tgt.ListEntries("demo")
	if len(entries) != 1 {
		t.Fatalf("target entries = %d, want 1 after replace", len(entries))
	}
	if entries[0].Title != "Title" {
		t.Errorf("surviving entry = %+v", entries[0])
	}
}

func TestSyncProjectImportAsWhenDiverged(t *testing.T) {
	e, src, tgt := newTestEngine(t)
	if err := src.Save("demo", "completely different content about deployments", "", ""); err != nil {
		t.Fatalf("source Save() error = %v", err)
	}
	if err := tgt.Save("demo", "unrelated notes regarding invoices", "", ""); err != nil {
		t.Fatalf("target Save() error = %v", err)
	}

	d, err := e.SyncProject("demo", ModeAuto, 0.8)
	if err != nil {
		t.Fatalf("SyncProject() error = %v", err)
	}
	if d.Action != ActionImportAs || d.Target != "demo-imported" {
		t.Fatalf("decision = %+v, want import_as demo-imported", d)
	}

	// Diverged target content is preserved; source lands alongside.
	if _, ok, _ := tgt.Get("demo"); !ok {
		t.Error("diverged target project was lost")
	}
	entries, err := tgt.ListEntries("demo-imported")
	if err != nil {
		t.Fatalf("ListEntries(imported) error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("imported entries = %d, want 1", len(entries))
	}
}

func TestSyncProjectImportAsLongID(t *testing.T) {
	e, src, tgt := newTestEngine(t)
	// At the project id length cap, appending the import suffix must not
	// push the derived id past the write gate.
	longID := strings.Repeat("a", 64)
	if err := src.Save(longID, "completely different content about deployments", "", ""); err != nil {
		t.Fatalf("source Save() error = %v", err)
	}
	if err := tgt.Save(longID, "unrelated notes regarding invoices", "", ""); err != nil {
		t.Fatalf("target Save() error = %v", err)
	}

	d, err := e.SyncProject(longID, ModeAuto, 0.8)
	if err != nil {
		t.Fatalf("SyncProject() error = %v", err)
	}
	if d.Action != ActionImportAs || !d.Applied {
		t.Fatalf("decision = %+v, want applied import_as", d)
	}
	if len(d.Target) > 64 {
		t.Errorf("derived id length = %d, exceeds project id limit", len(d.Target))
	}
	if !strings.HasSuffix(d.Target, "-imported") {
		t.Errorf("derived id = %q, want -imported suffix", d.Target)
	}
	entries, err := tgt.ListEntries(d.Target)
	if err != nil {
		t.Fatalf("ListEntries(%q) error = %v", d.Target, err)
	}
	if len(entries) != 1 {
		t.Errorf("imported entries = %d, want 1", len(entries))
	}
}

func TestImportTargetID(t *testing.T) {
	if got := importTargetID("demo"); got != "demo-imported" {
		t.Errorf("importTargetID(short) = %q", got)
	}
	long := strings.Repeat("x", 64)
	got := importTargetID(long)
	if len(got) != 64 || !strings.HasSuffix(got, "-imported") {
		t.Errorf("importTargetID(max) = %q (len %d), want 64 chars ending in -imported", got, len(got))
	}
	// A truncation landing on a separator drops it rather than leaving
	// "--imported".
	dashed := strings.Repeat("y", 54) + "-tail"
	got = importTargetID(dashed)
	if strings.Contains(got, "--") {
		t.Errorf("importTargetID(dashed) = %q, want no double separator", got)
	}
}

func TestSyncProjectThresholdBoundary(t *testing.T) {
	e, src, tgt := newTestEngine(t)
	// Identical content gives similarity 1.0; at threshold 1.0 the
	// strictly-greater rule picks import_as, not replace.
	if err := src.Save("demo", "same body", "Same", ""); err != nil {
		t.Fatalf("source Save() error = %v", err)
	}
	if err := tgt.Save("demo", "same body", "Same", ""); err != nil {
		t.Fatalf("target Save() error = %v", err)
	}

	d, err := e.SyncProject("demo", ModePreview, 1.0)
	if err != nil {
		t.Fatalf("SyncProject() error = %v", err)
	}
	if d.Action != ActionImportAs {
		t.Errorf("action at exact threshold = %q, want import_as", d.Action)
	}
}

func TestSyncProjectMissingSource(t *testing.T) {
	e, _, _ := newTestEngine(t)
	d, err := e.SyncProject("ghost", ModeAuto, DefaultThreshold)
	if err != nil {
		t.Fatalf("SyncProject() error = %v", err)
	}
	if d.Action != ActionSkip || d.Applied {
		t.Errorf("decision = %+v, want unapplied skip", d)
	}
}

func TestSyncAll(t *testing.T) {
	e, src, _ := newTestEngine(t)
	for _, p := range []string{"one", "two"} {
		if err := src.Save(p, "body for "+p, "", ""); err != nil {
			t.Fatalf("Save(%q) error = %v", p, err)
		}
	}

	report, err := e.SyncAll(ModeAuto, DefaultThreshold)
	if err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if len(report.Decisions) != 2 || report.Applied != 2 {
		t.Errorf("report = %+v, want 2 applied decisions", report)
	}
}

func TestSyncArgsValidated(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.SyncProject("demo", Mode("yolo"), 0.5); memory.KindOf(err) != memory.KindValidation {
		t.Errorf("unknown mode kind = %q, want validation", memory.KindOf(err))
	}
	if _, err := e.SyncProject("demo", ModeAuto, 1.5); memory.KindOf(err) != memory.KindValidation {
		t.Errorf("bad threshold kind = %q, want validation", memory.KindOf(err))
	}
}

func TestInteractiveBehavesLikeAuto(t *testing.T) {
	e, src, tgt := newTestEngine(t)
	if err := src.Save("demo", "note body", "", ""); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	d, err := e.SyncProject("demo", ModeInteractive, DefaultThreshold)
	if err != nil {
		t.Fatalf("SyncProject() error = %v", err)
	}
	if !d.Applied {
		t.Error("interactive mode did not apply, want auto behavior")
	}
	if _, ok, _ := tgt.Get("demo"); !ok {
		t.Error("interactive sync left target empty")
	}
}

func TestParseBlocksRoundTrip(t *testing.T) {
	text := "# AI Memory for demo\n\n" +
		"Created: 2025-01-01 00:00:00\n\n" +
		"## 2025-01-01 10:00:00 - First #infra\n\nline one\nline two\n\n---\n\n" +
		"## 2025-01-02 11:00:00\n\nsecond body\n\n---\n"

	entries := parseBlocks(text)
	if len(entries) != 2 {
		t.Fatalf("parseBlocks() = %d entries, want 2", len(entries))
	}
	if entries[0].Title != "First" || entries[0].Category != "infra" || entries[0].Body != "line one\nline two" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Body != "second body" || entries[1].Title != "" {
		t.Errorf("second entry = %+v", entries[1])
	}
	if !strings.HasPrefix(entries[0].Timestamp, "2025-01-01") {
		t.Errorf("first timestamp = %q", entries[0].Timestamp)
	}
}
