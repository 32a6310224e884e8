// Package syncer reconciles two memory backends by content similarity.
// It depends only on the capability interface: the source backend is
// read, never mutated, so an interrupted sync can always be replayed.
package syncer

import (
	"bufio"
	"strings"

	"go.uber.org/zap"

	"github.com/agentutil/membox/internal/memory"
	"github.com/agentutil/membox/internal/validate"
)

// Mode selects how decisions are handled.
type Mode string

const (
	// ModePreview computes and reports decisions without mutating the
	// target.
	ModePreview Mode = "preview"
	// ModeAuto applies every decision immediately.
	ModeAuto Mode = "auto"
	// ModeInteractive is an alias of ModeAuto. Kept because callers pass
	// it; real conflict prompts would need a terminal the server-side
	// sync path doesn't have.
	ModeInteractive Mode = "interactive"
)

// DefaultThreshold is the similarity above which diverged content is
// replaced rather than imported under a derived id.
const DefaultThreshold = 0.8

// Action is the reconciliation chosen for one project.
type Action string

const (
	// ActionImport copies a project absent from the target.
	ActionImport Action = "import"
	// ActionReplace wipes the target project and reinserts the source
	// entries; chosen when the two sides are similar enough.
	ActionReplace Action = "replace"
	// ActionImportAs imports diverged content under "<id>-imported"
	// instead of overwriting it.
	ActionImportAs Action = "import_as"
	// ActionSkip means the source project had no content to sync.
	ActionSkip Action = "skip"
)

// Decision records the reconciliation of one project. Report-only, never
// persisted.
type Decision struct {
	Project    string  `json:"project"`
	Action     Action  `json:"action"`
	Target     string  `json:"target,omitempty"` // destination project id when it differs
	Similarity float64 `json:"similarity"`
	Entries    int     `json:"entries,omitempty"` // entries written when applied
	Applied    bool    `json:"applied"`
}

// Report summarizes one sync run.
type Report struct {
	Mode      Mode       `json:"mode"`
	Threshold float64    `json:"threshold"`
	Decisions []Decision `json:"decisions"`
	Applied   int        `json:"applied"`
}

// Engine reconciles source into target.
type Engine struct {
	source memory.Backend
	target memory.Backend
	log    *zap.Logger
}

// New creates an engine syncing source into target.
func New(source, target memory.Backend, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{source: source, target: target, log: log.Named("syncer")}
}

// SyncAll reconciles every project present in the source store.
func (e *Engine) SyncAll(mode Mode, threshold float64) (*Report, error) {
	if err := checkArgs(mode, threshold); err != nil {
		return nil, err
	}

	projects, err := e.source.ListProjects()
	if err != nil {
		return nil, err
	}

	report := &Report{Mode: mode, Threshold: threshold}
	for _, p := range projects {
		d, err := e.SyncProject(p.ID, mode, threshold)
		if err != nil {
			return nil, err
		}
		report.Decisions = append(report.Decisions, *d)
		if d.Applied {
			report.Applied++
		}
	}
	e.log.Info("sync finished",
		zap.String("mode", string(mode)),
		zap.Int("projects", len(report.Decisions)),
		zap.Int("applied", report.Applied))
	return report, nil
}

// SyncProject reconciles a single project. The decision is computed from
// the similarity of the two rendered memory texts, then applied unless
// the mode is preview.
func (e *Engine) SyncProject(id string, mode Mode, threshold float64) (*Decision, error) {
	if err := checkArgs(mode, threshold); err != nil {
		return nil, err
	}

	srcText, ok, err := e.source.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Decision{Project: id, Action: ActionSkip}, nil
	}

	tgtText, tgtExists, err := e.target.Get(id)
	if err != nil {
		return nil, err
	}

	d := &Decision{Project: id, Target: id}
	switch {
	case !tgtExists:
		d.Action = ActionImport
	default:
		d.Similarity = Similarity(srcText, tgtText)
		if d.Similarity > threshold {
			d.Action = ActionReplace
		} else {
			d.Action = ActionImportAs
			d.Target = importTargetID(id)
		}
	}

	if mode == ModePreview {
		return d, nil
	}

	entries := parseBlocks(srcText)
	if d.Action == ActionReplace {
		if _, err := e.target.DeleteProject(id); err != nil {
			return nil, err
		}
	}
	for _, entry := range entries {
		if err := e.target.Save(d.Target, entry.Body, entry.Title, entry.Category); err != nil {
			return nil, err
		}
	}
	d.Entries = len(entries)
	d.Applied = true

	e.log.Info("project synced",
		zap.String("project", id),
		zap.String("action", string(d.Action)),
		zap.Float64("similarity", d.Similarity),
		zap.Int("entries", d.Entries))
	return d, nil
}

// importSuffix marks content imported alongside diverged target content.
const importSuffix = "-imported"

// importTargetID derives the import destination id, truncating the base
// so the result stays within the project id length limit and the write
// gate accepts it.
func importTargetID(id string) string {
	max := validate.DefaultLimits().MaxProjectIDLength
	if len(id)+len(importSuffix) > max {
		id = strings.TrimRight(id[:max-len(importSuffix)], "-_")
	}
	return id + importSuffix
}

// checkArgs rejects unknown modes and out-of-range thresholds.
func checkArgs(mode Mode, threshold float64) error {
	switch mode {
	case ModePreview, ModeAuto, ModeInteractive:
	default:
		return memory.Ef(memory.KindValidation, "syncer.sync", "unknown sync mode %q", mode)
	}
	if threshold < 0 || threshold > 1 {
		return memory.Ef(memory.KindValidation, "syncer.sync",
			"threshold %v outside [0, 1]", threshold)
	}
	return nil
}

// parseBlocks splits a rendered memory text back into entries. Both
// backends render the same format: a file header, then per entry a
// "## <timestamp>[ - <title>][ #<category>]" heading, body lines and a
// "---" separator.
func parseBlocks(text string) []memory.Entry {
	var entries []memory.Entry
	var cur *memory.Entry
	var body []string

	flush := func() {
		if cur == nil {
			return
		}
		cur.Body = strings.TrimSpace(strings.Join(body, "\n"))
		entries = append(entries, *cur)
		cur, body = nil, nil
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "## "):
			flush()
			ts, title, cat := splitHeading(strings.TrimPrefix(line, "## "))
			cur = &memory.Entry{Timestamp: ts, Title: title, Category: cat}
		case strings.TrimSpace(line) == "---":
			flush()
		case cur != nil:
			body = append(body, line)
		}
	}
	flush()
	return entries
}

// splitHeading separates "<timestamp>[ - <title>][ #<category>]".
func splitHeading(heading string) (ts, title, category string) {
	rest := heading
	if i := strings.Index(rest, "#"); i >= 0 {
		category = strings.TrimSpace(rest[i+1:])
		rest = rest[:i]
	}
	if i := strings.Index(rest, " - "); i >= 0 {
		title = strings.TrimSpace(rest[i+3:])
		rest = rest[:i]
	}
	ts = strings.TrimSpace(rest)
	return ts, title, category
}
