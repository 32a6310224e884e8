// Package filestore implements the flat-file memory backend: one
// Markdown file per project, append-only saves, advisory locking and
// atomic whole-file rewrites for every mutation.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/agentutil/membox/internal/config"
	"github.com/agentutil/membox/internal/memory"
	"github.com/agentutil/membox/internal/validate"
)

// GlobalProject is the reserved cross-project memory file excluded from
// project listings.
const GlobalProject = "global"

// searchPreviewLen is the body preview length in search results.
const searchPreviewLen = 500

// listPreviewLen is the body preview length in entry listings.
const listPreviewLen = 100

// Store is the flat-file backend. It implements memory.Backend.
type Store struct {
	root string
	cfg  config.Config
	lim  validate.Limits
	log  *zap.Logger
}

var _ memory.Backend = (*Store)(nil)

// New creates the backend rooted at cfg.StorageRoot. Construction fails
// loudly when the root cannot be created or is not writable.
func New(cfg config.Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.StorageRoot, 0755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}

	// Write probe: refuse to start on a read-only root.
	probe := filepath.Join(cfg.StorageRoot, ".write_test")
	if err := os.WriteFile(probe, []byte("test"), 0644); err != nil {
		return nil, fmt.Errorf("storage root %s is not writable: %w", cfg.StorageRoot, err)
	}
	os.Remove(probe)

	return &Store{
		root: cfg.StorageRoot,
		cfg:  cfg,
		lim:  cfg.Limits(),
		log:  log.Named("filestore"),
	}, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) path(project string) string {
	return filepath.Join(s.root, project+".md")
}

func (s *Store) lockPath(project string) string {
	return filepath.Join(s.root, project+".md.lock")
}

// readEntries parses the project file. A missing file yields (nil,
// false, nil).
func (s *Store) readEntries(op, project string) ([]memory.Entry, bool, error) {
	data, err := os.ReadFile(s.path(project))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, memory.E(memory.KindStorage, op, "reading memory file", err)
	}
	entries, err := parseSections(string(data))
	if err != nil {
		return nil, false, memory.E(memory.KindStorage, op, "parsing memory file", err)
	}
	return entries, true, nil
}

// rewrite replaces the project file with the rendered entries, or
// removes it when no entries remain. Callers must hold the lock.
func (s *Store) rewrite(op, project string, entries []memory.Entry) error {
	if len(entries) == 0 {
		if err := os.Remove(s.path(project)); err != nil && !os.IsNotExist(err) {
			return memory.E(memory.KindStorage, op, "removing empty memory file", err)
		}
		return nil
	}
	if err := writeFileAtomic(s.path(project), []byte(renderFile(project, entries))); err != nil {
		return memory.E(memory.KindStorage, op, "rewriting memory file", err)
	}
	return nil
}

// Save appends a new entry block. The whole file passes through the
// atomic-rewrite path so a failure mid-write leaves prior state intact.
func (s *Store) Save(project, body, title, category string) error {
	const op = "filestore.save"
	if err := s.lim.Entry(project, body, title, category); err != nil {
		return err
	}

	err := s.withLock(op, project, func() error {
		path := s.path(project)
		existing, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return memory.E(memory.KindStorage, op, "reading memory file", err)
		}

		entry := memory.Entry{
			Timestamp: memory.Now(),
			Title:     title,
			Category:  category,
			Body:      strings.TrimSpace(body),
		}

		var b strings.Builder
		if len(existing) == 0 {
			fmt.Fprintf(&b, "# AI Memory for %s\n\n", project)
			fmt.Fprintf(&b, "Created: %s\n\n", entry.Timestamp)
		} else {
			b.Write(existing)
			if !strings.HasSuffix(b.String(), "\n") {
				b.WriteString("\n")
			}
		}
		b.WriteString(formatEntry(entry))

		if err := writeFileAtomic(path, []byte(b.String())); err != nil {
			return memory.E(memory.KindStorage, op, "writing memory file", err)
		}
		return nil
	})
	if err != nil {
		s.log.Error("save failed", zap.String("project", project), zap.Error(err))
		return err
	}
	s.log.Info("memory saved", zap.String("project", project))
	return nil
}

// Get returns the full rendered memory text for a project.
func (s *Store) Get(project string) (string, bool, error) {
	const op = "filestore.get"
	if err := s.lim.ProjectID(project); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(s.path(project))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		e := memory.E(memory.KindStorage, op, "reading memory file", err)
		s.log.Error("get failed", zap.String("project", project), zap.Error(e))
		return "", false, e
	}
	return string(data), true, nil
}

// Search performs a case-insensitive substring match over entry bodies.
// Relevance is the occurrence count of the query within the body;
// results are sorted by relevance descending with previews capped at 500
// characters.
func (s *Store) Search(project, query string, limit int) ([]memory.SearchResult, error) {
	const op = "filestore.search"
	if err := s.lim.ProjectID(project); err != nil {
		return nil, err
	}
	if err := s.lim.Query(query); err != nil {
		return nil, err
	}
	limit = s.cfg.ClampLimit(limit)

	entries, ok, err := s.readEntries(op, project)
	if err != nil {
		s.log.Error("search failed", zap.String("project", project), zap.Error(err))
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	q := strings.ToLower(query)
	var results []memory.SearchResult
	for _, e := range entries {
		count := strings.Count(strings.ToLower(e.Body), q)
		if count == 0 {
			continue
		}
		results = append(results, memory.SearchResult{
			Timestamp: e.Timestamp,
			Title:     e.Title,
			Category:  e.Category,
			Body:      preview(e.Body, searchPreviewLen),
			Relevance: float64(count),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// GetRecent returns the last limit entries in chronological order.
func (s *Store) GetRecent(project string, limit int) ([]memory.Entry, error) {
	const op = "filestore.recent"
	if err := s.lim.ProjectID(project); err != nil {
		return nil, err
	}
	limit = s.cfg.ClampLimit(limit)

	entries, _, err := s.readEntries(op, project)
	if err != nil {
		s.log.Error("recent failed", zap.String("project", project), zap.Error(err))
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// ListEntries returns every entry with its 1-based id and a 100
// character body preview.
func (s *Store) ListEntries(project string) ([]memory.Entry, error) {
	const op = "filestore.entries"
	if err := s.lim.ProjectID(project); err != nil {
		return nil, err
	}
	entries, _, err := s.readEntries(op, project)
	if err != nil {
		s.log.Error("list entries failed", zap.String("project", project), zap.Error(err))
		return nil, err
	}
	out := make([]memory.Entry, len(entries))
	for i, e := range entries {
		e.Body = preview(e.Body, listPreviewLen)
		out[i] = e
	}
	return out, nil
}

// ListProjects enumerates backing files and computes per-file stats by
// full re-parse. The reserved global file is excluded. Invoked rarely
// relative to save/search, so no cached index.
func (s *Store) ListProjects() ([]memory.ProjectSummary, error) {
	const op = "filestore.projects"
	matches, err := filepath.Glob(filepath.Join(s.root, "*.md"))
	if err != nil {
		e := memory.E(memory.KindStorage, op, "listing memory files", err)
		s.log.Error("list projects failed", zap.Error(e))
		return nil, e
	}

	var projects []memory.ProjectSummary
	for _, path := range matches {
		id := strings.TrimSuffix(filepath.Base(path), ".md")
		if id == GlobalProject {
			continue
		}
		entries, _, err := s.readEntries(op, id)
		if err != nil {
			s.log.Warn("skipping unreadable project", zap.String("project", id), zap.Error(err))
			continue
		}
		summary := memory.ProjectSummary{
			ID:         id,
			Name:       memory.DisplayName(id),
			Path:       path,
			EntryCount: len(entries),
			Categories: distinctCategories(entries),
		}
		if info, err := os.Stat(path); err == nil {
			summary.LastModified = info.ModTime().Format(memory.TimestampLayout)
		}
		projects = append(projects, summary)
	}

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].LastModified > projects[j].LastModified
	})
	return projects, nil
}

// GetStats returns aggregate statistics for one project.
func (s *Store) GetStats(project string) (*memory.Stats, error) {
	const op = "filestore.stats"
	if err := s.lim.ProjectID(project); err != nil {
		return nil, err
	}
	text, ok, err := s.Get(project)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &memory.Stats{}, nil
	}
	entries, err := parseSections(text)
	if err != nil {
		e := memory.E(memory.KindStorage, op, "parsing memory file", err)
		s.log.Error("stats failed", zap.String("project", project), zap.Error(e))
		return nil, e
	}

	st := &memory.Stats{
		Exists:     true,
		Entries:    len(entries),
		Words:      len(strings.Fields(text)),
		Characters: len(text),
		Categories: distinctCategories(entries),
	}
	if len(entries) > 0 {
		st.Oldest = entries[0].Timestamp
		st.Latest = entries[len(entries)-1].Timestamp
	}
	return st, nil
}

// EditEntry updates the first entry matched by sel and rewrites the
// whole file under lock.
func (s *Store) EditEntry(project string, sel memory.Selector, fields memory.EditFields) (*memory.EditReport, error) {
	const op = "filestore.edit"
	if err := s.lim.ProjectID(project); err != nil {
		return nil, err
	}
	if sel.IsZero() {
		return nil, memory.Ef(memory.KindValidation, op, "empty selector")
	}
	if fields.IsZero() {
		return nil, memory.Ef(memory.KindValidation, op, "no fields to update")
	}
	if err := s.validateFields(fields); err != nil {
		return nil, err
	}

	var report *memory.EditReport
	err := s.withLock(op, project, func() error {
		entries, ok, err := s.readEntries(op, project)
		if err != nil {
			return err
		}
		if !ok {
			return nil // NotFound: report stays nil
		}

		idx := -1
		for i, e := range entries {
			if matchSelector(e, sel) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil
		}

		if fields.Title != nil {
			entries[idx].Title = *fields.Title
		}
		if fields.Category != nil {
			entries[idx].Category = *fields.Category
		}
		if fields.Body != nil {
			entries[idx].Body = strings.TrimSpace(*fields.Body)
		}

		if err := s.rewrite(op, project, entries); err != nil {
			return err
		}
		report = &memory.EditReport{Edited: entries[idx]}
		return nil
	})
	if err != nil {
		s.log.Error("edit failed", zap.String("project", project), zap.Error(err))
		return nil, err
	}
	return report, nil
}

// validateFields applies the write gate to replacement values.
func (s *Store) validateFields(fields memory.EditFields) error {
	if fields.Title != nil {
		if err := s.lim.Title(*fields.Title); err != nil {
			return err
		}
	}
	if fields.Category != nil {
		if err := s.lim.Category(*fields.Category); err != nil {
			return err
		}
	}
	if fields.Body != nil {
		if err := s.lim.Content(*fields.Body); err != nil {
			return err
		}
	}
	return nil
}

// DeleteEntry removes every entry matched by sel. Deleting position k
// shifts later entries down by one.
func (s *Store) DeleteEntry(project string, sel memory.Selector) (*memory.DeleteReport, error) {
	const op = "filestore.delete"
	if err := s.lim.ProjectID(project); err != nil {
		return nil, err
	}
	if sel.IsZero() {
		return nil, memory.Ef(memory.KindValidation, op, "empty selector")
	}

	var report *memory.DeleteReport
	err := s.withLock(op, project, func() error {
		entries, ok, err := s.readEntries(op, project)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		var kept []memory.Entry
		var deleted []memory.Entry
		for _, e := range entries {
			if matchSelector(e, sel) {
				deleted = append(deleted, e)
			} else {
				kept = append(kept, e)
			}
		}
		if len(deleted) == 0 {
			return nil
		}

		// Reassign 1-based positions after the removal.
		for i := range kept {
			kept[i].ID = int64(i + 1)
		}

		if err := s.rewrite(op, project, kept); err != nil {
			return err
		}
		report = &memory.DeleteReport{Deleted: deleted, Remaining: len(kept)}
		return nil
	})
	if err != nil {
		s.log.Error("delete entry failed", zap.String("project", project), zap.Error(err))
		return nil, err
	}
	return report, nil
}

// DeleteProject removes a project's memory file. Returns false when the
// project did not exist.
func (s *Store) DeleteProject(project string) (bool, error) {
	const op = "filestore.drop"
	if err := s.lim.ProjectID(project); err != nil {
		return false, err
	}

	existed := false
	err := s.withLock(op, project, func() error {
		err := os.Remove(s.path(project))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return memory.E(memory.KindStorage, op, "removing memory file", err)
		}
		existed = true
		return nil
	})
	if err != nil {
		s.log.Error("delete project failed", zap.String("project", project), zap.Error(err))
		return false, err
	}
	if existed {
		s.removeLockFile(project)
		s.log.Info("project deleted", zap.String("project", project))
	}
	return existed, nil
}

// RenameProject atomically relabels a project: the file moves to the new
// id and the header is rewritten, all under both projects' locks.
func (s *Store) RenameProject(oldID, newID string) (bool, error) {
	const op = "filestore.rename"
	if err := s.lim.ProjectID(oldID); err != nil {
		return false, err
	}
	if err := s.lim.ProjectID(newID); err != nil {
		return false, err
	}
	if oldID == newID {
		return false, memory.Ef(memory.KindValidation, op, "old and new project ids are equal")
	}

	renamed := false
	err := s.withTwoLocks(op, oldID, newID, func() error {
		entries, ok, err := s.readEntries(op, oldID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, err := os.Stat(s.path(newID)); err == nil {
			return memory.Ef(memory.KindValidation, op, "project %q already exists", newID)
		}

		if err := writeFileAtomic(s.path(newID), []byte(renderFile(newID, entries))); err != nil {
			return memory.E(memory.KindStorage, op, "writing renamed memory file", err)
		}
		if err := os.Remove(s.path(oldID)); err != nil {
			return memory.E(memory.KindStorage, op, "removing old memory file", err)
		}
		renamed = true
		return nil
	})
	if err != nil {
		s.log.Error("rename failed", zap.String("from", oldID), zap.String("to", newID), zap.Error(err))
		return false, err
	}
	if renamed {
		s.removeLockFile(oldID)
		s.log.Info("project renamed", zap.String("from", oldID), zap.String("to", newID))
	}
	return renamed, nil
}

// matchSelector reports whether an entry is addressed by sel. ID takes
// precedence; substring matchers are case-insensitive.
func matchSelector(e memory.Entry, sel memory.Selector) bool {
	switch {
	case sel.ID != 0:
		return e.ID == sel.ID
	case sel.Timestamp != "":
		return strings.Contains(e.Timestamp, sel.Timestamp)
	case sel.Title != "":
		return e.Title != "" && strings.Contains(strings.ToLower(e.Title), strings.ToLower(sel.Title))
	case sel.Category != "":
		return e.Category != "" && strings.Contains(strings.ToLower(e.Category), strings.ToLower(sel.Category))
	case sel.Content != "":
		return strings.Contains(strings.ToLower(e.Body), strings.ToLower(sel.Content))
	}
	return false
}

// distinctCategories returns the sorted set of non-empty categories.
func distinctCategories(entries []memory.Entry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		if e.Category != "" && !seen[e.Category] {
			seen[e.Category] = true
			out = append(out, e.Category)
		}
	}
	sort.Strings(out)
	return out
}
