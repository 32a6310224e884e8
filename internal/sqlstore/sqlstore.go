// Package sqlstore implements the SQLite memory backend: relational
// storage with an FTS5 trigram index kept consistent by triggers, a
// query-classification retrieval router and token-budgeted context
// assembly. It implements memory.Backend and memory.Indexer.
package sqlstore

import (
	"database/sql"
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

// summaryLen is the length of the precomputed summary column.
const summaryLen = 200

// listPreviewLen is the body preview length in entry listings.
const listPreviewLen = 100

// searchPreviewLen is the body preview length in search results.
const searchPreviewLen = 500

// Store is the SQLite backend.
type Store struct {
	dbPath string
	cfg    config.Config
	lim    validate.Limits
	log    *zap.Logger
}

var (
	_ memory.Backend = (*Store)(nil)
	_ memory.Indexer = (*Store)(nil)
)

// New creates the backend at cfg.DBPath and runs the idempotent schema
// migration. Construction fails loudly when the database directory is
// not writable.
func New(cfg config.Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := openDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Store{
		dbPath: cfg.DBPath,
		cfg:    cfg,
		lim:    cfg.Limits(),
		log:    log.Named("sqlstore"),
	}, nil
}

// DBPath returns the database file path.
func (s *Store) DBPath() string { return s.dbPath }

// open opens a connection for one call. The caller closes it.
func (s *Store) open(op string) (*sql.DB, error) {
	db, err := openDB(s.dbPath)
	if err != nil {
		return nil, memory.E(memory.KindDatabase, op, "opening database", err)
	}
	return db, nil
}

// Save inserts a new entry. The project row upsert, the entry insert and
// the trigger-maintained index update run in a single transaction, so a
// failure in either half rolls back both — no orphan index rows.
func (s *Store) Save(project, body, title, category string) error {
	const op = "sqlstore.save"
	if err := s.lim.Entry(project, body, title, category); err != nil {
		return err
	}

	db, err := s.open(op)
	if err != nil {
		return err
	}
	defer db.Close()

	now := memory.Now()
	err = inTx(db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO projects (id, name, created_at, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
			project, memory.DisplayName(project), now, now,
		); err != nil {
			return fmt.Errorf("upserting project: %w", err)
		}

		body = strings.TrimSpace(body)
		if _, err := tx.Exec(
			`INSERT INTO memory_entries
			 (project_id, title, category, summary, keywords, body, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			project, nullable(title), nullable(category),
			makeSummary(body), deriveKeywords(title, category), body, now, now,
		); err != nil {
			return fmt.Errorf("inserting entry: %w", err)
		}
		return nil
	})
	if err != nil {
		e := memory.E(memory.KindDatabase, op, "saving entry", err)
		s.log.Error("save failed", zap.String("project", project), zap.Error(e))
		return e
	}
	s.log.Info("memory saved", zap.String("project", project))
	return nil
}

// Get renders the project's entries as the canonical Markdown memory
// text, matching the flat-file format.
func (s *Store) Get(project string) (string, bool, error) {
	const op = "sqlstore.get"
	if err := s.lim.ProjectID(project); err != nil {
		return "", false, err
	}

	entries, err := s.projectEntries(op, project)
	if err != nil {
		s.log.Error("get failed", zap.String("project", project), zap.Error(err))
		return "", false, err
	}
	if len(entries) == 0 {
		return "", false, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# AI Memory for %s\n\n", project)
	for _, e := range entries {
		fmt.Fprintf(&b, "## %s", e.Timestamp)
		if e.Title != "" {
			fmt.Fprintf(&b, " - %s", e.Title)
		}
		if e.Category != "" {
			fmt.Fprintf(&b, " #%s", e.Category)
		}
		fmt.Fprintf(&b, "\n\n%s\n\n---\n\n", e.Body)
	}
	return b.String(), true, nil
}

// Search routes the query through the strategy classifier; see router.go.
func (s *Store) Search(project, query string, limit int) ([]memory.SearchResult, error) {
	if err := s.lim.ProjectID(project); err != nil {
		return nil, err
	}
	if err := s.lim.Query(query); err != nil {
		return nil, err
	}
	limit = s.cfg.ClampLimit(limit)

	strategy := classifyQuery(query)
	s.log.Debug("query routed",
		zap.String("project", project),
		zap.String("strategy", string(strategy)))

	switch strategy {
	case strategySimple:
		return s.simpleLookup(project, query, limit)
	case strategyComplex:
		bundle, err := s.RAGAssemble(project, query, limit, s.cfg.RAGTokenBudget)
		if err != nil {
			return nil, err
		}
		results := make([]memory.SearchResult, len(bundle.Snippets))
		for i, sn := range bundle.Snippets {
			results[i] = memory.SearchResult{
				Timestamp: sn.Timestamp,
				Title:     sn.Title,
				Category:  sn.Category,
				Body:      sn.Text,
				Relevance: sn.Relevance,
			}
		}
		return results, nil
	default:
		return s.hybridSearch(project, query, limit)
	}
}

// GetRecent returns the most recent limit entries in chronological order.
func (s *Store) GetRecent(project string, limit int) ([]memory.Entry, error) {
	const op = "sqlstore.recent"
	if err := s.lim.ProjectID(project); err != nil {
		return nil, err
	}
	limit = s.cfg.ClampLimit(limit)

	db, err := s.open(op)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(
		`SELECT id, title, category, body, created_at
		 FROM memory_entries
		 WHERE project_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, project, limit)
	if err != nil {
		e := memory.E(memory.KindDatabase, op, "querying recent entries", err)
		s.log.Error("recent failed", zap.String("project", project), zap.Error(e))
		return nil, e
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, memory.E(memory.KindDatabase, op, "scanning recent entries", err)
	}

	// Newest-first from the query; present oldest-first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// ListEntries returns every entry with its row id and a short preview.
func (s *Store) ListEntries(project string) ([]memory.Entry, error) {
	const op = "sqlstore.entries"
	if err := s.lim.ProjectID(project); err != nil {
		return nil, err
	}
	entries, err := s.projectEntries(op, project)
	if err != nil {
		s.log.Error("list entries failed", zap.String("project", project), zap.Error(err))
		return nil, err
	}
	for i := range entries {
		entries[i].Body = preview(entries[i].Body, listPreviewLen)
	}
	return entries, nil
}

// ListProjects enumerates projects with aggregate statistics.
func (s *Store) ListProjects() ([]memory.ProjectSummary, error) {
	const op = "sqlstore.projects"
	db, err := s.open(op)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(
		`SELECT p.id, p.name, p.updated_at,
		        COUNT(me.id),
		        COALESCE(GROUP_CONCAT(DISTINCT me.category), '')
		 FROM projects p
		 LEFT JOIN memory_entries me ON me.project_id = p.id
		 GROUP BY p.id, p.name, p.updated_at
		 ORDER BY p.updated_at DESC`)
	if err != nil {
		e := memory.E(memory.KindDatabase, op, "querying projects", err)
		s.log.Error("list projects failed", zap.Error(e))
		return nil, e
	}
	defer rows.Close()

	var projects []memory.ProjectSummary
	for rows.Next() {
		var p memory.ProjectSummary
		var cats string
		if err := rows.Scan(&p.ID, &p.Name, &p.LastModified, &p.EntryCount, &cats); err != nil {
			return nil, memory.E(memory.KindDatabase, op, "scanning project row", err)
		}
		p.Categories = splitCategories(cats)
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, memory.E(memory.KindDatabase, op, "iterating project rows", err)
	}
	return projects, nil
}

// GetStats returns aggregate statistics for one project.
func (s *Store) GetStats(project string) (*memory.Stats, error) {
	const op = "sqlstore.stats"
	if err := s.lim.ProjectID(project); err != nil {
		return nil, err
	}

	db, err := s.open(op)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var st memory.Stats
	var chars sql.NullInt64
	var oldest, latest sql.NullString
	var cats string
	err = db.QueryRow(
		`SELECT COUNT(*), SUM(LENGTH(body)),
		        MIN(created_at), MAX(created_at),
		        COALESCE(GROUP_CONCAT(DISTINCT category), '')
		 FROM memory_entries
		 WHERE project_id = ?`, project,
	).Scan(&st.Entries, &chars, &oldest, &latest, &cats)
	if err != nil {
		e := memory.E(memory.KindDatabase, op, "querying stats", err)
		s.log.Error("stats failed", zap.String("project", project), zap.Error(e))
		return nil, e
	}
	if st.Entries == 0 {
		return &memory.Stats{}, nil
	}

	st.Exists = true
	st.Characters = int(chars.Int64)
	st.Words = wordCount(db, project)
	st.Oldest = oldest.String
	st.Latest = latest.String
	st.Categories = splitCategories(cats)
	return &st, nil
}

// EditEntry updates the first entry matched by sel inside a transaction.
func (s *Store) EditEntry(project string, sel memory.Selector, fields memory.EditFields) (*memory.EditReport, error) {
	const op = "sqlstore.edit"
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

	db, err := s.open(op)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var report *memory.EditReport
	err = inTx(db, func(tx *sql.Tx) error {
		where, args := selectorWhere(project, sel)

		var id int64
		err := tx.QueryRow(
			`SELECT id FROM memory_entries WHERE `+where+` ORDER BY id LIMIT 1`, args...,
		).Scan(&id)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("locating entry: %w", err)
		}

		sets := []string{"updated_at = ?"}
		setArgs := []any{memory.Now()}
		if fields.Title != nil {
			sets = append(sets, "title = ?")
			setArgs = append(setArgs, nullable(*fields.Title))
		}
		if fields.Category != nil {
			sets = append(sets, "category = ?")
			setArgs = append(setArgs, nullable(*fields.Category))
		}
		if fields.Body != nil {
			body := strings.TrimSpace(*fields.Body)
			sets = append(sets, "body = ?", "summary = ?")
			setArgs = append(setArgs, body, makeSummary(body))
		}
		setArgs = append(setArgs, id)

		if _, err := tx.Exec(
			`UPDATE memory_entries SET `+strings.Join(sets, ", ")+` WHERE id = ?`, setArgs...,
		); err != nil {
			return fmt.Errorf("updating entry: %w", err)
		}

		var e memory.Entry
		var title, category sql.NullString
		if err := tx.QueryRow(
			`SELECT id, title, category, body, created_at FROM memory_entries WHERE id = ?`, id,
		).Scan(&e.ID, &title, &category, &e.Body, &e.Timestamp); err != nil {
			return fmt.Errorf("reloading entry: %w", err)
		}
		e.Title, e.Category = title.String, category.String
		report = &memory.EditReport{Edited: e}
		return nil
	})
	if err != nil {
		e := memory.E(memory.KindDatabase, op, "editing entry", err)
		s.log.Error("edit failed", zap.String("project", project), zap.Error(e))
		return nil, e
	}
	return report, nil
}

// DeleteEntry removes every entry matched by sel in one transaction; the
// delete triggers keep the index consistent.
func (s *Store) DeleteEntry(project string, sel memory.Selector) (*memory.DeleteReport, error) {
	const op = "sqlstore.delete"
	if err := s.lim.ProjectID(project); err != nil {
		return nil, err
	}
	if sel.IsZero() {
		return nil, memory.Ef(memory.KindValidation, op, "empty selector")
	}

	db, err := s.open(op)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var report *memory.DeleteReport
	err = inTx(db, func(tx *sql.Tx) error {
		where, args := selectorWhere(project, sel)

		rows, err := tx.Query(
			`SELECT id, title, category, body, created_at
			 FROM memory_entries WHERE `+where+` ORDER BY id`, args...)
		if err != nil {
			return fmt.Errorf("locating entries: %w", err)
		}
		doomed, err := scanEntries(rows)
		rows.Close()
		if err != nil {
			return fmt.Errorf("scanning entries: %w", err)
		}
		if len(doomed) == 0 {
			return nil
		}

		if _, err := tx.Exec(
			`DELETE FROM memory_entries WHERE `+where, args...,
		); err != nil {
			return fmt.Errorf("deleting entries: %w", err)
		}

		var remaining int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM memory_entries WHERE project_id = ?`, project,
		).Scan(&remaining); err != nil {
			return fmt.Errorf("counting remaining: %w", err)
		}
		report = &memory.DeleteReport{Deleted: doomed, Remaining: remaining}
		return nil
	})
	if err != nil {
		e := memory.E(memory.KindDatabase, op, "deleting entries", err)
		s.log.Error("delete entry failed", zap.String("project", project), zap.Error(e))
		return nil, e
	}
	return report, nil
}

// DeleteProject removes a project and all its entries.
func (s *Store) DeleteProject(project string) (bool, error) {
	const op = "sqlstore.drop"
	if err := s.lim.ProjectID(project); err != nil {
		return false, err
	}

	db, err := s.open(op)
	if err != nil {
		return false, err
	}
	defer db.Close()

	existed := false
	err = inTx(db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM memory_entries WHERE project_id = ?`, project)
		if err != nil {
			return fmt.Errorf("deleting entries: %w", err)
		}
		entries, _ := res.RowsAffected()

		res, err = tx.Exec(`DELETE FROM projects WHERE id = ?`, project)
		if err != nil {
			return fmt.Errorf("deleting project: %w", err)
		}
		projects, _ := res.RowsAffected()

		existed = entries > 0 || projects > 0
		return nil
	})
	if err != nil {
		e := memory.E(memory.KindDatabase, op, "deleting project", err)
		s.log.Error("delete project failed", zap.String("project", project), zap.Error(e))
		return false, e
	}
	if existed {
		s.log.Info("project deleted", zap.String("project", project))
	}
	return existed, nil
}

// RenameProject relabels every owned entry under the new id in one
// transaction.
func (s *Store) RenameProject(oldID, newID string) (bool, error) {
	const op = "sqlstore.rename"
	if err := s.lim.ProjectID(oldID); err != nil {
		return false, err
	}
	if err := s.lim.ProjectID(newID); err != nil {
		return false, err
	}
	if oldID == newID {
		return false, memory.Ef(memory.KindValidation, op, "old and new project ids are equal")
	}

	db, err := s.open(op)
	if err != nil {
		return false, err
	}
	defer db.Close()

	renamed := false
	err = inTx(db, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM projects WHERE id = ?`, oldID,
		).Scan(&n); err != nil {
			return fmt.Errorf("checking source project: %w", err)
		}
		if n == 0 {
			return nil
		}
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM projects WHERE id = ?`, newID,
		).Scan(&n); err != nil {
			return fmt.Errorf("checking target project: %w", err)
		}
		if n > 0 {
			return memory.Ef(memory.KindValidation, op, "project %q already exists", newID)
		}

		now := memory.Now()
		if _, err := tx.Exec(
			`INSERT INTO projects (id, name, created_at, updated_at)
			 SELECT ?, ?, created_at, ? FROM projects WHERE id = ?`,
			newID, memory.DisplayName(newID), now, oldID,
		); err != nil {
			return fmt.Errorf("creating target project: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE memory_entries SET project_id = ? WHERE project_id = ?`, newID, oldID,
		); err != nil {
			return fmt.Errorf("relabeling entries: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM projects WHERE id = ?`, oldID); err != nil {
			return fmt.Errorf("removing source project: %w", err)
		}
		renamed = true
		return nil
	})
	if err != nil {
		if memory.KindOf(err) != "" {
			return false, err
		}
		e := memory.E(memory.KindDatabase, op, "renaming project", err)
		s.log.Error("rename failed", zap.String("from", oldID), zap.String("to", newID), zap.Error(e))
		return false, e
	}
	if renamed {
		s.log.Info("project renamed", zap.String("from", oldID), zap.String("to", newID))
	}
	return renamed, nil
}

// projectEntries loads all entries of a project ordered by insertion.
func (s *Store) projectEntries(op, project string) ([]memory.Entry, error) {
	db, err := s.open(op)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(
		`SELECT id, title, category, body, created_at
		 FROM memory_entries
		 WHERE project_id = ?
		 ORDER BY created_at, id`, project)
	if err != nil {
		return nil, memory.E(memory.KindDatabase, op, "querying entries", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, memory.E(memory.KindDatabase, op, "scanning entries", err)
	}
	return entries, nil
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

// inTx runs fn inside a transaction, rolling back on error.
func inTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// selectorWhere builds the WHERE clause addressing entries by selector.
// Column names are fixed here, never caller-supplied; dynamic columns
// would pass through validate.Column first.
func selectorWhere(project string, sel memory.Selector) (string, []any) {
	conds := []string{"project_id = ?"}
	args := []any{project}

	switch {
	case sel.ID != 0:
		conds = append(conds, "id = ?")
		args = append(args, sel.ID)
	case sel.Timestamp != "":
		conds = append(conds, "created_at LIKE ?")
		args = append(args, "%"+sel.Timestamp+"%")
	case sel.Title != "":
		conds = append(conds, "title LIKE ?")
		args = append(args, "%"+sel.Title+"%")
	case sel.Category != "":
		conds = append(conds, "category LIKE ?")
		args = append(args, "%"+sel.Category+"%")
	case sel.Content != "":
		conds = append(conds, "body LIKE ?")
		args = append(args, "%"+sel.Content+"%")
	}
	return strings.Join(conds, " AND "), args
}

// scanEntries converts rows of (id, title, category, body, created_at).
func scanEntries(rows *sql.Rows) ([]memory.Entry, error) {
	var entries []memory.Entry
	for rows.Next() {
		var e memory.Entry
		var title, category sql.NullString
		if err := rows.Scan(&e.ID, &title, &category, &e.Body, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Title = title.String
		e.Category = category.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// wordCount estimates total words across a project's bodies.
func wordCount(db *sql.DB, project string) int {
	rows, err := db.Query(`SELECT body FROM memory_entries WHERE project_id = ?`, project)
	if err != nil {
		return 0
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		var body string
		if rows.Scan(&body) == nil {
			total += len(strings.Fields(body))
		}
	}
	return total
}

// makeSummary derives the compact summary column from a body: the lead
// paragraph truncated to summaryLen runes. Computed at write time so
// index-only reads never touch the body.
func makeSummary(body string) string {
	lead := body
	if i := strings.Index(body, "\n\n"); i >= 0 {
		lead = body[:i]
	}
	lead = strings.Join(strings.Fields(lead), " ")
	return preview(lead, summaryLen)
}

// deriveKeywords builds the keyword-like column from title and category.
func deriveKeywords(title, category string) string {
	seen := make(map[string]bool)
	var words []string
	for _, w := range strings.Fields(strings.ToLower(title + " " + category)) {
		if !seen[w] {
			seen[w] = true
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}

// nullable converts an empty string to NULL.
func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// splitCategories parses a GROUP_CONCAT category list into a sorted set.
func splitCategories(cats string) []string {
	if cats == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, c := range strings.Split(cats, ",") {
		c = strings.TrimSpace(c)
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// preview truncates s to max runes, appending an ellipsis when trimmed.
func preview(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
