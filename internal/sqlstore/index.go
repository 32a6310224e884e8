package sqlstore

import (
	"database/sql"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/agentutil/membox/internal/memory"
)

// SearchIndex queries compact indexed columns only. With a non-empty
// query it matches the full-text index; an empty query lists the newest
// entries. Bodies are never loaded on this path.
func (s *Store) SearchIndex(project, query string, limit int, filters *memory.IndexFilters) ([]memory.IndexResult, error) {
	const op = "sqlstore.index_search"
	if err := s.lim.ProjectID(project); err != nil {
		return nil, err
	}
	if query != "" {
		if err := s.lim.Query(query); err != nil {
			return nil, err
		}
	}
	limit = s.cfg.ClampLimit(limit)

	db, err := s.open(op)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	filterSQL, filterArgs := indexFilterSQL(filters)

	var hits []memory.IndexResult
	if fq := prepareFTSQuery(query); fq != "" {
		args := append([]any{fq, project}, filterArgs...)
		args = append(args, limit)
		rows, err := db.Query(
			`SELECT me.id, me.created_at, COALESCE(me.title, ''),
			        COALESCE(me.category, ''), me.summary, -memory_fts.rank
			 FROM memory_fts
			 JOIN memory_entries me ON me.id = memory_fts.rowid
			 WHERE memory_fts MATCH ? AND me.project_id = ?`+filterSQL+`
			 ORDER BY me.created_at DESC, me.id DESC
			 LIMIT ?`, args...)
		if err == nil {
			hits, err = scanIndexResults(rows)
			rows.Close()
			if err != nil {
				return nil, memory.E(memory.KindDatabase, op, "scanning index hits", err)
			}
		}
	}
	if len(hits) > 0 {
		return hits, nil
	}

	// Fallback: empty query, sub-trigram fragments, or zero FTS rows.
	// Recency-ordered scan over the compact columns plus a title/keyword
	// substring filter when a query was given.
	conds := []string{"project_id = ?"}
	args := []any{project}
	if query != "" {
		conds = append(conds,
			`(title LIKE ? ESCAPE '\' OR keywords LIKE ? ESCAPE '\' OR summary LIKE ? ESCAPE '\')`)
		p := likePattern(query)
		args = append(args, p, p, p)
	}
	filterSQL, filterArgs = indexFilterSQL(filters)
	args = append(args, filterArgs...)
	args = append(args, limit)

	rows, err := db.Query(
		`SELECT id, created_at, COALESCE(title, ''), COALESCE(category, ''), summary, 1.0
		 FROM memory_entries
		 WHERE `+strings.Join(conds, " AND ")+filterSQL+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, args...)
	if err != nil {
		return nil, memory.E(memory.KindDatabase, op, "index fallback scan", err)
	}
	defer rows.Close()

	hits, err = scanIndexResults(rows)
	if err != nil {
		return nil, memory.E(memory.KindDatabase, op, "scanning fallback index hits", err)
	}
	return hits, nil
}

// RebuildIndex refills the full-text index from the base table using the
// FTS5 rebuild command. The command reindexes the whole content table, so
// a per-project rebuild reindexes everything but reports only the
// project's rows.
func (s *Store) RebuildIndex(project string) (*memory.IndexReport, error) {
	const op = "sqlstore.reindex"
	if project != "" {
		if err := s.lim.ProjectID(project); err != nil {
			return nil, err
		}
	}

	db, err := s.open(op)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO memory_fts(memory_fts) VALUES('rebuild')`); err != nil {
		e := memory.E(memory.KindDatabase, op, "rebuilding index", err)
		s.log.Error("index rebuild failed", zap.Error(e))
		return nil, e
	}

	q := `SELECT COUNT(*) FROM memory_entries`
	args := []any{}
	if project != "" {
		q += ` WHERE project_id = ?`
		args = append(args, project)
	}
	var n int
	if err := db.QueryRow(q, args...).Scan(&n); err != nil {
		return nil, memory.E(memory.KindDatabase, op, "counting indexed entries", err)
	}

	s.log.Info("index rebuilt", zap.String("project", project), zap.Int("indexed", n))
	return &memory.IndexReport{Project: project, Indexed: n}, nil
}

// GetIndexStats reports index health: row counts on both sides of the
// external-content pairing, database size and migration state.
func (s *Store) GetIndexStats() (*memory.IndexStats, error) {
	const op = "sqlstore.index_stats"

	db, err := s.open(op)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	st := memory.IndexStats{DBPath: s.dbPath}
	if err := db.QueryRow(`SELECT COUNT(*) FROM memory_entries`).Scan(&st.Entries); err != nil {
		return nil, memory.E(memory.KindDatabase, op, "counting entries", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM memory_fts`).Scan(&st.Indexed); err != nil {
		return nil, memory.E(memory.KindDatabase, op, "counting index rows", err)
	}
	st.InSync = st.Entries == st.Indexed

	if st.Migrated, err = migrated(db); err != nil {
		return nil, memory.E(memory.KindDatabase, op, "checking migration marker", err)
	}
	if fi, err := os.Stat(s.dbPath); err == nil {
		st.DBSizeB = fi.Size()
	}
	return &st, nil
}

func scanIndexResults(rows *sql.Rows) ([]memory.IndexResult, error) {
	var hits []memory.IndexResult
	for rows.Next() {
		var h memory.IndexResult
		if err := rows.Scan(&h.ID, &h.Timestamp, &h.Title, &h.Category, &h.Summary, &h.Rank); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// indexFilterSQL renders optional filters as AND clauses on the entries
// table. Timestamp bounds are inclusive.
func indexFilterSQL(f *memory.IndexFilters) (string, []any) {
	if f == nil {
		return "", nil
	}
	var sqlOut strings.Builder
	var args []any
	if f.Category != "" {
		sqlOut.WriteString(" AND category = ?")
		args = append(args, f.Category)
	}
	if f.After != "" {
		sqlOut.WriteString(" AND created_at >= ?")
		args = append(args, f.After)
	}
	if f.Before != "" {
		sqlOut.WriteString(" AND created_at <= ?")
		args = append(args, f.Before)
	}
	return sqlOut.String(), args
}
