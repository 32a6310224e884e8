package sqlstore

import (
	"database/sql"
	"strings"
	"unicode/utf8"

	"github.com/agentutil/membox/internal/memory"
)

// queryStrategy names the retrieval path chosen for a query.
type queryStrategy string

const (
	strategySimple  queryStrategy = "simple_lookup"
	strategyComplex queryStrategy = "complex_question"
	strategyHybrid  queryStrategy = "hybrid"
)

// complexLength is the rune count above which a query is treated as a
// question regardless of keywords.
const complexLength = 50

// simpleMarkers signal an enumeration or direct lookup. Checked before
// the complex markers so "how many items are in the list" still routes
// to the cheap path when it opens with a lookup verb.
var simpleMarkers = []string{
	"list", "show", "display", "what is", "what are", "find", "search",
	"列表", "清單", "有哪些", "找到", "搜尋", "顯示",
}

// complexMarkers signal an analytical question that needs assembled
// context rather than a row listing.
var complexMarkers = []string{
	"why", "how", "explain", "analyze", "analyse", "compare", "difference",
	"reason", "cause", "relationship",
	"為什麼", "如何", "解釋", "分析", "比較", "原因",
}

// classifyQuery picks the retrieval strategy. Simple markers win over
// complex ones; long queries without simple markers are treated as
// questions; everything else takes the hybrid path.
func classifyQuery(query string) queryStrategy {
	q := strings.ToLower(strings.TrimSpace(query))

	for _, m := range simpleMarkers {
		if strings.Contains(q, m) {
			return strategySimple
		}
	}
	for _, m := range complexMarkers {
		if strings.Contains(q, m) {
			return strategyComplex
		}
	}
	if utf8.RuneCountInString(q) > complexLength {
		return strategyComplex
	}
	return strategyHybrid
}

// simpleLookup serves enumeration queries from the index alone: compact
// columns, recency-ranked, bodies never loaded.
func (s *Store) simpleLookup(project, query string, limit int) ([]memory.SearchResult, error) {
	hits, err := s.SearchIndex(project, query, limit, nil)
	if err != nil {
		return nil, err
	}
	results := make([]memory.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = memory.SearchResult{
			Timestamp: h.Timestamp,
			Title:     h.Title,
			Category:  h.Category,
			Body:      h.Summary,
			Relevance: h.Rank,
		}
	}
	return results, nil
}

// hybridSearch blends recency and relevance: half the slots go to the
// newest index matches, the rest to full-text hits, deduplicated on
// (title, timestamp).
func (s *Store) hybridSearch(project, query string, limit int) ([]memory.SearchResult, error) {
	half := limit / 2
	if half < 1 {
		half = 1
	}

	recent, err := s.SearchIndex(project, query, half, nil)
	if err != nil {
		return nil, err
	}
	// The full-text side gets the other half of the quota; an odd limit
	// leaves the extra slot here.
	var relevant []memory.SearchResult
	if quota := limit - half; quota > 0 {
		relevant, err = s.ftsBodySearch(project, query, quota)
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool)
	var results []memory.SearchResult
	add := func(r memory.SearchResult) {
		key := r.Title + "\x00" + r.Timestamp
		if seen[key] || len(results) >= limit {
			return
		}
		seen[key] = true
		results = append(results, r)
	}

	for _, h := range recent {
		add(memory.SearchResult{
			Timestamp: h.Timestamp,
			Title:     h.Title,
			Category:  h.Category,
			Body:      h.Summary,
			Relevance: h.Rank,
		})
	}
	for _, r := range relevant {
		add(r)
	}
	return results, nil
}

// ftsBodySearch runs a full-text query returning body previews ranked by
// relevance. Queries the trigram index cannot serve (too short, or
// yielding nothing) fall back to a LIKE substring scan.
func (s *Store) ftsBodySearch(project, query string, limit int) ([]memory.SearchResult, error) {
	const op = "sqlstore.fts"

	db, err := s.open(op)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var results []memory.SearchResult
	if fq := prepareFTSQuery(query); fq != "" {
		rows, err := db.Query(
			`SELECT me.created_at, COALESCE(me.title, ''), COALESCE(me.category, ''),
			        me.body, -memory_fts.rank
			 FROM memory_fts
			 JOIN memory_entries me ON me.id = memory_fts.rowid
			 WHERE memory_fts MATCH ? AND me.project_id = ?
			 ORDER BY memory_fts.rank
			 LIMIT ?`, fq, project, limit)
		if err == nil {
			results, err = scanSearchResults(rows)
			rows.Close()
			if err != nil {
				return nil, memory.E(memory.KindDatabase, op, "scanning full-text hits", err)
			}
		}
		// A MATCH error means the query can't be expressed for the
		// tokenizer; treat it like zero hits and fall through.
	}
	if len(results) > 0 {
		return results, nil
	}

	// LIKE fallback covers sub-trigram fragments and numeric ids.
	rows, err := db.Query(
		`SELECT created_at, COALESCE(title, ''), COALESCE(category, ''), body, 1.0
		 FROM memory_entries
		 WHERE project_id = ?
		   AND (body LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\')
		 ORDER BY created_at DESC
		 LIMIT ?`, project, likePattern(query), likePattern(query), limit)
	if err != nil {
		return nil, memory.E(memory.KindDatabase, op, "substring fallback", err)
	}
	defer rows.Close()

	results, err = scanSearchResults(rows)
	if err != nil {
		return nil, memory.E(memory.KindDatabase, op, "scanning fallback hits", err)
	}
	return results, nil
}

func scanSearchResults(rows *sql.Rows) ([]memory.SearchResult, error) {
	var results []memory.SearchResult
	for rows.Next() {
		var r memory.SearchResult
		if err := rows.Scan(&r.Timestamp, &r.Title, &r.Category, &r.Body, &r.Relevance); err != nil {
			return nil, err
		}
		r.Body = preview(r.Body, searchPreviewLen)
		results = append(results, r)
	}
	return results, rows.Err()
}

// prepareFTSQuery turns free text into an FTS5 query. Each term is
// double-quoted so user input can't inject query syntax, and terms are
// OR-joined: queries often mix command words with the actual subject,
// and bm25 ranking sorts multi-term hits above single-term ones anyway.
// Terms shorter than a trigram are dropped; an empty result means the
// index cannot serve this query at all.
func prepareFTSQuery(query string) string {
	var terms []string
	for _, t := range strings.Fields(query) {
		t = strings.ReplaceAll(t, `"`, "")
		if utf8.RuneCountInString(t) < 3 {
			continue
		}
		terms = append(terms, `"`+t+`"`)
	}
	return strings.Join(terms, " OR ")
}

// likePattern escapes LIKE metacharacters and wraps the query in
// wildcards for a case-insensitive substring scan.
func likePattern(query string) string {
	q := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(query)
	return "%" + q + "%"
}
