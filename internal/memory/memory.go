// Package memory defines the data model and capability interface shared by
// every memory backend. Backends store free-text entries grouped into
// projects; callers depend only on the Backend interface, never on a
// concrete store.
package memory

import "time"

// TimestampLayout is the human-readable timestamp format used in entry
// headings and everywhere timestamps cross the capability boundary.
const TimestampLayout = "2006-01-02 15:04:05"

// Entry is one stored note. ID is backend-local: the 1-based position of
// the entry in a flat-file project, or the database row id.
type Entry struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	Title     string `json:"title,omitempty"`
	Category  string `json:"category,omitempty"`
	Body      string `json:"body"`
}

// SearchResult is a read-only projection of an entry plus a relevance
// score. Body may be truncated to a preview; results are never persisted.
type SearchResult struct {
	Timestamp string  `json:"timestamp"`
	Title     string  `json:"title,omitempty"`
	Category  string  `json:"category,omitempty"`
	Body      string  `json:"body"`
	Relevance float64 `json:"relevance"`
}

// ProjectSummary describes one project in a listing.
type ProjectSummary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Path         string   `json:"path,omitempty"`
	EntryCount   int      `json:"entry_count"`
	LastModified string   `json:"last_modified,omitempty"`
	Categories   []string `json:"categories,omitempty"`
}

// Stats summarizes a single project's memory.
type Stats struct {
	Exists     bool     `json:"exists"`
	Entries    int      `json:"entries"`
	Words      int      `json:"words"`
	Characters int      `json:"characters"`
	Categories []string `json:"categories,omitempty"`
	Oldest     string   `json:"oldest,omitempty"`
	Latest     string   `json:"latest,omitempty"`
}

// Selector addresses one or more entries for edit/delete. Exactly one
// field should normally be set; ID takes precedence, then the substring
// matchers in the order declared here.
type Selector struct {
	ID        int64  `json:"id,omitempty"`        // 1-based position or row id
	Timestamp string `json:"timestamp,omitempty"` // substring of the timestamp
	Title     string `json:"title,omitempty"`     // case-insensitive substring
	Category  string `json:"category,omitempty"`  // case-insensitive substring
	Content   string `json:"content,omitempty"`   // case-insensitive substring
}

// IsZero reports whether no selector field is set.
func (s Selector) IsZero() bool {
	return s.ID == 0 && s.Timestamp == "" && s.Title == "" && s.Category == "" && s.Content == ""
}

// EditFields carries replacement values for an edit. Nil pointers leave
// the corresponding field untouched.
type EditFields struct {
	Title    *string `json:"title,omitempty"`
	Category *string `json:"category,omitempty"`
	Body     *string `json:"body,omitempty"`
}

// IsZero reports whether the edit would change nothing.
func (f EditFields) IsZero() bool {
	return f.Title == nil && f.Category == nil && f.Body == nil
}

// EditReport describes the outcome of an edit.
type EditReport struct {
	Edited Entry `json:"edited"`
}

// DeleteReport describes the outcome of an entry deletion.
type DeleteReport struct {
	Deleted   []Entry `json:"deleted"`
	Remaining int     `json:"remaining"`
}

// Backend is the capability interface implemented by every memory store.
// NotFound conditions are represented as empty results or false, never as
// errors; all failures cross this boundary as *Error.
type Backend interface {
	// Save appends a new entry. It never overwrites an existing entry.
	Save(project, body, title, category string) error

	// Get returns the project's full rendered memory text. ok is false
	// when the project has no entries.
	Get(project string) (text string, ok bool, err error)

	// Search returns up to limit results ranked by relevance descending.
	Search(project, query string, limit int) ([]SearchResult, error)

	// GetRecent returns the most recent limit entries in chronological
	// order (oldest of the window first).
	GetRecent(project string, limit int) ([]Entry, error)

	// ListEntries returns every entry with its backend-local id and a
	// short body preview.
	ListEntries(project string) ([]Entry, error)

	// ListProjects enumerates all projects with summary statistics.
	ListProjects() ([]ProjectSummary, error)

	// GetStats returns statistics for one project.
	GetStats(project string) (*Stats, error)

	// EditEntry updates the first entry matched by sel.
	EditEntry(project string, sel Selector, fields EditFields) (*EditReport, error)

	// DeleteEntry removes every entry matched by sel.
	DeleteEntry(project string, sel Selector) (*DeleteReport, error)

	// DeleteProject removes a whole project. Returns false when the
	// project did not exist.
	DeleteProject(project string) (bool, error)

	// RenameProject atomically relabels every entry owned by old under
	// the new id. Returns false when old does not exist.
	RenameProject(oldID, newID string) (bool, error)
}

// IndexResult is an index-only search hit: compact columns, no body.
type IndexResult struct {
	ID        int64   `json:"id"`
	Timestamp string  `json:"timestamp"`
	Title     string  `json:"title,omitempty"`
	Category  string  `json:"category,omitempty"`
	Summary   string  `json:"summary,omitempty"`
	Rank      float64 `json:"rank"`
}

// IndexFilters narrows index-only searches.
type IndexFilters struct {
	Category string `json:"category,omitempty"`
	After    string `json:"after,omitempty"`  // inclusive timestamp lower bound
	Before   string `json:"before,omitempty"` // inclusive timestamp upper bound
}

// Snippet is one selected piece of a context bundle.
type Snippet struct {
	Timestamp string  `json:"timestamp"`
	Title     string  `json:"title,omitempty"`
	Category  string  `json:"category,omitempty"`
	Text      string  `json:"text"`
	Tokens    int     `json:"tokens"` // estimated cost of Text
	Relevance float64 `json:"relevance"`
}

// ContextBundle is the result of a retrieval-then-assemble query. The sum
// of snippet token estimates never exceeds the requested budget.
type ContextBundle struct {
	Question  string    `json:"question"`
	Snippets  []Snippet `json:"snippets"`
	Tokens    int       `json:"tokens"`
	MaxTokens int       `json:"max_tokens"`
}

// IndexReport describes an index rebuild.
type IndexReport struct {
	Project string `json:"project,omitempty"`
	Indexed int    `json:"indexed"`
}

// IndexStats describes the state of the full-text index.
type IndexStats struct {
	Entries  int    `json:"entries"`
	Indexed  int    `json:"indexed"`
	InSync   bool   `json:"in_sync"`
	DBPath   string `json:"db_path"`
	DBSizeB  int64  `json:"db_size_bytes"`
	Migrated bool   `json:"migrated"`
}

// Indexer is the optional capability for backends that maintain a
// full-text index. Callers probe for it with a type assertion.
type Indexer interface {
	// SearchIndex queries compact indexed columns only; the entry body
	// is never loaded.
	SearchIndex(project, query string, limit int, filters *IndexFilters) ([]IndexResult, error)

	// RAGAssemble answers a question with a two-stage retrieval bounded
	// by an estimated token budget.
	RAGAssemble(project, question string, contextLimit, maxTokens int) (*ContextBundle, error)

	// RebuildIndex drops and refills the full-text index from the base
	// table. An empty project rebuilds everything.
	RebuildIndex(project string) (*IndexReport, error)

	// GetIndexStats reports index health.
	GetIndexStats() (*IndexStats, error)
}

// Now returns the current time formatted with TimestampLayout. Split out
// so tests can compare formatted values.
func Now() string {
	return time.Now().Format(TimestampLayout)
}

// DisplayName derives a human-readable project name from its id:
// "my-proj" becomes "My Proj".
func DisplayName(id string) string {
	out := make([]rune, 0, len(id))
	upper := true
	for _, r := range id {
		switch {
		case r == '-' || r == '_':
			out = append(out, ' ')
			upper = true
		case upper && r >= 'a' && r <= 'z':
			out = append(out, r-('a'-'A'))
			upper = false
		default:
			out = append(out, r)
			upper = false
		}
	}
	return string(out)
}
