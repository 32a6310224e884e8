// Package validate is the input gate applied before any backend write or
// search call. Every check is side-effect free: a rejection happens
// before any I/O and returns a typed validation or security error.
package validate

import (
	"regexp"
	"strings"

	"github.com/agentutil/membox/internal/memory"
)

// Limits configures the gate. The zero value is unusable; use
// DefaultLimits or derive one from config.
type Limits struct {
	MaxContentLength   int // bytes
	MaxTitleLength     int
	MaxCategoryLength  int
	MaxQueryLength     int
	MaxProjectIDLength int
}

// DefaultLimits returns the documented default ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxContentLength:   50 * 1024 * 1024,
		MaxTitleLength:     200,
		MaxCategoryLength:  100,
		MaxQueryLength:     1000,
		MaxProjectIDLength: 64,
	}
}

// projectIDPattern is the allowed project key charset.
var projectIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// columnPattern is the whitelist pattern for dynamic column names.
var columnPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// reservedProjectIDs are names that collide with filesystem or platform
// reserved words when used as file names.
var reservedProjectIDs = map[string]bool{
	".": true, "..": true,
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// reservedColumns is the denylist of SQL keywords rejected as dynamic
// column names even when they match the whitelist pattern.
var reservedColumns = map[string]bool{
	"select": true, "insert": true, "update": true, "delete": true,
	"drop": true, "create": true, "alter": true, "table": true,
	"from": true, "where": true, "union": true, "join": true,
	"order": true, "group": true, "having": true, "limit": true,
	"index": true, "trigger": true, "pragma": true, "attach": true,
}

// scriptPatterns are lowercase substrings whose presence in a body is
// treated as an injection attempt.
var scriptPatterns = []string{
	"<script",
	"javascript:",
	"vbscript:",
	"data:text/html",
}

// ProjectID checks a project key: allowed charset, bounded length, not a
// reserved word.
func (l Limits) ProjectID(id string) error {
	if id == "" {
		return memory.Ef(memory.KindValidation, "validate", "project id is empty")
	}
	if len(id) > l.MaxProjectIDLength {
		return memory.Ef(memory.KindValidation, "validate",
			"project id exceeds %d characters", l.MaxProjectIDLength)
	}
	if !projectIDPattern.MatchString(id) {
		return memory.Ef(memory.KindValidation, "validate",
			"project id %q contains characters outside [a-zA-Z0-9_-]", id)
	}
	if reservedProjectIDs[strings.ToLower(id)] {
		return memory.Ef(memory.KindSecurity, "validate", "project id %q is reserved", id)
	}
	return nil
}

// Content checks an entry body: non-empty, under the size ceiling, free
// of script-like injection patterns and NUL bytes.
func (l Limits) Content(body string) error {
	if strings.TrimSpace(body) == "" {
		return memory.Ef(memory.KindValidation, "validate", "content is empty")
	}
	if len(body) > l.MaxContentLength {
		return memory.Ef(memory.KindValidation, "validate",
			"content exceeds %d bytes", l.MaxContentLength)
	}
	if strings.ContainsRune(body, 0) {
		return memory.Ef(memory.KindSecurity, "validate", "content contains NUL byte")
	}
	lower := strings.ToLower(body)
	for _, p := range scriptPatterns {
		if strings.Contains(lower, p) {
			return memory.Ef(memory.KindSecurity, "validate",
				"content contains suspicious pattern %q", p)
		}
	}
	return nil
}

// Title checks an optional entry title.
func (l Limits) Title(title string) error {
	if len(title) > l.MaxTitleLength {
		return memory.Ef(memory.KindValidation, "validate",
			"title exceeds %d characters", l.MaxTitleLength)
	}
	if strings.ContainsAny(title, "\n\r") {
		return memory.Ef(memory.KindValidation, "validate", "title contains newline")
	}
	return nil
}

// Category checks an optional entry category.
func (l Limits) Category(category string) error {
	if len(category) > l.MaxCategoryLength {
		return memory.Ef(memory.KindValidation, "validate",
			"category exceeds %d characters", l.MaxCategoryLength)
	}
	if strings.ContainsAny(category, "\n\r#") {
		return memory.Ef(memory.KindValidation, "validate",
			"category contains newline or '#'")
	}
	return nil
}

// Query checks a search query.
func (l Limits) Query(query string) error {
	if strings.TrimSpace(query) == "" {
		return memory.Ef(memory.KindValidation, "validate", "query is empty")
	}
	if len(query) > l.MaxQueryLength {
		return memory.Ef(memory.KindValidation, "validate",
			"query exceeds %d characters", l.MaxQueryLength)
	}
	return nil
}

// Column checks a dynamic column name against the whitelist pattern and
// the SQL keyword denylist.
func (l Limits) Column(name string) error {
	if !columnPattern.MatchString(name) {
		return memory.Ef(memory.KindSecurity, "validate",
			"column name %q does not match whitelist pattern", name)
	}
	if reservedColumns[strings.ToLower(name)] {
		return memory.Ef(memory.KindSecurity, "validate",
			"column name %q is a reserved keyword", name)
	}
	return nil
}

// Entry applies the full write gate: project id, body, title, category.
func (l Limits) Entry(project, body, title, category string) error {
	if err := l.ProjectID(project); err != nil {
		return err
	}
	if err := l.Content(body); err != nil {
		return err
	}
	if err := l.Title(title); err != nil {
		return err
	}
	return l.Category(category)
}
