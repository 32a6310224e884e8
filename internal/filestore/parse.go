package filestore

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/agentutil/membox/internal/memory"
)

// Entry block format, one file per project:
//
//	# <Project Title>
//
//	Created: <timestamp>
//
//	## <timestamp>[ - <title>][ #<category>]
//
//	<body>
//
//	---
//
// A heading line closes the previous block and opens a new one. Lines
// before the first heading (the file header) are skipped.

const (
	headingPrefix = "## "
	separator     = "---"
)

// MaxLineCapacity is the scanner buffer ceiling for a single line (1MB).
const MaxLineCapacity = 1024 * 1024

// parseSections splits rendered memory text into entries. IDs are
// assigned as 1-based positions.
func parseSections(text string) ([]memory.Entry, error) {
	var entries []memory.Entry
	var current *memory.Entry
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.TrimSpace(strings.Join(body, "\n"))
		current.ID = int64(len(entries) + 1)
		entries = append(entries, *current)
		current = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	buf := make([]byte, MaxLineCapacity)
	scanner.Buffer(buf, MaxLineCapacity)

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, headingPrefix):
			flush()
			ts, title, category := parseHeading(strings.TrimSpace(line[len(headingPrefix):]))
			current = &memory.Entry{Timestamp: ts, Title: title, Category: category}
			body = body[:0]
		case strings.TrimSpace(line) == separator:
			// Block separator, not body text.
		default:
			if current != nil {
				body = append(body, line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning memory text: %w", err)
	}
	flush()

	return entries, nil
}

// parseHeading splits a heading into timestamp, title and category. The
// heading is split on the first '#' to extract the category, then on the
// first " - " to separate timestamp from title.
func parseHeading(heading string) (timestamp, title, category string) {
	if i := strings.Index(heading, "#"); i >= 0 {
		category = strings.TrimSpace(heading[i+1:])
		heading = heading[:i]
	}
	if i := strings.Index(heading, " - "); i >= 0 {
		timestamp = strings.TrimSpace(heading[:i])
		title = strings.TrimSpace(heading[i+3:])
	} else {
		timestamp = strings.TrimSpace(heading)
	}
	return timestamp, title, category
}

// formatHeading renders an entry heading line without the "## " prefix.
func formatHeading(e memory.Entry) string {
	var b strings.Builder
	b.WriteString(e.Timestamp)
	if e.Title != "" {
		b.WriteString(" - ")
		b.WriteString(e.Title)
	}
	if e.Category != "" {
		b.WriteString(" #")
		b.WriteString(e.Category)
	}
	return b.String()
}

// formatEntry renders one complete entry block.
func formatEntry(e memory.Entry) string {
	return fmt.Sprintf("%s%s\n\n%s\n\n%s\n\n", headingPrefix, formatHeading(e), e.Body, separator)
}

// renderFile renders a complete project file from parsed entries.
func renderFile(project string, entries []memory.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# AI Memory for %s\n\n", project)
	fmt.Fprintf(&b, "Created: %s\n\n", memory.Now())
	for _, e := range entries {
		b.WriteString(formatEntry(e))
	}
	return b.String()
}

// preview truncates s to max runes, appending an ellipsis when trimmed.
func preview(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
