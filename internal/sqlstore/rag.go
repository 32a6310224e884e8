package sqlstore

import (
	"database/sql"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/agentutil/membox/internal/memory"
)

// candidateFactor oversamples the first retrieval stage so budget-driven
// skips still leave enough material to fill the bundle.
const candidateFactor = 3

// RAGAssemble answers a question in two stages: a cheap index-only
// retrieval over compact columns, then selective body loading for the
// top candidates, trimmed to paragraphs that mention the question terms.
// The bundle's estimated token total never exceeds maxTokens.
func (s *Store) RAGAssemble(project, question string, contextLimit, maxTokens int) (*memory.ContextBundle, error) {
	const op = "sqlstore.rag"
	if err := s.lim.ProjectID(project); err != nil {
		return nil, err
	}
	if err := s.lim.Query(question); err != nil {
		return nil, err
	}
	if contextLimit <= 0 {
		contextLimit = s.cfg.RAGContextLimit
	}
	if maxTokens <= 0 {
		maxTokens = s.cfg.RAGTokenBudget
	}

	candidates, err := s.SearchIndex(project, question, contextLimit*candidateFactor, nil)
	if err != nil {
		return nil, err
	}
	// Stage-1 hits come back recency-ordered; the budget walk emits
	// snippets in non-increasing relevance, so rank them first. Stable
	// sort keeps recency order within equal ranks.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Rank > candidates[j].Rank
	})

	bundle := &memory.ContextBundle{Question: question, MaxTokens: maxTokens}
	if len(candidates) == 0 {
		return bundle, nil
	}

	db, err := s.open(op)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	terms := questionTerms(question)
	for _, c := range candidates {
		if len(bundle.Snippets) >= contextLimit {
			break
		}

		var body string
		err := db.QueryRow(
			`SELECT body FROM memory_entries WHERE id = ?`, c.ID,
		).Scan(&body)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			e := memory.E(memory.KindDatabase, op, "loading candidate body", err)
			s.log.Error("context assembly failed", zap.String("project", project), zap.Error(e))
			return nil, e
		}

		text := relevantExcerpt(body, terms)
		tokens := estimateTokens(text)
		if bundle.Tokens+tokens > maxTokens {
			// Budget exhausted for this snippet; a smaller one later in
			// the ranking may still fit.
			continue
		}

		bundle.Snippets = append(bundle.Snippets, memory.Snippet{
			Timestamp: c.Timestamp,
			Title:     c.Title,
			Category:  c.Category,
			Text:      text,
			Tokens:    tokens,
			Relevance: c.Rank,
		})
		bundle.Tokens += tokens
	}
	return bundle, nil
}

// estimateTokens approximates the token cost of text as one token per
// four characters, rounded up.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// questionTerms lowercases and splits a question, keeping terms long
// enough to be discriminating.
func questionTerms(question string) []string {
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(question)) {
		if len([]rune(t)) >= 3 {
			terms = append(terms, t)
		}
	}
	return terms
}

// relevantExcerpt keeps the paragraphs of body mentioning any question
// term. When no paragraph matches, the lead paragraph stands in so every
// candidate contributes at least its opening context.
func relevantExcerpt(body string, terms []string) string {
	paragraphs := strings.Split(strings.TrimSpace(body), "\n\n")
	if len(terms) == 0 || len(paragraphs) == 1 {
		return strings.TrimSpace(paragraphs[0])
	}

	var kept []string
	for _, p := range paragraphs {
		lower := strings.ToLower(p)
		for _, t := range terms {
			if strings.Contains(lower, t) {
				kept = append(kept, strings.TrimSpace(p))
				break
			}
		}
	}
	if len(kept) == 0 {
		return strings.TrimSpace(paragraphs[0])
	}
	return strings.Join(kept, "\n\n")
}
