package sqlstore

import (
	"strings"
	"testing"
)

func TestRAGAssembleBudgetNeverExceeded(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 8; i++ {
		body := "deployment pipeline details\n\n" + strings.Repeat("filler text about deployment. ", 40)
		mustSave(t, s, "demo", body, "Deploy note", "ops")
	}

	for _, budget := range []int{50, 200, 1500} {
		bundle, err := s.RAGAssemble("demo", "explain the deployment pipeline", 10, budget)
		if err != nil {
			t.Fatalf("RAGAssemble(budget=%d) error = %v", budget, err)
		}
		if bundle.Tokens > budget {
			t.Errorf("bundle tokens = %d, exceeds budget %d", bundle.Tokens, budget)
		}
		sum := 0
		for _, sn := range bundle.Snippets {
			sum += sn.Tokens
		}
		if sum != bundle.Tokens {
			t.Errorf("snippet token sum = %d, bundle total = %d", sum, bundle.Tokens)
		}
	}
}

func TestRAGAssembleRelevanceNonIncreasing(t *testing.T) {
	s := newTestStore(t)
	// The older entry is far more relevant than the newer one; recency
	// must not push the weak match ahead of it.
	strong := strings.Repeat("authentication flow and authentication tokens. ", 6)
	mustSave(t, s, "demo", strong, "Auth deep dive", "security")
	mustSave(t, s, "demo", "deploy checklist mentions authentication once", "Deploy notes", "ops")

	bundle, err := s.RAGAssemble("demo", "authentication", 10, 1500)
	if err != nil {
		t.Fatalf("RAGAssemble() error = %v", err)
	}
	if len(bundle.Snippets) < 2 {
		t.Fatalf("snippets = %d, want both entries", len(bundle.Snippets))
	}
	if bundle.Snippets[0].Title != "Auth deep dive" {
		t.Errorf("first snippet = %q, want the high-relevance entry first", bundle.Snippets[0].Title)
	}
	for i := 1; i < len(bundle.Snippets); i++ {
		if bundle.Snippets[i].Relevance > bundle.Snippets[i-1].Relevance {
			t.Errorf("snippet relevance increases at %d: %v after %v",
				i, bundle.Snippets[i].Relevance, bundle.Snippets[i-1].Relevance)
		}
	}
}

func TestRAGAssembleSelectsRelevantParagraphs(t *testing.T) {
	s := newTestStore(t)
	body := "Intro paragraph about nothing in particular.\n\n" +
		"The caching layer uses redis with a five minute TTL.\n\n" +
		"Closing remarks."
	mustSave(t, s, "demo", body, "Architecture", "")

	bundle, err := s.RAGAssemble("demo", "explain the caching layer", 5, 1500)
	if err != nil {
		t.Fatalf("RAGAssemble() error = %v", err)
	}
	if len(bundle.Snippets) != 1 {
		t.Fatalf("snippets = %d, want 1", len(bundle.Snippets))
	}
	text := bundle.Snippets[0].Text
	if !strings.Contains(text, "caching layer uses redis") {
		t.Errorf("snippet missing relevant paragraph: %q", text)
	}
	if strings.Contains(text, "Closing remarks") {
		t.Errorf("snippet kept irrelevant paragraph: %q", text)
	}
}

func TestRAGAssembleEmptyProject(t *testing.T) {
	s := newTestStore(t)
	bundle, err := s.RAGAssemble("ghost", "anything at all", 5, 1500)
	if err != nil {
		t.Fatalf("RAGAssemble() error = %v", err)
	}
	if len(bundle.Snippets) != 0 || bundle.Tokens != 0 {
		t.Errorf("empty project bundle = %+v", bundle)
	}
}

func TestRAGAssembleLeadParagraphFallback(t *testing.T) {
	s := newTestStore(t)
	body := "Opening context.\n\nDetail paragraph."
	mustSave(t, s, "demo", body, "mismatch query words entry", "")

	// No body paragraph mentions the question terms; the lead paragraph
	// stands in.
	bundle, err := s.RAGAssemble("demo", "mismatch query words", 5, 1500)
	if err != nil {
		t.Fatalf("RAGAssemble() error = %v", err)
	}
	if len(bundle.Snippets) != 1 || bundle.Snippets[0].Text != "Opening context." {
		t.Errorf("bundle = %+v, want lead paragraph snippet", bundle)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 100), 25},
	}
	for _, tt := range tests {
		if got := estimateTokens(tt.text); got != tt.want {
			t.Errorf("estimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
