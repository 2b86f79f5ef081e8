package linker

import (
	"strings"

	"github.com/nrvault/memtask/internal/memory"
	"github.com/nrvault/memtask/internal/task"
)

// overlapScore combines a Jaccard keyword/tag overlap with a project
// match bonus, per spec.md §4.9's "keyword overlap (title/tags/project
// match) above a threshold".
func overlapScore(a, b []string, projectA, projectB string) float64 {
	score := jaccard(a, b) * 0.7
	if projectA != "" && projectA == projectB {
		score += 0.3
	}
	if score > 1 {
		score = 1
	}
	return score
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inB := make(map[string]bool, len(b))
	for _, w := range b {
		inB[w] = true
	}
	union := make(map[string]bool, len(a)+len(b))
	intersection := 0
	for _, w := range a {
		union[w] = true
		if inB[w] {
			intersection++
		}
	}
	for _, w := range b {
		union[w] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}

func keywordsForTask(t *task.Task) []string {
	words := append([]string{t.Title}, t.Tags...)
	return normalizeKeywords(words)
}

func keywordsForMemory(m *memory.Memory) []string {
	words := append([]string{string(m.Category)}, m.Tags...)
	return normalizeKeywords(words)
}

// normalizeKeywords lowercases, strips light punctuation, drops
// short/empty tokens, and dedupes, producing the token set jaccard
// compares.
func normalizeKeywords(words []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range words {
		for _, tok := range strings.Fields(w) {
			tok = strings.ToLower(strings.Trim(tok, ".,:;!?\"'()"))
			if len(tok) < 3 || seen[tok] {
				continue
			}
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}
