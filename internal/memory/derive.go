package memory

import (
	"regexp"
	"strings"
)

var diagramFence = regexp.MustCompile("(?i)```(mermaid|graph|flowchart|sequenceDiagram)")

var codeKeywords = []string{"function ", "function(", "class ", "import ", "SELECT ", "def ", "func ", "#include"}

// deriveComplexity implements spec.md §4.1.1's scoring when the writer
// left Complexity unset.
func deriveComplexity(m *Memory) int {
	c := 1
	if m.Category != "" || len(m.Tags) >= 3 {
		c++
	}
	if m.Project != "" || len(m.RelatedMemories) > 0 {
		c++
	}
	if len(m.Body) > 1000 || len(m.Tags) >= 5 || diagramFence.MatchString(m.Body) || len(m.RelatedMemories) >= 3 {
		c++
	}
	if c < 1 {
		c = 1
	}
	if c > 4 {
		c = 4
	}
	return c
}

// deriveContentType implements spec.md §4.1.1's content-type heuristic.
func deriveContentType(body string) ContentType {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") || diagramFence.MatchString(body) {
		return ContentStructured
	}
	if looksLikeYAMLOrJSON(trimmed) {
		return ContentStructured
	}
	lower := strings.ToLower(body)
	if strings.Contains(body, "```") {
		for _, kw := range codeKeywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return ContentCode
			}
		}
	}
	for _, kw := range codeKeywords {
		if strings.Contains(body, kw) {
			return ContentCode
		}
	}
	return ContentText
}

func looksLikeYAMLOrJSON(trimmed string) bool {
	if trimmed == "" {
		return false
	}
	lines := strings.SplitN(trimmed, "\n", 4)
	yamlish := 0
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if strings.HasPrefix(l, "- ") || (strings.Contains(l, ":") && !strings.Contains(l, " ")) {
			yamlish++
		}
	}
	return yamlish >= 2
}

// applyDerivations fills Complexity and ContentType when the writer
// left them unset, then clamps/validates the result.
func applyDerivations(m *Memory) {
	if m.Complexity == 0 {
		m.Complexity = deriveComplexity(m)
	}
	if m.Metadata.ContentType == "" {
		m.Metadata.ContentType = deriveContentType(m.Body)
	}
	if m.Metadata.Size == 0 {
		m.Metadata.Size = len(m.Body)
	}
}
