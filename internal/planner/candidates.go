package planner

import (
	"fmt"
	"strings"
)

// Candidate is one topic extracted from research output. Rank is the
// order of first appearance across the result sets, starting at zero.
type Candidate struct {
	Name string
	Rank int
}

const maxExtractedCandidates = 10

// ExtractCandidates pulls topics out of numbered-list research text.
// Lines like "1. Topic" or "3) Topic: detail" yield candidates; noise
// lines are ignored. Results keep their list order, are cleaned of
// markdown, and are bounded to plausible topic lengths.
func ExtractCandidates(text string) []string {
	var topics []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !hasListPrefix(line) {
			continue
		}

		topic := line
		if i := strings.Index(topic, "."); i >= 0 {
			topic = topic[i+1:]
		}
		if i := strings.Index(topic, ")"); i >= 0 && i < 3 {
			topic = topic[i+1:]
		}
		if i := strings.Index(topic, ":"); i >= 0 {
			topic = topic[:i]
		}
		topic = strings.NewReplacer("*", "", "#", "").Replace(topic)
		topic = strings.Trim(topic, " ,.;:-")

		if len(topic) > 3 && len(topic) <= 80 {
			topics = append(topics, topic)
		}
		if len(topics) >= maxExtractedCandidates {
			break
		}
	}
	return topics
}

func hasListPrefix(line string) bool {
	for i := 1; i < 20; i++ {
		if strings.HasPrefix(line, fmt.Sprintf("%d.", i)) || strings.HasPrefix(line, fmt.Sprintf("%d)", i)) {
			return true
		}
	}
	return false
}

// dedupeCandidates merges topic lists from several result sets into
// ranked candidates, keeping the first occurrence of each name.
func dedupeCandidates(lists ...[]string) []Candidate {
	seen := make(map[string]bool)
	var out []Candidate
	for _, list := range lists {
		for _, name := range list {
			key := strings.ToLower(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, Candidate{Name: name, Rank: len(out)})
		}
	}
	return out
}
