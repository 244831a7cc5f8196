package planner

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const defaultGuidelines = `You are an expert content writer. Write clear, factual, engaging copy.
Cite concrete findings from the supplied research instead of generalities.
Use only basic ASCII text - no emojis, symbols, or unicode characters.`

// PromptManager loads the editorial guideline files that get prepended
// to every generation prompt. The directory is optional; built-in
// defaults apply when it is missing or empty.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

func (pm *PromptManager) Guidelines() string {
	files, err := os.ReadDir(pm.Directory)
	if err != nil {
		return defaultGuidelines
	}

	var contents []string

	// Sort files to ensure deterministic prompt order
	// We want a specific order: voice, style, seo, audience, user
	order := map[string]int{
		"voice.md":    1,
		"style.md":    2,
		"seo.md":      3,
		"audience.md": 4,
		"user.md":     5,
	}

	sort.Slice(files, func(i, j int) bool {
		oi, okI := order[files[i].Name()]
		oj, okJ := order[files[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return files[i].Name() < files[j].Name()
	})

	for _, f := range files {
		if !f.IsDir() && strings.HasSuffix(f.Name(), ".md") {
			path := filepath.Join(pm.Directory, f.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
				continue
			}
			contents = append(contents, string(data))
		}
	}

	if len(contents) == 0 {
		return defaultGuidelines
	}

	return strings.Join(contents, "\n\n---\n\n")
}
