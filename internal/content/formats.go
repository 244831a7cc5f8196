package content

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format describes one output artifact the pipeline can produce. Brief
// is the Analysis-phase prompt, Prompt the Creation-phase prompt; both
// may use the {topic}, {summary} and {brief} placeholders.
type Format struct {
	Name      string `yaml:"name"`
	Title     string `yaml:"title"`
	Extension string `yaml:"extension"`
	Brief     string `yaml:"brief"`
	Prompt    string `yaml:"prompt"`
}

// DefaultFormat is generated when the caller requests no formats at
// all, so a run always produces output.
const DefaultFormat = "article"

const asciiRule = "IMPORTANT: Use only basic ASCII text - no emojis, symbols, or unicode characters."

// DefaultFormats returns the built-in output formats.
func DefaultFormats() []Format {
	return []Format{
		{
			Name:      "article",
			Title:     "Long-form Article",
			Extension: "md",
			Brief:     "Draft a detailed outline for an 800-1200 word article about {topic}. Base it on this research:\n\n{summary}\n\nList the headers, the key points under each header, and the statistics worth citing.",
			Prompt:    "Write a comprehensive 800-1200 word article about {topic} with headers and bullet points, following this outline:\n\n{brief}\n\nOpen with an SEO-optimized title (60-70 characters max). " + asciiRule,
		},
		{
			Name:      "twitter_thread",
			Title:     "Twitter Thread",
			Extension: "md",
			Brief:     "Pick the 6 most shareable insights about {topic} from this research:\n\n{summary}\n\nReturn them as a numbered list.",
			Prompt:    "Write a 6-tweet Twitter thread starting with 'THREAD about {topic}:' covering these insights:\n\n{brief}\n\nKeep each tweet under 280 characters. NO EMOJIS. " + asciiRule,
		},
		{
			Name:      "linkedin_post",
			Title:     "LinkedIn Post",
			Extension: "md",
			Brief:     "Summarize the professional angle of {topic} from this research:\n\n{summary}\n\nFocus on what practitioners should act on.",
			Prompt:    "Write a professional 150-200 word LinkedIn post about {topic} with a call-to-action, based on:\n\n{brief}\n\nNO EMOJIS. " + asciiRule,
		},
		{
			Name:      "instagram_caption",
			Title:     "Instagram Caption",
			Extension: "md",
			Brief:     "Condense {topic} into its most engaging single idea, using this research:\n\n{summary}",
			Prompt:    "Write an Instagram caption about {topic} with 5-8 hashtags, based on:\n\n{brief}\n\nNO EMOJIS OR SYMBOLS. " + asciiRule,
		},
		{
			Name:      "metadata",
			Title:     "SEO Metadata",
			Extension: "md",
			Brief:     "Identify the SEO opportunity for {topic} from this research:\n\n{summary}\n\nName the search intent and the competing angles.",
			Prompt:    "For an article about {topic}, produce:\n1. SEO-optimized title (60-70 characters max)\n2. Meta description (150-160 characters max)\n3. 5-7 relevant SEO keywords\n4. 3-5 relevant content tags\n\nContext:\n\n{brief}\n\nFormat as clear labeled sections. " + asciiRule,
		},
	}
}

// LoadFormats reads format definitions from a YAML file. Missing file
// means the built-in defaults apply.
func LoadFormats(path string) ([]Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultFormats(), nil
		}
		return nil, fmt.Errorf("failed to read formats file: %v", err)
	}

	var doc struct {
		Formats []Format `yaml:"formats"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse formats file: %v", err)
	}
	if len(doc.Formats) == 0 {
		return nil, fmt.Errorf("formats file %s defines no formats", path)
	}

	seen := make(map[string]bool)
	for _, f := range doc.Formats {
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("formats file %s contains a format without a name", path)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("duplicate format name %q", f.Name)
		}
		seen[f.Name] = true
	}
	return doc.Formats, nil
}

// FormatByName finds a format definition by name.
func FormatByName(formats []Format, name string) (Format, bool) {
	for _, f := range formats {
		if f.Name == name {
			return f, true
		}
	}
	return Format{}, false
}

// RenderPrompt fills the {topic}, {summary} and {brief} placeholders.
func RenderPrompt(template, topic, summary, brief string) string {
	out := strings.ReplaceAll(template, "{topic}", topic)
	out = strings.ReplaceAll(out, "{summary}", summary)
	out = strings.ReplaceAll(out, "{brief}", brief)
	return out
}
