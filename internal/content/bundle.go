package content

import "time"

// PublicationStatus is the per-target outcome of publishing one piece
// of content.
type PublicationStatus string

const (
	PublicationSucceeded PublicationStatus = "succeeded"
	PublicationFailed    PublicationStatus = "failed"
	PublicationSkipped   PublicationStatus = "skipped"
)

// Publication records the outcome of pushing content to one target.
type Publication struct {
	Target string            `json:"target"`
	Status PublicationStatus `json:"status"`
	Detail string            `json:"detail,omitempty"`
}

// FormatContent is one generated artifact plus where it ended up.
type FormatContent struct {
	Format       string        `json:"format"`
	Body         string        `json:"body"`
	Publications []Publication `json:"publications,omitempty"`
}

// Bundle is the final structured output of a run. Immutable once the
// orchestrator returns it.
type Bundle struct {
	RunID     string                    `json:"run_id"`
	Niche     string                    `json:"niche"`
	Topic     string                    `json:"topic"`
	CreatedAt time.Time                 `json:"created_at"`
	Formats   map[string]*FormatContent `json:"formats"`
}

// Empty reports whether the bundle carries no generated content.
func (b *Bundle) Empty() bool {
	return b == nil || len(b.Formats) == 0
}
