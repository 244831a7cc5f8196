package capability

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/jomei/notionapi"
)

// NotionCapability creates one page per run in a Notion database. When
// Notion is unreachable the executor degrades to the local record
// store via the declared fallback.
type NotionCapability struct {
	client     *notionapi.Client
	databaseID notionapi.DatabaseID
}

func NewNotionCapability(apiKey, databaseID string) *NotionCapability {
	return &NotionCapability{
		client:     notionapi.NewClient(notionapi.Token(apiKey)),
		databaseID: notionapi.DatabaseID(databaseID),
	}
}

func (c *NotionCapability) Name() string {
	return "notion_page"
}

func (c *NotionCapability) Description() string {
	return "Create a page for the generated content in the configured Notion database."
}

func (c *NotionCapability) Descriptor() Descriptor {
	return Descriptor{
		Timeout: 30 * time.Second,
		// An ambiguous failure may still have created the page.
		Idempotent: false,
		Fallbacks:  []string{"write_database_record"},
	}
}

func (c *NotionCapability) Invoke(ctx context.Context, params map[string]any) (Result, error) {
	var args recordParams
	if err := decodeParams(params, &args); err != nil {
		return Result{}, Permanentf("invalid input: %v", err)
	}
	if args.Topic == "" {
		return Result{}, Permanentf("topic is required")
	}

	title := args.Title
	if title == "" {
		title = args.Topic
	}

	properties := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: richText(title),
		},
		"Niche": notionapi.RichTextProperty{
			RichText: richText(args.Niche),
		},
		"Topic": notionapi.RichTextProperty{
			RichText: richText(args.Topic),
		},
	}
	if len(args.Keywords) > 0 {
		properties["Keywords"] = notionapi.MultiSelectProperty{
			MultiSelect: options(args.Keywords),
		}
	}
	if len(args.Tags) > 0 {
		properties["Tags"] = notionapi.MultiSelectProperty{
			MultiSelect: options(args.Tags),
		}
	}

	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: c.databaseID,
		},
		Properties: properties,
	}
	if args.Summary != "" {
		// Notion caps rich text blocks at 2000 characters.
		summary := truncateBytes(args.Summary, 1900)
		req.Children = []notionapi.Block{
			notionapi.ParagraphBlock{
				BasicBlock: notionapi.BasicBlock{
					Object: notionapi.ObjectTypeBlock,
					Type:   notionapi.BlockTypeParagraph,
				},
				Paragraph: notionapi.Paragraph{
					RichText: richText(summary),
				},
			},
		}
	}

	page, err := c.client.Page.Create(ctx, req)
	if err != nil {
		return Result{}, WrapTransient(err, "notion page creation failed")
	}

	return Result{
		Output: page.URL,
		Meta:   map[string]any{"page_id": string(page.ID)},
	}, nil
}

// truncateBytes cuts s to at most max bytes without splitting a rune.
func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Text: &notionapi.Text{Content: s}},
	}
}

func options(names []string) []notionapi.Option {
	opts := make([]notionapi.Option, 0, len(names))
	for _, n := range names {
		opts = append(opts, notionapi.Option{Name: n})
	}
	return opts
}
