package capability

import (
	"context"
	"strings"
	"time"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

type SearchCapability struct {
	client *duckduckgo.Tool
}

func NewSearchCapability() (*SearchCapability, error) {
	ddg, err := duckduckgo.New(10, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &SearchCapability{client: ddg}, nil
}

func (s *SearchCapability) Name() string {
	return "search"
}

func (s *SearchCapability) Description() string {
	return "Search the web using DuckDuckGo for real-time information."
}

func (s *SearchCapability) Descriptor() Descriptor {
	return Descriptor{
		Timeout:    30 * time.Second,
		Idempotent: true,
	}
}

func (s *SearchCapability) Invoke(ctx context.Context, params map[string]any) (Result, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := decodeParams(params, &args); err != nil {
		return Result{}, Permanentf("invalid input: %v", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return Result{}, Permanentf("search query must not be empty")
	}

	res, err := s.client.Call(ctx, args.Query)
	if err != nil {
		return Result{}, WrapTransient(err, "search failed")
	}
	if strings.TrimSpace(res) == "" {
		return Result{}, Transientf("search returned no results for %q", args.Query)
	}
	return Result{Output: res, Meta: map[string]any{"query": args.Query}}, nil
}
