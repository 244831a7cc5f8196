package capability

import (
	"context"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

type GenerateCapability struct {
	Model llms.Model
}

func NewGenerateCapability(model llms.Model) *GenerateCapability {
	return &GenerateCapability{Model: model}
}

func (g *GenerateCapability) Name() string {
	return "generate_text"
}

func (g *GenerateCapability) Description() string {
	return "Generate text from a prompt using the configured language model."
}

func (g *GenerateCapability) Descriptor() Descriptor {
	return Descriptor{
		Timeout:    2 * time.Minute,
		Idempotent: true,
	}
}

func (g *GenerateCapability) Invoke(ctx context.Context, params map[string]any) (Result, error) {
	var args struct {
		Prompt    string `json:"prompt"`
		MaxTokens int    `json:"max_tokens"`
	}
	if err := decodeParams(params, &args); err != nil {
		return Result{}, Permanentf("invalid input: %v", err)
	}
	if strings.TrimSpace(args.Prompt) == "" {
		return Result{}, Permanentf("prompt must not be empty")
	}

	var opts []llms.CallOption
	if args.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(args.MaxTokens))
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, g.Model, args.Prompt, opts...)
	if err != nil {
		return Result{}, WrapTransient(err, "generation failed")
	}
	if strings.TrimSpace(out) == "" {
		return Result{}, Transientf("model returned an empty completion")
	}
	return Result{Output: out}, nil
}
