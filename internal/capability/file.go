package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type WriteFileCapability struct {
	Root string
}

func NewWriteFileCapability(root string) *WriteFileCapability {
	absRoot, _ := filepath.Abs(root)
	return &WriteFileCapability{Root: absRoot}
}

func (f *WriteFileCapability) Name() string {
	return "write_file"
}

func (f *WriteFileCapability) Description() string {
	return "Write a text or JSON document into the output workspace."
}

func (f *WriteFileCapability) Descriptor() Descriptor {
	return Descriptor{
		Timeout: 10 * time.Second,
		// Rewriting the same content to the same path is safe.
		Idempotent: true,
	}
}

func (f *WriteFileCapability) Invoke(ctx context.Context, params map[string]any) (Result, error) {
	var args struct {
		Path     string         `json:"path"`
		Content  string         `json:"content"`
		Document map[string]any `json:"document"`
	}
	if err := decodeParams(params, &args); err != nil {
		return Result{}, Permanentf("invalid input: %v", err)
	}
	if args.Path == "" {
		return Result{}, Permanentf("path must not be empty")
	}

	targetPath := filepath.Join(f.Root, args.Path)

	// Safety check: ensure targetPath is within f.Root
	rel, err := filepath.Rel(f.Root, targetPath)
	if err != nil || (len(rel) >= 2 && rel[:2] == "..") {
		return Result{}, Permanentf("unsafe path attempt: %s", args.Path)
	}

	data := []byte(args.Content)
	if args.Document != nil {
		data, err = json.MarshalIndent(args.Document, "", "  ")
		if err != nil {
			return Result{}, Permanentf("failed to encode document: %v", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return Result{}, WrapTransient(err, "failed to create directory")
	}
	if err := os.WriteFile(targetPath, data, 0644); err != nil {
		return Result{}, WrapTransient(err, "failed to write file")
	}

	return Result{
		Output: fmt.Sprintf("Successfully wrote %d bytes to %s", len(data), args.Path),
		Meta:   map[string]any{"path": targetPath},
	}, nil
}
