package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RecordWriter is the slice of the run store the database capability
// needs. Implemented by store.Store.
type RecordWriter interface {
	InsertRecord(runID, niche, topic, fields string) error
}

// recordParams is the shared parameter shape of write_database_record
// and notion_page, so one can stand in for the other as a fallback.
type recordParams struct {
	RunID    string            `json:"run_id"`
	Niche    string            `json:"niche"`
	Topic    string            `json:"topic"`
	Title    string            `json:"title"`
	Summary  string            `json:"summary"`
	Keywords []string          `json:"keywords"`
	Tags     []string          `json:"tags"`
	Formats  map[string]string `json:"formats"`
}

type RecordStoreCapability struct {
	Store RecordWriter
}

func NewRecordStoreCapability(store RecordWriter) *RecordStoreCapability {
	return &RecordStoreCapability{Store: store}
}

func (c *RecordStoreCapability) Name() string {
	return "write_database_record"
}

func (c *RecordStoreCapability) Description() string {
	return "Persist one content record per run into the local database."
}

func (c *RecordStoreCapability) Descriptor() Descriptor {
	return Descriptor{
		Timeout: 10 * time.Second,
		// A retry after an ambiguous failure could insert a duplicate
		// record, so the executor must not re-invoke.
		Idempotent: false,
	}
}

func (c *RecordStoreCapability) Invoke(ctx context.Context, params map[string]any) (Result, error) {
	var args recordParams
	if err := decodeParams(params, &args); err != nil {
		return Result{}, Permanentf("invalid input: %v", err)
	}
	if args.RunID == "" || args.Topic == "" {
		return Result{}, Permanentf("run_id and topic are required")
	}

	fields, err := json.Marshal(args)
	if err != nil {
		return Result{}, Permanentf("failed to encode record: %v", err)
	}

	if err := c.Store.InsertRecord(args.RunID, args.Niche, args.Topic, string(fields)); err != nil {
		return Result{}, WrapTransient(err, "failed to insert record")
	}

	return Result{
		Output: fmt.Sprintf("Recorded run %s for topic %q", args.RunID, args.Topic),
		Meta:   map[string]any{"run_id": args.RunID},
	}, nil
}
