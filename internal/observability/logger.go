package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan      EventType = "plan"
	EventTypePhase     EventType = "phase"
	EventTypeStep      EventType = "step"
	EventTypeRetry     EventType = "retry"
	EventTypeFallback  EventType = "fallback"
	EventTypePolicy    EventType = "policy_check"
	EventTypePublish   EventType = "publish"
	EventTypeHeartbeat EventType = "heartbeat"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	StepID    string    `json:"step_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	stepLogPath string
	maxSize     int64
}

func NewLogger() *Logger {
	return &Logger{
		stepLogPath: filepath.Join("logs", "workflow.jsonl"),
		maxSize:     10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeStep || evt.Type == EventTypePhase {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.stepLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.stepLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.stepLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.stepLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.stepLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogPlan(runID, phase string, added, removed int) {
	l.Log(Event{
		Type:  EventTypePlan,
		RunID: runID,
		Data: map[string]any{
			"phase":   phase,
			"added":   added,
			"removed": removed,
		},
	})
}

func (l *Logger) LogPhase(runID, phase, status string) {
	l.Log(Event{
		Type:  EventTypePhase,
		RunID: runID,
		Data: map[string]string{
			"phase":  phase,
			"status": status,
		},
	})
}

func (l *Logger) LogStep(runID, stepID, capability, status string, attempts int, elapsed time.Duration) {
	l.Log(Event{
		Type:   EventTypeStep,
		RunID:  runID,
		StepID: stepID,
		Data: map[string]any{
			"capability": capability,
			"status":     status,
			"attempts":   attempts,
			"elapsed_ms": elapsed.Milliseconds(),
		},
	})
}

func (l *Logger) LogRetry(runID, stepID, capability string, attempt int, backoff time.Duration, reason string) {
	l.Log(Event{
		Type:   EventTypeRetry,
		RunID:  runID,
		StepID: stepID,
		Data: map[string]any{
			"capability": capability,
			"attempt":    attempt,
			"backoff_ms": backoff.Milliseconds(),
			"reason":     reason,
		},
	})
}

func (l *Logger) LogFallback(runID, stepID, from, to string) {
	l.Log(Event{
		Type:   EventTypeFallback,
		RunID:  runID,
		StepID: stepID,
		Data: map[string]string{
			"from": from,
			"to":   to,
		},
	})
}

func (l *Logger) LogPolicyDenial(runID, stepID, capability, reason string) {
	l.Log(Event{
		Type:   EventTypePolicy,
		RunID:  runID,
		StepID: stepID,
		Data: map[string]string{
			"capability": capability,
			"effect":     "deny",
			"reason":     reason,
		},
	})
}

func (l *Logger) LogPublish(runID, topic string, formats []string) {
	l.Log(Event{
		Type:  EventTypePublish,
		RunID: runID,
		Data: map[string]any{
			"topic":   topic,
			"formats": formats,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}
