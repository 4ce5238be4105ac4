// Package audit appends oracle interactions to an append-only JSONL log in
// the project directory.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/novelflow/internal/config"
)

// FileName is the audit log inside the project directory.
const FileName = "interactions.jsonl"

// Entry is one line of the audit log.
type Entry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Actor     string    `json:"actor,omitempty"`

	// llm_call
	ChapterID string `json:"chapter_id,omitempty"`
	Probe     string `json:"probe,omitempty"`
	Model     string `json:"model,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`

	// label
	ParentID string `json:"parent_id,omitempty"`
	Label    string `json:"label,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

var mu sync.Mutex

// Dir returns the directory the log lives in: $NF_DIR if set, otherwise the
// nearest .novelflow directory.
func Dir() (string, error) {
	if dir := os.Getenv("NF_DIR"); dir != "" {
		return dir, nil
	}
	return config.FindProjectDir()
}

// Append writes e as one JSON line and returns its id.
func Append(e *Entry) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil entry")
	}
	if e.Kind == "" {
		return "", fmt.Errorf("kind is required")
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if e.ID == "" {
		e.ID = "int-" + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	line, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal audit entry: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600) // #nosec G304 - project-local path
	if err != nil {
		return "", fmt.Errorf("open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return "", fmt.Errorf("write audit log: %w", err)
	}
	return e.ID, nil
}
