package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// maxHistoryEntries caps how much input history is offered back to the user.
const maxHistoryEntries = 500

// HistoryEntry is a single persisted input line.
type HistoryEntry struct {
	Timestamp time.Time `json:"ts"`
	Input     string    `json:"input"`
}

// HistoryManager persists chat input history as JSONL under the workspace.
type HistoryManager struct {
	path string
	mu   sync.Mutex
}

// NewHistoryManager creates a history manager at <workspace>/history/input.jsonl.
func NewHistoryManager(workspaceRoot string) (*HistoryManager, error) {
	dir := filepath.Join(workspaceRoot, "history")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return &HistoryManager{
		path: filepath.Join(dir, "input.jsonl"),
	}, nil
}

// Load returns the most recent inputs, oldest first. Malformed lines are
// skipped.
func (h *HistoryManager) Load() ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var inputs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry HistoryEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if entry.Input != "" {
			inputs = append(inputs, entry.Input)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(inputs) > maxHistoryEntries {
		inputs = inputs[len(inputs)-maxHistoryEntries:]
	}
	return inputs, nil
}

// Append adds one input line to the history file.
func (h *HistoryManager) Append(input string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := json.Marshal(HistoryEntry{Timestamp: time.Now(), Input: input})
	if err != nil {
		return err
	}

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}
