package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"leverscope/internal/model"
)

// JournalEntry is one line of the transaction audit trail.
type JournalEntry struct {
	At          time.Time      `json:"at"`
	AttemptID   string         `json:"attempt_id"`
	UserID      string         `json:"user_id"`
	ChainID     uint64         `json:"chain_id"`
	PoolAddress string         `json:"pool_address"`
	TxHash      string         `json:"tx_hash,omitempty"`
	TxType      model.TxType   `json:"tx_type"`
	Status      model.TxStatus `json:"status"`
	Detail      string         `json:"detail,omitempty"`
}

// Journal appends transaction lifecycle events to a JSONL file. It is an
// audit trail next to the store rows, not a source of truth.
type Journal struct {
	path string
	mu   sync.Mutex
}

func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Append writes one entry as a JSON line. A nil Journal is a no-op so callers
// can leave the audit trail unconfigured.
func (j *Journal) Append(entry JournalEntry) error {
	if j == nil || j.path == "" {
		return nil
	}

	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}
