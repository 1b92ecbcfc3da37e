package pools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// RefreshCheckpoint persists the last successful refresh time per chain so a
// restarted process knows how stale its cache is.
type RefreshCheckpoint struct {
	path    string
	enabled bool

	mu   sync.Mutex
	data map[string]time.Time
}

func NewRefreshCheckpoint(path string, enabled bool) *RefreshCheckpoint {
	return &RefreshCheckpoint{path: path, enabled: enabled, data: make(map[string]time.Time)}
}

// Load returns the last refresh time for a chain, if recorded.
func (c *RefreshCheckpoint) Load(chainID uint64) (time.Time, bool, error) {
	if c == nil || !c.enabled {
		return time.Time{}, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.read(); err != nil {
		return time.Time{}, false, err
	}
	ts, ok := c.data[strconv.FormatUint(chainID, 10)]
	return ts, ok, nil
}

// Save records a refresh time for a chain, writing through a temp file.
func (c *RefreshCheckpoint) Save(chainID uint64, at time.Time) error {
	if c == nil || !c.enabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.read(); err != nil {
		return err
	}
	c.data[strconv.FormatUint(chainID, 10)] = at.UTC()

	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	data, err := json.Marshal(c.data)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

func (c *RefreshCheckpoint) read() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read checkpoint: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &c.data); err != nil {
		return fmt.Errorf("parse checkpoint: %w", err)
	}
	return nil
}
