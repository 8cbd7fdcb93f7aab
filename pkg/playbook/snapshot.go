package playbook

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// Snapshot is the persisted form of a playbook. The sections index is not
// stored; it is derived on load.
type Snapshot struct {
	Items   []KnowledgeItem `json:"items"`
	SavedAt time.Time       `json:"saved_at"`
}

// Snapshot captures the current playbook state.
func (p *Playbook) Snapshot() Snapshot {
	return Snapshot{
		Items:   p.All(),
		SavedAt: time.Now(),
	}
}

// SaveSnapshot writes the playbook to a JSON file atomically.
func (p *Playbook) SaveSnapshot(path string) error {
	snap := p.Snapshot()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to marshal snapshot")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to create snapshot directory")
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to write snapshot")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, errors.Unknown, "failed to replace snapshot")
	}
	return nil
}

// LoadSnapshot reads a playbook from a JSON snapshot file, rebuilding the
// sections index. Duplicate ids or missing required fields abort the load
// with PersistenceCorruption; the caller must supply a valid snapshot or
// start empty.
func LoadSnapshot(path string, config Config) (*Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to read snapshot"),
			errors.Fields{"path": path},
		)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.PersistenceCorruption, "snapshot is not valid JSON"),
			errors.Fields{"path": path},
		)
	}

	return Restore(config, snap.Items)
}
