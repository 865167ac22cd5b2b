package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type fileState struct {
	ProcessedIDs []string  `json:"processed_ids"`
	LastCheck    time.Time `json:"last_check,omitempty"`
}

// FileStore keeps state in one JSON file, written atomically.
type FileStore struct {
	Path string
	Max  int
}

// Load returns an empty set when the file does not exist. A bare JSON array
// of ids is accepted as well.
func (s *FileStore) Load(_ context.Context) (*Processed, error) {
	p := NewProcessed(s.Max)
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	var st fileState
	if err := json.Unmarshal(b, &st); err != nil {
		var bare []string
		if err2 := json.Unmarshal(b, &bare); err2 != nil {
			return nil, fmt.Errorf("parse state %s: %w", s.Path, err)
		}
		st.ProcessedIDs = bare
	}
	for _, id := range st.ProcessedIDs {
		p.Add(id)
	}
	p.LastCheck = st.LastCheck
	return p, nil
}

func (s *FileStore) Save(_ context.Context, p *Processed) error {
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(fileState{ProcessedIDs: p.IDs(), LastCheck: p.LastCheck}, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}
