package threads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type jsonDocument struct {
	Version int      `json:"version"`
	Threads []Thread `json:"threads"`
}

// JSONBackend stores all threads in one JSON document, rewritten atomically
// through a temp file and rename.
type JSONBackend struct {
	path string
}

func NewJSONBackend(path string) *JSONBackend {
	return &JSONBackend{path: path}
}

func (b *JSONBackend) Name() string { return "json" }

func (b *JSONBackend) Load(_ context.Context) ([]Thread, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", b.path, err)
	}
	return doc.Threads, nil
}

func (b *JSONBackend) Save(_ context.Context, threads []Thread) error {
	if threads == nil {
		threads = []Thread{}
	}
	data, err := json.MarshalIndent(jsonDocument{Version: 1, Threads: threads}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode threads: %w", err)
	}
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".threads-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func (b *JSONBackend) Close() error { return nil }
