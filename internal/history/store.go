// Package history keeps saved records on disk, one directory per record.
//
//	<dir>/<id>/record.json   manifest item describing the record
//	<dir>/<id>/<ref>         payloads named as record.json refers to them
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"lumen/internal/archive"
	"lumen/internal/record"
)

const descriptorName = "record.json"

var ErrNotFound = errors.New("history: record not found")

// Store is safe for concurrent use within one process.
type Store struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
}

// Open creates dir if needed.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// Save commits r and marks it saved. Saving an id again replaces it.
func (s *Store) Save(r *record.Record) error {
	if !validID(r.ID) {
		return fmt.Errorf("history: invalid record id %q", r.ID)
	}
	if !r.Processed() {
		return fmt.Errorf("history: record %s has no processed output", r.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.MkdirTemp(s.dir, "."+r.ID+"-")
	if err != nil {
		return fmt.Errorf("history: stage record: %w", err)
	}
	defer os.RemoveAll(tmp)

	item := archive.NewItem(r)
	files := map[string][]byte{
		item.OriginalFileNameRef:   r.OriginalBytes,
		item.CompressedFileNameRef: r.ProcessedBytes,
	}
	if item.AIOriginalFileNameRef != "" {
		files[item.AIOriginalFileNameRef] = r.AIOriginalBytes
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(tmp, name), data, 0o644); err != nil {
			return fmt.Errorf("history: write %s: %w", name, err)
		}
	}
	desc, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal descriptor: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, descriptorName), desc, 0o644); err != nil {
		return fmt.Errorf("history: write descriptor: %w", err)
	}

	final := filepath.Join(s.dir, r.ID)
	if err := os.RemoveAll(final); err != nil {
		return fmt.Errorf("history: replace %s: %w", r.ID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("history: commit %s: %w", r.ID, err)
	}

	r.MarkSaved()
	s.logger.Debug("record saved", zap.String("id", r.ID), zap.String("name", r.OriginalName))
	return nil
}

// Get loads one record.
func (s *Store) Get(id string) (*record.Record, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(filepath.Join(s.dir, id))
}

func (s *Store) load(dir string) (*record.Record, error) {
	raw, err := os.ReadFile(filepath.Join(dir, descriptorName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: read descriptor: %w", err)
	}
	var item archive.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("history: parse %s: %w", dir, err)
	}

	original, err := os.ReadFile(filepath.Join(dir, item.OriginalFileNameRef))
	if err != nil {
		return nil, fmt.Errorf("history: read original of %s: %w", item.ID, err)
	}
	processed, err := os.ReadFile(filepath.Join(dir, item.CompressedFileNameRef))
	if err != nil {
		return nil, fmt.Errorf("history: read output of %s: %w", item.ID, err)
	}
	var aiOriginal []byte
	if item.AIOriginalFileNameRef != "" {
		if aiOriginal, err = os.ReadFile(filepath.Join(dir, item.AIOriginalFileNameRef)); err != nil {
			return nil, fmt.Errorf("history: read generated image of %s: %w", item.ID, err)
		}
	}

	r := item.Record(original, processed, aiOriginal)
	r.MarkSaved()
	return r, nil
}

// List returns every record, newest first. Unreadable entries are logged
// and left out.
func (s *Store) List() ([]*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}

	records := make([]*record.Record, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		r, err := s.load(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable history entry", zap.String("entry", e.Name()), zap.Error(err))
			continue
		}
		records = append(records, r)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})
	return records, nil
}

// Delete removes records by id. Unknown ids are reported as ErrNotFound
// after the known ones are removed.
func (s *Store) Delete(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []string
	for _, id := range ids {
		dir := filepath.Join(s.dir, id)
		if !validID(id) {
			missing = append(missing, id)
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, descriptorName)); errors.Is(err, os.ErrNotExist) {
			missing = append(missing, id)
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("history: delete %s: %w", id, err)
		}
		s.logger.Debug("record deleted", zap.String("id", id))
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, strings.Join(missing, ", "))
	}
	return nil
}
