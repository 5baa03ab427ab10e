package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/petergault/supersky/internal/validation"
)

// maxRecentZips bounds the recent-ZIP list.
const maxRecentZips = 5

// RecentZips is a small persisted most-recently-used list of ZIP codes. Adding
// an existing entry moves it to the front instead of duplicating it; the list
// never exceeds maxRecentZips.
type RecentZips struct {
	mu   sync.Mutex
	path string
	zips []string
}

// NewRecentZips loads the list from path. A missing or unreadable file starts
// an empty list; entries that are not five-digit ZIPs are dropped on load.
func NewRecentZips(path string) *RecentZips {
	r := &RecentZips{path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		return r
	}
	var stored []string
	if err := json.Unmarshal(raw, &stored); err != nil {
		return r
	}
	for _, zip := range stored {
		if validation.IsZipCode(zip) && len(r.zips) < maxRecentZips {
			r.zips = append(r.zips, zip)
		}
	}
	return r
}

// Add records zip as most recently used and persists the list.
func (r *RecentZips) Add(zip string) error {
	normalized, err := validation.ValidateZipCode(zip)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]string, 0, maxRecentZips)
	next = append(next, normalized)
	for _, existing := range r.zips {
		if existing == normalized {
			continue
		}
		if len(next) == maxRecentZips {
			break
		}
		next = append(next, existing)
	}
	r.zips = next

	return r.save()
}

// List returns the ZIP codes from most to least recently used.
func (r *RecentZips) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.zips))
	copy(out, r.zips)
	return out
}

// save writes the list atomically: temp file in the same directory, then
// rename.
func (r *RecentZips) save() error {
	raw, err := json.Marshal(r.zips)
	if err != nil {
		return fmt.Errorf("encode recent zips: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create recent zips dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".recent-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write recent zips: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace recent zips file: %w", err)
	}
	return nil
}
