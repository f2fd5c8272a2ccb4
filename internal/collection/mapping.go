// Package collection maintains the user-visible collection name to
// backend-legal identifier mapping (spec.md §4.9): a JSON file guarded by a
// cross-process exclusive file lock, written atomically via a .tmp sibling
// and os.Rename, grounded on the teacher's internal/embed.FileLock.
package collection

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	mcberrors "github.com/marlonsc/mcbgo/internal/errors"
)

var invalidBackendChars = regexp.MustCompile(`[^a-z0-9_]+`)

// Mapper maps user-visible collection names (hyphens, mixed case allowed) to
// backend-legal identifiers (letters/digits/underscores, disambiguated with
// a 6-digit suffix), persisting the mapping to a JSON file.
type Mapper struct {
	path string
	lock *flock.Flock

	// mu serializes in-process access; the flock serializes cross-process
	// access. Both are held for the full read-modify-write critical section.
	mu sync.Mutex
}

// NewMapper creates a Mapper backed by the JSON file at path.
func NewMapper(path string) *Mapper {
	return &Mapper{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Resolve returns the backend id for userName, creating and persisting a new
// mapping if one does not already exist. Recreating a collection under the
// same user-name (after Forget) yields a new backend id — see Forget.
func (m *Mapper) Resolve(userName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.lock.Lock(); err != nil {
		return "", mcberrors.InternalError("failed to acquire collection mapping lock", err)
	}
	defer func() { _ = m.lock.Unlock() }()

	entries, err := m.readLocked()
	if err != nil {
		return "", err
	}

	if id, ok := entries[userName]; ok {
		return id, nil
	}

	id, err := generateBackendID(userName)
	if err != nil {
		return "", err
	}
	entries[userName] = id
	if err := m.writeLocked(entries); err != nil {
		return "", err
	}
	return id, nil
}

// Lookup returns the backend id for an existing user-name without creating
// one, and false if no mapping exists.
func (m *Mapper) Lookup(userName string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.lock.Lock(); err != nil {
		return "", false, mcberrors.InternalError("failed to acquire collection mapping lock", err)
	}
	defer func() { _ = m.lock.Unlock() }()

	entries, err := m.readLocked()
	if err != nil {
		return "", false, err
	}
	id, ok := entries[userName]
	return id, ok, nil
}

// Forget removes the mapping for userName so the next Resolve call mints a
// fresh backend id. The caller is responsible for deleting the underlying
// vector/text collection; Forget only drops the name mapping.
func (m *Mapper) Forget(userName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.lock.Lock(); err != nil {
		return mcberrors.InternalError("failed to acquire collection mapping lock", err)
	}
	defer func() { _ = m.lock.Unlock() }()

	entries, err := m.readLocked()
	if err != nil {
		return err
	}
	delete(entries, userName)
	return m.writeLocked(entries)
}

// List returns every user-name -> backend-id pair currently mapped.
func (m *Mapper) List() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.lock.Lock(); err != nil {
		return nil, mcberrors.InternalError("failed to acquire collection mapping lock", err)
	}
	defer func() { _ = m.lock.Unlock() }()

	return m.readLocked()
}

func (m *Mapper) readLocked() (map[string]string, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, mcberrors.InternalError("failed to read collection mapping file", err)
	}
	if len(data) == 0 {
		return map[string]string{}, nil
	}
	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, mcberrors.New(mcberrors.ErrCodeJSON, "collection mapping file is corrupt", err)
	}
	return entries, nil
}

// writeLocked stages the new content at path+".tmp" then renames it over
// path, so a crash between write and rename leaves the previous mapping
// file intact.
func (m *Mapper) writeLocked(entries map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return mcberrors.InternalError("failed to create collection mapping directory", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return mcberrors.New(mcberrors.ErrCodeJSON, "failed to marshal collection mapping", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return mcberrors.InternalError("failed to stage collection mapping file", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		return mcberrors.InternalError("failed to commit collection mapping file", err)
	}
	return nil
}

// generateBackendID derives "<user_name_lowercased_underscored>_<6-digit-suffix>".
func generateBackendID(userName string) (string, error) {
	base := strings.ToLower(userName)
	base = invalidBackendChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")
	if base == "" {
		base = "collection"
	}

	suffix, err := randomDigits(6)
	if err != nil {
		return "", mcberrors.InternalError("failed to generate collection id suffix", err)
	}
	return fmt.Sprintf("%s_%s", base, suffix), nil
}

func randomDigits(n int) (string, error) {
	const digits = "0123456789"
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = digits[int(b)%len(digits)]
	}
	return string(out), nil
}
