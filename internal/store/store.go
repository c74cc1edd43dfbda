// Package store persists account snapshots on disk so reports can be
// re-rendered without recrawling AWS.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pfrederiksen/privaudit/pkg/types"
)

const (
	// DefaultTTL is how long a stored snapshot is considered current.
	DefaultTTL = 24 * time.Hour

	// dirName is the directory under the user's home for snapshot storage.
	dirName = ".privaudit/snapshots"
)

// Store reads and writes snapshots under a single directory. Dir may be
// set explicitly; when empty the default location under the user's home
// is used. Snapshot files are named <accountID>-<timestamp>.json.
type Store struct {
	Dir string
}

func (s *Store) dir() (string, error) {
	if s.Dir != "" {
		return s.Dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// Save writes a snapshot, replacing any previous snapshots for the same
// account.
func (s *Store) Save(snap *types.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	if snap.AccountID == "" {
		return fmt.Errorf("snapshot has no account ID")
	}

	dir, err := s.dir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// Replace, don't accumulate: old snapshots for this account go first.
	if err := clearAccount(dir, snap.AccountID); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to clear old snapshots: %v\n", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("%s-%s.json", snap.AccountID, timestamp)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}

	return nil
}

// Load reads the most recent snapshot for an account. It returns nil if no
// snapshot exists or the latest one is older than ttl; errors are reserved
// for unexpected failures.
func (s *Store) Load(accountID string, ttl time.Duration) (*types.Snapshot, error) {
	if accountID == "" {
		return nil, fmt.Errorf("accountID cannot be empty")
	}

	dir, err := s.dir()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	path, modTime, err := latestFile(dir, accountID)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, nil
	}

	if time.Since(modTime) > ttl {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// Clear deletes stored snapshots. An empty accountID clears everything.
func (s *Store) Clear(accountID string) error {
	dir, err := s.dir()
	if err != nil {
		return err
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	if accountID == "" {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove snapshot directory: %w", err)
		}
		return nil
	}

	return clearAccount(dir, accountID)
}

// Entry describes one stored snapshot.
type Entry struct {
	AccountID string
	Path      string
	ModTime   time.Time
	Stale     bool
}

// Info lists every stored snapshot with its staleness relative to ttl.
func (s *Store) Info(ttl time.Duration) ([]Entry, error) {
	dir, err := s.dir()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, de.Name())
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		accountID := strings.TrimSuffix(de.Name(), ".json")
		// Strip the -<YYYYMMDD>-<HHMMSS> tail.
		if i := strings.LastIndexByte(accountID, '-'); i >= 0 {
			accountID = accountID[:i]
			if j := strings.LastIndexByte(accountID, '-'); j >= 0 {
				accountID = accountID[:j]
			}
		}

		entries = append(entries, Entry{
			AccountID: accountID,
			Path:      path,
			ModTime:   info.ModTime(),
			Stale:     time.Since(info.ModTime()) > ttl,
		})
	}

	return entries, nil
}

func latestFile(dir, accountID string) (string, time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	prefix := accountID + "-"
	var latestPath string
	var latestTime time.Time

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}

		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		if latestPath == "" || info.ModTime().After(latestTime) {
			latestPath = path
			latestTime = info.ModTime()
		}
	}

	return latestPath, latestTime, nil
}

func clearAccount(dir, accountID string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	prefix := accountID + "-"
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}

		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("failed to remove snapshot file %s: %w", name, err)
		}
	}

	return nil
}
