package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskStorage keeps each named store as a directory under a root, with one
// JSON file per entry. Entry files are written to a temp name and renamed
// into place, so concurrent writes to the same URL settle last-write-wins
// without torn reads.
type DiskStorage struct {
	root string
}

// NewDiskStorage creates (if needed) the storage root and returns the
// namespace handle.
func NewDiskStorage(root string) (*DiskStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache root: %w", err)
	}
	return &DiskStorage{root: root}, nil
}

func (s *DiskStorage) Open(name string) (Store, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid store name %q", name)
	}
	dir := filepath.Join(s.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", name, err)
	}
	return &diskStore{dir: dir}, nil
}

// Delete removes a whole store. The platform primitive is all-or-nothing:
// either the directory is gone or the error says it is not.
func (s *DiskStorage) Delete(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid store name %q", name)
	}
	return os.RemoveAll(filepath.Join(s.root, name))
}

func (s *DiskStorage) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (s *DiskStorage) Has(name string) bool {
	info, err := os.Stat(filepath.Join(s.root, name))
	return err == nil && info.IsDir()
}

type diskStore struct {
	dir string
}

// entryFile maps a URL to its on-disk file name.
func (d *diskStore) entryFile(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(d.dir, hex.EncodeToString(sum[:])+".json")
}

type diskEntry struct {
	URL string `json:"url"`
	Entry
}

func (d *diskStore) Get(url string) (*Entry, bool) {
	raw, err := os.ReadFile(d.entryFile(url))
	if err != nil {
		return nil, false
	}
	var stored diskEntry
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, false
	}
	return &stored.Entry, true
}

func (d *diskStore) Put(url string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	raw, err := json.Marshal(diskEntry{URL: url, Entry: *entry})
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	path := d.entryFile(url)
	tmp, err := os.CreateTemp(d.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("failed to stage entry: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to store entry: %w", err)
	}
	return nil
}

func (d *diskStore) Has(url string) bool {
	_, err := os.Stat(d.entryFile(url))
	return err == nil
}

func (d *diskStore) Delete(url string) error {
	err := os.Remove(d.entryFile(url))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (d *diskStore) Keys() ([]string, error) {
	files, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	var urls []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(d.dir, f.Name()))
		if err != nil {
			continue
		}
		var stored diskEntry
		if err := json.Unmarshal(raw, &stored); err != nil {
			continue
		}
		urls = append(urls, stored.URL)
	}
	return urls, nil
}
