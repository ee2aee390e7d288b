package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const cacheFileName = "policy_cache.json"

// Cache persists the last-known policy, merged with built-in defaults, to a
// JSON file under a state directory. Writes are atomic (temp file then
// rename) so a crash mid-write never leaves a truncated or corrupt file
// behind.
type Cache struct {
	dir string
}

// NewCache returns a Cache that reads/writes policy_cache.json in dir.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Path returns the full path to the cache file.
func (c *Cache) Path() string {
	return filepath.Join(c.dir, cacheFileName)
}

// Load reads the cached policy and merges it over Default(). If the file
// does not exist, Default() alone is returned; missing keys (or a wholly
// missing file) never stall collection.
func (c *Cache) Load() (Policy, error) {
	return c.LoadOver(Default())
}

// LoadOver reads the cached policy and merges it over base, for callers
// whose runtime defaults differ from Default() (the engine overlays its
// config file's collector and risk sections first). A missing file
// returns base alone.
func (c *Cache) LoadOver(base Policy) (Policy, error) {
	data, err := os.ReadFile(c.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return Policy{}, fmt.Errorf("policy cache: read: %w", err)
	}

	var cached Policy
	if err := json.Unmarshal(data, &cached); err != nil {
		return Policy{}, fmt.Errorf("policy cache: parse: %w", err)
	}

	return Merge(base, cached), nil
}

// Save writes p to disk, pretty-printed UTF-8 JSON, via a temp-file-then-
// rename so readers never observe a partially written file.
func (c *Cache) Save(p Policy) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return fmt.Errorf("policy cache: creating dir: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("policy cache: marshal: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(c.dir, ".policy-*.tmp")
	if err != nil {
		return fmt.Errorf("policy cache: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("policy cache: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("policy cache: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.Path()); err != nil {
		return fmt.Errorf("policy cache: renaming: %w", err)
	}
	committed = true

	return nil
}
