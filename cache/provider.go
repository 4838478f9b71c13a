package cache

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// CacheProvider is an interface for a cache provider.
// It stores and retrieves []byte values, which represent HTTP responses.
// Entries live inside named generations, and a generation is only ever
// written to or deleted as a whole unit plus per-entry overwrites.
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// Get returns the stored response for the given key within the given
	// generation, if it exists. The boolean indicates whether retrieval
	// was successful.
	Get(generation, key string) ([]byte, bool, error)
	// Put stores the given response bytes under the given key within the
	// given generation. An existing entry for the same key is overwritten
	// in full.
	Put(generation, key string, bytes []byte) error
	// Has checks if the specified key exists within the given generation.
	Has(generation, key string) bool
	// Keys calls the given callback for each key in the given generation.
	// It calls the callback in order to enable very large lists of keys to
	// be processable (provider implementation might use paging, for instance).
	Keys(generation string, cb func(string))
	// Generations returns the names of all generations that currently hold
	// at least one entry or have been opened.
	Generations() ([]string, error)
	// Open ensures the named generation exists, even if empty.
	Open(generation string) error
	// DeleteGeneration removes the named generation and all its entries.
	DeleteGeneration(generation string) error
}

type memEntry struct {
	storedAt time.Time
	bytes    []byte
}

type MemCache struct {
	mutex *sync.RWMutex
	db    map[string]map[string]memEntry
}

func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string]map[string]memEntry),
	}
}

func (m MemCache) Get(generation, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	gen, ok := m.db[generation]
	if !ok {
		return nil, false, nil
	}
	entry, ok := gen[key]
	if !ok {
		return nil, false, nil
	}
	return entry.bytes, true, nil
}

func (m MemCache) Put(generation, key string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	gen, ok := m.db[generation]
	if !ok {
		gen = make(map[string]memEntry)
		m.db[generation] = gen
	}
	gen[key] = memEntry{storedAt: time.Now(), bytes: bytes}
	return nil
}

func (m MemCache) Has(generation, key string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	gen, ok := m.db[generation]
	if !ok {
		return false
	}
	_, ok = gen[key]
	return ok
}

func (m MemCache) Keys(generation string, cb func(string)) {
	m.mutex.RLock()
	keys := make([]string, 0, len(m.db[generation]))
	for key := range m.db[generation] {
		keys = append(keys, key)
	}
	m.mutex.RUnlock()
	for _, key := range keys {
		cb(key)
	}
}

func (m MemCache) Generations() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.db))
	for name := range m.db {
		names = append(names, name)
	}
	return names, nil
}

func (m MemCache) Open(generation string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.db[generation]; !ok {
		m.db[generation] = make(map[string]memEntry)
	}
	return nil
}

func (m MemCache) DeleteGeneration(generation string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, generation)
	return nil
}

type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) SQLiteCache {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		generation TEXT,
		key TEXT,
		stored_at INTEGER,
		bytes BLOB,
		PRIMARY KEY (generation, key)
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS generations (
		name TEXT PRIMARY KEY
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteCache) Get(generation, key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRow(
		"SELECT bytes FROM cache WHERE generation = ? AND key = ?",
		generation, key,
	).Scan(&bytes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s SQLiteCache) Put(generation, key string, bytes []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO cache (generation, key, stored_at, bytes) VALUES (?, ?, ?, ?)",
		generation, key, time.Now().Unix(), bytes)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("INSERT OR IGNORE INTO generations (name) VALUES (?)", generation)
	return err
}

func (s SQLiteCache) Has(generation, key string) bool {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM cache WHERE generation = ? AND key = ?",
		generation, key,
	).Scan(&one)
	return err == nil
}

func (s SQLiteCache) Keys(generation string, cb func(string)) {
	rows, err := s.db.Query("SELECT key FROM cache WHERE generation = ?", generation)
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return
		}
		cb(key)
	}
}

func (s SQLiteCache) Generations() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM generations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s SQLiteCache) Open(generation string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT OR IGNORE INTO generations (name) VALUES (?)", generation)
	return err
}

func (s SQLiteCache) DeleteGeneration(generation string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.Exec("DELETE FROM cache WHERE generation = ?", generation); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM generations WHERE name = ?", generation)
	return err
}
