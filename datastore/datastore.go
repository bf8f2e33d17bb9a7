// Package datastore is a small JSON-file key/value store with atomic
// replace-on-write, checksum-skipped saves, rolling backups and periodic
// auto-save.
package datastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("datastore is closed")
	// ErrMemoryLimit is returned by Add when the value would exceed MaxMemorySize.
	ErrMemoryLimit = errors.New("datastore memory limit exceeded")
)

// Config holds configuration options for the DataStore
type Config struct {
	FilePath         string
	AutoSaveInterval time.Duration // 0 disables auto-save
	MaxMemorySize    int64         // Maximum memory usage in bytes (0 = unlimited)
	BackupCount      int           // Number of backup files to keep
	Logger           zerolog.Logger
}

// DefaultConfig returns a default configuration
func DefaultConfig(filePath string) *Config {
	return &Config{
		FilePath:         filePath,
		AutoSaveInterval: 10 * time.Second,
		MaxMemorySize:    100 * 1024 * 1024, // 100MB
		BackupCount:      3,
		Logger:           zerolog.Nop(),
	}
}

type DataStore struct {
	data         map[string]any     // in-memory data storage
	sizes        map[string]int64   // approximate encoded size per key
	file         string             // file path for persistent storage
	mu           sync.RWMutex       // guards data, sizes, memorySize
	saveMu       sync.Mutex         // serialises writers of the file
	ctx          context.Context    // context for cancellation
	cancel       context.CancelFunc // cancel function
	wg           sync.WaitGroup     // wait group for graceful shutdown
	config       *Config            // configuration
	log          zerolog.Logger
	memorySize   int64  // approximate memory usage
	lastChecksum string // checksum of last saved data
	closed       bool   // flag to indicate if store is closed
	closeMu      sync.RWMutex
}

// New creates a new DataStore with default configuration
func New(filePath string) (*DataStore, error) {
	return NewWithConfig(DefaultConfig(filePath))
}

// NewWithConfig creates a new DataStore with custom configuration
func NewWithConfig(config *Config) (*DataStore, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if config.FilePath == "" {
		return nil, errors.New("file path cannot be empty")
	}

	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	store := &DataStore{
		data:   make(map[string]any),
		sizes:  make(map[string]int64),
		file:   config.FilePath,
		ctx:    ctx,
		cancel: cancel,
		config: config,
		log:    config.Logger.With().Str("component", "datastore").Logger(),
	}

	if _, err := os.Stat(config.FilePath); errors.Is(err, os.ErrNotExist) {
		if err := store.writeFileAtomic([]byte("{}")); err != nil {
			cancel()
			return nil, fmt.Errorf("create empty JSON file: %w", err)
		}
	} else if err == nil {
		if err := store.loadFromFile(); err != nil {
			cancel()
			return nil, fmt.Errorf("load data from file: %w", err)
		}
	} else {
		cancel()
		return nil, fmt.Errorf("check file existence: %w", err)
	}

	if config.AutoSaveInterval > 0 {
		store.wg.Add(1)
		go store.autoSave()
	}

	return store, nil
}

func (ds *DataStore) isClosed() bool {
	ds.closeMu.RLock()
	defer ds.closeMu.RUnlock()
	return ds.closed
}

// Add stores a key-value pair. The value must be JSON-encodable.
func (ds *DataStore) Add(key string, value any) error {
	if ds.isClosed() {
		return ErrClosed
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	newSize := int64(len(encoded))

	ds.mu.Lock()
	defer ds.mu.Unlock()

	next := ds.memorySize - ds.sizes[key] + newSize
	if ds.config.MaxMemorySize > 0 && next > ds.config.MaxMemorySize {
		return fmt.Errorf("%w: key %q", ErrMemoryLimit, key)
	}
	ds.memorySize = next
	ds.sizes[key] = newSize
	// store the encoded form so later mutation of value by the caller is not visible
	ds.data[key] = json.RawMessage(encoded)
	return nil
}

// Get retrieves a value by key
func (ds *DataStore) Get(key string) (any, bool) {
	if ds.isClosed() {
		return nil, false
	}

	ds.mu.RLock()
	defer ds.mu.RUnlock()
	value, exists := ds.data[key]
	return value, exists
}

// GetInto decodes the value stored under key into dst.
// It reports false when the key does not exist.
func (ds *DataStore) GetInto(key string, dst any) (bool, error) {
	value, ok := ds.Get(key)
	if !ok {
		return false, nil
	}
	raw, ok := value.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(value)
		if err != nil {
			return true, fmt.Errorf("re-encode %q: %w", key, err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// Keys returns all keys in sorted order.
func (ds *DataStore) Keys() []string {
	ds.mu.RLock()
	keys := make([]string, 0, len(ds.data))
	for k := range ds.data {
		keys = append(keys, k)
	}
	ds.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

// Delete removes a key-value pair
func (ds *DataStore) Delete(key string) {
	if ds.isClosed() {
		return
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if _, exists := ds.data[key]; exists {
		ds.memorySize -= ds.sizes[key]
		delete(ds.sizes, key)
		delete(ds.data, key)
	}
}

// SaveToFile forces an immediate save to disk
func (ds *DataStore) SaveToFile() error {
	if ds.isClosed() {
		return ErrClosed
	}
	return ds.saveToFile()
}

// Close stops auto-save and performs a final save.
func (ds *DataStore) Close() error {
	ds.closeMu.Lock()
	if ds.closed {
		ds.closeMu.Unlock()
		return nil
	}
	ds.closed = true
	ds.closeMu.Unlock()

	ds.cancel()
	ds.wg.Wait()

	return ds.saveToFile()
}

// saveToFile saves data to disk with atomic write and integrity checking
func (ds *DataStore) saveToFile() error {
	ds.saveMu.Lock()
	defer ds.saveMu.Unlock()

	ds.mu.RLock()
	data, err := json.MarshalIndent(ds.data, "", "  ")
	ds.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	checksum := calculateChecksum(data)
	if checksum == ds.lastChecksum {
		return nil
	}

	if ds.config.BackupCount > 0 {
		if err := ds.createBackup(); err != nil {
			ds.log.Warn().Err(err).Msg("backup failed")
		}
	}

	if err := ds.writeFileAtomic(data); err != nil {
		return err
	}

	if err := ds.verifyFile(checksum); err != nil {
		return fmt.Errorf("file verification failed: %w", err)
	}

	ds.lastChecksum = checksum
	return nil
}

// loadFromFile loads data from disk with validation
func (ds *DataStore) loadFromFile() error {
	data, err := os.ReadFile(ds.file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var temp map[string]json.RawMessage
	if err := json.Unmarshal(data, &temp); err != nil {
		return fmt.Errorf("invalid JSON format: %w", err)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.data = make(map[string]any, len(temp))
	ds.sizes = make(map[string]int64, len(temp))
	ds.memorySize = 0
	for k, v := range temp {
		ds.data[k] = v
		ds.sizes[k] = int64(len(v))
		ds.memorySize += int64(len(v))
	}
	ds.lastChecksum = calculateChecksum(data)
	return nil
}

// writeFileAtomic performs atomic file write using temporary file and rename
func (ds *DataStore) writeFileAtomic(data []byte) error {
	tmpFile := ds.file + ".tmp"

	f, err := os.OpenFile(tmpFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpFile, ds.file); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// verifyFile verifies that the written file matches expected checksum
func (ds *DataStore) verifyFile(expected string) error {
	actual, err := os.ReadFile(ds.file)
	if err != nil {
		return fmt.Errorf("read file for verification: %w", err)
	}
	if calculateChecksum(actual) != expected {
		return errors.New("file checksum mismatch")
	}
	return nil
}

// createBackup creates a timestamped backup of the current file
func (ds *DataStore) createBackup() error {
	if _, err := os.Stat(ds.file); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	backupFile := fmt.Sprintf("%s.backup.%s", ds.file, time.Now().Format("20060102_150405.000"))

	src, err := os.Open(ds.file)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(backupFile)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}

	ds.cleanupOldBackups()
	return nil
}

// cleanupOldBackups removes old backup files beyond the configured limit
func (ds *DataStore) cleanupOldBackups() {
	matches, err := filepath.Glob(ds.file + ".backup.*")
	if err != nil || len(matches) <= ds.config.BackupCount {
		return
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, match := range matches {
		if info, err := os.Stat(match); err == nil {
			files = append(files, fileInfo{match, info.ModTime()})
		}
	}
	slices.SortFunc(files, func(a, b fileInfo) int { return a.modTime.Compare(b.modTime) })

	for i := 0; i < len(files)-ds.config.BackupCount; i++ {
		os.Remove(files[i].path)
	}
}

// autoSave runs the periodic save routine
func (ds *DataStore) autoSave() {
	defer ds.wg.Done()

	ticker := time.NewTicker(ds.config.AutoSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ds.ctx.Done():
			return
		case <-ticker.C:
			if err := ds.saveToFile(); err != nil {
				ds.log.Error().Err(err).Msg("auto-save failed")
			}
		}
	}
}

func calculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Stats returns statistics about the DataStore
func (ds *DataStore) Stats() map[string]any {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	return map[string]any{
		"keys":        len(ds.data),
		"memory_size": ds.memorySize,
		"file_path":   ds.file,
		"last_save":   ds.lastChecksum != "",
	}
}
