// Package storage persists host snapshots as one JSON file per host and day.
//
// Files are named {ip_address}_{YYYY-MM-DD}.json under the data directory and
// hold a JSON array of snapshot records in arrival order. The date is the
// server's local date at ingestion time.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DateLayout is the calendar date format used in keys and queries.
const DateLayout = "2006-01-02"

const (
	fileExt      = ".json"
	keySeparator = "_"
	unknownIP    = "unknown"
)

var (
	// ErrNotFound means no record set exists for the requested key.
	ErrNotFound = errors.New("no data found")

	// ErrInvalidDate means a query date is not in DateLayout.
	ErrInvalidDate = errors.New("invalid date format")

	// ErrInvalidKey means an ip address cannot be used as part of a file name.
	ErrInvalidKey = errors.New("invalid ip address for storage key")
)

// StoreResult describes a successful append.
type StoreResult struct {
	Path      string `json:"file_path"`
	IPAddress string `json:"ip_address"`
	Date      string `json:"date"`
	Records   int    `json:"records"`
}

// QueryResult is the record set stored under one key.
type QueryResult struct {
	IPAddress string
	Date      string
	Records   []json.RawMessage
}

// DataEntry is one persisted key, decoded from its file name.
type DataEntry struct {
	IPAddress string `json:"ip_address"`
	Date      string `json:"date"`
	Filename  string `json:"filename"`
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Engine stores and retrieves snapshot record sets on the local filesystem.
// Appends to the same key are serialized; each rewrite replaces the file
// atomically, so readers never observe a partial file.
type Engine struct {
	dataDir string
	logger  zerolog.Logger
	nowFunc func() time.Time

	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewEngine creates an Engine rooted at dataDir, creating the directory if
// needed.
func NewEngine(dataDir string, logger zerolog.Logger) (*Engine, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &Engine{
		dataDir: dataDir,
		logger:  logger,
		nowFunc: time.Now,
		locks:   make(map[string]*keyLock),
	}, nil
}

// DataDir returns the directory records are stored in.
func (e *Engine) DataDir() string {
	return e.dataDir
}

// Today returns the server's current date in DateLayout.
func (e *Engine) Today() string {
	return e.nowFunc().Format(DateLayout)
}

// Store appends record to the set for (record.ip_address, today). A record
// without a string ip_address is filed under "unknown".
func (e *Engine) Store(record json.RawMessage) (*StoreResult, error) {
	if !json.Valid(record) {
		return nil, fmt.Errorf("record is not valid JSON")
	}

	ip := extractIP(record)
	if err := validateIP(ip); err != nil {
		return nil, err
	}

	date := e.Today()
	filename := keyFilename(ip, date)
	path := filepath.Join(e.dataDir, filename)

	unlock := e.lock(filename)
	defer unlock()

	records, err := readRecords(path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	records = append(records, compact(record))

	if err := writeRecords(path, records); err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("ip_address", ip).
		Str("date", date).
		Int("records", len(records)).
		Msg("Stored snapshot")

	return &StoreResult{
		Path:      path,
		IPAddress: ip,
		Date:      date,
		Records:   len(records),
	}, nil
}

// Query returns the record set for (ip, date). An empty date means today.
func (e *Engine) Query(ip, date string) (*QueryResult, error) {
	if date == "" {
		date = e.Today()
	} else if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDate, date)
	}

	if err := validateIP(ip); err != nil {
		return nil, err
	}

	records, err := readRecords(filepath.Join(e.dataDir, keyFilename(ip, date)))
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		IPAddress: ip,
		Date:      date,
		Records:   records,
	}, nil
}

// List enumerates every stored key in file name order. Files whose names do
// not decode into exactly an ip and a date are skipped.
func (e *Engine) List() ([]DataEntry, error) {
	entries, err := os.ReadDir(e.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []DataEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	out := make([]DataEntry, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}

		parts := strings.Split(strings.TrimSuffix(name, fileExt), keySeparator)
		if len(parts) != 2 {
			continue
		}

		out = append(out, DataEntry{
			IPAddress: parts[0],
			Date:      parts[1],
			Filename:  name,
		})
	}

	return out, nil
}

// lock acquires the mutex for key and returns its release function.
func (e *Engine) lock(key string) func() {
	e.mu.Lock()
	kl, ok := e.locks[key]
	if !ok {
		kl = &keyLock{}
		e.locks[key] = kl
	}
	kl.refs++
	e.mu.Unlock()

	kl.mu.Lock()

	return func() {
		kl.mu.Unlock()

		e.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(e.locks, key)
		}
		e.mu.Unlock()
	}
}

func keyFilename(ip, date string) string {
	return ip + keySeparator + date + fileExt
}

func extractIP(record json.RawMessage) string {
	var probe struct {
		IPAddress *string `json:"ip_address"`
	}
	if err := json.Unmarshal(record, &probe); err != nil || probe.IPAddress == nil || *probe.IPAddress == "" {
		return unknownIP
	}
	return *probe.IPAddress
}

func validateIP(ip string) error {
	switch {
	case ip == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case filepath.Base(ip) != ip, ip == ".", ip == "..":
		return fmt.Errorf("%w: %q contains path separators", ErrInvalidKey, ip)
	case strings.Contains(ip, keySeparator):
		return fmt.Errorf("%w: %q contains %q", ErrInvalidKey, ip, keySeparator)
	}
	return nil
}

// readRecords loads the record set at path. A file holding a single JSON value
// instead of an array is treated as a one-element set.
func readRecords(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
		}
		if records == nil {
			records = []json.RawMessage{}
		}
		return records, nil
	}

	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("failed to decode %s: invalid JSON", filepath.Base(path))
	}
	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}

// writeRecords replaces the file at path with records, indented by two spaces.
func writeRecords(path string, records []json.RawMessage) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write records: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write records: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func compact(record json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, record); err != nil {
		return record
	}
	return buf.Bytes()
}
