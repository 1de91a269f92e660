package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 27, 12, 0, 0, 0, time.Local)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	e.nowFunc = func() time.Time { return fixedNow }
	return e
}

func snapshotJSON(ip, host string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"hostname":%q,"ip_address":%q,"timestamp":"2025-06-27 12:00:00"}`, host, ip))
}

func TestNewEngine(t *testing.T) {
	t.Run("creates data directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "data")
		e, err := NewEngine(dir, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, dir, e.DataDir())
		assert.DirExists(t, dir)
	})

	t.Run("empty directory rejected", func(t *testing.T) {
		_, err := NewEngine("", zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestEngine_StoreAndQuery(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Store(snapshotJSON("10.0.0.1", "alpha"))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", res.IPAddress)
	assert.Equal(t, "2025-06-27", res.Date)
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, filepath.Join(e.DataDir(), "10.0.0.1_2025-06-27.json"), res.Path)

	q, err := e.Query("10.0.0.1", "2025-06-27")
	require.NoError(t, err)
	require.Len(t, q.Records, 1)

	var got map[string]any
	require.NoError(t, json.Unmarshal(q.Records[0], &got))
	assert.Equal(t, "alpha", got["hostname"])
}

func TestEngine_StoreAppends(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Store(snapshotJSON("10.0.0.1", "first"))
	require.NoError(t, err)
	res, err := e.Store(snapshotJSON("10.0.0.1", "second"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)

	q, err := e.Query("10.0.0.1", "")
	require.NoError(t, err)
	require.Len(t, q.Records, 2)
	assert.Equal(t, "2025-06-27", q.Date)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(q.Records[0], &first))
	require.NoError(t, json.Unmarshal(q.Records[1], &second))
	assert.Equal(t, "first", first["hostname"])
	assert.Equal(t, "second", second["hostname"])
}

func TestEngine_StoreWritesIndentedArray(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Store(snapshotJSON("10.0.0.1", "alpha"))
	require.NoError(t, err)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, byte('['), data[0])
	assert.Contains(t, string(data), "\n    \"hostname\": \"alpha\"")
}

func TestEngine_StoreUsesServerDate(t *testing.T) {
	e := newTestEngine(t)

	record := json.RawMessage(`{"hostname":"h","ip_address":"10.0.0.2","timestamp":"1999-01-01 00:00:00"}`)
	res, err := e.Store(record)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-27", res.Date)
}

func TestEngine_StoreMissingIP(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Store(json.RawMessage(`{"hostname":"h"}`))
	require.NoError(t, err)
	assert.Equal(t, "unknown", res.IPAddress)
}

func TestEngine_StoreRejectsUnsafeIP(t *testing.T) {
	e := newTestEngine(t)

	for _, ip := range []string{"../etc", "a/b", "10.0.0.1_x", ".."} {
		t.Run(ip, func(t *testing.T) {
			_, err := e.Store(snapshotJSON(ip, "h"))
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestEngine_StoreInvalidJSON(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Store(json.RawMessage(`{"hostname":`))
	assert.Error(t, err)
}

func TestEngine_StoreCoercesLoneRecord(t *testing.T) {
	e := newTestEngine(t)

	path := filepath.Join(e.DataDir(), "10.0.0.1_2025-06-27.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"hostname":"legacy","ip_address":"10.0.0.1"}`), 0644))

	res, err := e.Store(snapshotJSON("10.0.0.1", "new"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)

	q, err := e.Query("10.0.0.1", "2025-06-27")
	require.NoError(t, err)
	require.Len(t, q.Records, 2)

	var legacy map[string]any
	require.NoError(t, json.Unmarshal(q.Records[0], &legacy))
	assert.Equal(t, "legacy", legacy["hostname"])
}

func TestEngine_StoreCorruptFile(t *testing.T) {
	e := newTestEngine(t)

	path := filepath.Join(e.DataDir(), "10.0.0.1_2025-06-27.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"broken"`), 0644))

	_, err := e.Store(snapshotJSON("10.0.0.1", "new"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[{"broken"`, string(data))
}

func TestEngine_QueryErrors(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Query("10.0.0.9", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.Query("10.0.0.9", "2000-01-01")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, date := range []string{"bad-date", "2025/06/27", "2025-13-01", "27-06-2025"} {
		_, err = e.Query("10.0.0.9", date)
		assert.ErrorIs(t, err, ErrInvalidDate, date)
	}
}

func TestEngine_List(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Store(snapshotJSON("10.0.0.1", "a"))
	require.NoError(t, err)
	_, err = e.Store(snapshotJSON("10.0.0.2", "b"))
	require.NoError(t, err)
	_, err = e.Store(snapshotJSON("10.0.0.2", "b"))
	require.NoError(t, err)

	e.nowFunc = func() time.Time { return fixedNow.AddDate(0, 0, 1) }
	_, err = e.Store(snapshotJSON("10.0.0.1", "a"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(e.DataDir(), "garbage.json"), []byte(`[]`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(e.DataDir(), "a_b_c.json"), []byte(`[]`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(e.DataDir(), "notes.txt"), []byte(`x`), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(e.DataDir(), "sub_dir.json"), 0755))

	entries, err := e.List()
	require.NoError(t, err)

	assert.Equal(t, []DataEntry{
		{IPAddress: "10.0.0.1", Date: "2025-06-27", Filename: "10.0.0.1_2025-06-27.json"},
		{IPAddress: "10.0.0.1", Date: "2025-06-28", Filename: "10.0.0.1_2025-06-28.json"},
		{IPAddress: "10.0.0.2", Date: "2025-06-27", Filename: "10.0.0.2_2025-06-27.json"},
	}, entries)
}

func TestEngine_ListEmpty(t *testing.T) {
	e := newTestEngine(t)

	entries, err := e.List()
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestEngine_ConcurrentStoresSameKey(t *testing.T) {
	e := newTestEngine(t)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.Store(snapshotJSON("10.0.0.1", fmt.Sprintf("host-%d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	q, err := e.Query("10.0.0.1", "2025-06-27")
	require.NoError(t, err)
	assert.Len(t, q.Records, n)

	e.mu.Lock()
	assert.Empty(t, e.locks)
	e.mu.Unlock()

	entries, err := e.List()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
