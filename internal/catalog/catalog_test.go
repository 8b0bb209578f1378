package catalog

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(DefaultModels())
	require.NoError(t, err)
	return c
}

func TestSelect_InRange(t *testing.T) {
	c := newTestCatalog(t)
	for i := 0; i < c.Len(); i++ {
		require.NoError(t, c.Select(i))
		assert.Equal(t, i, c.SelectedIndex())
		assert.Equal(t, DefaultModels()[i].ID, c.Selected().ID)
	}
}

func TestSelect_OutOfRangeLeavesSelection(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Select(2))

	for _, idx := range []int{-1, c.Len(), c.Len() + 10} {
		err := c.Select(idx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrOutOfRange))
		assert.Equal(t, 2, c.SelectedIndex())
	}
}

func TestSelect_PreservesStatuses(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.SetStatus(0, StatusLoading))
	require.NoError(t, c.SetStatus(1, StatusError))

	require.NoError(t, c.Select(3))

	s0, _ := c.StatusOf(0)
	s1, _ := c.StatusOf(1)
	assert.Equal(t, StatusLoading, s0)
	assert.Equal(t, StatusError, s1)
}

func TestReplace_ResetsSelection(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Select(3))

	require.NoError(t, c.Replace([]Model{{ID: "a/b", Name: "b", Status: StatusAvailable}}))
	assert.Equal(t, 0, c.SelectedIndex())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "a/b", c.Selected().ID)

	assert.Error(t, c.Replace(nil))
	assert.Equal(t, 1, c.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	c := newTestCatalog(t)
	snap := c.Snapshot()
	snap[0].Status = StatusError
	snap[0].Name = "mutated"

	s, _ := c.StatusOf(0)
	assert.Equal(t, StatusUnknown, s)
	assert.Equal(t, "Proteus V0.2", c.Selected().Name)
}

func TestSetStatusByID(t *testing.T) {
	c := newTestCatalog(t)
	assert.True(t, c.SetStatusByID("runwayml/stable-diffusion-v1-5", StatusAvailable))
	assert.False(t, c.SetStatusByID("missing/model", StatusAvailable))
	assert.Equal(t, StatusAvailable, c.Statuses()["runwayml/stable-diffusion-v1-5"])
	assert.False(t, c.HasErrors())

	require.NoError(t, c.SetStatus(0, StatusError))
	assert.True(t, c.HasErrors())
}

func TestSuggest(t *testing.T) {
	c := newTestCatalog(t)

	idx, inserted := Suggest(c, ReliableFallback)
	assert.False(t, inserted)
	assert.Equal(t, 3, idx)
	assert.Equal(t, 4, c.Len())

	require.NoError(t, c.Replace([]Model{{ID: "x/y", Name: "y"}}))
	idx, inserted = Suggest(c, ReliableFallback)
	assert.True(t, inserted)
	assert.Equal(t, 1, idx)
	m, err := c.At(idx)
	require.NoError(t, err)
	assert.Equal(t, ReliableFallback.ID, m.ID)
	assert.Equal(t, StatusUnknown, m.Status)
}

func TestAppendAndIndexOrAppend(t *testing.T) {
	c := newTestCatalog(t)
	n := c.Len()
	assert.Equal(t, n, c.Append(Model{ID: "a/b", Name: "b"}))

	idx, appended := c.IndexOrAppend(Model{ID: "a/b", Name: "other"})
	assert.False(t, appended)
	assert.Equal(t, n, idx)

	idx, appended = c.IndexOrAppend(Model{ID: "c/d", Name: "d"})
	assert.True(t, appended)
	assert.Equal(t, n+1, idx)
	assert.Equal(t, n+2, c.Len())
}

func TestSuggest_ConcurrentCallsAppendOnce(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Replace([]Model{{ID: "x/y", Name: "y"}}))

	var (
		wg       sync.WaitGroup
		inserted atomic.Int32
		indexes  = make([]int, 32)
	)
	for i := range indexes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx, ok := Suggest(c, ReliableFallback)
			if ok {
				inserted.Add(1)
			}
			indexes[i] = idx
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), inserted.Load())
	assert.Equal(t, 2, c.Len())
	for _, idx := range indexes {
		assert.Equal(t, 1, idx)
	}
}

func TestParse(t *testing.T) {
	models, err := Parse([]byte(`{"models":[{"id":"org/model","name":"Model","description":"d"}]}`))
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "org/model", models[0].ID)

	_, err = Parse([]byte(`{"models":[]}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"models":[{"id":"no-owner","name":"x"}]}`))
	assert.Error(t, err)

	_, err = Parse([]byte(``))
	assert.Error(t, err)
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	in := []Model{{ID: "x/b", Name: "b", Description: "found", Status: StatusAvailable}}
	require.NoError(t, WriteFile(path, in))

	out, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "x/b", out[0].ID)
	assert.Equal(t, StatusUnknown, out[0].Status)
}
