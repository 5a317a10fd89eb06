package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStoreSaveLoad(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	in := record{Name: "flow", Count: 3}
	require.NoError(t, store.Save("abc123", in))

	var out record
	require.NoError(t, store.Load("abc123", &out))
	assert.Equal(t, in, out)

	// Saving again replaces the record.
	in.Count = 4
	require.NoError(t, store.Save("abc123", in))
	require.NoError(t, store.Load("abc123", &out))
	assert.Equal(t, 4, out.Count)
}

func TestStoreLoadMissing(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	var out record
	err = store.Load("nope", &out)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, store.Exists("nope"))
}

func TestStoreListAndDelete(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("one", record{}))
	require.NoError(t, store.Save("two", record{}))

	ids, err := store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"one", "two"}, ids)

	require.NoError(t, store.Delete("one"))
	require.NoError(t, store.Delete("one")) // deleting twice is fine

	ids, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, ids)
}

func TestStoreSanitizesIds(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	// Account addresses are base58 already, but ids must never escape
	// the store directory.
	require.NoError(t, store.Save("../evil", record{Name: "x"}))
	var out record
	require.NoError(t, store.Load("../evil", &out))
	assert.Equal(t, "x", out.Name)
}
