package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petergault/supersky/internal/validation"
)

func recentPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "recent.json")
}

func TestRecentZipsMostRecentFirstDeduped(t *testing.T) {
	r := NewRecentZips(recentPath(t))

	require.NoError(t, r.Add("10001"))
	require.NoError(t, r.Add("90210"))
	require.NoError(t, r.Add("10001"))

	assert.Equal(t, []string{"10001", "90210"}, r.List(), "re-adding moves to the front without duplicating")
}

func TestRecentZipsCapped(t *testing.T) {
	r := NewRecentZips(recentPath(t))

	zips := []string{"10001", "90210", "60601", "94103", "33101", "02108"}
	for _, zip := range zips {
		require.NoError(t, r.Add(zip))
	}

	assert.Equal(t, []string{"02108", "33101", "94103", "60601", "90210"}, r.List())
}

func TestRecentZipsRejectsInvalid(t *testing.T) {
	r := NewRecentZips(recentPath(t))
	assert.ErrorIs(t, r.Add("1234"), validation.ErrZipInvalid)
	assert.ErrorIs(t, r.Add(""), validation.ErrZipEmpty)
	assert.Empty(t, r.List())
}

func TestRecentZipsPersistsAcrossInstances(t *testing.T) {
	path := recentPath(t)

	first := NewRecentZips(path)
	require.NoError(t, first.Add("10001"))
	require.NoError(t, first.Add("90210"))

	second := NewRecentZips(path)
	assert.Equal(t, []string{"90210", "10001"}, second.List())
}

func TestRecentZipsIgnoresCorruptFile(t *testing.T) {
	path := recentPath(t)
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	r := NewRecentZips(path)
	assert.Empty(t, r.List())
	require.NoError(t, r.Add("10001"))
	assert.Equal(t, []string{"10001"}, r.List())
}

func TestRecentZipsDropsInvalidStoredEntries(t *testing.T) {
	path := recentPath(t)
	require.NoError(t, os.WriteFile(path, []byte(`["10001","bogus","90210"]`), 0o644))

	r := NewRecentZips(path)
	assert.Equal(t, []string{"10001", "90210"}, r.List())
}
