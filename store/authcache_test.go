package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcpsim/types"
)

func openStore(t *testing.T) *AuthStore {
	t.Helper()
	s, err := Open(t.TempDir(), "CP-TEST")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCacheTagInfoRoundTrip(t *testing.T) {
	s := openStore(t)

	info, err := s.TagInfo("TAG1")
	require.NoError(t, err)
	assert.Nil(t, info, "unknown tag yields nil")

	require.NoError(t, s.CacheTagInfo("TAG1", types.NewIdTagInfo(types.AuthorizationStatusAccepted)))
	info, err = s.TagInfo("TAG1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, types.AuthorizationStatusAccepted, info.Status)
}

func TestListVersionDefaultsToZero(t *testing.T) {
	s := openStore(t)
	assert.Equal(t, 0, s.ListVersion())
}

func TestApplyLocalListFull(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.CacheTagInfo("OLD", types.NewIdTagInfo(types.AuthorizationStatusAccepted)))

	err := s.ApplyLocalList(3, true, []Entry{
		{IdTag: "NEW1", Info: types.NewIdTagInfo(types.AuthorizationStatusAccepted)},
		{IdTag: "NEW2", Info: types.NewIdTagInfo(types.AuthorizationStatusBlocked)},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, s.ListVersion())
	old, _ := s.TagInfo("OLD")
	assert.Nil(t, old, "full update replaces prior entries")
	blocked, _ := s.TagInfo("NEW2")
	require.NotNil(t, blocked)
	assert.Equal(t, types.AuthorizationStatusBlocked, blocked.Status)
}

func TestApplyLocalListDifferential(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.ApplyLocalList(1, true, []Entry{
		{IdTag: "KEEP", Info: types.NewIdTagInfo(types.AuthorizationStatusAccepted)},
		{IdTag: "DROP", Info: types.NewIdTagInfo(types.AuthorizationStatusAccepted)},
	}))

	// entries without IdTagInfo are removed by a differential update
	require.NoError(t, s.ApplyLocalList(2, false, []Entry{
		{IdTag: "DROP"},
		{IdTag: "ADDED", Info: types.NewIdTagInfo(types.AuthorizationStatusExpired)},
	}))

	assert.Equal(t, 2, s.ListVersion())
	keep, _ := s.TagInfo("KEEP")
	assert.NotNil(t, keep)
	drop, _ := s.TagInfo("DROP")
	assert.Nil(t, drop)
	added, _ := s.TagInfo("ADDED")
	require.NotNil(t, added)
	assert.Equal(t, types.AuthorizationStatusExpired, added.Status)
}

func TestRemoveTag(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.CacheTagInfo("TAG1", types.NewIdTagInfo(types.AuthorizationStatusAccepted)))
	require.NoError(t, s.RemoveTag("TAG1"))
	require.NoError(t, s.RemoveTag("TAG1"), "removing twice is fine")
	info, _ := s.TagInfo("TAG1")
	assert.Nil(t, info)
}
