package index

import (
	"path/filepath"
	"testing"
	"time"

	"go-version-updater/internal/models"
	"go-version-updater/internal/updater"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInfos() []updater.VersionSyncInfo {
	args := "--username ${auth_player_name}"
	local := &models.CompleteVersion{
		ID:                 "1.5.2",
		Type:               models.ReleaseTypeRelease,
		Time:               models.Timestamp{Time: time.Date(2013, 4, 25, 0, 0, 0, 0, time.UTC)},
		ReleaseTime:        models.Timestamp{Time: time.Date(2013, 4, 25, 0, 0, 0, 0, time.UTC)},
		MainClass:          "net.minecraft.client.Minecraft",
		MinecraftArguments: &args,
	}
	snapshot := &models.PartialVersion{
		ID:          "13w16a",
		Type:        models.ReleaseTypeSnapshot,
		Time:        models.Timestamp{Time: time.Date(2013, 4, 18, 0, 0, 0, 0, time.UTC)},
		ReleaseTime: models.Timestamp{Time: time.Date(2013, 4, 18, 0, 0, 0, 0, time.UTC)},
	}
	beta := &models.PartialVersion{
		ID:          "b1.7.3",
		Type:        models.ReleaseTypeOldBeta,
		Time:        models.Timestamp{Time: time.Date(2011, 7, 8, 0, 0, 0, 0, time.UTC)},
		ReleaseTime: models.Timestamp{Time: time.Date(2011, 7, 8, 0, 0, 0, 0, time.UTC)},
	}
	return []updater.VersionSyncInfo{
		{Local: local, Installed: true, UpToDate: true},
		{Remote: snapshot},
		{Remote: beta},
	}
}

func hitIDs(hits []Hit) []string {
	var ids []string
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	return ids
}

// TestFromSyncInfo tests document construction from sync records
func TestFromSyncInfo(t *testing.T) {
	infos := testInfos()

	doc := FromSyncInfo(infos[0])
	assert.Equal(t, Document{
		ID:        "1.5.2",
		Type:      "release",
		Year:      "2013",
		MainClass: "net.minecraft.client.Minecraft",
		Source:    "local",
		Installed: true,
	}, doc)

	doc = FromSyncInfo(infos[1])
	assert.Equal(t, "remote", doc.Source)
	assert.Empty(t, doc.MainClass, "Partial versions have no main class")

	assert.Equal(t, Document{Source: "remote"}, FromSyncInfo(updater.VersionSyncInfo{}))
}

// TestSearch tests indexing and query string search
func TestSearch(t *testing.T) {
	idx, err := OpenOrCreateIndex("")
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, IndexVersions(idx, testInfos()))
	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	t.Run("By Type", func(t *testing.T) {
		hits, err := Search(idx, "type:snapshot", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"13w16a"}, hitIDs(hits))
		assert.Equal(t, "snapshot", hits[0].Type)
	})

	t.Run("By Year", func(t *testing.T) {
		hits, err := Search(idx, "year:2013", 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"1.5.2", "13w16a"}, hitIDs(hits))
	})

	t.Run("By Main Class", func(t *testing.T) {
		hits, err := Search(idx, "mainClass:net.minecraft.client.Minecraft", 10)
		require.NoError(t, err)
		require.Equal(t, []string{"1.5.2"}, hitIDs(hits))
		assert.True(t, hits[0].Installed)
		assert.Equal(t, "net.minecraft.client.Minecraft", hits[0].MainClass)
	})

	t.Run("Any Field", func(t *testing.T) {
		hits, err := Search(idx, "release", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"1.5.2"}, hitIDs(hits))
	})

	t.Run("Limit", func(t *testing.T) {
		hits, err := Search(idx, "year:2013 year:2011", 2)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("Reindex Drops Stale", func(t *testing.T) {
		require.NoError(t, IndexVersions(idx, testInfos()[2:]))
		count, err := idx.DocCount()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), count)

		require.NoError(t, RemoveVersion(idx, "b1.7.3"))
		count, err = idx.DocCount()
		require.NoError(t, err)
		assert.Equal(t, uint64(0), count)
	})
}

// TestOpenOrCreateIndexOnDisk tests that an on-disk index survives reopening
func TestOpenOrCreateIndexOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "versions.bleve")

	idx, err := OpenOrCreateIndex(path)
	require.NoError(t, err)
	require.NoError(t, IndexVersions(idx, testInfos()))
	require.NoError(t, idx.Close())

	reopened, err := OpenOrCreateIndex(path)
	require.NoError(t, err)
	defer reopened.Close()

	hits, err := Search(reopened, "id:b1.7.3", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1.7.3"}, hitIDs(hits))
}
