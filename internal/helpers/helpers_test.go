package helpers

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func TestConvertToSlug(t *testing.T) {
	cases := map[string]string{
		"1.5.2":                           "1.5.2",
		"13w16a":                          "13w16a",
		"Old Beta b1.7.3":                 "old_beta_b1.7.3",
		"net.minecraft:launchwrapper:1.5": "net.minecraft-launchwrapper-1.5",
		"Snapshot: 13w16a":                "snapshot-13w16a",
		"  release  ":                     "release",
		"pre-release (1.6)":               "pre-release_1.6",
		"old_alpha":                       "old_alpha",
		"@@@":                             "",
		"":                                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, ConvertToSlug(in), "ConvertToSlug(%q)", in)
	}
}

func TestBytesToSize(t *testing.T) {
	cases := []struct {
		bytes uint64
		want  string
	}{
		{0, "0B"},
		{512, "512.00B"},
		{1536, "1.50KB"},
		{5 << 20, "5.00MB"},
		{1 << 30, "1.00GB"},
		{1 << 50, "1.00PB"},
		{1 << 60, "1024.00PB"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, BytesToSize(c.bytes), "BytesToSize(%d)", c.bytes)
	}
}

func TestSanitizePath(t *testing.T) {
	cases := map[string]string{
		"versions/1.5.2/1.5.2.jar":      "versions/1.5.2/1.5.2.jar",
		"../../launcher_profiles.json":  "launcher_profiles.json",
		"/assets/sound/step/grass1.ogg": "assets/sound/step/grass1.ogg",
		"libraries/./net/../org/a.jar":  "libraries/org/a.jar",
		"":                              ".",
	}
	for in, want := range cases {
		assert.Equal(t, filepath.FromSlash(want), SanitizePath(filepath.FromSlash(in)), "SanitizePath(%q)", in)
	}
}

func TestStringSliceContains(t *testing.T) {
	types := []string{"release", "snapshot"}

	assert.True(t, StringSliceContains(types, "Snapshot"))
	assert.True(t, StringSliceContains(types, "release"))
	assert.False(t, StringSliceContains(types, "old_beta"))
	assert.False(t, StringSliceContains(nil, "release"))
}

func TestCheckAndMakeDir(t *testing.T) {
	base := t.TempDir()

	nested := filepath.Join(base, "versions", "1.5.2", "natives")
	assert.True(t, CheckAndMakeDir(nested))
	assert.DirExists(t, nested)
	assert.True(t, CheckAndMakeDir(nested), "existing directories are fine")

	blocker := filepath.Join(base, "assets")
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0644))
	assert.False(t, CheckAndMakeDir(filepath.Join(blocker, "sound")))
}

func TestFileChecks(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "1.5.2.jar")
	require.NoError(t, os.WriteFile(jar, []byte("jar"), 0644))

	assert.True(t, IsFile(jar))
	assert.False(t, IsFile(dir))
	assert.True(t, IsDir(dir))
	assert.False(t, IsDir(jar))
	assert.True(t, IsWritable(jar))
	assert.False(t, IsWritable(filepath.Join(dir, "missing.jar")))
}

func TestCounterWriter(t *testing.T) {
	cw := &CounterWriter{Writer: io.Discard}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := io.Copy(cw, strings.NewReader(strings.Repeat("x", 2048)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(4*2048), cw.Count())
}

func TestMD5File(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "1.5.2.jar")
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(jar, []byte("Hello, World!"), 0644))
	require.NoError(t, os.WriteFile(empty, nil, 0644))

	sum, err := MD5File(jar)
	require.NoError(t, err)
	assert.Equal(t, "65a8e27d8879283831b664bd8b7f0ad4", sum)

	sum, err = MD5File(empty)
	require.NoError(t, err)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", sum)

	_, err = MD5File(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestBlake3AndCheckHash(t *testing.T) {
	content := []byte("lwjgl native library")
	path := filepath.Join(t.TempDir(), "lwjgl.so")
	require.NoError(t, os.WriteFile(path, content, 0644))

	raw := blake3.Sum256(content)
	want := strings.ToUpper(hex.EncodeToString(raw[:]))

	got, err := Blake3File(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.True(t, CheckHash(path, strings.ToLower(want)), "digests compare case-insensitively")
	assert.False(t, CheckHash(path, ""), "an empty digest never matches")
	assert.False(t, CheckHash(path, strings.Repeat("0", 64)))
	assert.False(t, CheckHash(filepath.Join(t.TempDir(), "missing"), want))
}
