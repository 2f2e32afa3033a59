package main_test

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go-version-updater/internal/models"

	"github.com/stretchr/testify/require"
)

// runCommand executes the updater binary with given arguments. The working
// directory is a fresh temp dir so no stray config.toml is picked up.
func runCommand(t *testing.T, args ...string) (string, string, error) {
	return runCommandWithEnv(t, nil, args...)
}

func runCommandWithEnv(t *testing.T, env []string, args ...string) (string, string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	cmd.Dir = t.TempDir()
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdin = strings.NewReader("")

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		t.Logf("Command failed with error: %v\nStderr:\n%s", err, stderr.String())
	}
	return stdout.String(), stderr.String(), err
}

// createTempConfig creates a temporary TOML config file
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	tempFile := filepath.Join(t.TempDir(), "temp_config.toml")
	err := os.WriteFile(tempFile, []byte(content), 0644)
	require.NoError(t, err, "Failed to write temporary config file")
	return tempFile
}

// parseShowConfigOutput parses the JSON output of 'debug show-config'
func parseShowConfigOutput(t *testing.T, output string) models.Config {
	t.Helper()
	var cfg models.Config
	err := json.Unmarshal([]byte(output), &cfg)
	if err != nil {
		t.Logf("Failed to unmarshal JSON output:\n%s", output)
	}
	require.NoError(t, err, "Failed to parse JSON output from debug show-config")
	return cfg
}

// fixtureServer serves a version server, a library repository and a
// resources bucket. Every file carries its MD5 as ETag and honors
// If-None-Match.
type fixtureServer struct {
	*httptest.Server

	mu       sync.RWMutex
	files    map[string]string
	requests map[string]int
}

func newFixtureServer(t *testing.T) *fixtureServer {
	t.Helper()
	f := &fixtureServer{files: make(map[string]string), requests: make(map[string]int)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (f *fixtureServer) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	f.mu.Lock()
	f.requests[path]++
	body, ok := f.files[path]
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	etag := md5Hex(body)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", `"`+etag+`"`)
	w.Write([]byte(body))
}

func (f *fixtureServer) set(path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = body
}

func (f *fixtureServer) requestCount(path string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.requests[path]
}

// serverFlags points every base URL at the fixture server.
func (f *fixtureServer) serverFlags(baseDir string) []string {
	return []string{
		"--config", filepath.Join(baseDir, "absent.toml"),
		"--base-dir", baseDir,
		"--download-url", f.URL + "/",
		"--library-url", f.URL + "/libraries/",
		"--resources-url", f.URL + "/resources/",
		"--workers", "2",
	}
}

type fixtureVersion struct {
	ID       string
	Type     models.ReleaseType
	Released time.Time
}

const (
	joptArtifact = "net/sf/jopt-simple/jopt-simple/4.5/jopt-simple-4.5.jar"
	joptContent  = "jopt-simple jar"
)

func (v fixtureVersion) descriptor() *models.CompleteVersion {
	args := "--username ${auth_player_name} --version ${version_name} --gameDir ${game_directory}"
	return &models.CompleteVersion{
		ID:                     v.ID,
		Time:                   models.Timestamp{Time: v.Released},
		ReleaseTime:            models.Timestamp{Time: v.Released},
		Type:                   v.Type,
		MinecraftArguments:     &args,
		MainClass:              "net.minecraft.client.Minecraft",
		MinimumLauncherVersion: 4,
		Libraries:              []models.Library{{Name: "net.sf.jopt-simple:jopt-simple:4.5"}},
	}
}

func archiveContent(id string) string {
	return "game archive " + id
}

// publish serves versions.json, a descriptor and an archive per version,
// plus the shared library.
func (f *fixtureServer) publish(t *testing.T, versions ...fixtureVersion) {
	t.Helper()
	type entry struct {
		ID          string             `json:"id"`
		Time        models.Timestamp   `json:"time"`
		ReleaseTime models.Timestamp   `json:"releaseTime"`
		Type        models.ReleaseType `json:"type"`
	}
	list := struct {
		Latest   map[models.ReleaseType]string `json:"latest"`
		Versions []entry                       `json:"versions"`
	}{Latest: make(map[models.ReleaseType]string)}

	for _, v := range versions {
		d := v.descriptor()
		data, err := json.Marshal(d)
		require.NoError(t, err)
		f.set(fmt.Sprintf("versions/%s/%s.json", v.ID, v.ID), string(data))
		f.set(fmt.Sprintf("versions/%s/%s.jar", v.ID, v.ID), archiveContent(v.ID))
		list.Versions = append(list.Versions, entry{d.ID, d.Time, d.ReleaseTime, d.Type})
		if _, ok := list.Latest[v.Type]; !ok {
			list.Latest[v.Type] = v.ID
		}
	}
	data, err := json.Marshal(list)
	require.NoError(t, err)
	f.set("versions/versions.json", string(data))
	f.set("libraries/"+joptArtifact, joptContent)
}

// publishResources serves an S3 style bucket listing for files.
func (f *fixtureServer) publishResources(files map[string]string) {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>resources</Name>`)
	for key, body := range files {
		fmt.Fprintf(&sb, `<Contents><Key>%s</Key><ETag>"%s"</ETag><Size>%d</Size></Contents>`, key, md5Hex(body), len(body))
		f.set("resources/"+key, body)
	}
	sb.WriteString(`</ListBucketResult>`)
	f.set("resources/", sb.String())
}

var standardVersions = []fixtureVersion{
	{ID: "1.5.2", Type: models.ReleaseTypeRelease, Released: time.Date(2013, 4, 25, 15, 45, 0, 0, time.UTC)},
	{ID: "13w16a", Type: models.ReleaseTypeSnapshot, Released: time.Date(2013, 4, 18, 10, 0, 0, 0, time.UTC)},
	{ID: "b1.7.3", Type: models.ReleaseTypeOldBeta, Released: time.Date(2011, 7, 8, 0, 0, 0, 0, time.UTC)},
}
