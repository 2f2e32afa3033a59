package downloader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go-version-updater/internal/helpers"
	"go-version-updater/internal/models"

	log "github.com/sirupsen/logrus"
)

// Custom Downloader Errors
var (
	ErrHashMismatch = errors.New("downloaded file hash mismatch")
	ErrHttpStatus   = errors.New("unexpected HTTP status code")
	ErrFileSystem   = errors.New("filesystem error") // Covers create, remove, rename
	ErrHttpRequest  = errors.New("HTTP request creation/execution error")
	ErrNotWritable  = errors.New("no write permission for target")
)

// Downloadable is one file to fetch. It is owned by a single Job.
type Downloadable struct {
	URL          string
	Target       string
	ExpectedSize int64 // 0 when unknown
	Force        bool  // ignore the local copy

	attempts atomic.Int32
	progress ProgressContainer
}

// NewDownloadable creates a Downloadable from a download plan entry.
func NewDownloadable(spec models.DownloadSpec) *Downloadable {
	return &Downloadable{
		URL:          spec.URL,
		Target:       spec.Target,
		ExpectedSize: spec.ExpectedSize,
		Force:        spec.Force,
	}
}

// Attempts returns how many times a download has been tried.
func (d *Downloadable) Attempts() int { return int(d.attempts.Load()) }

// Progress returns the byte counters of this item.
func (d *Downloadable) Progress() *ProgressContainer { return &d.progress }

// Downloader fetches single Downloadables with ETag validation.
type Downloader struct {
	client *http.Client
}

// NewDownloader creates a new Downloader instance.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{
			Timeout: 15 * time.Minute,
		}
	}
	return &Downloader{client: client}
}

// ParseETag strips surrounding quotes. A missing ETag becomes "-",
// which marks the response as unverifiable.
func ParseETag(etag string) string {
	if etag == "" {
		return "-"
	}
	if len(etag) >= 2 && strings.HasPrefix(etag, `"`) && strings.HasSuffix(etag, `"`) {
		return etag[1 : len(etag)-1]
	}
	return etag
}

// createHTTPRequest creates a cache-defeating GET, conditional on localMD5
// when one is known.
func (dl *Downloader) createHTTPRequest(ctx context.Context, url, localMD5 string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating download request for %s: %w", ErrHttpRequest, url, err)
	}
	req.Header.Set("Cache-Control", "no-store,max-age=0,no-cache")
	req.Header.Set("Expires", "0")
	req.Header.Set("Pragma", "no-cache")
	if localMD5 != "" {
		req.Header.Set("If-None-Match", localMD5)
	}
	return req, nil
}

// Download fetches d and returns a short description of the outcome.
// Every call counts as one attempt.
func (dl *Downloader) Download(ctx context.Context, d *Downloadable) (string, error) {
	d.attempts.Add(1)

	targetDir := filepath.Dir(d.Target)
	if !helpers.CheckAndMakeDir(targetDir) {
		return "", fmt.Errorf("%w: failed to create target directory %s", ErrFileSystem, targetDir)
	}

	haveLocal := helpers.IsFile(d.Target)
	var localMD5 string
	if !d.Force && haveLocal {
		sum, err := helpers.MD5File(d.Target)
		if err != nil {
			log.WithError(err).Debugf("Could not hash local copy %s", d.Target)
		}
		localMD5 = sum
	}
	if haveLocal && !helpers.IsWritable(d.Target) {
		return "", fmt.Errorf("%w: %s", ErrNotWritable, d.Target)
	}

	req, err := dl.createHTTPRequest(ctx, d.URL, localMD5)
	if err != nil {
		return "", err
	}

	resp, err := dl.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if haveLocal {
			return softSuccess(d, fmt.Sprintf("couldn't connect to server (%v)", err)), nil
		}
		return "", fmt.Errorf("%w: performing request for %s: %w", ErrHttpRequest, d.URL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		d.progress.Complete()
		return "Used own copy as it matched etag", nil

	case resp.StatusCode/100 == 2:
		if d.ExpectedSize == 0 && resp.ContentLength > 0 {
			d.progress.SetTotal(resp.ContentLength)
		}
		result, err := dl.writeVerified(ctx, resp, d)
		if err != nil && !errors.Is(err, ErrHashMismatch) && ctx.Err() == nil && haveLocal {
			return softSuccess(d, fmt.Sprintf("transfer failed (%v)", err)), nil
		}
		return result, err

	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		if haveLocal {
			return softSuccess(d, fmt.Sprintf("couldn't connect to server (responded with %d)", resp.StatusCode)), nil
		}
		return "", fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, d.URL)
	}
}

// softSuccess accepts an existing local copy when the server is unusable.
func softSuccess(d *Downloadable, reason string) string {
	log.Warnf("[Download] %s for %s but have local file, assuming it's good", reason, d.URL)
	return reason + " but have local file, assuming it's good"
}

// writeVerified streams the body to a temp file while hashing it, checks the
// hash against the ETag and renames the file into place.
func (dl *Downloader) writeVerified(ctx context.Context, resp *http.Response, d *Downloadable) (string, error) {
	tempFile, err := os.CreateTemp(filepath.Dir(d.Target), filepath.Base(d.Target)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: creating temporary file for %s: %w", ErrFileSystem, d.Target, err)
	}
	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil && !os.IsNotExist(removeErr) {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	hash := md5.New()
	counter := &helpers.CounterWriter{Writer: tempFile}
	sink := io.MultiWriter(counter, hash, progressWriter{&d.progress})

	if _, err := io.Copy(sink, resp.Body); err != nil {
		_ = tempFile.Close()
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: reading body of %s: %w", ErrHttpRequest, d.URL, err)
	}
	_ = tempFile.Chmod(0644)
	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("%w: closing temporary file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}

	sum := hex.EncodeToString(hash.Sum(nil))
	etag := ParseETag(resp.Header.Get("ETag"))

	var result string
	switch {
	case strings.Contains(etag, "-"):
		result = "Didn't have etag so assuming our copy is good"
	case strings.EqualFold(etag, sum):
		result = "Downloaded successfully and etag matched"
	default:
		return "", fmt.Errorf("%w: ETag was %s, downloaded %s", ErrHashMismatch, etag, sum)
	}

	if err := os.Rename(tempFile.Name(), d.Target); err != nil {
		return "", fmt.Errorf("%w: renaming temporary file to %s: %w", ErrFileSystem, d.Target, err)
	}
	shouldCleanupTemp = false

	log.Debugf("[Download] Wrote %s (%s)", d.Target, helpers.BytesToSize(counter.Count()))
	return result, nil
}

type progressWriter struct {
	p *ProgressContainer
}

func (w progressWriter) Write(b []byte) (int, error) {
	w.p.AddProgress(int64(len(b)))
	return len(b), nil
}
