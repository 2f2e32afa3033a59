package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// maxLoggedBody caps how much of a catalog document ends up in the log.
const maxLoggedBody = 64 << 10

var (
	openTransports   []*LoggingTransport
	openTransportsMu sync.Mutex
)

// LoggingTransport records every round trip to a log file. Catalog
// documents (versions.json, descriptors, bucket listings) are written with
// their bodies; artifact downloads only get a status line and headers.
type LoggingTransport struct {
	next http.RoundTripper
	path string

	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// NewLoggingTransport wraps next and appends to logFilePath. The transport
// stays open until CloseAllLoggingTransports.
func NewLoggingTransport(next http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	path := filepath.Clean(logFilePath)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating API log directory: %w", err)
	}
	// #nosec G304
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening API log %s: %w", path, err)
	}
	if next == nil {
		next = http.DefaultTransport
	}

	lt := &LoggingTransport{next: next, path: path, file: f, w: bufio.NewWriter(f)}

	openTransportsMu.Lock()
	openTransports = append(openTransports, lt)
	openTransportsMu.Unlock()
	log.Debugf("[API] Logging requests to %s", path)
	return lt, nil
}

// RoundTrip implements http.RoundTripper.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()
	reqDump, dumpErr := httputil.DumpRequestOut(req, false)

	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(started).Round(time.Millisecond)

	var entry strings.Builder
	fmt.Fprintf(&entry, ">>> %s %s (%s)\n", req.Method, req.URL, started.Format(time.RFC3339))
	if dumpErr == nil {
		entry.Write(reqDump)
	}

	if err != nil {
		fmt.Fprintf(&entry, "<<< failed after %s: %v\n", elapsed, err)
		t.write(entry.String())
		return resp, err
	}

	fmt.Fprintf(&entry, "<<< %s in %s, etag=%s, length=%d\n",
		resp.Status, elapsed, resp.Header.Get("ETag"), resp.ContentLength)
	if headers, herr := httputil.DumpResponse(resp, false); herr == nil {
		entry.Write(headers)
	}

	if resp.StatusCode != http.StatusNotModified && isDocumentContentType(resp.Header.Get("Content-Type")) {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		// Hand the caller whatever was read, followed by the read error.
		resp.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), errReader{readErr}))
		if readErr != nil {
			fmt.Fprintf(&entry, "(body read failed: %v)\n", readErr)
		}
		if len(body) > maxLoggedBody {
			fmt.Fprintf(&entry, "%s\n(truncated, %d bytes total)\n", body[:maxLoggedBody], len(body))
		} else {
			fmt.Fprintf(&entry, "%s\n", body)
		}
	}

	t.write(entry.String())
	return resp, nil
}

func (t *LoggingTransport) write(entry string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return
	}
	if _, err := t.w.WriteString(entry + "\n"); err != nil {
		log.WithError(err).Warnf("[API] Couldn't write to %s", t.path)
		return
	}
	if err := t.w.Flush(); err != nil {
		log.WithError(err).Warnf("[API] Couldn't flush %s", t.path)
	}
}

// Close flushes and closes the log file. Later round trips are not logged.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	flushErr := t.w.Flush()
	closeErr := t.file.Close()
	t.file = nil
	if flushErr != nil {
		return fmt.Errorf("flushing API log: %w", flushErr)
	}
	return closeErr
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	return 0, io.EOF
}

func isDocumentContentType(contentType string) bool {
	for _, prefix := range []string{"application/json", "application/xml", "text/xml", "text/plain"} {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

// CloseAllLoggingTransports closes every transport opened by
// NewLoggingTransport. Called once when the command exits.
func CloseAllLoggingTransports() {
	openTransportsMu.Lock()
	transports := openTransports
	openTransports = nil
	openTransportsMu.Unlock()

	for _, t := range transports {
		if err := t.Close(); err != nil {
			log.WithError(err).Warnf("[API] Closing request log %s", t.path)
		}
	}
}
