package helpers

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

var (
	slugWhitespace = regexp.MustCompile(`\s+`)
	slugInvalid    = regexp.MustCompile(`[^a-z0-9._-]`)
	slugUnderscore = regexp.MustCompile(`_+`)
)

// ConvertToSlug lower-cases s and reduces it to characters that are safe in
// a single path segment.
func ConvertToSlug(s string) string {
	slug := strings.ToLower(s)
	slug = strings.ReplaceAll(slug, ":", "-")
	slug = slugWhitespace.ReplaceAllString(slug, "_")
	slug = slugInvalid.ReplaceAllString(slug, "")
	slug = strings.ReplaceAll(slug, "-_", "-")
	slug = strings.ReplaceAll(slug, "_-", "-")
	slug = slugUnderscore.ReplaceAllString(slug, "_")
	return strings.Trim(slug, "_-")
}

// BytesToSize formats a byte count using binary units.
func BytesToSize(bytes uint64) string {
	if bytes == 0 {
		return "0B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB", "PB"}
	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	return fmt.Sprintf("%.2f%s", value, units[i])
}

// SanitizePath cleans p and strips any leading traversal or root so the
// result is always relative.
func SanitizePath(p string) string {
	cleaned := filepath.Clean(string(filepath.Separator) + p)
	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))
	if cleaned == "" {
		return "."
	}
	return cleaned
}

// StringSliceContains reports whether item is in slice, ignoring case.
func StringSliceContains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}

// CheckAndMakeDir creates dir (and parents) if missing.
func CheckAndMakeDir(dir string) bool {
	if err := os.MkdirAll(dir, 0750); err != nil {
		log.WithError(err).Errorf("Failed to create directory %s", dir)
		return false
	}
	return true
}

// IsFile reports whether path exists and is a regular file.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsWritable reports whether an existing file can be opened for writing.
func IsWritable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// CounterWriter counts bytes passed through to Writer. Total is updated
// atomically so it can be read while a copy is running.
type CounterWriter struct {
	Writer io.Writer
	Total  uint64
}

func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	atomic.AddUint64(&cw.Total, uint64(n))
	return n, err
}

// Count returns the bytes written so far.
func (cw *CounterWriter) Count() uint64 {
	return atomic.LoadUint64(&cw.Total)
}

// MD5File returns the lower-case hex MD5 of the file at path.
func MD5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Blake3File returns the upper-case hex BLAKE3 digest of the file at path.
func Blake3File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil))), nil
}

// CheckHash reports whether the file at path has the expected BLAKE3 digest.
// An empty expectation never matches.
func CheckHash(path string, expectedBlake3 string) bool {
	if expectedBlake3 == "" {
		return false
	}
	actual, err := Blake3File(path)
	if err != nil {
		log.WithError(err).Debugf("Could not hash %s", path)
		return false
	}
	return strings.EqualFold(actual, expectedBlake3)
}
