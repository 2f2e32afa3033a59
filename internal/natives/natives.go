// Package natives unpacks the platform-specific library archives of a
// version into a folder the game can load them from.
package natives

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go-version-updater/internal/models"
	"go-version-updater/internal/paths"

	"github.com/klauspost/compress/zip"
	log "github.com/sirupsen/logrus"
)

// ErrUnsafeEntry is returned for archive entries that would land outside
// the target folder.
var ErrUnsafeEntry = errors.New("unsafe path in archive")

// Result summarizes one Unpack call.
type Result struct {
	Archives int
	Files    int
	Bytes    int64
}

// Unpack extracts every native archive version needs on p from
// <baseDir>/libraries into targetDir. Entries excluded by the library's
// extract rules and directory entries are skipped.
func Unpack(ctx context.Context, version *models.CompleteVersion, p models.Platform, baseDir, targetDir string) (Result, error) {
	var result Result
	if version == nil {
		return result, fmt.Errorf("cannot unpack natives of a nil version")
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return result, fmt.Errorf("creating natives directory: %w", err)
	}

	for _, lib := range version.RelevantLibraries(p) {
		classifier, ok := lib.NativeClassifier(p)
		if !ok {
			continue
		}
		artifact, err := lib.ArtifactPath(classifier)
		if err != nil {
			return result, err
		}
		archive := paths.LibraryPath(baseDir, artifact)

		files, n, err := extractArchive(ctx, archive, targetDir, lib.Extract)
		result.Files += files
		result.Bytes += n
		if err != nil {
			return result, fmt.Errorf("unpacking %s: %w", lib.Name, err)
		}
		result.Archives++
		log.Debugf("[Natives] Unpacked %d files from %s", files, filepath.Base(archive))
	}
	return result, nil
}

func extractArchive(ctx context.Context, archivePath, targetDir string, rules *models.ExtractRules) (int, int64, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, 0, fmt.Errorf("opening archive: %w", err)
	}
	defer func() {
		_ = zr.Close()
	}()

	extracted := 0
	totalSize := int64(0)
	for _, entry := range zr.File {
		if err := ctx.Err(); err != nil {
			return extracted, totalSize, err
		}
		if entry.FileInfo().IsDir() || !rules.ShouldExtract(entry.Name) {
			continue
		}
		if !entry.Mode().IsRegular() {
			return extracted, totalSize, fmt.Errorf("unsupported entry type for %s", entry.Name)
		}

		destPath, err := paths.SafeJoin(targetDir, entry.Name)
		if err != nil {
			return extracted, totalSize, fmt.Errorf("%w %q", ErrUnsafeEntry, entry.Name)
		}
		n, err := extractFile(entry, destPath)
		if err != nil {
			return extracted, totalSize, fmt.Errorf("extracting %s: %w", entry.Name, err)
		}
		extracted++
		totalSize += n
	}
	return extracted, totalSize, nil
}

func extractFile(entry *zip.File, destPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("creating directory: %w", err)
	}
	rc, err := entry.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	outFile, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("creating file %s: %w", destPath, err)
	}
	n, err := io.Copy(outFile, rc)
	if closeErr := outFile.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return n, err
}
