package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go-version-updater/internal/helpers"
	"go-version-updater/internal/models"
	"go-version-updater/internal/paths"

	log "github.com/sirupsen/logrus"
)

// LocalCatalog reads complete version descriptors from
// <baseDir>/versions/<id>/<id>.json.
type LocalCatalog struct {
	cache
	baseDir string
	diag    Diagnostics
}

// NewLocalCatalog opens a catalog rooted at baseDir, creating the versions
// folder when missing. diag may be nil, in which case a malformed
// descriptor fails Refresh instead of being skipped.
func NewLocalCatalog(baseDir string, diag Diagnostics) (*LocalCatalog, error) {
	if !helpers.IsDir(baseDir) {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, baseDir)
	}
	if !helpers.CheckAndMakeDir(paths.VersionsDir(baseDir)) {
		return nil, fmt.Errorf("creating %s failed", paths.VersionsDir(baseDir))
	}
	c := &LocalCatalog{baseDir: baseDir, diag: diag}
	c.clear()
	return c, nil
}

// BaseDir returns the root folder of the catalog.
func (c *LocalCatalog) BaseDir() string { return c.baseDir }

// Refresh rescans the versions folder.
func (c *LocalCatalog) Refresh(ctx context.Context) error {
	c.clear()

	versionsDir := paths.VersionsDir(c.baseDir)
	entries, err := os.ReadDir(versionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", versionsDir, err)
	}

	var versions []models.Version
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		descriptor := paths.VersionDescriptorPath(c.baseDir, id)
		if !helpers.IsFile(descriptor) {
			continue
		}

		data, err := os.ReadFile(descriptor)
		if err == nil {
			var complete *models.CompleteVersion
			complete, err = decodeDescriptor(data, descriptor)
			if err == nil {
				if complete.ID != id {
					c.warnf("Ignoring: %s; it contains id: '%s' expected '%s'", descriptor, complete.ID, id)
					continue
				}
				versions = append(versions, complete)
				continue
			}
		}

		if c.diag == nil {
			return fmt.Errorf("%w: %s: %w", ErrMalformedDescriptor, id, err)
		}
		c.diag.Errorf("Couldn't load local version %s: %v", descriptor, err)
	}

	c.install(versions, newestPerType(versions))
	log.Debugf("[Catalog] Loaded %d local versions from %s", len(versions), versionsDir)
	return nil
}

// warnf reports to the injected sink, or the package logger without one.
func (c *LocalCatalog) warnf(format string, args ...interface{}) {
	if c.diag != nil {
		c.diag.Warnf(format, args...)
		return
	}
	log.Warnf("[Catalog] "+format, args...)
}

// CompleteVersion resolves v from its descriptor on disk.
func (c *LocalCatalog) CompleteVersion(ctx context.Context, v models.Version) (*models.CompleteVersion, error) {
	return c.resolveComplete(ctx, v, c.readFile)
}

// HasAllFiles reports whether every required library file of v exists.
func (c *LocalCatalog) HasAllFiles(v *models.CompleteVersion, p models.Platform) bool {
	files, err := v.RequiredFiles(p)
	if err != nil {
		c.warnf("Cannot compute required files for %s: %v", v.ID, err)
		return false
	}
	for _, f := range files {
		if !helpers.IsFile(filepath.Join(c.baseDir, filepath.FromSlash(f))) {
			return false
		}
	}
	return true
}

// SaveVersion writes v to its descriptor path.
func (c *LocalCatalog) SaveVersion(v *models.CompleteVersion) error {
	if v == nil {
		return fmt.Errorf("%w: cannot save null version", ErrInvalidArgument)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", v.ID, err)
	}
	return writeFileAtomic(paths.VersionDescriptorPath(c.baseDir, v.ID), data)
}

// SaveVersionList writes the versions.json index for this catalog.
func (c *LocalCatalog) SaveVersionList() error {
	data, err := c.SerializeVersionList()
	if err != nil {
		return fmt.Errorf("encoding version list: %w", err)
	}
	return writeFileAtomic(paths.VersionListPath(c.baseDir), data)
}

func (c *LocalCatalog) readFile(_ context.Context, rel string) ([]byte, error) {
	full, err := paths.SafeJoin(c.baseDir, rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, rel)
		}
		return nil, err
	}
	return data, nil
}

// writeFileAtomic writes through a temp file so readers never see a
// partial descriptor.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if !helpers.CheckAndMakeDir(dir) {
		return fmt.Errorf("creating %s failed", dir)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
