// Package catalog loads version records from a local directory tree or a
// remote endpoint and keeps a per-channel index of the latest version.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go-version-updater/internal/models"
	"go-version-updater/internal/paths"
)

// Catalog errors
var (
	ErrVersionExists       = errors.New("version is already tracked")
	ErrVersionNotFound     = errors.New("unknown version")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrMalformedDescriptor = errors.New("malformed version descriptor")
	ErrNotDirectory        = errors.New("base directory is not a folder")
)

// Diagnostics receives per-entry problems found while loading a catalog.
// *logrus.Entry and *logrus.Logger satisfy it.
type Diagnostics interface {
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Catalog is a collection of versions backed by one source.
type Catalog interface {
	// Refresh clears the catalog and reloads it. On failure the catalog is
	// left empty.
	Refresh(ctx context.Context) error
	Versions() []models.Version
	Version(id string) models.Version
	// CompleteVersion resolves v to its full descriptor, replacing the
	// cached partial entry in place.
	CompleteVersion(ctx context.Context, v models.Version) (*models.CompleteVersion, error)
	LatestVersion(t models.ReleaseType) models.Version
	HasAllFiles(v *models.CompleteVersion, p models.Platform) bool
	AddVersion(v models.Version) error
	RemoveVersion(v models.Version) error
	SetLatestVersion(v models.Version) error
	SerializeVersionList() ([]byte, error)
}

// rawVersionList is the versions.json document.
type rawVersionList struct {
	Versions []*models.PartialVersion     `json:"versions"`
	Latest   map[models.ReleaseType]string `json:"latest"`
}

// fetchFunc reads a document relative to a catalog root.
type fetchFunc func(ctx context.Context, path string) ([]byte, error)

// cache is the in-memory state shared by both catalog kinds.
type cache struct {
	mu       sync.RWMutex
	versions []models.Version
	byID     map[string]models.Version
	latest   map[models.ReleaseType]models.Version
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions = nil
	c.byID = make(map[string]models.Version)
	c.latest = make(map[models.ReleaseType]models.Version)
}

// install replaces the whole state at once.
func (c *cache) install(versions []models.Version, latest map[models.ReleaseType]models.Version) {
	byID := make(map[string]models.Version, len(versions))
	for _, v := range versions {
		byID[v.GetID()] = v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions = versions
	c.byID = byID
	c.latest = latest
}

// Versions returns a snapshot of the tracked versions in load order.
func (c *cache) Versions() []models.Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Version, len(c.versions))
	copy(out, c.versions)
	return out
}

// Version looks up a version by id, returning nil when unknown.
func (c *cache) Version(id string) models.Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[id]
}

// LatestVersion returns the newest version of channel t, or nil.
func (c *cache) LatestVersion(t models.ReleaseType) models.Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest[t]
}

// AddVersion tracks v. Blank ids and duplicates are rejected.
func (c *cache) AddVersion(v models.Version) error {
	if v == nil || v.GetID() == "" {
		return fmt.Errorf("%w: cannot add blank version", ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byID == nil {
		c.byID = make(map[string]models.Version)
		c.latest = make(map[models.ReleaseType]models.Version)
	}
	if _, exists := c.byID[v.GetID()]; exists {
		return fmt.Errorf("%w: %s", ErrVersionExists, v.GetID())
	}
	c.versions = append(c.versions, v)
	c.byID[v.GetID()] = v
	return nil
}

// RemoveVersion stops tracking the version with v's id and clears any
// latest slot pointing at it.
func (c *cache) RemoveVersion(v models.Version) error {
	if v == nil || v.GetID() == "" {
		return fmt.Errorf("%w: cannot remove null version", ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tracked, ok := c.byID[v.GetID()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVersionNotFound, v.GetID())
	}
	delete(c.byID, v.GetID())
	for i, existing := range c.versions {
		if existing == tracked {
			c.versions = append(c.versions[:i:i], c.versions[i+1:]...)
			break
		}
	}
	for t, latest := range c.latest {
		if latest == tracked {
			delete(c.latest, t)
		}
	}
	return nil
}

// SetLatestVersion makes v the latest of its channel.
func (c *cache) SetLatestVersion(v models.Version) error {
	if v == nil || v.GetID() == "" {
		return fmt.Errorf("%w: cannot set latest version to null", ErrInvalidArgument)
	}
	if v.GetType() == "" {
		return fmt.Errorf("%w: %s has no release type", ErrInvalidArgument, v.GetID())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		c.latest = make(map[models.ReleaseType]models.Version)
	}
	c.latest[v.GetType()] = v
	return nil
}

// SerializeVersionList renders the catalog as a versions.json document.
func (c *cache) SerializeVersionList() ([]byte, error) {
	c.mu.RLock()
	list := rawVersionList{
		Versions: make([]*models.PartialVersion, 0, len(c.versions)),
		Latest:   make(map[models.ReleaseType]string),
	}
	for t, v := range c.latest {
		if v != nil {
			list.Latest[t] = v.GetID()
		}
	}
	for _, v := range c.versions {
		if p, ok := v.(*models.PartialVersion); ok {
			list.Versions = append(list.Versions, p)
		} else {
			list.Versions = append(list.Versions, models.NewPartialVersion(v))
		}
	}
	c.mu.RUnlock()
	return json.MarshalIndent(list, "", "  ")
}

// replace swaps partial for complete everywhere it is referenced.
func (c *cache) replace(partial models.Version, complete *models.CompleteVersion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, v := range c.versions {
		if v == partial {
			c.versions[i] = complete
		}
	}
	if c.byID[partial.GetID()] == partial {
		c.byID[partial.GetID()] = complete
	}
	for t, v := range c.latest {
		if v == partial {
			c.latest[t] = complete
		}
	}
}

// refreshFromList loads versions.json through fetch. Invalid entries are
// reported to diag and skipped, or fail the refresh when diag is nil.
func (c *cache) refreshFromList(ctx context.Context, fetch fetchFunc, diag Diagnostics) error {
	c.clear()

	data, err := fetch(ctx, paths.VersionListRel())
	if err != nil {
		return err
	}
	var list rawVersionList
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedDescriptor, paths.VersionListRel(), err)
	}

	versions := make([]models.Version, 0, len(list.Versions))
	byID := make(map[string]models.Version, len(list.Versions))
	for _, p := range list.Versions {
		if p == nil {
			continue
		}
		if err := p.Validate(); err != nil {
			if diag == nil {
				return fmt.Errorf("%w: %s: %w", ErrMalformedDescriptor, paths.VersionListRel(), err)
			}
			diag.Errorf("Skipping listing entry: %v", err)
			continue
		}
		if _, dup := byID[p.ID]; dup {
			if diag != nil {
				diag.Warnf("Ignoring duplicate listing entry for '%s'", p.ID)
			}
			continue
		}
		versions = append(versions, p)
		byID[p.ID] = p
	}

	latest := make(map[models.ReleaseType]models.Version)
	for t, id := range list.Latest {
		if v, ok := byID[id]; ok {
			latest[t] = v
		}
	}

	c.install(versions, latest)
	return nil
}

// resolveComplete fetches the descriptor for v and swaps it into the cache.
func (c *cache) resolveComplete(ctx context.Context, v models.Version, fetch fetchFunc) (*models.CompleteVersion, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: version cannot be null", ErrInvalidArgument)
	}
	if complete, ok := v.(*models.CompleteVersion); ok {
		return complete, nil
	}

	rel := paths.VersionDescriptorRel(v.GetID())
	data, err := fetch(ctx, rel)
	if err != nil {
		return nil, err
	}
	complete, err := decodeDescriptor(data, rel)
	if err != nil {
		return nil, err
	}
	if complete.ID != v.GetID() {
		return nil, fmt.Errorf("%w: %s contains id '%s'", ErrMalformedDescriptor, rel, complete.ID)
	}

	c.replace(v, complete)
	return complete, nil
}

func decodeDescriptor(data []byte, source string) (*models.CompleteVersion, error) {
	var complete models.CompleteVersion
	if err := json.Unmarshal(data, &complete); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedDescriptor, source, err)
	}
	if err := complete.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedDescriptor, source, err)
	}
	return &complete, nil
}

// newestPerType computes the latest index by update time.
func newestPerType(versions []models.Version) map[models.ReleaseType]models.Version {
	latest := make(map[models.ReleaseType]models.Version)
	for _, v := range versions {
		current, ok := latest[v.GetType()]
		if !ok || current.GetUpdatedTime().Before(v.GetUpdatedTime()) {
			latest[v.GetType()] = v
		}
	}
	return latest
}
