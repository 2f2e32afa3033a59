package catalog

import (
	"context"

	"go-version-updater/internal/api"
	"go-version-updater/internal/models"

	log "github.com/sirupsen/logrus"
)

// RemoteCatalog reads versions.json and descriptors from the download base.
type RemoteCatalog struct {
	cache
	client *api.Client
	diag   Diagnostics
}

// NewRemoteCatalog creates a catalog served by client.
func NewRemoteCatalog(client *api.Client, diag Diagnostics) *RemoteCatalog {
	c := &RemoteCatalog{client: client, diag: diag}
	c.clear()
	return c
}

// Client returns the client the catalog fetches through.
func (c *RemoteCatalog) Client() *api.Client { return c.client }

// Refresh downloads versions.json and rebuilds the listing.
func (c *RemoteCatalog) Refresh(ctx context.Context) error {
	if err := c.refreshFromList(ctx, c.client.Get, c.diag); err != nil {
		return err
	}
	log.Debugf("[Catalog] Loaded %d remote versions from %s", len(c.Versions()), c.client.BaseURL)
	return nil
}

// CompleteVersion downloads the descriptor for v.
func (c *RemoteCatalog) CompleteVersion(ctx context.Context, v models.Version) (*models.CompleteVersion, error) {
	return c.resolveComplete(ctx, v, c.client.Get)
}

// HasAllFiles is always true; the remote side is authoritative.
func (c *RemoteCatalog) HasAllFiles(*models.CompleteVersion, models.Platform) bool {
	return true
}
