package updater

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go-version-updater/internal/downloader"
	"go-version-updater/internal/helpers"
	"go-version-updater/internal/models"
	"go-version-updater/internal/paths"

	log "github.com/sirupsen/logrus"
)

// DefaultResourcesBaseURL serves the asset bucket listing.
const DefaultResourcesBaseURL = "https://s3.amazonaws.com/MinecraftResources/"

// bucketListing is the subset of an S3 ListBucketResult we read.
type bucketListing struct {
	Contents []bucketEntry `xml:"Contents"`
}

type bucketEntry struct {
	Key  string `xml:"Key"`
	ETag string `xml:"ETag"`
	Size int64  `xml:"Size"`
}

// ResourceFiles lists the assets that are missing or changed under
// <baseDir>/assets. A local file of the listed size whose MD5 equals the
// listed ETag is skipped.
func (m *Manager) ResourceFiles(ctx context.Context, baseDir string) ([]models.DownloadSpec, error) {
	base := m.opts.ResourcesBaseURL
	if base == "" {
		base = DefaultResourcesBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
	if err != nil {
		return nil, fmt.Errorf("creating resource listing request: %w", err)
	}
	resp, err := m.opts.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching resource listing: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: resource listing returned %d", downloader.ErrHttpStatus, resp.StatusCode)
	}

	var listing bucketListing
	if err := xml.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("parsing resource listing: %w", err)
	}

	start := time.Now()
	var result []models.DownloadSpec
	for _, entry := range listing.Contents {
		if entry.Size <= 0 || entry.Key == "" {
			continue
		}
		target, err := paths.AssetPath(baseDir, entry.Key)
		if err != nil {
			log.WithError(err).Warnf("[Resources] Skipping asset key %q", entry.Key)
			continue
		}
		if len(entry.ETag) > 1 && upToDateAsset(target, entry) {
			continue
		}
		result = append(result, models.DownloadSpec{
			URL:          base + entry.Key,
			Target:       target,
			ExpectedSize: entry.Size,
		})
	}
	log.Debugf("[Resources] Compared %d assets in %s, %d to fetch", len(listing.Contents), time.Since(start), len(result))
	return result, nil
}

func upToDateAsset(target string, entry bucketEntry) bool {
	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() || info.Size() != entry.Size {
		return false
	}
	localMD5, err := helpers.MD5File(target)
	if err != nil {
		return false
	}
	return localMD5 == downloader.ParseETag(entry.ETag)
}

// DownloadResources adds the changed assets to job. The job should be
// best-effort; a listing failure is returned so the caller can log it.
func (m *Manager) DownloadResources(ctx context.Context, job *downloader.Job) error {
	local, _, err := m.concreteCatalogs()
	if err != nil {
		return err
	}
	specs, err := m.ResourceFiles(ctx, local.BaseDir())
	if err != nil {
		return err
	}
	items := make([]*downloader.Downloadable, 0, len(specs))
	for _, spec := range specs {
		items = append(items, downloader.NewDownloadable(spec))
	}
	return job.AddDownloadables(items...)
}
