// Package updater reconciles the local and remote version catalogs and
// turns a chosen version into a download plan.
package updater

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"go-version-updater/internal/api"
	"go-version-updater/internal/catalog"
	"go-version-updater/internal/downloader"
	"go-version-updater/internal/models"
	"go-version-updater/internal/paths"

	log "github.com/sirupsen/logrus"
)

// Manager errors
var (
	ErrUnsupportedCatalog  = errors.New("operation requires a local directory catalog and a remote catalog")
	ErrIncompatibleVersion = errors.New("version is incompatible with this environment")
	ErrUpdaterOutdated     = errors.New("a newer updater is required for this version")
	ErrNoVersion           = errors.New("no version selected")
)

// DefaultIncompatibilityReason is used when a descriptor gives none.
const DefaultIncompatibilityReason = "This version is incompatible with your computer. Please try another one."

// RefreshedListener is notified after both catalogs refreshed successfully.
type RefreshedListener interface {
	OnVersionsRefreshed(m *Manager)
}

// RefreshedListenerFunc adapts a function to RefreshedListener.
type RefreshedListenerFunc func(m *Manager)

func (f RefreshedListenerFunc) OnVersionsRefreshed(m *Manager) { f(m) }

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	Platform         models.Platform
	LibraryBaseURL   string
	ResourcesBaseURL string
	HttpClient       *http.Client // used for the resource listing
}

// Manager owns one local and one remote catalog.
type Manager struct {
	local  catalog.Catalog
	remote catalog.Catalog
	opts   Options

	// refreshMu is read-held for a whole Versions walk, so a refresh
	// cannot start until running walks finish.
	refreshMu  sync.RWMutex
	refreshing bool

	listenersMu sync.Mutex
	listeners   []RefreshedListener
}

// NewManager creates a Manager over the given catalogs.
func NewManager(local, remote catalog.Catalog, opts Options) *Manager {
	if opts.Platform.OS == "" {
		opts.Platform = models.CurrentPlatform()
	}
	if opts.LibraryBaseURL == "" {
		opts.LibraryBaseURL = models.DefaultLibraryBaseURL
	}
	if opts.HttpClient == nil {
		opts.HttpClient = http.DefaultClient
	}
	return &Manager{local: local, remote: remote, opts: opts}
}

func (m *Manager) Local() catalog.Catalog    { return m.local }
func (m *Manager) Remote() catalog.Catalog   { return m.remote }
func (m *Manager) Platform() models.Platform { return m.opts.Platform }

// AddRefreshedListener registers l for refresh notifications.
func (m *Manager) AddRefreshedListener(l RefreshedListener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// RemoveRefreshedListener unregisters l. Function listeners cannot be
// compared and are never removed.
func (m *Manager) RemoveRefreshedListener(l RefreshedListener) {
	if _, isFunc := l.(RefreshedListenerFunc); isFunc {
		return
	}
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	for i, existing := range m.listeners {
		if existing == l {
			m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
			return
		}
	}
}

// IsRefreshing reports whether RefreshVersions is running.
func (m *Manager) IsRefreshing() bool {
	m.refreshMu.RLock()
	defer m.refreshMu.RUnlock()
	return m.refreshing
}

func (m *Manager) setRefreshing(v bool) {
	m.refreshMu.Lock()
	m.refreshing = v
	m.refreshMu.Unlock()
}

// RefreshVersions refreshes the local catalog and then the remote one. A
// failure in one does not skip the other. Listeners are notified once,
// on the calling goroutine, when both succeed.
func (m *Manager) RefreshVersions(ctx context.Context) error {
	m.setRefreshing(true)
	defer m.setRefreshing(false)

	var errs []error
	log.Info("[Refresh] Refreshing local version list...")
	if err := m.local.Refresh(ctx); err != nil {
		log.WithError(err).Error("[Refresh] Local version list failed")
		errs = append(errs, fmt.Errorf("local catalog: %w", err))
	}
	log.Info("[Refresh] Refreshing remote version list...")
	if err := m.remote.Refresh(ctx); err != nil {
		log.WithError(err).Error("[Refresh] Remote version list failed")
		errs = append(errs, fmt.Errorf("remote catalog: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	log.Info("[Refresh] Refresh complete.")

	m.setRefreshing(false)

	m.listenersMu.Lock()
	listeners := make([]RefreshedListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.Unlock()

	for _, l := range listeners {
		l.OnVersionsRefreshed(m)
	}
	return nil
}

// SubmitRefresh queues RefreshVersions on exec. The returned channel
// receives the refresh result exactly once.
func (m *Manager) SubmitRefresh(exec *downloader.Executor) (<-chan error, error) {
	result := make(chan error, 1)
	err := exec.Submit(func(ctx context.Context) error {
		result <- m.RefreshVersions(ctx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Versions merges both catalogs into sync records, newest first. A nil
// filter allows everything. While a refresh runs the result is empty.
func (m *Manager) Versions(filter *VersionFilter) []VersionSyncInfo {
	m.refreshMu.RLock()
	defer m.refreshMu.RUnlock()
	if m.refreshing {
		return nil
	}

	var result []VersionSyncInfo
	seen := make(map[string]struct{})
	counts := make(map[models.ReleaseType]int)

	passes := func(v models.Version) bool {
		if v.GetType() == "" || v.GetUpdatedTime().IsZero() {
			return false
		}
		if filter == nil {
			return true
		}
		return filter.Allows(v.GetType()) && counts[v.GetType()] < filter.MaxCount()
	}

	for _, v := range m.local.Versions() {
		if !passes(v) {
			continue
		}
		result = append(result, m.SyncInfoFor(v, m.remote.Version(v.GetID())))
		seen[v.GetID()] = struct{}{}
	}

	for _, v := range m.remote.Versions() {
		if _, dup := seen[v.GetID()]; dup || !passes(v) {
			continue
		}
		result = append(result, m.SyncInfoFor(m.local.Version(v.GetID()), v))
		seen[v.GetID()] = struct{}{}
		if filter != nil {
			counts[v.GetType()]++
		}
	}

	if len(result) == 0 {
		for _, v := range m.local.Versions() {
			if v.GetType() == "" || v.GetUpdatedTime().IsZero() {
				continue
			}
			result = append(result, m.SyncInfoFor(v, m.remote.Version(v.GetID())))
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return models.CompareNewestFirst(result[i].LatestVersion(), result[j].LatestVersion()) < 0
	})
	return result
}

// InstalledVersions returns a sync record for every local version.
func (m *Manager) InstalledVersions() []VersionSyncInfo {
	var result []VersionSyncInfo
	for _, v := range m.local.Versions() {
		if v.GetType() == "" || v.GetUpdatedTime().IsZero() {
			continue
		}
		result = append(result, m.SyncInfoFor(v, m.remote.Version(v.GetID())))
	}
	return result
}

// SyncInfo looks id up in both catalogs.
func (m *Manager) SyncInfo(id string) VersionSyncInfo {
	return m.SyncInfoFor(m.local.Version(id), m.remote.Version(id))
}

// SyncInfoFor pairs local and remote. A local copy is up to date unless the
// remote one is strictly newer or local files are missing.
func (m *Manager) SyncInfoFor(local, remote models.Version) VersionSyncInfo {
	installed := local != nil
	upToDate := installed

	if installed && remote != nil {
		upToDate = !remote.GetUpdatedTime().After(local.GetUpdatedTime())
	}
	if complete, ok := local.(*models.CompleteVersion); ok {
		upToDate = upToDate && m.local.HasAllFiles(complete, m.opts.Platform)
	}

	return VersionSyncInfo{Local: local, Remote: remote, Installed: installed, UpToDate: upToDate}
}

// LatestCompleteVersion resolves the newest side of info. When the remote
// copy cannot be fetched the local copy of the same id is used instead; a
// remote descriptor that arrives but does not parse is still an error.
func (m *Manager) LatestCompleteVersion(ctx context.Context, info VersionSyncInfo) (*models.CompleteVersion, error) {
	latest := info.LatestVersion()
	if latest == nil {
		return nil, ErrNoVersion
	}
	if info.LatestSource() != SourceRemote {
		return m.local.CompleteVersion(ctx, latest)
	}

	version, err := m.remote.CompleteVersion(ctx, latest)
	if err == nil {
		return version, nil
	}
	if info.Local != nil && isTransportError(err) {
		if local, localErr := m.local.CompleteVersion(ctx, info.Local); localErr == nil {
			log.WithError(err).Warnf("[Sync] Couldn't fetch %s from remote, using local copy", latest.GetID())
			return local, nil
		}
	}
	return nil, err
}

func isTransportError(err error) bool {
	return errors.Is(err, api.ErrHttpRequest) || errors.Is(err, api.ErrHttpStatus) ||
		errors.Is(err, api.ErrServerError) || errors.Is(err, api.ErrNotFound)
}

func (m *Manager) concreteCatalogs() (*catalog.LocalCatalog, *catalog.RemoteCatalog, error) {
	local, ok := m.local.(*catalog.LocalCatalog)
	if !ok {
		return nil, nil, fmt.Errorf("%w: local side is %T", ErrUnsupportedCatalog, m.local)
	}
	remote, ok := m.remote.(*catalog.RemoteCatalog)
	if !ok {
		return nil, nil, fmt.Errorf("%w: remote side is %T", ErrUnsupportedCatalog, m.remote)
	}
	return local, remote, nil
}

// DownloadVersion adds the libraries and archive of info's latest version to
// job, rooted at the local catalog's base directory.
func (m *Manager) DownloadVersion(ctx context.Context, info VersionSyncInfo, job *downloader.Job, force bool) (*models.CompleteVersion, error) {
	if _, _, err := m.concreteCatalogs(); err != nil {
		return nil, err
	}
	version, err := m.LatestCompleteVersion(ctx, info)
	if err != nil {
		return nil, err
	}
	if err := m.DownloadCompleteVersion(version, job, force); err != nil {
		return nil, err
	}
	return version, nil
}

// DownloadCompleteVersion queues the files of an already resolved version,
// such as the one returned by InstallVersion.
func (m *Manager) DownloadCompleteVersion(version *models.CompleteVersion, job *downloader.Job, force bool) error {
	local, remote, err := m.concreteCatalogs()
	if err != nil {
		return err
	}

	specs, err := version.RequiredDownloadables(m.opts.Platform, local.BaseDir(), m.opts.LibraryBaseURL, force)
	if err != nil {
		return err
	}
	specs = append(specs, models.DownloadSpec{
		URL:    remote.Client().Resolve(paths.VersionArchiveRel(version.ID)),
		Target: paths.VersionArchivePath(local.BaseDir(), version.ID),
		Force:  force,
	})

	items := make([]*downloader.Downloadable, 0, len(specs))
	for _, spec := range specs {
		items = append(items, downloader.NewDownloadable(spec))
	}
	if err := job.AddDownloadables(items...); err != nil {
		return err
	}
	log.Debugf("[Sync] Queued %d files for %s", len(items), version.ID)
	return nil
}

// InstallVersion prepares info's latest version for download. An unsynced
// local copy is replaced by the remote descriptor, and a version that was
// not installed gets its descriptor saved locally.
func (m *Manager) InstallVersion(ctx context.Context, info VersionSyncInfo) (*models.CompleteVersion, error) {
	local, _, err := m.concreteCatalogs()
	if err != nil {
		return nil, err
	}
	version, err := m.LatestCompleteVersion(ctx, info)
	if err != nil {
		return nil, fmt.Errorf("couldn't get complete version info for %s: %w", info.ID(), err)
	}

	if info.Remote != nil && info.LatestSource() != SourceRemote && !version.IsSynced() {
		remoteVersion, err := m.remote.CompleteVersion(ctx, info.Remote)
		if err != nil {
			log.WithError(err).Warnf("[Install] Couldn't sync local and remote versions of %s", version.ID)
		} else {
			if err := local.RemoveVersion(version); err != nil && !errors.Is(err, catalog.ErrVersionNotFound) {
				return nil, err
			}
			if err := local.AddVersion(remoteVersion); err != nil {
				return nil, err
			}
			if err := local.SaveVersion(remoteVersion); err != nil {
				return nil, err
			}
			version = remoteVersion
		}
		version.SetSynced(true)
	}

	if !version.AppliesToCurrentEnvironment(m.opts.Platform) {
		reason := version.IncompatibilityReason
		if reason == "" {
			reason = DefaultIncompatibilityReason
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrIncompatibleVersion, version.ID, reason)
	}
	if version.RequiresUpdaterUpdate() {
		return nil, fmt.Errorf("%w: %s needs descriptor version %d, supported %d",
			ErrUpdaterOutdated, version.ID, version.MinimumLauncherVersion, models.SupportedDescriptorVersion)
	}

	if !info.Installed {
		if err := local.SaveVersion(version); err != nil {
			return nil, fmt.Errorf("couldn't save version info to install %s: %w", version.ID, err)
		}
		if local.Version(version.ID) == nil {
			if err := local.AddVersion(version); err != nil && !errors.Is(err, catalog.ErrVersionExists) {
				return nil, err
			}
		}
		log.Infof("[Install] Installed %s", version.ID)
	}
	return version, nil
}
