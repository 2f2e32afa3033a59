package updater

import (
	"fmt"

	"go-version-updater/internal/models"
)

// VersionSource names the catalog holding the newest copy of a version.
type VersionSource int

const (
	SourceRemote VersionSource = iota
	SourceLocal
)

func (s VersionSource) String() string {
	if s == SourceLocal {
		return "local"
	}
	return "remote"
}

// VersionSyncInfo pairs the local and remote copies of one version id.
type VersionSyncInfo struct {
	Local     models.Version
	Remote    models.Version
	Installed bool
	UpToDate  bool
}

// LatestSource is remote when there is no local copy or when the remote copy
// was updated strictly after the local one.
func (i VersionSyncInfo) LatestSource() VersionSource {
	switch {
	case i.Local == nil:
		return SourceRemote
	case i.Remote == nil:
		return SourceLocal
	case i.Remote.GetUpdatedTime().After(i.Local.GetUpdatedTime()):
		return SourceRemote
	}
	return SourceLocal
}

// LatestVersion returns the copy named by LatestSource.
func (i VersionSyncInfo) LatestVersion() models.Version {
	if i.LatestSource() == SourceRemote {
		return i.Remote
	}
	return i.Local
}

func (i VersionSyncInfo) IsOnRemote() bool { return i.Remote != nil }

// ID returns the version id shared by both sides.
func (i VersionSyncInfo) ID() string {
	if v := i.LatestVersion(); v != nil {
		return v.GetID()
	}
	return ""
}

func (i VersionSyncInfo) String() string {
	return fmt.Sprintf("VersionSyncInfo{id=%s, installed=%v, upToDate=%v, latest=%s}", i.ID(), i.Installed, i.UpToDate, i.LatestSource())
}
