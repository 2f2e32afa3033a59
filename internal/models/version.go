package models

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go-version-updater/internal/helpers"
	"go-version-updater/internal/paths"
)

// SupportedDescriptorVersion is the highest minimumLauncherVersion this
// updater understands. Descriptors asking for more need a newer updater.
const SupportedDescriptorVersion = 7

// ErrInvalidVersion is returned by Validate for incomplete version records.
var ErrInvalidVersion = errors.New("invalid version")

// Version is the common view over partial and complete version records.
type Version interface {
	GetID() string
	GetType() ReleaseType
	GetUpdatedTime() time.Time
	GetReleaseTime() time.Time
}

// PartialVersion is the lightweight listing entry from versions.json.
type PartialVersion struct {
	ID          string      `json:"id"`
	Time        Timestamp   `json:"time"`
	ReleaseTime Timestamp   `json:"releaseTime"`
	Type        ReleaseType `json:"type"`
}

func (v *PartialVersion) GetID() string             { return v.ID }
func (v *PartialVersion) GetType() ReleaseType      { return v.Type }
func (v *PartialVersion) GetUpdatedTime() time.Time { return v.Time.Time }
func (v *PartialVersion) GetReleaseTime() time.Time { return v.ReleaseTime.Time }

// Validate checks the fields every version must carry.
func (v *PartialVersion) Validate() error {
	return validateVersionFields(v)
}

// NewPartialVersion copies the listing fields of any Version.
func NewPartialVersion(v Version) *PartialVersion {
	return &PartialVersion{
		ID:          v.GetID(),
		Time:        Timestamp{v.GetUpdatedTime()},
		ReleaseTime: Timestamp{v.GetReleaseTime()},
		Type:        v.GetType(),
	}
}

// CompleteVersion is a fully resolved version descriptor.
type CompleteVersion struct {
	ID                     string      `json:"id"`
	Time                   Timestamp   `json:"time"`
	ReleaseTime            Timestamp   `json:"releaseTime"`
	Type                   ReleaseType `json:"type"`
	MinecraftArguments     *string     `json:"minecraftArguments"`
	Libraries              []Library   `json:"libraries"`
	MainClass              string      `json:"mainClass"`
	MinimumLauncherVersion int         `json:"minimumLauncherVersion"`
	IncompatibilityReason  string      `json:"incompatibilityReason,omitempty"`
	Rules                  []Rule      `json:"rules"`

	synced atomic.Bool
}

func (v *CompleteVersion) GetID() string             { return v.ID }
func (v *CompleteVersion) GetType() ReleaseType      { return v.Type }
func (v *CompleteVersion) GetUpdatedTime() time.Time { return v.Time.Time }
func (v *CompleteVersion) GetReleaseTime() time.Time { return v.ReleaseTime.Time }

// IsSynced reports whether this local copy has been reconciled with the remote one.
func (v *CompleteVersion) IsSynced() bool { return v.synced.Load() }

// SetSynced marks the version as reconciled.
func (v *CompleteVersion) SetSynced(synced bool) { v.synced.Store(synced) }

// Arguments returns the launch argument template, or "" when absent.
func (v *CompleteVersion) Arguments() string {
	if v.MinecraftArguments == nil {
		return ""
	}
	return *v.MinecraftArguments
}

// Validate checks the fields every complete version must carry.
func (v *CompleteVersion) Validate() error {
	if err := validateVersionFields(v); err != nil {
		return err
	}
	if v.MainClass == "" {
		return fmt.Errorf("%w: %s: main class cannot be empty", ErrInvalidVersion, v.ID)
	}
	if v.MinecraftArguments == nil {
		return fmt.Errorf("%w: %s: argument template cannot be null", ErrInvalidVersion, v.ID)
	}
	return nil
}

// ToPartial returns the listing entry for this version.
func (v *CompleteVersion) ToPartial() *PartialVersion {
	return NewPartialVersion(v)
}

// RequiresUpdaterUpdate reports whether the descriptor needs a newer updater.
func (v *CompleteVersion) RequiresUpdaterUpdate() bool {
	return v.MinimumLauncherVersion > SupportedDescriptorVersion
}

// AppliesToCurrentEnvironment evaluates the version-level rules against p.
func (v *CompleteVersion) AppliesToCurrentEnvironment(p Platform) bool {
	return AppliesTo(v.Rules, p)
}

// RelevantLibraries returns the libraries whose rules allow p, in order.
func (v *CompleteVersion) RelevantLibraries(p Platform) []Library {
	var result []Library
	for _, lib := range v.Libraries {
		if lib.AppliesTo(p) {
			result = append(result, lib)
		}
	}
	return result
}

// ClassPath lists the non-native library jars followed by the version jar.
func (v *CompleteVersion) ClassPath(p Platform, base string) ([]string, error) {
	var result []string
	for _, lib := range v.RelevantLibraries(p) {
		if lib.HasNatives() {
			continue
		}
		artifact, err := lib.ArtifactPath("")
		if err != nil {
			return nil, err
		}
		result = append(result, paths.LibraryPath(base, artifact))
	}
	return append(result, paths.VersionArchivePath(base, v.ID)), nil
}

// ExtractFiles lists native archives (relative to the base directory) that
// must be unpacked for p.
func (v *CompleteVersion) ExtractFiles(p Platform) ([]string, error) {
	var result []string
	for _, lib := range v.RelevantLibraries(p) {
		classifier, ok := lib.NativeClassifier(p)
		if !ok {
			continue
		}
		artifact, err := lib.ArtifactPath(classifier)
		if err != nil {
			return nil, err
		}
		result = append(result, paths.LibraryRel(artifact))
	}
	return result, nil
}

// RequiredFiles returns the sorted, de-duplicated set of library files
// (relative to the base directory) that must exist to run on p.
func (v *CompleteVersion) RequiredFiles(p Platform) ([]string, error) {
	set := make(map[string]struct{})
	for _, lib := range v.RelevantLibraries(p) {
		artifact, ok, err := lib.RequiredArtifact(p)
		if err != nil {
			return nil, err
		}
		if ok {
			set[paths.LibraryRel(artifact)] = struct{}{}
		}
	}
	result := make([]string, 0, len(set))
	for f := range set {
		result = append(result, f)
	}
	sort.Strings(result)
	return result, nil
}

// RequiredDownloadables computes the library downloads for p rooted at
// base. Libraries with a custom URL are skipped when already present, since
// their origin cannot be revalidated.
func (v *CompleteVersion) RequiredDownloadables(p Platform, base, libraryBaseURL string, force bool) ([]DownloadSpec, error) {
	seen := make(map[string]struct{})
	var result []DownloadSpec
	for _, lib := range v.RelevantLibraries(p) {
		artifact, ok, err := lib.RequiredArtifact(p)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		local := paths.LibraryPath(base, artifact)
		if _, dup := seen[local]; dup {
			continue
		}
		seen[local] = struct{}{}
		if lib.HasCustomURL() && helpers.IsFile(local) {
			continue
		}
		result = append(result, DownloadSpec{
			URL:    lib.DownloadBaseURL(libraryBaseURL) + artifact,
			Target: local,
			Force:  force,
		})
	}
	return result, nil
}

func validateVersionFields(v Version) error {
	switch {
	case v.GetID() == "":
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidVersion)
	case v.GetReleaseTime().IsZero():
		return fmt.Errorf("%w: %s: release time cannot be empty", ErrInvalidVersion, v.GetID())
	case v.GetUpdatedTime().IsZero():
		return fmt.Errorf("%w: %s: update time cannot be empty", ErrInvalidVersion, v.GetID())
	case v.GetType() == "":
		return fmt.Errorf("%w: %s: release type cannot be empty", ErrInvalidVersion, v.GetID())
	}
	return nil
}

// CompareNewestFirst orders versions by release time when both have one,
// otherwise by update time, newest first. It returns a negative number when
// a sorts before b.
func CompareNewestFirst(a, b Version) int {
	at, bt := a.GetReleaseTime(), b.GetReleaseTime()
	if at.IsZero() || bt.IsZero() {
		at, bt = a.GetUpdatedTime(), b.GetUpdatedTime()
	}
	return bt.Compare(at)
}
