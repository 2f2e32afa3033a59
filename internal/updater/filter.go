package updater

import (
	"sort"

	"go-version-updater/internal/models"
)

// DefaultMaxCount caps remote entries per release type in Versions.
const DefaultMaxCount = 5

// VersionFilter selects release types and caps remote entries per type.
type VersionFilter struct {
	types    map[models.ReleaseType]struct{}
	maxCount int
}

// NewVersionFilter allows every release type with DefaultMaxCount.
func NewVersionFilter() *VersionFilter {
	f := &VersionFilter{types: make(map[models.ReleaseType]struct{}), maxCount: DefaultMaxCount}
	return f.Include(models.AllReleaseTypes...)
}

// Exclude removes types from the filter.
func (f *VersionFilter) Exclude(types ...models.ReleaseType) *VersionFilter {
	for _, t := range types {
		delete(f.types, t)
	}
	return f
}

// Include adds types to the filter.
func (f *VersionFilter) Include(types ...models.ReleaseType) *VersionFilter {
	for _, t := range types {
		f.types[t] = struct{}{}
	}
	return f
}

// OnlyFor replaces the allowed types.
func (f *VersionFilter) OnlyFor(types ...models.ReleaseType) *VersionFilter {
	f.types = make(map[models.ReleaseType]struct{})
	return f.Include(types...)
}

// SetMaxCount sets the per-type cap.
func (f *VersionFilter) SetMaxCount(n int) *VersionFilter {
	f.maxCount = n
	return f
}

func (f *VersionFilter) MaxCount() int { return f.maxCount }

// Allows reports whether t passes the filter.
func (f *VersionFilter) Allows(t models.ReleaseType) bool {
	_, ok := f.types[t]
	return ok
}

// Types returns the allowed types in a stable order.
func (f *VersionFilter) Types() []models.ReleaseType {
	out := make([]models.ReleaseType, 0, len(f.types))
	for t := range f.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
