package models

import "time"

// Install status values stored in the ledger.
const (
	StatusPending    = "Pending"
	StatusInstalled  = "Installed"
	StatusIncomplete = "Incomplete"
)

// InstalledVersion is the ledger row for one installed version.
type InstalledVersion struct {
	ID          string          `json:"id"`
	Type        ReleaseType     `json:"type"`
	ReleaseTime time.Time       `json:"releaseTime"`
	UpdatedTime time.Time       `json:"updatedTime"`
	Status      string          `json:"status"`
	Failures    int             `json:"failures"`
	InstalledAt time.Time       `json:"installedAt"`
	Files       []InstalledFile `json:"files,omitempty"`
}

// InstalledFile records one file an install job placed on disk.
type InstalledFile struct {
	VersionID string    `json:"versionId"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	Blake3    string    `json:"blake3"`
	Timestamp time.Time `json:"timestamp"`
}
