package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type (
	// Config holds the application's configuration settings.
	Config struct {
		BaseDir           string         `toml:"BaseDir" json:"BaseDir"`
		DatabasePath      string         `toml:"DatabasePath" json:"DatabasePath"`
		BleveIndexPath    string         `toml:"BleveIndexPath" json:"BleveIndexPath"`
		LogLevel          string         `toml:"LogLevel" json:"LogLevel"`
		LogFormat         string         `toml:"LogFormat" json:"LogFormat"`
		DownloadBaseURL   string         `toml:"DownloadBaseUrl" json:"DownloadBaseUrl"`
		ResourcesBaseURL  string         `toml:"ResourcesBaseUrl" json:"ResourcesBaseUrl"`
		LibraryBaseURL    string         `toml:"LibraryBaseUrl" json:"LibraryBaseUrl"`
		Proxy             string         `toml:"Proxy" json:"Proxy"`
		Workers           int            `toml:"Workers" json:"Workers"`
		ConnectTimeoutSec int            `toml:"ConnectTimeoutSec" json:"ConnectTimeoutSec"`
		ReadTimeoutSec    int            `toml:"ReadTimeoutSec" json:"ReadTimeoutSec"`
		Versions          VersionsConfig `toml:"Versions" json:"Versions"`
		Install           InstallConfig  `toml:"Install" json:"Install"`
		Verify            VerifyConfig   `toml:"Verify" json:"Verify"`
		LogApiRequests    bool           `toml:"LogApiRequests" json:"LogApiRequests"`
	}

	// VersionsConfig holds settings for the 'versions' listing.
	VersionsConfig struct {
		Types    []string `toml:"Types" json:"Types"`
		MaxCount int      `toml:"MaxCount" json:"MaxCount"`
	}

	// InstallConfig holds settings specific to the 'install' command.
	InstallConfig struct {
		NativesDir    string `toml:"NativesDir" json:"NativesDir"`
		Force         bool   `toml:"Force" json:"Force"`
		UnpackNatives bool   `toml:"UnpackNatives" json:"UnpackNatives"`
		SkipResources bool   `toml:"SkipResources" json:"SkipResources"`
	}

	// VerifyConfig holds settings for the 'verify' command.
	VerifyConfig struct {
		CheckHash      bool `toml:"CheckHash" json:"CheckHash"`
		AutoRedownload bool `toml:"AutoRedownload" json:"AutoRedownload"`
	}
)

// DownloadSpec describes one remote file that has to be present locally.
// Target is an absolute path on disk.
type DownloadSpec struct {
	URL          string
	Target       string
	ExpectedSize int64
	Force        bool
}

// Timestamp wraps time.Time so descriptor dates written by older tooling
// still decode. It always encodes as RFC 3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"Jan 2, 2006 3:04:05 PM",
}

// ParseTimestamp parses any of the accepted descriptor date layouts.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized date format: %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
