package models

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultLibraryBaseURL serves libraries that do not declare their own URL.
const DefaultLibraryBaseURL = "https://s3.amazonaws.com/Minecraft.Download/libraries/"

// ErrInvalidLibrary is returned for libraries whose coordinate cannot be parsed.
var ErrInvalidLibrary = errors.New("invalid library coordinate")

// ExtractRules lists archive path prefixes that must not be unpacked.
type ExtractRules struct {
	Exclude []string `json:"exclude,omitempty"`
}

// ShouldExtract reports whether path is outside every excluded prefix.
func (e *ExtractRules) ShouldExtract(path string) bool {
	if e == nil {
		return true
	}
	for _, prefix := range e.Exclude {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// Library is a jar dependency identified by a group:artifact:version coordinate.
type Library struct {
	Name    string                     `json:"name"`
	Rules   []Rule                     `json:"rules"`
	Natives map[OperatingSystem]string `json:"natives,omitempty"`
	Extract *ExtractRules              `json:"extract,omitempty"`
	URL     string                     `json:"url,omitempty"`
}

func (l Library) coordinate() ([]string, error) {
	parts := strings.SplitN(l.Name, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLibrary, l.Name)
	}
	return parts, nil
}

// ArtifactBaseDir returns group/path/artifact/version.
func (l Library) ArtifactBaseDir() (string, error) {
	parts, err := l.coordinate()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", strings.ReplaceAll(parts[0], ".", "/"), parts[1], parts[2]), nil
}

// ArtifactFilename returns artifact-version[-classifier].jar.
func (l Library) ArtifactFilename(classifier string) (string, error) {
	parts, err := l.coordinate()
	if err != nil {
		return "", err
	}
	if classifier != "" {
		classifier = "-" + classifier
	}
	return fmt.Sprintf("%s-%s%s.jar", parts[1], parts[2], classifier), nil
}

// ArtifactPath returns the slash-separated path relative to the libraries root.
func (l Library) ArtifactPath(classifier string) (string, error) {
	dir, err := l.ArtifactBaseDir()
	if err != nil {
		return "", err
	}
	file, err := l.ArtifactFilename(classifier)
	if err != nil {
		return "", err
	}
	return dir + "/" + file, nil
}

// HasCustomURL reports whether the library is hosted outside the default base.
func (l Library) HasCustomURL() bool {
	return l.URL != ""
}

// DownloadBaseURL returns the URL artifact paths are appended to.
func (l Library) DownloadBaseURL(defaultBase string) string {
	if l.URL != "" {
		return l.URL
	}
	if defaultBase != "" {
		return defaultBase
	}
	return DefaultLibraryBaseURL
}

// HasNatives reports whether the library ships platform binaries.
func (l Library) HasNatives() bool {
	return l.Natives != nil
}

// NativeClassifier returns the classifier for p with ${arch} expanded, and
// false when the library has no native for that OS.
func (l Library) NativeClassifier(p Platform) (string, bool) {
	classifier, ok := l.Natives[p.OS]
	if !ok || classifier == "" {
		return "", false
	}
	return strings.ReplaceAll(classifier, "${arch}", p.Arch), true
}

// AppliesTo evaluates the library's rules against p.
func (l Library) AppliesTo(p Platform) bool {
	return AppliesTo(l.Rules, p)
}

// RequiredArtifact returns the artifact path needed on p, and false when the
// library is native-only and has nothing for p's OS.
func (l Library) RequiredArtifact(p Platform) (string, bool, error) {
	if !l.HasNatives() {
		path, err := l.ArtifactPath("")
		return path, err == nil, err
	}
	classifier, ok := l.NativeClassifier(p)
	if !ok {
		return "", false, nil
	}
	path, err := l.ArtifactPath(classifier)
	return path, err == nil, err
}
