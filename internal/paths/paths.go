package paths

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"go-version-updater/internal/helpers"
)

// Directory names under the updater's base directory.
const (
	VersionsDirName  = "versions"
	LibrariesDirName = "libraries"
	AssetsDirName    = "assets"
	VersionListName  = "versions.json"
)

// ErrPathTraversal is returned when a relative path would leave its base.
var ErrPathTraversal = errors.New("path escapes base directory")

// VersionsDir returns <base>/versions.
func VersionsDir(base string) string {
	return filepath.Join(base, VersionsDirName)
}

// VersionListPath returns <base>/versions/versions.json.
func VersionListPath(base string) string {
	return filepath.Join(base, VersionsDirName, VersionListName)
}

// VersionDir returns <base>/versions/<id>.
func VersionDir(base, id string) string {
	return filepath.Join(base, VersionsDirName, id)
}

// VersionDescriptorPath returns <base>/versions/<id>/<id>.json.
func VersionDescriptorPath(base, id string) string {
	return filepath.Join(base, VersionsDirName, id, id+".json")
}

// VersionArchivePath returns <base>/versions/<id>/<id>.jar.
func VersionArchivePath(base, id string) string {
	return filepath.Join(base, VersionsDirName, id, id+".jar")
}

// VersionDescriptorRel and VersionArchiveRel are the slash-separated forms
// used to build remote URLs.
func VersionDescriptorRel(id string) string {
	return VersionsDirName + "/" + id + "/" + id + ".json"
}

func VersionArchiveRel(id string) string {
	return VersionsDirName + "/" + id + "/" + id + ".jar"
}

// VersionListRel is versions/versions.json relative to a catalog root.
func VersionListRel() string {
	return VersionsDirName + "/" + VersionListName
}

// LibraryRel returns libraries/<artifactPath>.
func LibraryRel(artifactPath string) string {
	return LibrariesDirName + "/" + artifactPath
}

// LibraryPath returns <base>/libraries/<artifactPath>.
func LibraryPath(base, artifactPath string) string {
	return filepath.Join(base, LibrariesDirName, filepath.FromSlash(artifactPath))
}

// AssetPath returns <base>/assets/<key>, rejecting keys that escape assets/.
func AssetPath(base, key string) (string, error) {
	return SafeJoin(filepath.Join(base, AssetsDirName), key)
}

// SafeJoin joins a slash-separated relative path onto base and fails if the
// result is not inside base.
func SafeJoin(base, rel string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}
	return filepath.Join(base, cleaned), nil
}

var allowedTags = map[string]struct{}{
	"versionId": {},
	"os":        {},
	"arch":      {},
}

// Regex to find tags like {tagName}
var tagRegex = regexp.MustCompile(`\{([^}]+)\}`)

// GeneratePath substitutes {tag} placeholders in a directory pattern with
// slugged values from data. Used for the natives directory layout.
func GeneratePath(pattern string, data map[string]string) (string, error) {
	generatedPath := pattern

	for _, match := range tagRegex.FindAllStringSubmatch(pattern, -1) {
		tagName := match[1]
		tagWithBraces := match[0]

		if _, allowed := allowedTags[tagName]; !allowed {
			return "", fmt.Errorf("unknown tag found in path pattern: %s", tagWithBraces)
		}

		sanitizedValue := helpers.ConvertToSlug(data[tagName])
		if sanitizedValue == "" {
			sanitizedValue = "empty_" + tagName
		}
		generatedPath = strings.ReplaceAll(generatedPath, tagWithBraces, sanitizedValue)
	}

	cleanedPath := filepath.Clean(generatedPath)
	if cleanedPath == "." || cleanedPath == "" {
		return "", fmt.Errorf("generated path pattern resulted in an empty or invalid path: '%s'", pattern)
	}
	cleanedPath = strings.TrimPrefix(cleanedPath, string(filepath.Separator))

	if strings.Contains(cleanedPath, "..") {
		return "", fmt.Errorf("generated path contains invalid sequence '..': %s", cleanedPath)
	}

	return cleanedPath, nil
}

var argumentRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandArguments replaces ${token} placeholders in a launch argument
// template. Tokens without a value are left as written.
func ExpandArguments(template string, values map[string]string) string {
	return argumentRegex.ReplaceAllStringFunc(template, func(m string) string {
		key := m[2 : len(m)-1]
		if v, ok := values[key]; ok {
			return v
		}
		return m
	})
}
