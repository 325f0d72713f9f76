// Package versions holds the published script version table served by the
// CDN endpoints and extended by the release tool.
package versions

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Status is the release channel of a script version.
type Status string

const (
	StatusLatest Status = "latest"
	StatusStable Status = "stable"
	StatusLegacy Status = "legacy"
	StatusBeta   Status = "beta"
)

// IsValid reports whether s is one of the known channels.
func (s Status) IsValid() bool {
	switch s {
	case StatusLatest, StatusStable, StatusLegacy, StatusBeta:
		return true
	}
	return false
}

// ScriptVersion describes one published build of the integration script.
type ScriptVersion struct {
	Version      string   `yaml:"version" json:"version"`
	ReleaseDate  string   `yaml:"release_date" json:"releaseDate"`
	Status       Status   `yaml:"status" json:"status"`
	Changes      []string `yaml:"changes" json:"changes"`
	FilePath     string   `yaml:"file_path" json:"filePath"`
	MinifiedPath string   `yaml:"minified_path" json:"minifiedPath"`
}

// FileName returns the base name of the unminified build.
func (v ScriptVersion) FileName() string {
	if i := strings.LastIndex(v.FilePath, "/"); i >= 0 {
		return v.FilePath[i+1:]
	}
	return v.FilePath
}

// FilePathFor and MinifiedPathFor build the conventional published paths.
func FilePathFor(version string) string {
	return fmt.Sprintf("/scripts/versions/klaviyo-webflow-%s.js", version)
}

func MinifiedPathFor(version string) string {
	return fmt.Sprintf("/scripts/versions/klaviyo-webflow-%s.min.js", version)
}

// Table is the ordered version list, newest first.
type Table struct {
	Versions []ScriptVersion `yaml:"versions"`
}

// Default returns the built-in version table.
func Default() *Table {
	return &Table{Versions: []ScriptVersion{
		{
			Version:     "1.2.0",
			ReleaseDate: "2023-11-15",
			Status:      StatusLatest,
			Changes: []string{
				"Added SMS subscription capability",
				"Improved error handling with detailed messages",
				"Better compatibility with complex Webflow forms",
				"Added version auto-update notification",
				"Performance optimizations",
			},
			FilePath:     FilePathFor("1.2.0"),
			MinifiedPath: MinifiedPathFor("1.2.0"),
		},
		{
			Version:     "1.1.0",
			ReleaseDate: "2023-08-10",
			Status:      StatusStable,
			Changes: []string{
				"Custom success message support",
				"Improved form validation",
				"Added support for multi-list subscriptions",
				"Better error handling",
				"Documentation improvements",
			},
			FilePath:     FilePathFor("1.1.0"),
			MinifiedPath: MinifiedPathFor("1.1.0"),
		},
		{
			Version:     "1.0.0",
			ReleaseDate: "2023-05-20",
			Status:      StatusLegacy,
			Changes: []string{
				"Initial release",
				"Basic form submission to Klaviyo",
				"Custom field mapping",
				"Basic error handling",
			},
			FilePath:     FilePathFor("1.0.0"),
			MinifiedPath: MinifiedPathFor("1.0.0"),
		},
	}}
}

// Latest returns the sole latest entry, or the first entry when none is
// marked latest. ok is false for an empty table.
func (t *Table) Latest() (ScriptVersion, bool) {
	for _, v := range t.Versions {
		if v.Status == StatusLatest {
			return v, true
		}
	}
	if len(t.Versions) > 0 {
		return t.Versions[0], true
	}
	return ScriptVersion{}, false
}

// ByNumber looks up an exact version number.
func (t *Table) ByNumber(version string) (ScriptVersion, error) {
	for _, v := range t.Versions {
		if v.Version == version {
			return v, nil
		}
	}
	return ScriptVersion{}, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
}

// IsValid reports whether version is in the table.
func (t *Table) IsValid(version string) bool {
	_, err := t.ByNumber(version)
	return err == nil
}

// All returns a copy of the entries in table order.
func (t *Table) All() []ScriptVersion {
	out := make([]ScriptVersion, len(t.Versions))
	copy(out, t.Versions)
	return out
}

// Normalize strips a single leading "v" from a requested version.
func Normalize(requested string) string {
	return strings.TrimPrefix(strings.TrimSpace(requested), "v")
}

// Validate checks the table invariants: known statuses, unique numbers and
// exactly one latest entry.
func (t *Table) Validate() error {
	seen := make(map[string]bool, len(t.Versions))
	latest := 0
	for _, v := range t.Versions {
		if !v.Status.IsValid() {
			return fmt.Errorf("%w: %q for %s", ErrInvalidStatus, v.Status, v.Version)
		}
		if seen[v.Version] {
			return fmt.Errorf("%w: %s", ErrDuplicateVersion, v.Version)
		}
		seen[v.Version] = true
		if v.Status == StatusLatest {
			latest++
		}
	}
	if latest != 1 {
		return fmt.Errorf("%w (found %d)", ErrLatestCount, latest)
	}
	return nil
}

// LoadFile reads a YAML version table and validates it.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadOrDefault reads path when set, falling back to the built-in table.
func LoadOrDefault(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// SaveFile writes the table as YAML.
func (t *Table) SaveFile(path string) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
