// Package release prepares new script versions: it extends the version
// table, publishes the built script into the public directory and can
// invalidate the CDN.
package release

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/ignite/klaviyo-webflow/internal/config"
	"github.com/ignite/klaviyo-webflow/internal/versions"
)

const fallbackCurrent = "1.0.0"

func parseVersion(v string) (*semver.Version, error) {
	parsed, err := semver.StrictNewVersion(v)
	if err != nil || parsed.Prerelease() != "" || parsed.Metadata() != "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	return parsed, nil
}

// Current returns the table's latest version number, or 1.0.0 for an empty table.
func Current(table *versions.Table) string {
	if latest, ok := table.Latest(); ok {
		return latest.Version
	}
	return fallbackCurrent
}

// NextPatch suggests the next patch release after the current latest.
func NextPatch(table *versions.Table) string {
	current, err := semver.NewVersion(Current(table))
	if err != nil {
		return fallbackCurrent
	}
	return current.IncPatch().String()
}

// Prepare returns a copy of table with version prepended as the new latest
// entry. The previous latest is demoted to stable; table is not modified.
func Prepare(table *versions.Table, version string, changes []string, date time.Time) (*versions.Table, error) {
	version = strings.TrimSpace(version)
	next, err := parseVersion(version)
	if err != nil {
		return nil, err
	}

	var cleaned []string
	for _, c := range changes {
		if c = strings.TrimSpace(c); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrNoChanges
	}

	if table.IsValid(version) {
		return nil, fmt.Errorf("%w: %s", versions.ErrDuplicateVersion, version)
	}
	if latest, ok := table.Latest(); ok {
		if current, err := semver.NewVersion(latest.Version); err == nil && !next.GreaterThan(current) {
			return nil, fmt.Errorf("%w: %s <= %s", ErrNotNewer, version, latest.Version)
		}
	}

	entries := make([]versions.ScriptVersion, 0, len(table.Versions)+1)
	entries = append(entries, versions.ScriptVersion{
		Version:      version,
		ReleaseDate:  date.UTC().Format("2006-01-02"),
		Status:       versions.StatusLatest,
		Changes:      cleaned,
		FilePath:     versions.FilePathFor(version),
		MinifiedPath: versions.MinifiedPathFor(version),
	})
	for _, v := range table.All() {
		if v.Status == versions.StatusLatest {
			v.Status = versions.StatusStable
		}
		entries = append(entries, v)
	}

	out := &versions.Table{Versions: entries}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Publish copies the built assets script into the public directory as the
// versioned file and as the generic latest file. It returns the written paths.
func Publish(cfg config.CDNConfig, v versions.ScriptVersion) ([]string, error) {
	source := filepath.Join(cfg.AssetsDir, "webflow-to-klaviyo-script.js")
	if _, err := os.Stat(source); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, source)
	}

	scripts := filepath.Join(cfg.PublicDir, "scripts")
	targets := []string{
		filepath.Join(scripts, "versions", filepath.Base(v.FilePath)),
		filepath.Join(scripts, "klaviyo-webflow.min.js"),
	}
	for _, target := range targets {
		if err := copyFile(source, target); err != nil {
			return nil, err
		}
	}
	return targets, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying to %s: %w", dst, err)
	}
	return out.Close()
}
