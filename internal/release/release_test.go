package release

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/klaviyo-webflow/internal/config"
	"github.com/ignite/klaviyo-webflow/internal/versions"
)

var releaseDay = time.Date(2024, 2, 1, 15, 30, 0, 0, time.UTC)

func TestNextPatch(t *testing.T) {
	assert.Equal(t, "1.2.1", NextPatch(versions.Default()))
	assert.Equal(t, "1.0.1", NextPatch(&versions.Table{}))
}

func TestPrepare(t *testing.T) {
	table := versions.Default()

	next, err := Prepare(table, "1.3.0", []string{"Add consent checkbox support", "  ", "Fix retry logging"}, releaseDay)
	require.NoError(t, err)
	require.Len(t, next.Versions, 4)

	head := next.Versions[0]
	assert.Equal(t, "1.3.0", head.Version)
	assert.Equal(t, versions.StatusLatest, head.Status)
	assert.Equal(t, "2024-02-01", head.ReleaseDate)
	assert.Equal(t, []string{"Add consent checkbox support", "Fix retry logging"}, head.Changes)
	assert.Equal(t, "/scripts/versions/klaviyo-webflow-1.3.0.js", head.FilePath)
	assert.Equal(t, "/scripts/versions/klaviyo-webflow-1.3.0.min.js", head.MinifiedPath)

	assert.Equal(t, versions.StatusStable, next.Versions[1].Status)
	assert.Equal(t, "1.2.0", next.Versions[1].Version)
	assert.Equal(t, versions.StatusLegacy, next.Versions[3].Status)
	assert.NoError(t, next.Validate())

	// The input table is untouched.
	latest, _ := table.Latest()
	assert.Equal(t, "1.2.0", latest.Version)
}

func TestPrepareRejects(t *testing.T) {
	table := versions.Default()
	changes := []string{"something"}

	tests := []struct {
		name    string
		version string
		changes []string
		want    error
	}{
		{"not semver", "1.3", changes, ErrInvalidVersion},
		{"prerelease", "1.3.0-beta.1", changes, ErrInvalidVersion},
		{"leading v", "v1.3.0", changes, ErrInvalidVersion},
		{"duplicate", "1.1.0", changes, versions.ErrDuplicateVersion},
		{"older", "1.1.5", changes, ErrNotNewer},
		{"no changes", "1.3.0", []string{" "}, ErrNoChanges},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Prepare(table, tt.version, tt.changes, releaseDay)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPrepareEmptyTable(t *testing.T) {
	next, err := Prepare(&versions.Table{}, "1.0.0", []string{"Initial release"}, releaseDay)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", Current(next))
}

func TestPublish(t *testing.T) {
	dir := t.TempDir()
	cfg := config.CDNConfig{PublicDir: filepath.Join(dir, "public"), AssetsDir: filepath.Join(dir, "assets")}
	v := versions.ScriptVersion{Version: "1.3.0", FilePath: versions.FilePathFor("1.3.0")}

	_, err := Publish(cfg, v)
	assert.ErrorIs(t, err, ErrSourceMissing)

	require.NoError(t, os.MkdirAll(cfg.AssetsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.AssetsDir, "webflow-to-klaviyo-script.js"), []byte("const VERSION = 'dev';"), 0o644))

	written, err := Publish(cfg, v)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(cfg.PublicDir, "scripts", "versions", "klaviyo-webflow-1.3.0.js"),
		filepath.Join(cfg.PublicDir, "scripts", "klaviyo-webflow.min.js"),
	}, written)
	for _, path := range written {
		body, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "const VERSION = 'dev';", string(body))
	}
}

type fakeCloudFront struct {
	input *cloudfront.CreateInvalidationInput
	err   error
}

func (f *fakeCloudFront) CreateInvalidation(_ context.Context, in *cloudfront.CreateInvalidationInput, _ ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &cloudfront.CreateInvalidationOutput{Invalidation: &types.Invalidation{Id: aws.String("I2J0I21PCUYOIK")}}, nil
}

func TestInvalidate(t *testing.T) {
	cf := &fakeCloudFront{}
	inv := NewInvalidator(cf, "E123")
	inv.now = func() time.Time { return releaseDay }

	id, err := inv.Invalidate(context.Background(), "1.3.0")
	require.NoError(t, err)
	assert.Equal(t, "I2J0I21PCUYOIK", id)

	assert.Equal(t, "E123", aws.ToString(cf.input.DistributionId))
	batch := cf.input.InvalidationBatch
	assert.Equal(t, []string{"/script*", "/version"}, batch.Paths.Items)
	assert.Equal(t, int32(2), aws.ToInt32(batch.Paths.Quantity))
	assert.Equal(t, "release-1.3.0-1706801400", aws.ToString(batch.CallerReference))
}

func TestInvalidateError(t *testing.T) {
	inv := NewInvalidator(&fakeCloudFront{err: errors.New("AccessDenied")}, "E123")
	_, err := inv.Invalidate(context.Background(), "1.3.0")
	assert.Error(t, err)
}
