package cdn

import (
	_ "embed"
	"fmt"
	"regexp"
	"sync"

	"github.com/osteele/liquid"
)

var versionPattern = regexp.MustCompile(`(const\s+VERSION\s*=\s*['"])(.+?)(['"])`)

// InjectVersion rewrites the first `const VERSION = '...'` literal in body
// to version. Bodies without the literal are returned unchanged.
func InjectVersion(body []byte, version string) []byte {
	loc := versionPattern.FindSubmatchIndex(body)
	if loc == nil {
		return body
	}
	// loc[4:6] spans the old version.
	out := make([]byte, 0, len(body)-(loc[5]-loc[4])+len(version))
	out = append(out, body[:loc[4]]...)
	out = append(out, version...)
	out = append(out, body[loc[5]:]...)
	return out
}

//go:embed templates/stub.js.liquid
var stubSource string

var (
	stubOnce sync.Once
	stubTpl  *liquid.Template
	stubErr  error
)

// RenderStub returns the inert development script for version.
func RenderStub(version string) ([]byte, error) {
	stubOnce.Do(func() {
		stubTpl, stubErr = liquid.NewEngine().ParseString(stubSource)
	})
	if stubErr != nil {
		return nil, fmt.Errorf("cdn: parse stub template: %w", stubErr)
	}
	out, err := stubTpl.Render(liquid.Bindings{"version": version})
	if err != nil {
		return nil, fmt.Errorf("cdn: render stub: %w", err)
	}
	return out, nil
}
