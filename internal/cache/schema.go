package cache

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/Consiliency/treesitter-chunker-sub001/pkg/types"
)

// CurrentSchemaVersion is the on-disk schema version written into every
// blob and export produced by this build.
const CurrentSchemaVersion = "1.0.0"

// checkSchemaCompatible reports whether data written under version can be
// read by this build. Versions sharing the current major are compatible;
// anything else, including unparseable versions, is rejected with
// types.ErrUnsupportedSchema.
func checkSchemaCompatible(version string) error {
	current := semver.MustParse(CurrentSchemaVersion)

	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: invalid schema version %q: %v", types.ErrUnsupportedSchema, version, err)
	}
	if v.Major() != current.Major() {
		return fmt.Errorf("%w: stored %s, current %s", types.ErrUnsupportedSchema, version, CurrentSchemaVersion)
	}
	return nil
}
