package provenance

import (
	"fmt"
	"os"
)

const (
	versionMajor = 0
	versionMinor = 2
	versionPatch = 0

	// One of "alpha", "beta" or "final"
	releaseLevel = "beta"
)

// BuildSHA is the source revision, set with
// -ldflags "-X github.com/ppiankov/etlconv/internal/provenance.BuildSHA=..."
var BuildSHA string

// Version returns the full service version, e.g. "0.2.0b+1a2b3c"
func Version() string {
	v := ShortVersion()
	if releaseLevel == "final" {
		return v
	}

	v += releaseLevel[:1]
	if sha := buildSHA(); sha != "" {
		v += "+" + sha
	}
	return v
}

// ShortVersion returns major.minor.patch
func ShortVersion() string {
	return fmt.Sprintf("%d.%d.%d", versionMajor, versionMinor, versionPatch)
}

func buildSHA() string {
	if BuildSHA != "" {
		return BuildSHA
	}
	return os.Getenv("GIT_SHA")
}
