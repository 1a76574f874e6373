package app

import (
	"github.com/kart-io/version"
)

// GetVersion returns the git version stamped at build time.
func GetVersion() string {
	v := version.Get().GitVersion
	if v == "" {
		return "dev"
	}
	return v
}

// VersionFields returns build metadata as logger key/value pairs.
func VersionFields() []any {
	info := version.Get()
	return []any{
		"version", GetVersion(),
		"commit", info.GitCommit,
		"build_date", info.BuildDate,
		"go", info.GoVersion,
	}
}
