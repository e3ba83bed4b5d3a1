package feed

import (
	"strings"

	"golang.org/x/mod/semver"
)

const (
	RequiredUpstreamVersion string = "v0.4.0"
)

func CheckUpstreamVersion(toCheck string) bool {
	if !strings.HasPrefix(toCheck, "v") {
		toCheck = "v" + toCheck
	}
	res := semver.Compare(toCheck, RequiredUpstreamVersion)
	return res >= 0
}
