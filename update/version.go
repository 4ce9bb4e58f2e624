package update

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CompareVersions compares two dotted-numeric version strings. It returns
// a positive value when a is newer than b, negative when older, and zero
// when equal. Missing trailing components count as zero, so "1.2" and
// "1.2.0" are equal.
func CompareVersions(a, b string) int {
	av, aErr := semver.NewVersion(strings.TrimPrefix(a, "v"))
	bv, bErr := semver.NewVersion(strings.TrimPrefix(b, "v"))
	if aErr == nil && bErr == nil {
		return av.Compare(bv)
	}
	return compareDotted(a, b)
}

// compareDotted handles version shapes semver rejects, such as four or more
// components. Components compare left-to-right as integers.
func compareDotted(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "v"), ".")
	bs := strings.Split(strings.TrimPrefix(b, "v"), ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}

	for i := 0; i < n; i++ {
		var ai, bi int
		if i < len(as) {
			ai, _ = strconv.Atoi(strings.TrimSpace(as[i]))
		}
		if i < len(bs) {
			bi, _ = strconv.Atoi(strings.TrimSpace(bs[i]))
		}
		if ai != bi {
			if ai > bi {
				return 1
			}
			return -1
		}
	}
	return 0
}
