package domain

import "strings"

const diskSuffix = "_Disk"

// SiteTier returns the tier encoded in the site name prefix (T0_..T3_), or -1.
func SiteTier(name string) int {
	if len(name) < 3 || name[0] != 'T' || name[2] != '_' {
		return -1
	}
	if name[1] < '0' || name[1] > '3' {
		return -1
	}
	return int(name[1] - '0')
}

// DiskEndpoint returns the disk storage endpoint of a tier-1 site.
// Other sites have a single endpoint and are returned unchanged.
func DiskEndpoint(site string) string {
	if SiteTier(site) != 1 || strings.HasSuffix(site, diskSuffix) {
		return site
	}
	return site + diskSuffix
}
