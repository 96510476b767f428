// ABOUTME: Client version gate for agent handshakes.
// ABOUTME: Compares major.minor.patch[bN] strings component-wise.

// Package version implements the agent client version gate.
//
// Versions follow "major.minor.patch" with an optional "bN" beta suffix,
// for example "2.7.2" or "2.8.0b1". Comparison is component-wise with the
// beta index defaulting to 0, so "2.7.2b0" equals "2.7.2". A leading "v"
// is tolerated. Malformed components compare as 0 rather than erroring;
// the gate's job is to reject old clients, not to validate strings.
package version

import "strings"

// AtLeast reports whether current satisfies the given minimum version.
func AtLeast(current, minimum string) bool {
	return Compare(current, minimum) >= 0
}

// Compare returns -1, 0 or 1 ordering two version strings component-wise.
// Missing components compare as 0.
func Compare(a, b string) int {
	av, bv := components(a), components(b)
	n := len(av)
	if len(bv) > n {
		n = len(bv)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(av) {
			x = av[i]
		}
		if i < len(bv) {
			y = bv[i]
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

// components splits "v2.8.0b1" into [2 8 0 1]. The beta marker is treated
// as one more dot, matching how agents format their versions.
func components(s string) []int {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	s = strings.ReplaceAll(s, "b", ".")
	parts := strings.Split(s, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		out[i] = atoiOrZero(p)
	}
	return out
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
