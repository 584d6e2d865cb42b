package utils

import (
	"crypto/md5"
	"fmt"
)

// Fingerprint hashes an ordered list of strings. Order matters and element
// boundaries are preserved, so ["ab","c"] and ["a","bc"] differ.
func Fingerprint(parts []string) string {
	h := md5.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s;", len(p), p)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
