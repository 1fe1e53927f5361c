package block

import (
	"crypto/sha256"
	"encoding/hex"
)

// MerkleRoot folds hex hashes pairwise with sha256 until one remains. An odd node is paired with
// itself. It returns "" for no hashes.
func MerkleRoot(hashes []string) string {
	n := len(hashes)
	if n == 0 {
		return ""
	}
	level := append([]string(nil), hashes...)
	for n > 1 {
		next := make([]string, 0, (n+1)/2)
		for i := 0; i < n; i += 2 {
			j := i + 1
			if j == n {
				j = i
			}
			h := sha256.New()
			h.Write([]byte(level[i]))
			h.Write([]byte(level[j]))
			next = append(next, hex.EncodeToString(h.Sum(nil)))
		}
		level = next
		n = len(level)
	}
	return level[0]
}
