package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// GenerateETag derives a weak validator from the JSON form of v. Pot totals
// change without touching any updated_at, so the body itself is hashed.
func GenerateETag(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return `W/"` + hex.EncodeToString(sum[:16]) + `"`
}
