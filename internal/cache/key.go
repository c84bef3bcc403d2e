package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key derives the cache key of one invocation. Arguments are encoded as
// canonical JSON, which sorts object keys at every depth, so two argument
// maps with the same pairs yield the same key. A nil map and an empty map
// are the same arguments.
func Key(op, tenant string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}

	canonical, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode cache key arguments: %w", err)
	}

	return op + ":" + tenant + ":" + HashKey(string(canonical)), nil
}

// HashKey hashes a key to a fixed length.
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
