package redis

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// KeyPrefixQuota is the prefix for per-user-per-day quota counters
	KeyPrefixQuota = "cowrite:quota:"
	// KeyPrefixEvidence is the prefix for cached search results
	KeyPrefixEvidence = "cowrite:evidence:"
	// KeyPrefixStats is the prefix for per-user-per-day outcome hashes
	KeyPrefixStats = "cowrite:stats:"
)

// QuotaKey returns the Redis key for a user's quota day
func QuotaKey(userID, date string) string {
	return KeyPrefixQuota + userID + ":" + date
}

// EvidenceKey returns the Redis key for a cached query. The query is
// normalised and hashed so arbitrary draft text stays out of key names.
func EvidenceKey(query string, k int) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return fmt.Sprintf("%s%d:%s", KeyPrefixEvidence, k, hex.EncodeToString(sum[:]))
}

// StatsKey returns the Redis key for a user's outcome counters
func StatsKey(userID, date string) string {
	return KeyPrefixStats + userID + ":" + date
}

// ExtractQuotaOwner splits a quota key back into user and date
func ExtractQuotaOwner(key string) (userID, date string, err error) {
	if !strings.HasPrefix(key, KeyPrefixQuota) {
		return "", "", fmt.Errorf("invalid quota key: %s", key)
	}
	rest := key[len(KeyPrefixQuota):]
	i := strings.LastIndex(rest, ":")
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("invalid quota key: %s", key)
	}
	return rest[:i], rest[i+1:], nil
}
