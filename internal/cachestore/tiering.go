package cachestore

import "time"

// Freshness thresholds for the iceberg tiering policy.
const (
	// FrozenAge: sessions older than this never change again in practice;
	// their cache entries are served without revalidation.
	FrozenAge = 30 * 24 * time.Hour

	// WarmTTL: terminal sessions are trusted this long after their last
	// sync before a revalidating fetch.
	WarmTTL = 24 * time.Hour
)

// Tier classifies a cache entry's freshness.
type Tier string

const (
	TierFrozen Tier = "frozen"
	TierWarm   Tier = "warm"
	TierHot    Tier = "hot"
)

// TierOf classifies the entry. Nil classifies as hot: the caller has
// nothing usable and must hit the network.
func TierOf(cached *CachedSession, now time.Time) Tier {
	if cached == nil {
		return TierHot
	}
	if now.Sub(cached.Resource.CreateTime) > FrozenAge {
		return TierFrozen
	}
	if cached.Resource.State.Terminal() && now.Sub(cached.LastSyncedAt) < WarmTTL {
		return TierWarm
	}
	return TierHot
}

// IsCacheValid reports whether a read may be served from the cache
// without a network fetch.
func IsCacheValid(cached *CachedSession, now time.Time) bool {
	return TierOf(cached, now) != TierHot
}
