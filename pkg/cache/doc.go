// Package cache implements the rollup cache that fronts aggregate queries.
//
// Two backends satisfy Cache: RedisCache for shared deployments and
// MemoryCache, an LRU with clock-driven expiry, for a single replica or tests.
//
// Keys and TTLs:
//
//	metrics:<provider>:<date>:<counter>   day counters, expire at day start + 25h
//	metrics-summary:<date>                daily platform summary, 1h
//	metrics-summary:hourly:<date>T<hh>    hourly platform summary, 1h
//	top-providers:<date>                  top providers by conversions, 1h
//	metrics-summary:weekly:<year>-W<ww>   weekly summary, 6h
//	metrics-summary:monthly:<yyyy-mm>     monthly summary, 12h
//	metrics-throttle:<provider>           last recompute time
//
// Entries are safe to lose. Readers treat a miss as a signal to recompute.
package cache
