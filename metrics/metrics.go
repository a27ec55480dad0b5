// Package metrics exposes Prometheus collectors for the tier engine, the
// page eviction manager, and the process-wide LRU caches (prepared
// statements, pattern compilation). Packages that want to be observed take
// these package-level vars as direct dependencies rather than threading a
// registry handle through every constructor: a var block of collectors
// registered once at package init, read by a /metrics handler an operator
// wires up separately.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TierPlacements counts Engine.Put calls by the tier they landed in.
	TierPlacements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actorfs_tier_placements_total",
			Help: "Total number of blob placements by destination tier",
		},
		[]string{"tier"},
	)

	// TierMigrations counts Engine.Get promotions and RunMigration
	// demotions by source and destination tier.
	TierMigrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actorfs_tier_migrations_total",
			Help: "Total number of blob tier migrations by source and destination tier",
		},
		[]string{"from", "to"},
	)

	// TierBytes tracks GetStats' per-tier total_size as a gauge, refreshed
	// on demand rather than on every write (the stats query itself is the
	// source of truth; this just exports the last-read snapshot).
	TierBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "actorfs_tier_bytes",
			Help: "Total bytes resident in each tier as of the last GetStats call",
		},
		[]string{"tier"},
	)

	// PageEvictions counts pages moved from hot to cold by the eviction
	// manager, per run.
	PageEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "actorfs_page_evictions_total",
			Help: "Total number of pages evicted from the hot tier to cold storage",
		},
	)

	// PageEvictionDuration times a single Eviction.RunEviction pass.
	PageEvictionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "actorfs_page_eviction_duration_seconds",
			Help:    "Time taken for one eviction pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	// StmtCacheHitRatio mirrors stmtcache.Stats.HitRatio as a gauge,
	// refreshed whenever a caller reports a Stats snapshot.
	StmtCacheHitRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "actorfs_stmtcache_hit_ratio",
			Help: "Prepared-statement cache hit ratio, refreshed on report",
		},
	)

	// StmtCacheEvictions mirrors stmtcache.Stats.Evictions as a gauge
	// (the cache itself already counts evictions monotonically; this
	// tracks the last reported total rather than double-counting).
	StmtCacheEvictions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "actorfs_stmtcache_evictions_total",
			Help: "Total prepared-statement cache evictions as of the last report",
		},
	)

	// PatternCacheHitRatio mirrors pattern.CacheStats.HitRate.
	PatternCacheHitRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "actorfs_pattern_cache_hit_ratio",
			Help: "Gitignore-style pattern compile cache hit ratio, refreshed on report",
		},
	)
)

func init() {
	prometheus.MustRegister(TierPlacements)
	prometheus.MustRegister(TierMigrations)
	prometheus.MustRegister(TierBytes)
	prometheus.MustRegister(PageEvictions)
	prometheus.MustRegister(PageEvictionDuration)
	prometheus.MustRegister(StmtCacheHitRatio)
	prometheus.MustRegister(StmtCacheEvictions)
	prometheus.MustRegister(PatternCacheHitRatio)
}

// ReportStmtCache publishes a stmtcache.Stats-shaped snapshot. Takes the
// raw numbers rather than importing stmtcache, so stmtcache (a low-level
// package used by metadata/branch) never needs to depend on this one.
func ReportStmtCache(hitRatio float64, evictions int64) {
	StmtCacheHitRatio.Set(hitRatio)
	StmtCacheEvictions.Set(float64(evictions))
}

// ReportPatternCache publishes a pattern.CacheStats-shaped snapshot.
func ReportPatternCache(hitRatio float64) {
	PatternCacheHitRatio.Set(hitRatio)
}
