// Package blobtier implements the hot/warm/cold placement and migration
// policy: small blobs and page-chunked large blobs
// live in the embedded row store (hot); everything else lives in an
// external bucket, split between a main working-set bucket (warm) and an
// archival bucket (cold) that may physically alias the warm bucket.
package blobtier

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"actorfs/config"
	"actorfs/errs"
	"actorfs/metrics"
	"actorfs/pagestore"
	"actorfs/storage"
)

// Tier names, used both as config.Options.* thresholds keys and as the
// x-tier metadata value stored on bucket objects.
const (
	Hot  = "hot"
	Warm = "warm"
	Cold = "cold"
)

// PutResult is the envelope returned by every placement operation: the
// tier the data landed in, plus migration provenance when a move happened.
type PutResult struct {
	Tier         string
	Migrated     bool
	PreviousTier string
	Size         int64
	ETag         string
}

// GetResult extends PutResult with the fetched bytes; Found is false when
// the key is absent from every tier.
type GetResult struct {
	PutResult
	Found bool
	Data  []byte
}

// TierStats is one row of Engine.GetStats.
type TierStats struct {
	Count     int64
	TotalSize int64
}

// Engine is the blob tier engine. A nil warmBucket disables the warm tier
// (placement falls back to hot; migration to warm is a no-op). A nil
// coldBucket makes the cold tier share the warm bucket; with both nil,
// placement on and migration to cold behave as for warm.
type Engine struct {
	db         storage.RowStore
	pages      *pagestore.Store
	warm       storage.BucketDriver
	cold       storage.BucketDriver
	compressor *Compressor
	opts       config.Options
	log        zerolog.Logger
	ready      bool
}

// New builds an Engine. warmBucket and/or coldBucket may be nil. A payload
// compressor for bucket writes is attached automatically when
// opts.ColdCompression names a codec; WithCompressor overrides it.
func New(db storage.RowStore, pages *pagestore.Store, warmBucket, coldBucket storage.BucketDriver, opts config.Options, logger zerolog.Logger) *Engine {
	e := &Engine{db: db, pages: pages, warm: warmBucket, cold: coldBucket, opts: opts, log: logger}
	if c := Codec(opts.ColdCompression); c != "" && c != CodecNone {
		e.compressor = NewCompressor(c, opts.ColdCompressionMinSize)
	}
	return e
}

// WithCompressor attaches the optional bucket-payload compressor.
func (e *Engine) WithCompressor(c *Compressor) *Engine {
	e.compressor = c
	return e
}

func (e *Engine) ensureSchema(ctx context.Context) error {
	if e.ready {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS hot_blobs (
			key TEXT PRIMARY KEY, data BLOB NOT NULL, size INTEGER NOT NULL, created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS hot_blob_pages (
			key TEXT PRIMARY KEY, page_keys TEXT NOT NULL, size INTEGER NOT NULL, created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tiered_access_metadata (
			key TEXT PRIMARY KEY, tier TEXT NOT NULL, last_access INTEGER NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0, size INTEGER NOT NULL, created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tam_tier ON tiered_access_metadata(tier)`,
		`CREATE INDEX IF NOT EXISTS idx_tam_last_access ON tiered_access_metadata(last_access)`,
	}
	for _, stmt := range stmts {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return errs.Wrap(errs.EINVAL, "", err)
		}
	}
	e.ready = true
	return nil
}

// choosePlacementTier implements the size-based default placement policy.
func (e *Engine) choosePlacementTier(size int64, override string) string {
	if override != "" {
		if (override == Warm || override == Cold) && e.bucketFor(override) == nil {
			return Hot
		}
		return override
	}
	if size <= e.opts.HotMaxSize {
		return Hot
	}
	if e.warm != nil {
		return Warm
	}
	return Hot
}

func (e *Engine) bucketFor(tier string) storage.BucketDriver {
	switch tier {
	case Warm:
		return e.warm
	case Cold:
		if e.cold != nil {
			return e.cold
		}
		return e.warm
	default:
		return nil
	}
}

// Put writes data under key, selecting hot/warm/cold per the size-based
// policy unless tierOverride is non-empty.
func (e *Engine) Put(ctx context.Context, key string, data []byte, tierOverride, contentType string) (PutResult, error) {
	if err := e.ensureSchema(ctx); err != nil {
		return PutResult{}, err
	}

	tier := e.choosePlacementTier(int64(len(data)), tierOverride)
	now := storage.NowMillis()

	if err := e.purgeOtherTiers(ctx, key, tier); err != nil {
		return PutResult{}, err
	}

	etag, err := e.writeToTier(ctx, tier, key, data, contentType, now)
	if err != nil {
		return PutResult{}, err
	}

	if err := e.upsertAccess(ctx, key, tier, now, 0, int64(len(data))); err != nil {
		return PutResult{}, err
	}

	metrics.TierPlacements.WithLabelValues(tier).Inc()
	return PutResult{Tier: tier, Size: int64(len(data)), ETag: etag}, nil
}

func (e *Engine) writeToTier(ctx context.Context, tier, key string, data []byte, contentType string, now int64) (string, error) {
	switch tier {
	case Hot:
		return "", e.writeHot(ctx, key, data, now)
	case Warm, Cold:
		bucket := e.bucketFor(tier)
		if bucket == nil {
			return "", e.writeHot(ctx, key, data, now)
		}
		payload, codec, origSize, err := e.maybeCompress(data, contentType)
		if err != nil {
			return "", err
		}
		meta := storage.ObjectMeta{
			Tier: tier, LastAccess: now, AccessCount: 0, CreatedAt: now,
			ContentType: contentType,
		}
		if codec != "" {
			meta.Encoding = fmt.Sprintf("codec=%s;orig=%d", codec, origSize)
		}
		res, err := bucket.Put(ctx, key, payload, meta)
		if err != nil {
			return "", errs.Wrap(errs.EINVAL, key, err)
		}
		return res.ETag, nil
	default:
		return "", errs.New(errs.EINVAL, key, "unknown tier "+tier)
	}
}

func (e *Engine) writeHot(ctx context.Context, key string, data []byte, now int64) error {
	if int64(len(data)) > pagestore.PageSize {
		keys, err := e.pages.WritePages(ctx, key, data)
		if err != nil {
			return err
		}
		_, err = e.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO hot_blob_pages(key, page_keys, size, created_at) VALUES (?, ?, ?, ?)`,
			key, strings.Join(keys, ","), len(data), now)
		if err != nil {
			return errs.Wrap(errs.EINVAL, key, err)
		}
		return nil
	}
	_, err := e.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO hot_blobs(key, data, size, created_at) VALUES (?, ?, ?, ?)`,
		key, data, len(data), now)
	if err != nil {
		return errs.Wrap(errs.EINVAL, key, err)
	}
	return nil
}

// purgeOtherTiers removes any existing copy of key outside the tier being
// written, so a re-Put never leaves a stale duplicate behind.
func (e *Engine) purgeOtherTiers(ctx context.Context, key, keepTier string) error {
	if keepTier != Hot {
		if _, err := e.db.ExecContext(ctx, `DELETE FROM hot_blobs WHERE key = ?`, key); err != nil {
			return errs.Wrap(errs.EINVAL, key, err)
		}
		if _, err := e.db.ExecContext(ctx, `DELETE FROM hot_blob_pages WHERE key = ?`, key); err != nil {
			return errs.Wrap(errs.EINVAL, key, err)
		}
	}
	if keepTier != Warm && e.warm != nil {
		_ = e.warm.Delete(ctx, key)
	}
	if keepTier != Cold && e.cold != nil && e.cold.Identity() != e.warmIdentity() {
		_ = e.cold.Delete(ctx, key)
	}
	return nil
}

func (e *Engine) warmIdentity() string {
	if e.warm == nil {
		return ""
	}
	return e.warm.Identity()
}

func (e *Engine) upsertAccess(ctx context.Context, key, tier string, lastAccess, accessCount, size int64) error {
	_, err := e.db.ExecContext(ctx,
		`INSERT INTO tiered_access_metadata(key, tier, last_access, access_count, size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET tier=excluded.tier, last_access=excluded.last_access,
		   access_count=excluded.access_count, size=excluded.size`,
		key, tier, lastAccess, accessCount, size, lastAccess)
	if err != nil {
		return errs.Wrap(errs.EINVAL, key, err)
	}
	return nil
}

type accessRow struct {
	tier        string
	lastAccess  int64
	accessCount int64
	size        int64
	createdAt   int64
}

func (e *Engine) readAccess(ctx context.Context, key string) (*accessRow, error) {
	var r accessRow
	err := e.db.QueryRowContext(ctx,
		`SELECT tier, last_access, access_count, size, created_at FROM tiered_access_metadata WHERE key = ?`, key).
		Scan(&r.tier, &r.lastAccess, &r.accessCount, &r.size, &r.createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Wrap(errs.EINVAL, key, err)
	}
	return &r, nil
}

// Get probes hot, then warm, then cold, updating access stats and applying
// the promotion policy on hit.
func (e *Engine) Get(ctx context.Context, key string) (GetResult, error) {
	if err := e.ensureSchema(ctx); err != nil {
		return GetResult{}, err
	}

	if data, found, err := e.readHot(ctx, key); err != nil {
		return GetResult{}, err
	} else if found {
		if err := e.bumpAccess(ctx, key, Hot); err != nil {
			return GetResult{}, err
		}
		return GetResult{PutResult: PutResult{Tier: Hot, Size: int64(len(data))}, Found: true, Data: data}, nil
	}

	visited := map[string]bool{}
	for _, tier := range []string{Warm, Cold} {
		bucket := e.bucketFor(tier)
		if bucket == nil || visited[bucket.Identity()] {
			continue
		}
		visited[bucket.Identity()] = true

		res, err := bucket.Get(ctx, key, nil)
		if err != nil {
			return GetResult{}, errs.Wrap(errs.EINVAL, key, err)
		}
		if !res.Found {
			continue
		}
		data, err := e.maybeDecompress(res.Data, res.Meta)
		if err != nil {
			return GetResult{}, err
		}
		return e.onBucketHit(ctx, key, tier, data)
	}

	return GetResult{Found: false}, nil
}

func (e *Engine) readHot(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := e.db.QueryRowContext(ctx, `SELECT data FROM hot_blobs WHERE key = ?`, key).Scan(&data)
	if err == nil {
		return data, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, errs.Wrap(errs.EINVAL, key, err)
	}

	var joined string
	err = e.db.QueryRowContext(ctx, `SELECT page_keys FROM hot_blob_pages WHERE key = ?`, key).Scan(&joined)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.EINVAL, key, err)
	}
	data, err = e.pages.ReadPages(ctx, strings.Split(joined, ","))
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (e *Engine) onBucketHit(ctx context.Context, key, tier string, data []byte) (GetResult, error) {
	now := storage.NowMillis()
	access, err := e.readAccess(ctx, key)
	if err != nil {
		return GetResult{}, err
	}
	accessCount := int64(1)
	createdAt := now
	if access != nil {
		accessCount = access.accessCount + 1
		createdAt = access.createdAt
	}

	ageDays := float64(now-createdAt) / float64(24*60*60*1000)
	result := GetResult{PutResult: PutResult{Tier: tier, Size: int64(len(data))}, Found: true, Data: data}

	if e.opts.AutoPromote && tier != Hot {
		promote := ageDays < float64(e.opts.HotMaxAgeDays) ||
			(accessCount > 5 && ageDays < float64(e.opts.WarmMaxAgeDays))
		if promote {
			target := Warm
			if tier == Warm {
				target = Hot
			}
			if err := e.migrateOne(ctx, key, tier, target, data); err != nil {
				return GetResult{}, err
			}
			metrics.TierMigrations.WithLabelValues(tier, target).Inc()
			result.Tier = target
			result.Migrated = true
			result.PreviousTier = tier
			if err := e.upsertAccess(ctx, key, target, now, accessCount, int64(len(data))); err != nil {
				return GetResult{}, err
			}
			return result, nil
		}
	}

	if err := e.upsertAccess(ctx, key, tier, now, accessCount, int64(len(data))); err != nil {
		return GetResult{}, err
	}
	return result, nil
}

func (e *Engine) bumpAccess(ctx context.Context, key, tier string) error {
	now := storage.NowMillis()
	access, err := e.readAccess(ctx, key)
	if err != nil {
		return err
	}
	count := int64(1)
	var size int64
	if access != nil {
		count = access.accessCount + 1
		size = access.size
	}
	return e.upsertAccess(ctx, key, tier, now, count, size)
}

// migrateOne moves data's physical location from src to dst, writing the
// new copy before removing the old one (never the reverse), then purges
// the original location when the two tiers are not the same physical
// bucket.
func (e *Engine) migrateOne(ctx context.Context, key, src, dst string, data []byte) error {
	if _, err := e.writeToTier(ctx, dst, key, data, "", storage.NowMillis()); err != nil {
		return err
	}
	srcBucket := e.bucketFor(src)
	dstBucket := e.bucketFor(dst)
	sameBucket := srcBucket != nil && dstBucket != nil && srcBucket.Identity() == dstBucket.Identity()
	if sameBucket {
		return nil
	}
	if src == Hot {
		if _, err := e.db.ExecContext(ctx, `DELETE FROM hot_blobs WHERE key = ?`, key); err != nil {
			return errs.Wrap(errs.EINVAL, key, err)
		}
		var joined string
		err := e.db.QueryRowContext(ctx, `SELECT page_keys FROM hot_blob_pages WHERE key = ?`, key).Scan(&joined)
		if err == nil {
			_ = e.pages.DeletePages(ctx, strings.Split(joined, ","))
		}
		if _, err := e.db.ExecContext(ctx, `DELETE FROM hot_blob_pages WHERE key = ?`, key); err != nil {
			return errs.Wrap(errs.EINVAL, key, err)
		}
		return nil
	}
	if srcBucket != nil {
		return srcBucket.Delete(ctx, key)
	}
	return nil
}

// readFromTier fetches key's bytes from one specific tier, without the
// access bookkeeping or promotion side effects of Get.
func (e *Engine) readFromTier(ctx context.Context, key, tier string) ([]byte, bool, error) {
	if tier == Hot {
		return e.readHot(ctx, key)
	}
	bucket := e.bucketFor(tier)
	if bucket == nil {
		return nil, false, nil
	}
	res, err := bucket.Get(ctx, key, nil)
	if err != nil {
		return nil, false, errs.Wrap(errs.EINVAL, key, err)
	}
	if !res.Found {
		return nil, false, nil
	}
	data, err := e.maybeDecompress(res.Data, res.Meta)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// GetRange performs a ranged read without loading the full object where the
// backing tier supports it.
func (e *Engine) GetRange(ctx context.Context, key string, start int64, end *int64) ([]byte, bool, error) {
	if err := e.ensureSchema(ctx); err != nil {
		return nil, false, err
	}

	var joined string
	err := e.db.QueryRowContext(ctx, `SELECT page_keys FROM hot_blob_pages WHERE key = ?`, key).Scan(&joined)
	if err == nil {
		keys := strings.Split(joined, ",")
		length := int64(0)
		if end != nil {
			length = *end - start
		} else {
			size, sErr := e.pages.SizeOf(ctx, keys)
			if sErr != nil {
				return nil, false, sErr
			}
			length = size - start
		}
		data, rErr := e.pages.ReadRange(ctx, keys, start, length)
		if rErr != nil {
			return nil, false, rErr
		}
		return data, true, e.bumpAccess(ctx, key, Hot)
	}
	if err != sql.ErrNoRows {
		return nil, false, errs.Wrap(errs.EINVAL, key, err)
	}

	if data, found, hErr := e.readHot(ctx, key); hErr == nil && found {
		return sliceRange(data, start, end), true, e.bumpAccess(ctx, key, Hot)
	}

	visited := map[string]bool{}
	for _, tier := range []string{Warm, Cold} {
		bucket := e.bucketFor(tier)
		if bucket == nil || visited[bucket.Identity()] {
			continue
		}
		visited[bucket.Identity()] = true
		objMeta, found, hErr := bucket.Head(ctx, key)
		if hErr != nil {
			return nil, false, hErr
		}
		if !found {
			continue
		}
		// A byte range of a compressed stream is useless to the caller
		// (and the requested span may exceed the compressed length), so a
		// compressed object is read whole, decompressed, then sliced.
		if objMeta.Encoding != "" {
			full, fErr := bucket.Get(ctx, key, nil)
			if fErr != nil {
				return nil, false, fErr
			}
			data, dErr := e.maybeDecompress(full.Data, full.Meta)
			if dErr != nil {
				return nil, false, dErr
			}
			return sliceRange(data, start, end), true, e.bumpAccess(ctx, key, tier)
		}
		res, gErr := bucket.Get(ctx, key, &storage.ByteRange{Start: start, End: end})
		if gErr != nil {
			return nil, false, gErr
		}
		if !res.Found {
			continue
		}
		return res.Data, true, e.bumpAccess(ctx, key, tier)
	}
	return nil, false, nil
}

func sliceRange(data []byte, start int64, end *int64) []byte {
	if start > int64(len(data)) {
		return nil
	}
	e := int64(len(data))
	if end != nil && *end < e {
		e = *end
	}
	return data[start:e]
}

// Head reports key's access-metadata record (tier, last access, access
// count, creation time) without reading the blob from any tier.
func (e *Engine) Head(ctx context.Context, key string) (*storage.ObjectMeta, bool, error) {
	if err := e.ensureSchema(ctx); err != nil {
		return nil, false, err
	}
	access, err := e.readAccess(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if access != nil {
		return &storage.ObjectMeta{
			Tier: access.tier, LastAccess: access.lastAccess,
			AccessCount: access.accessCount, CreatedAt: access.createdAt,
		}, true, nil
	}
	return nil, false, nil
}

// Exists is a dedup-aware existence probe across tiers.
func (e *Engine) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := e.Head(ctx, key)
	return found, err
}

// Delete removes key from every tier and purges its access metadata.
func (e *Engine) Delete(ctx context.Context, key string) error {
	if err := e.ensureSchema(ctx); err != nil {
		return err
	}
	if _, err := e.db.ExecContext(ctx, `DELETE FROM hot_blobs WHERE key = ?`, key); err != nil {
		return errs.Wrap(errs.EINVAL, key, err)
	}
	var joined string
	err := e.db.QueryRowContext(ctx, `SELECT page_keys FROM hot_blob_pages WHERE key = ?`, key).Scan(&joined)
	if err == nil {
		_ = e.pages.DeletePages(ctx, strings.Split(joined, ","))
	}
	if _, err := e.db.ExecContext(ctx, `DELETE FROM hot_blob_pages WHERE key = ?`, key); err != nil {
		return errs.Wrap(errs.EINVAL, key, err)
	}
	if e.warm != nil {
		_ = e.warm.Delete(ctx, key)
	}
	if e.cold != nil && e.cold.Identity() != e.warmIdentity() {
		_ = e.cold.Delete(ctx, key)
	}
	if _, err := e.db.ExecContext(ctx, `DELETE FROM tiered_access_metadata WHERE key = ?`, key); err != nil {
		return errs.Wrap(errs.EINVAL, key, err)
	}
	return nil
}

// DeleteMany deletes each key; a missing key is not an error.
func (e *Engine) DeleteMany(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := e.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Promote moves key up to target ('hot' or 'warm'); a no-op if it is
// already at or above target.
func (e *Engine) Promote(ctx context.Context, key, target string) (PutResult, error) {
	return e.retier(ctx, key, target, true)
}

// Demote moves key down to target ('warm' or 'cold'); a no-op if it is
// already at or below target.
func (e *Engine) Demote(ctx context.Context, key, target string) (PutResult, error) {
	return e.retier(ctx, key, target, false)
}

var tierRank = map[string]int{Hot: 2, Warm: 1, Cold: 0}

func (e *Engine) retier(ctx context.Context, key, target string, up bool) (PutResult, error) {
	access, err := e.readAccess(ctx, key)
	if err != nil {
		return PutResult{}, err
	}
	if access == nil {
		return PutResult{}, errs.New(errs.ENOENT, key, "")
	}
	if up && tierRank[access.tier] >= tierRank[target] {
		return PutResult{Tier: access.tier}, nil
	}
	if !up && tierRank[access.tier] <= tierRank[target] {
		return PutResult{Tier: access.tier}, nil
	}
	if target != Hot && e.bucketFor(target) == nil {
		return PutResult{Tier: access.tier}, nil
	}

	// Read the bytes straight from the current tier rather than through
	// Get, whose promotion policy could move the blob mid-retier.
	data, found, err := e.readFromTier(ctx, key, access.tier)
	if err != nil {
		return PutResult{}, err
	}
	if !found {
		return PutResult{}, errs.New(errs.ENOENT, key, "")
	}
	if err := e.migrateOne(ctx, key, access.tier, target, data); err != nil {
		return PutResult{}, err
	}
	if err := e.upsertAccess(ctx, key, target, storage.NowMillis(), access.accessCount, access.size); err != nil {
		return PutResult{}, err
	}
	metrics.TierMigrations.WithLabelValues(access.tier, target).Inc()
	return PutResult{Tier: target, Migrated: true, PreviousTier: access.tier}, nil
}

// GetStats returns per-tier {count, total_size}.
func (e *Engine) GetStats(ctx context.Context) (map[string]TierStats, error) {
	if err := e.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := e.db.QueryContext(ctx,
		`SELECT tier, COUNT(*), COALESCE(SUM(size), 0) FROM tiered_access_metadata GROUP BY tier`)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, "", err)
	}
	defer rows.Close()

	out := map[string]TierStats{}
	for rows.Next() {
		var tier string
		var st TierStats
		if err := rows.Scan(&tier, &st.Count, &st.TotalSize); err != nil {
			return nil, errs.Wrap(errs.EINVAL, "", err)
		}
		out[tier] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for tier, st := range out {
		metrics.TierBytes.WithLabelValues(tier).Set(float64(st.TotalSize))
	}
	return out, nil
}

// ListByTier lists keys currently attributed to tier, sourced from the
// access-metadata table (for hot) or the tier's bucket (for warm/cold).
func (e *Engine) ListByTier(ctx context.Context, tier string, opts storage.ListOptions) (storage.ListResult, error) {
	if err := e.ensureSchema(ctx); err != nil {
		return storage.ListResult{}, err
	}
	if tier == Hot {
		rows, err := e.db.QueryContext(ctx,
			`SELECT key FROM tiered_access_metadata WHERE tier = ? AND key LIKE ? ORDER BY key LIMIT ?`,
			tier, opts.Prefix+"%", limitOrDefault(opts.Limit))
		if err != nil {
			return storage.ListResult{}, errs.Wrap(errs.EINVAL, "", err)
		}
		defer rows.Close()
		var keys []string
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				return storage.ListResult{}, errs.Wrap(errs.EINVAL, "", err)
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return storage.ListResult{Keys: keys}, rows.Err()
	}
	bucket := e.bucketFor(tier)
	if bucket == nil {
		return storage.ListResult{}, nil
	}
	return bucket.List(ctx, opts)
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return 1000
	}
	return n
}

// MigrationReport is returned by RunMigration.
type MigrationReport struct {
	DemotedHotToWarm int
	DemotedWarmToCold int
	DryRun            bool
}

// RunMigration performs the age-based demotion sweep: hot blobs
// older than hotMaxAgeDays move to warm, then warm blobs older than
// warmMaxAgeDays move to cold, each up to limit.
func (e *Engine) RunMigration(ctx context.Context, limit int, dryRun bool) (MigrationReport, error) {
	if err := e.ensureSchema(ctx); err != nil {
		return MigrationReport{}, err
	}
	now := storage.NowMillis()
	report := MigrationReport{DryRun: dryRun}

	hotCutoff := now - int64(e.opts.HotMaxAgeDays)*24*60*60*1000
	warmCutoff := now - int64(e.opts.WarmMaxAgeDays)*24*60*60*1000

	hotKeys, err := e.staleKeys(ctx, Hot, hotCutoff, limit)
	if err != nil {
		return report, err
	}
	for _, k := range hotKeys {
		if dryRun {
			report.DemotedHotToWarm++
			continue
		}
		if _, err := e.Demote(ctx, k, Warm); err != nil {
			return report, err
		}
		report.DemotedHotToWarm++
	}

	warmKeys, err := e.staleKeys(ctx, Warm, warmCutoff, limit)
	if err != nil {
		return report, err
	}
	for _, k := range warmKeys {
		if dryRun {
			report.DemotedWarmToCold++
			continue
		}
		if _, err := e.Demote(ctx, k, Cold); err != nil {
			return report, err
		}
		report.DemotedWarmToCold++
	}

	return report, nil
}

func (e *Engine) staleKeys(ctx context.Context, tier string, cutoff int64, limit int) ([]string, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT key FROM tiered_access_metadata WHERE tier = ? AND last_access < ? ORDER BY last_access ASC LIMIT ?`,
		tier, cutoff, limitOrDefault(limit))
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, "", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errs.Wrap(errs.EINVAL, "", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
