package blobtier

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"actorfs/config"
	"actorfs/errs"
	"actorfs/metrics"
	"actorfs/pagestore"
	"actorfs/storage"
)

// page tier tags for the eviction subsystem: "warm" while the page row is
// resident in the embedded store, "cold" once evicted to the external
// bucket. These intentionally reuse the blob-tier vocabulary but describe a
// different axis (page residency, not blob placement).
const (
	PageResident = "warm"
	PageEvicted  = "cold"
)

// PageRecord is one row of the page index the eviction manager consults.
type PageRecord struct {
	PageKey      string
	BlobID       string
	PageIndex    int
	Tier         string
	LastAccessAt int64
}

// PageIndex is the per-page bookkeeping collaborator (implemented by the
// metadata store's page_metadata table) that the eviction manager reads and
// updates. It knows nothing about bytes -- only tier and recency.
type PageIndex interface {
	CountTier(ctx context.Context, tier string) (int, error)
	ColdestResident(ctx context.Context, limit int) ([]PageRecord, error)
	SetTier(ctx context.Context, pageKey, tier string) error
	Touch(ctx context.Context, pageKey string, now int64) error
}

// Eviction runs the hot-page LRU eviction policy: pages tagged
// resident ("warm") are moved to the cold bucket once the resident count
// crosses evictionThreshold*maxHotPages, down to evictionTarget*maxHotPages.
type Eviction struct {
	index  PageIndex
	pages  *pagestore.Store
	cold   storage.BucketDriver
	opts   config.Options
	log    zerolog.Logger
}

// NewEviction builds an Eviction manager. cold must be non-nil for
// RunEviction to do anything useful.
func NewEviction(index PageIndex, pages *pagestore.Store, cold storage.BucketDriver, opts config.Options, logger zerolog.Logger) *Eviction {
	return &Eviction{index: index, pages: pages, cold: cold, opts: opts, log: logger}
}

// ShouldEvict reports whether the resident-page count has crossed
// evictionThreshold * maxHotPages.
func (ev *Eviction) ShouldEvict(ctx context.Context) (bool, error) {
	n, err := ev.index.CountTier(ctx, PageResident)
	if err != nil {
		return false, err
	}
	threshold := ev.opts.EvictionThreshold * float64(ev.opts.MaxHotPages)
	return float64(n) >= threshold, nil
}

// EvictionReport summarizes one RunEviction pass.
type EvictionReport struct {
	Evicted int
	Target  int
	Before  int
}

// RunEviction evicts the coldest resident pages down to evictionTarget *
// maxHotPages, using the safe-eviction sequence: write to cold,
// retag, then delete the hot row -- never the reverse, so a crash between
// steps leaves a recoverable duplicate rather than a lost page.
func (ev *Eviction) RunEviction(ctx context.Context) (EvictionReport, error) {
	start := time.Now()
	defer func() { metrics.PageEvictionDuration.Observe(time.Since(start).Seconds()) }()

	before, err := ev.index.CountTier(ctx, PageResident)
	if err != nil {
		return EvictionReport{}, err
	}
	target := int(ev.opts.EvictionTarget * float64(ev.opts.MaxHotPages))
	report := EvictionReport{Before: before, Target: target}
	if before <= target {
		return report, nil
	}

	toEvict := before - target
	victims, err := ev.index.ColdestResident(ctx, toEvict)
	if err != nil {
		return report, err
	}

	for _, page := range victims {
		if err := ev.evictOne(ctx, page); err != nil {
			return report, err
		}
		report.Evicted++
		metrics.PageEvictions.Inc()
	}
	return report, nil
}

func (ev *Eviction) evictOne(ctx context.Context, page PageRecord) error {
	if ev.cold == nil {
		return errs.New(errs.EINVAL, page.PageKey, "no cold bucket configured for eviction")
	}

	data, err := ev.pages.ReadPages(ctx, []string{page.PageKey})
	if err != nil {
		return err
	}

	meta := storage.ObjectMeta{Tier: PageEvicted, CreatedAt: storage.NowMillis()}
	meta.OriginalPath = page.BlobID
	if _, err := ev.cold.Put(ctx, page.PageKey, data, meta); err != nil {
		return errs.Wrap(errs.EINVAL, page.PageKey, err)
	}

	// The row is deleted from the embedded store only after the cold write
	// has succeeded; retagging happens in between so a reader landing here
	// mid-sequence still finds the page (hot row still present, tier says
	// cold -- it will re-resolve to the bucket copy on next touch).
	if err := ev.index.SetTier(ctx, page.PageKey, PageEvicted); err != nil {
		return err
	}
	if err := ev.pages.DeletePages(ctx, []string{page.PageKey}); err != nil {
		return err
	}
	return nil
}

// Touch reads a page, promoting it back to resident if it was evicted.
func (ev *Eviction) Touch(ctx context.Context, page PageRecord) ([]byte, error) {
	now := storage.NowMillis()
	if page.Tier == PageResident {
		data, err := ev.pages.ReadPages(ctx, []string{page.PageKey})
		if err != nil {
			return nil, err
		}
		return data, ev.index.Touch(ctx, page.PageKey, now)
	}

	if ev.cold == nil {
		return nil, errs.New(errs.MissingPage, page.PageKey, "page evicted and no cold bucket configured")
	}
	res, err := ev.cold.Get(ctx, page.PageKey, nil)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, page.PageKey, err)
	}
	if !res.Found {
		return nil, errs.New(errs.MissingPage, page.PageKey, "")
	}

	// The page is loaded back: re-materialize its hot row and retag it
	// resident so the next read finds it without another cold round-trip.
	if err := ev.pages.WritePage(ctx, page.PageKey, page.BlobID, page.PageIndex, res.Data); err != nil {
		return nil, err
	}
	if err := ev.index.SetTier(ctx, page.PageKey, PageResident); err != nil {
		return nil, err
	}
	return res.Data, ev.index.Touch(ctx, page.PageKey, now)
}
