package metadata

import (
	"context"
	"database/sql"

	"actorfs/blobtier"
	"actorfs/errs"
)

// PageIndex adapts the page_metadata table to blobtier.PageIndex, wiring
// the eviction manager's tier/recency bookkeeping to the metadata store's
// schema instead of a private table.
type PageIndex struct {
	store *Store
}

// NewPageIndex builds a blobtier.PageIndex backed by store's page_metadata
// table.
func NewPageIndex(store *Store) *PageIndex {
	return &PageIndex{store: store}
}

var _ blobtier.PageIndex = (*PageIndex)(nil)

func (p *PageIndex) CountTier(ctx context.Context, tier string) (int, error) {
	if err := p.store.ensureSchema(ctx); err != nil {
		return 0, err
	}
	var n int
	err := p.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM page_metadata WHERE tier = ?`, tier).Scan(&n)
	if err != nil {
		return 0, errs.Wrap(errs.EINVAL, "", err)
	}
	return n, nil
}

func (p *PageIndex) ColdestResident(ctx context.Context, limit int) ([]blobtier.PageRecord, error) {
	if err := p.store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := p.store.db.QueryContext(ctx,
		`SELECT page_key, file_id, page_number, tier, last_access_at FROM page_metadata
		 WHERE tier = ? ORDER BY last_access_at ASC LIMIT ?`, blobtier.PageResident, limit)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, "", err)
	}
	defer rows.Close()

	var out []blobtier.PageRecord
	for rows.Next() {
		var rec blobtier.PageRecord
		var fileID int64
		if err := rows.Scan(&rec.PageKey, &fileID, &rec.PageIndex, &rec.Tier, &rec.LastAccessAt); err != nil {
			return nil, errs.Wrap(errs.EINVAL, "", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PageIndex) SetTier(ctx context.Context, pageKey, tier string) error {
	if err := p.store.ensureSchema(ctx); err != nil {
		return err
	}
	res, err := p.store.db.ExecContext(ctx, `UPDATE page_metadata SET tier = ? WHERE page_key = ?`, tier, pageKey)
	if err != nil {
		return errs.Wrap(errs.EINVAL, pageKey, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.MissingPage, pageKey, "")
	}
	return nil
}

func (p *PageIndex) Touch(ctx context.Context, pageKey string, now int64) error {
	if err := p.store.ensureSchema(ctx); err != nil {
		return err
	}
	res, err := p.store.db.ExecContext(ctx,
		`UPDATE page_metadata SET tier = ?, last_access_at = ?, access_count = access_count + 1 WHERE page_key = ?`,
		blobtier.PageResident, now, pageKey)
	if err != nil {
		return errs.Wrap(errs.EINVAL, pageKey, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.MissingPage, pageKey, "")
	}
	return nil
}

// RegisterPage inserts or replaces a page_metadata row for a newly written
// page, used by the file layer when it splits a blob into pages via
// pagestore.
func (p *PageIndex) RegisterPage(ctx context.Context, fileID int64, pageNumber int, pageKey string, size int64, compressed bool, originalSize int64) error {
	if err := p.store.ensureSchema(ctx); err != nil {
		return err
	}
	now := nowMillis()
	var origSize sql.NullInt64
	if compressed {
		origSize = sql.NullInt64{Int64: originalSize, Valid: true}
	}
	_, err := p.store.db.ExecContext(ctx,
		`INSERT INTO page_metadata(file_id, page_number, page_key, tier, size, last_access_at, access_count, compressed, original_size)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(page_key) DO UPDATE SET tier=excluded.tier, size=excluded.size, last_access_at=excluded.last_access_at`,
		fileID, pageNumber, pageKey, blobtier.PageResident, size, now, compressed, origSize)
	if err != nil {
		return errs.Wrap(errs.EINVAL, pageKey, err)
	}
	return nil
}
