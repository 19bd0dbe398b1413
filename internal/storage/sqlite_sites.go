package storage

import (
	"context"
	"time"
)

func (s *SQLiteStore) CreateSite(ctx context.Context, site *Site) error {
	now := formatTime(time.Now())
	res, err := s.writeDB.ExecContext(ctx,
		`INSERT INTO tracked_sites (domain, name, active, created_at) VALUES (?, ?, ?, ?)`,
		site.Domain, site.Name, boolToInt(site.Active), now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	id, _ := res.LastInsertId()
	site.ID = id
	site.CreatedAt = parseTime(now)
	return nil
}

func (s *SQLiteStore) GetSite(ctx context.Context, id int64) (*Site, error) {
	var site Site
	var createdAt string
	err := s.readDB.QueryRowContext(ctx,
		`SELECT id, domain, name, active, created_at FROM tracked_sites WHERE id=?`, id).
		Scan(&site.ID, &site.Domain, &site.Name, &site.Active, &createdAt)
	if err != nil {
		return nil, err
	}
	site.CreatedAt = parseTime(createdAt)
	return &site, nil
}

func (s *SQLiteStore) ListSites(ctx context.Context) ([]*Site, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, domain, name, active, created_at FROM tracked_sites ORDER BY domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sites := []*Site{}
	for rows.Next() {
		var site Site
		var createdAt string
		if err := rows.Scan(&site.ID, &site.Domain, &site.Name, &site.Active, &createdAt); err != nil {
			return nil, err
		}
		site.CreatedAt = parseTime(createdAt)
		sites = append(sites, &site)
	}
	return sites, rows.Err()
}

func (s *SQLiteStore) SetSiteActive(ctx context.Context, id int64, active bool) error {
	_, err := s.writeDB.ExecContext(ctx,
		`UPDATE tracked_sites SET active=? WHERE id=?`, boolToInt(active), id)
	return err
}

// --- Keywords ---

func (s *SQLiteStore) CreateKeyword(ctx context.Context, k *Keyword) error {
	now := formatTime(time.Now())
	res, err := s.writeDB.ExecContext(ctx,
		`INSERT INTO tracked_keywords (site_id, keyword, active, created_at) VALUES (?, ?, ?, ?)`,
		k.SiteID, k.Keyword, boolToInt(k.Active), now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	id, _ := res.LastInsertId()
	k.ID = id
	k.CreatedAt = parseTime(now)
	return nil
}

func scanKeyword(row scanner) (*Keyword, error) {
	var k Keyword
	var createdAt string
	if err := row.Scan(&k.ID, &k.SiteID, &k.Keyword, &k.Active, &createdAt); err != nil {
		return nil, err
	}
	k.CreatedAt = parseTime(createdAt)
	return &k, nil
}

func (s *SQLiteStore) GetKeyword(ctx context.Context, id int64) (*Keyword, error) {
	return scanKeyword(s.readDB.QueryRowContext(ctx,
		`SELECT id, site_id, keyword, active, created_at FROM tracked_keywords WHERE id=?`, id))
}

func (s *SQLiteStore) ListKeywords(ctx context.Context, siteID int64) ([]*Keyword, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, site_id, keyword, active, created_at
		 FROM tracked_keywords WHERE site_id=? ORDER BY keyword`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keywords := []*Keyword{}
	for rows.Next() {
		k, err := scanKeyword(rows)
		if err != nil {
			return nil, err
		}
		keywords = append(keywords, k)
	}
	return keywords, rows.Err()
}

func (s *SQLiteStore) SetKeywordActive(ctx context.Context, id int64, active bool) error {
	_, err := s.writeDB.ExecContext(ctx,
		`UPDATE tracked_keywords SET active=? WHERE id=?`, boolToInt(active), id)
	return err
}

// ListActiveKeywords returns keywords that are active and belong to an
// active site, in a stable order.
func (s *SQLiteStore) ListActiveKeywords(ctx context.Context) ([]*ActiveKeyword, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT k.id, k.keyword, s.id, s.domain
		 FROM tracked_keywords k
		 JOIN tracked_sites s ON s.id = k.site_id
		 WHERE k.active = 1 AND s.active = 1
		 ORDER BY k.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keywords []*ActiveKeyword
	for rows.Next() {
		var k ActiveKeyword
		if err := rows.Scan(&k.KeywordID, &k.Keyword, &k.SiteID, &k.Domain); err != nil {
			return nil, err
		}
		keywords = append(keywords, &k)
	}
	return keywords, rows.Err()
}
