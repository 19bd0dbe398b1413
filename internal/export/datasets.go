package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/y0f/rankwatch/internal/storage"
)

// Dataset names accepted by Load.
const (
	DatasetRankings   = "rankings"
	DatasetLinkChecks = "link_checks"
	DatasetAlerts     = "alerts"
)

var ErrUnknownDataset = errors.New("unknown dataset")

const loadPageSize = 500

// Query narrows a dataset load. Fields that do not apply to a dataset are
// ignored.
type Query struct {
	SiteID     int64
	KeywordID  int64
	From, To   string
	RunID      string
	BrokenOnly bool
	Statuses   []string
}

var RankingColumns = []Column{
	{Key: "date", Label: "Date"},
	{Key: "domain", Label: "Domain"},
	{Key: "keyword", Label: "Keyword"},
	{Key: "position", Label: "Position"},
	{Key: "url", Label: "URL"},
	{Key: "checked_at", Label: "Checked At"},
}

var LinkCheckColumns = []Column{
	{Key: "run_id", Label: "Run ID"},
	{Key: "source_slug", Label: "Source Page"},
	{Key: "target_url", Label: "Target URL"},
	{Key: "status_code", Label: "Status Code"},
	{Key: "is_broken", Label: "Broken"},
	{Key: "error", Label: "Error"},
	{Key: "checked_at", Label: "Checked At"},
}

var AlertColumns = []Column{
	{Key: "id", Label: "ID"},
	{Key: "type", Label: "Type"},
	{Key: "severity", Label: "Severity"},
	{Key: "status", Label: "Status"},
	{Key: "title", Label: "Title"},
	{Key: "message", Label: "Message"},
	{Key: "metadata", Label: "Metadata"},
	{Key: "created_at", Label: "Created At"},
	{Key: "resolved_at", Label: "Resolved At"},
}

// Load reads every row of the named dataset and returns it with its columns.
func Load(ctx context.Context, store storage.Store, dataset string, q Query) ([]Record, []Column, error) {
	switch dataset {
	case DatasetRankings:
		recs, err := loadRankings(ctx, store, q)
		return recs, RankingColumns, err
	case DatasetLinkChecks:
		recs, err := loadLinkChecks(ctx, store, q)
		return recs, LinkCheckColumns, err
	case DatasetAlerts:
		recs, err := loadAlerts(ctx, store, q)
		return recs, AlertColumns, err
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownDataset, dataset)
	}
}

func loadRankings(ctx context.Context, store storage.Store, q Query) ([]Record, error) {
	f := storage.RankingFilter{SiteID: q.SiteID, KeywordID: q.KeywordID, From: q.From, To: q.To}
	var out []Record
	for page := 1; ; page++ {
		res, err := store.ListRankings(ctx, f, storage.Pagination{Page: page, PerPage: loadPageSize})
		if err != nil {
			return nil, fmt.Errorf("list rankings: %w", err)
		}
		rows, _ := res.Data.([]*storage.Ranking)
		for _, r := range rows {
			out = append(out, RankingRecord(r))
		}
		if page >= res.TotalPages {
			break
		}
	}
	return out, nil
}

func loadLinkChecks(ctx context.Context, store storage.Store, q Query) ([]Record, error) {
	f := storage.LinkCheckFilter{RunID: q.RunID, BrokenOnly: q.BrokenOnly}
	var out []Record
	for page := 1; ; page++ {
		res, err := store.ListLinkChecks(ctx, f, storage.Pagination{Page: page, PerPage: loadPageSize})
		if err != nil {
			return nil, fmt.Errorf("list link checks: %w", err)
		}
		rows, _ := res.Data.([]*storage.LinkCheck)
		for _, c := range rows {
			out = append(out, LinkCheckRecord(c))
		}
		if page >= res.TotalPages {
			break
		}
	}
	return out, nil
}

func loadAlerts(ctx context.Context, store storage.Store, q Query) ([]Record, error) {
	var out []Record
	for page := 1; ; page++ {
		res, err := store.ListAlerts(ctx, q.Statuses, storage.Pagination{Page: page, PerPage: loadPageSize})
		if err != nil {
			return nil, fmt.Errorf("list alerts: %w", err)
		}
		rows, _ := res.Data.([]*storage.Alert)
		for _, a := range rows {
			out = append(out, AlertRecord(a))
		}
		if page >= res.TotalPages {
			break
		}
	}
	return out, nil
}

func RankingRecord(r *storage.Ranking) Record {
	rec := Record{
		"date":       r.Date,
		"domain":     r.Domain,
		"keyword":    r.Keyword,
		"position":   nil,
		"url":        nil,
		"checked_at": r.CheckedAt,
	}
	if r.Position != nil {
		rec["position"] = *r.Position
	}
	if r.URL != nil {
		rec["url"] = *r.URL
	}
	return rec
}

func LinkCheckRecord(c *storage.LinkCheck) Record {
	rec := Record{
		"run_id":      c.RunID,
		"source_slug": c.SourceSlug,
		"target_url":  c.TargetURL,
		"status_code": nil,
		"is_broken":   c.IsBroken,
		"error":       c.Error,
		"checked_at":  c.CheckedAt,
	}
	if c.StatusCode != nil {
		rec["status_code"] = *c.StatusCode
	}
	return rec
}

func AlertRecord(a *storage.Alert) Record {
	rec := Record{
		"id":          a.ID,
		"type":        a.Type,
		"severity":    a.Severity,
		"status":      a.Status,
		"title":       a.Title,
		"message":     nil,
		"metadata":    a.Metadata,
		"created_at":  a.CreatedAt,
		"resolved_at": nil,
	}
	if a.Message != nil {
		rec["message"] = *a.Message
	}
	if a.ResolvedAt != nil {
		rec["resolved_at"] = *a.ResolvedAt
	}
	return rec
}
