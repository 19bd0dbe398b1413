package storage

const schemaVersion = 2

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tracked_sites (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	domain     TEXT    NOT NULL UNIQUE,
	name       TEXT    NOT NULL DEFAULT '',
	active     INTEGER NOT NULL DEFAULT 1,
	created_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE TABLE IF NOT EXISTS tracked_keywords (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id    INTEGER NOT NULL REFERENCES tracked_sites(id) ON DELETE RESTRICT,
	keyword    TEXT    NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1,
	created_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	UNIQUE(site_id, keyword)
);

CREATE TABLE IF NOT EXISTS ranking_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	keyword_id INTEGER NOT NULL REFERENCES tracked_keywords(id) ON DELETE CASCADE,
	date       TEXT    NOT NULL,
	position   INTEGER,
	url        TEXT,
	raw_result TEXT,
	checked_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	UNIQUE(keyword_id, date)
);

CREATE INDEX IF NOT EXISTS idx_ranking_history_date ON ranking_history(date);

CREATE TABLE IF NOT EXISTS seo_pages (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	slug                 TEXT    NOT NULL UNIQUE,
	title                TEXT    NOT NULL DEFAULT '',
	route_pattern        TEXT    NOT NULL,
	tier                 TEXT    NOT NULL DEFAULT '',
	status               TEXT    NOT NULL DEFAULT 'draft' CHECK (status IN ('draft','published')),
	content              TEXT    NOT NULL DEFAULT '{}',
	scheduled_publish_at TEXT,
	published_at         TEXT,
	created_at           TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	updated_at           TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_seo_pages_due ON seo_pages(status, scheduled_publish_at);

CREATE TABLE IF NOT EXISTS page_versions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	page_id    INTEGER NOT NULL REFERENCES seo_pages(id) ON DELETE CASCADE,
	version    INTEGER NOT NULL,
	content    TEXT    NOT NULL,
	created_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	UNIQUE(page_id, version)
);

CREATE TRIGGER IF NOT EXISTS page_versions_immutable
BEFORE UPDATE ON page_versions
BEGIN
	SELECT RAISE(ABORT, 'page versions are immutable');
END;

CREATE TABLE IF NOT EXISTS link_checks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL,
	source_slug TEXT    NOT NULL,
	target_url  TEXT    NOT NULL,
	status_code INTEGER,
	is_broken   INTEGER NOT NULL DEFAULT 0,
	error       TEXT    NOT NULL DEFAULT '',
	checked_at  TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_link_checks_run ON link_checks(run_id);
CREATE INDEX IF NOT EXISTS idx_link_checks_checked_at ON link_checks(checked_at);

CREATE TABLE IF NOT EXISTS alerts (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	type            TEXT    NOT NULL,
	severity        TEXT    NOT NULL,
	title           TEXT    NOT NULL,
	message         TEXT,
	metadata        TEXT    NOT NULL DEFAULT '{}',
	status          TEXT    NOT NULL DEFAULT 'active' CHECK (status IN ('active','acknowledged','resolved')),
	created_at      TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	acknowledged_at TEXT,
	resolved_at     TEXT
);

CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status, created_at DESC);

CREATE TABLE IF NOT EXISTS job_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL UNIQUE,
	job         TEXT    NOT NULL,
	started_at  TEXT    NOT NULL,
	finished_at TEXT    NOT NULL,
	attempted   INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	errors      TEXT    NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_job_runs_job ON job_runs(job, started_at DESC);
`

// migrations holds incremental schema changes after the initial schema.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS job_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL UNIQUE,
	job         TEXT    NOT NULL,
	started_at  TEXT    NOT NULL,
	finished_at TEXT    NOT NULL,
	attempted   INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	errors      TEXT    NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_job_runs_job ON job_runs(job, started_at DESC);`,
	},
}
