package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS organizations (
	id                   TEXT PRIMARY KEY,
	source_type          TEXT NOT NULL,
	name                 TEXT NOT NULL,
	slug                 TEXT NOT NULL DEFAULT '',
	base_url             TEXT NOT NULL DEFAULT '',
	username             TEXT NOT NULL DEFAULT '',
	api_token            TEXT NOT NULL DEFAULT '',
	settings             TEXT NOT NULL DEFAULT '{}',
	sync_enabled         INTEGER NOT NULL DEFAULT 1,
	sync_interval_sec    INTEGER NOT NULL DEFAULT 3600,
	last_sync_at         DATETIME,
	connection_status    TEXT NOT NULL DEFAULT 'unknown'
		CHECK(connection_status IN ('unknown', 'connected', 'failed', 'unauthorized')),
	connection_error     TEXT NOT NULL DEFAULT '',
	last_connection_test DATETIME,
	created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(source_type, name)
);

CREATE TABLE IF NOT EXISTS projects (
	id                 TEXT PRIMARY KEY,
	organization_id    TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	external_key       TEXT NOT NULL,
	external_id        TEXT NOT NULL DEFAULT '',
	name               TEXT NOT NULL DEFAULT '',
	description        TEXT NOT NULL DEFAULT '',
	project_type       TEXT NOT NULL DEFAULT '',
	lead_name          TEXT NOT NULL DEFAULT '',
	metadata           TEXT NOT NULL DEFAULT '{}',
	sync_enabled       INTEGER NOT NULL DEFAULT 1,
	sync_issues        INTEGER NOT NULL DEFAULT 1,
	max_issues_to_sync INTEGER NOT NULL DEFAULT 1000,
	total_issues       INTEGER NOT NULL DEFAULT 0,
	open_issues        INTEGER NOT NULL DEFAULT 0,
	in_progress_issues INTEGER NOT NULL DEFAULT 0,
	done_issues        INTEGER NOT NULL DEFAULT 0,
	last_issue_sync_at DATETIME,
	created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(organization_id, external_key)
);

CREATE TABLE IF NOT EXISTS issues (
	id                TEXT PRIMARY KEY,
	project_id        TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	source_type       TEXT NOT NULL,
	external_key      TEXT NOT NULL,
	external_id       TEXT NOT NULL DEFAULT '',
	title             TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	issue_type        TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT '',
	status_category   TEXT NOT NULL DEFAULT 'new'
		CHECK(status_category IN ('new', 'indeterminate', 'done')),
	priority          TEXT NOT NULL DEFAULT '',
	level             TEXT NOT NULL DEFAULT '',
	assignee          TEXT NOT NULL DEFAULT '',
	assignee_email    TEXT NOT NULL DEFAULT '',
	reporter          TEXT NOT NULL DEFAULT '',
	reporter_email    TEXT NOT NULL DEFAULT '',
	permalink         TEXT NOT NULL DEFAULT '',
	culprit           TEXT NOT NULL DEFAULT '',
	event_count       INTEGER NOT NULL DEFAULT 0,
	user_count        INTEGER NOT NULL DEFAULT 0,
	first_seen_at     DATETIME,
	last_seen_at      DATETIME,
	created_remote_at DATETIME,
	updated_remote_at DATETIME,
	resolved_at       DATETIME,
	labels            TEXT NOT NULL DEFAULT '[]',
	components        TEXT NOT NULL DEFAULT '[]',
	fix_versions      TEXT NOT NULL DEFAULT '[]',
	metadata          TEXT NOT NULL DEFAULT '{}',
	created_from_link INTEGER NOT NULL DEFAULT 0,
	fetched_at        DATETIME NOT NULL,
	UNIQUE(project_id, external_key)
);

CREATE TABLE IF NOT EXISTS issue_events (
	id          TEXT PRIMARY KEY,
	issue_id    TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	external_id TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	platform    TEXT NOT NULL DEFAULT '',
	environment TEXT NOT NULL DEFAULT '',
	release_version TEXT NOT NULL DEFAULT '',
	user_id     TEXT NOT NULL DEFAULT '',
	user_email  TEXT NOT NULL DEFAULT '',
	user_ip     TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '{}',
	occurred_at DATETIME NOT NULL,
	UNIQUE(issue_id, external_id)
);

CREATE TABLE IF NOT EXISTS sync_attempts (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	sync_type       TEXT NOT NULL DEFAULT 'full',
	status          TEXT NOT NULL DEFAULT 'started'
		CHECK(status IN ('started', 'success', 'failed', 'partial')),
	started_at      DATETIME NOT NULL,
	completed_at    DATETIME,
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	projects_synced INTEGER NOT NULL DEFAULT 0,
	issues_synced   INTEGER NOT NULL DEFAULT 0,
	events_synced   INTEGER NOT NULL DEFAULT 0,
	error_message   TEXT NOT NULL DEFAULT '',
	error_details   TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS cross_links (
	id                         TEXT PRIMARY KEY,
	source_issue_id            TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	target_issue_id            TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	link_type                  TEXT NOT NULL DEFAULT 'manual'
		CHECK(link_type IN ('manual', 'auto', 'imported')),
	creation_notes             TEXT NOT NULL DEFAULT '',
	sync_source_to_target      INTEGER NOT NULL DEFAULT 1,
	sync_target_to_source      INTEGER NOT NULL DEFAULT 1,
	last_sync_source_to_target DATETIME,
	last_sync_target_to_source DATETIME,
	sync_errors                TEXT NOT NULL DEFAULT '[]',
	created_at                 DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(source_issue_id, target_issue_id)
);

CREATE INDEX IF NOT EXISTS idx_projects_org ON projects(organization_id);
CREATE INDEX IF NOT EXISTS idx_issues_project ON issues(project_id);
CREATE INDEX IF NOT EXISTS idx_issues_source_type ON issues(source_type);
CREATE INDEX IF NOT EXISTS idx_issues_external_key ON issues(external_key);
CREATE INDEX IF NOT EXISTS idx_issues_status_category ON issues(status_category);
CREATE INDEX IF NOT EXISTS idx_issue_events_issue ON issue_events(issue_id);
CREATE INDEX IF NOT EXISTS idx_sync_attempts_org ON sync_attempts(organization_id, started_at);
CREATE INDEX IF NOT EXISTS idx_cross_links_source ON cross_links(source_issue_id);
CREATE INDEX IF NOT EXISTS idx_cross_links_target ON cross_links(target_issue_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS dashboard_cache (
	dashboard_type TEXT NOT NULL,
	filter_key     TEXT NOT NULL,
	data           TEXT NOT NULL DEFAULT '{}',
	expires_at     DATETIME NOT NULL,
	generation_ms  INTEGER NOT NULL DEFAULT 0,
	generated_at   DATETIME NOT NULL,
	PRIMARY KEY (dashboard_type, filter_key)
);

CREATE INDEX IF NOT EXISTS idx_issues_last_seen ON issues(last_seen_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
