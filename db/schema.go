// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation for contacts, ledgers, queue, duplicates and config rows
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS contacts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	first_name TEXT,
	last_name TEXT,
	email TEXT,
	phone TEXT,
	company TEXT,
	title TEXT,
	location TEXT,
	headline TEXT,
	profile_url TEXT UNIQUE,
	status TEXT NOT NULL DEFAULT 'target' CHECK(status IN ('target', 'requested', 'connected', 'engaged', 'relationship')),
	seniority TEXT CHECK(seniority IS NULL OR seniority IN ('ic', 'manager', 'director', 'vp', 'c_suite')),
	relationship_score INTEGER NOT NULL DEFAULT 0 CHECK(relationship_score BETWEEN 0 AND 100),
	priority_score REAL NOT NULL DEFAULT 0 CHECK(priority_score BETWEEN 0 AND 10),
	mutual_connections_count INTEGER NOT NULL DEFAULT 0 CHECK(mutual_connections_count >= 0),
	is_active_on_profile INTEGER NOT NULL DEFAULT 0,
	has_open_to_connect_signal INTEGER NOT NULL DEFAULT 0,
	introduction_source TEXT,
	needs_review INTEGER NOT NULL DEFAULT 0,
	field_sources TEXT NOT NULL DEFAULT '{}',
	going_cold_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	last_interaction_at DATETIME,
	deleted_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_contacts_status ON contacts(status, created_at);
CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(email);
CREATE INDEX IF NOT EXISTS idx_contacts_priority ON contacts(priority_score DESC);

CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	relevance_weight REAL NOT NULL DEFAULT 1 CHECK(relevance_weight BETWEEN 1 AND 10),
	persona TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contact_categories (
	contact_id TEXT NOT NULL,
	category_id TEXT NOT NULL,
	confidence TEXT,
	assigned_at DATETIME NOT NULL,
	PRIMARY KEY (contact_id, category_id),
	FOREIGN KEY (contact_id) REFERENCES contacts(id),
	FOREIGN KEY (category_id) REFERENCES categories(id)
);

CREATE TABLE IF NOT EXISTS interactions (
	id TEXT PRIMARY KEY,
	contact_id TEXT NOT NULL,
	type TEXT NOT NULL,
	source TEXT NOT NULL,
	occurred_at DATETIME NOT NULL,
	points_value INTEGER NOT NULL,
	metadata TEXT,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (contact_id) REFERENCES contacts(id)
);

CREATE INDEX IF NOT EXISTS idx_interactions_contact ON interactions(contact_id, occurred_at DESC);

CREATE TABLE IF NOT EXISTS status_history (
	id TEXT PRIMARY KEY,
	contact_id TEXT NOT NULL,
	from_status TEXT,
	to_status TEXT NOT NULL,
	trigger_type TEXT NOT NULL CHECK(trigger_type IN ('manual', 'automated_promotion', 'automated_demotion', 'import')),
	reason TEXT,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (contact_id) REFERENCES contacts(id)
);

CREATE INDEX IF NOT EXISTS idx_status_history_contact ON status_history(contact_id, created_at);

CREATE TABLE IF NOT EXISTS score_history (
	id TEXT PRIMARY KEY,
	contact_id TEXT NOT NULL,
	score_type TEXT NOT NULL CHECK(score_type IN ('relationship', 'priority')),
	score_value REAL NOT NULL,
	recorded_at DATETIME NOT NULL,
	FOREIGN KEY (contact_id) REFERENCES contacts(id)
);

CREATE INDEX IF NOT EXISTS idx_score_history_contact ON score_history(contact_id, score_type, recorded_at);

CREATE TABLE IF NOT EXISTS data_conflicts (
	id TEXT PRIMARY KEY,
	contact_id TEXT NOT NULL,
	field_name TEXT NOT NULL,
	current_value TEXT,
	current_source TEXT NOT NULL,
	incoming_value TEXT,
	incoming_source TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'resolved')),
	resolution TEXT CHECK(resolution IS NULL OR resolution IN ('keep_current', 'accept_incoming')),
	created_at DATETIME NOT NULL,
	resolved_at DATETIME,
	FOREIGN KEY (contact_id) REFERENCES contacts(id)
);

CREATE INDEX IF NOT EXISTS idx_data_conflicts_status ON data_conflicts(status);

CREATE TABLE IF NOT EXISTS queue_items (
	id TEXT PRIMARY KEY,
	contact_id TEXT NOT NULL,
	queue_date TEXT NOT NULL,
	action_type TEXT NOT NULL CHECK(action_type IN ('connection_request', 'follow_up', 're_engagement')),
	status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'approved', 'executed', 'skipped', 'snoozed')),
	message TEXT,
	snooze_until TEXT,
	executed_at DATETIME,
	result TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(contact_id, queue_date, action_type),
	FOREIGN KEY (contact_id) REFERENCES contacts(id)
);

CREATE INDEX IF NOT EXISTS idx_queue_items_date ON queue_items(queue_date, status);

CREATE TABLE IF NOT EXISTS duplicate_pairs (
	id TEXT PRIMARY KEY,
	contact_a_id TEXT NOT NULL,
	contact_b_id TEXT NOT NULL,
	match_type TEXT NOT NULL CHECK(match_type IN ('url', 'email', 'phone', 'name_company', 'fuzzy')),
	confidence TEXT NOT NULL CHECK(confidence IN ('high', 'medium', 'low')),
	status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'merged', 'dismissed')),
	created_at DATETIME NOT NULL,
	resolved_at DATETIME,
	UNIQUE(contact_a_id, contact_b_id),
	CHECK(contact_a_id < contact_b_id),
	FOREIGN KEY (contact_a_id) REFERENCES contacts(id),
	FOREIGN KEY (contact_b_id) REFERENCES contacts(id)
);

CREATE INDEX IF NOT EXISTS idx_duplicate_pairs_status ON duplicate_pairs(status);

CREATE TABLE IF NOT EXISTS merge_history (
	id TEXT PRIMARY KEY,
	primary_id TEXT NOT NULL,
	secondary_id TEXT NOT NULL,
	pair_id TEXT,
	secondary_snapshot TEXT NOT NULL,
	merged_by TEXT NOT NULL CHECK(merged_by IN ('auto', 'manual')),
	merged_at DATETIME NOT NULL,
	FOREIGN KEY (primary_id) REFERENCES contacts(id),
	FOREIGN KEY (secondary_id) REFERENCES contacts(id)
);
CREATE INDEX IF NOT EXISTS idx_merge_history_primary ON merge_history(primary_id);

CREATE TABLE IF NOT EXISTS outreach_templates (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	action_type TEXT NOT NULL CHECK(action_type IN ('connection_request', 'follow_up', 're_engagement')),
	category_id TEXT,
	persona TEXT,
	body TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (category_id) REFERENCES categories(id)
);

CREATE TABLE IF NOT EXISTS config_entries (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS job_runs (
	id TEXT PRIMARY KEY,
	job_type TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'failed', 'cancelled')),
	processed INTEGER NOT NULL DEFAULT 0,
	updated INTEGER NOT NULL DEFAULT 0,
	errors INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	started_at DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_job_runs_type ON job_runs(job_type, started_at DESC);

CREATE TABLE IF NOT EXISTS rate_counters (
	key TEXT PRIMARY KEY,
	value INTEGER NOT NULL DEFAULT 0,
	expires_at DATETIME
);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
