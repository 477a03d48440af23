package store

const schema = `
CREATE TABLE IF NOT EXISTS trust_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    repo TEXT NOT NULL,
    name TEXT NOT NULL,
    action TEXT NOT NULL,
    version TEXT,
    content_marker TEXT,
    timestamp TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS check_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TIMESTAMP NOT NULL,
    trusted INTEGER NOT NULL DEFAULT 0,
    changed INTEGER NOT NULL DEFAULT 0,
    unknown INTEGER NOT NULL DEFAULT 0,
    removed_upstream INTEGER NOT NULL DEFAULT 0,
    indeterminate INTEGER NOT NULL DEFAULT 0,
    excluded INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS check_results (
    run_id INTEGER NOT NULL,
    repo TEXT NOT NULL,
    name TEXT NOT NULL,
    state TEXT NOT NULL,
    version TEXT,
    content_marker TEXT,
    cause TEXT,
    PRIMARY KEY (run_id, repo, name),
    FOREIGN KEY (run_id) REFERENCES check_runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_events_identity ON trust_events(repo, name);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON trust_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_results_run ON check_results(run_id);
`
