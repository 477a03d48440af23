package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/blackwell-systems/aurtrust/internal/reconcile"
	"github.com/blackwell-systems/aurtrust/internal/trust"
)

// StateExcluded marks a check result for a package whose metadata was unusable.
const StateExcluded reconcile.Kind = "excluded"

// Trust event operations

// InsertTrustEvent records an approve or remove and returns its ID.
func (s *Store) InsertTrustEvent(event *TrustEvent) (int64, error) {
	query := `
		INSERT INTO trust_events (repo, name, action, version, content_marker, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	version, marker := fingerprintColumns(event.Fingerprint)
	result, err := s.db.Exec(query,
		event.Identity.Repo,
		event.Identity.Name,
		string(event.Action),
		version,
		marker,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, wrap(fmt.Sprintf("insert %s event for %s", event.Action, event.Identity), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get event ID: %w", err)
	}
	return id, nil
}

// GetTrustEvents returns the events for one package, oldest first.
func (s *Store) GetTrustEvents(id trust.Identity) ([]*TrustEvent, error) {
	query := `
		SELECT id, repo, name, action, version, content_marker, timestamp
		FROM trust_events
		WHERE repo = ? AND name = ?
		ORDER BY id
	`

	rows, err := s.db.Query(query, id.Repo, id.Name)
	if err != nil {
		return nil, wrap(fmt.Sprintf("get events for %s", id), err)
	}
	defer rows.Close()

	return scanTrustEvents(rows)
}

// ListTrustEvents returns the most recent events across all packages,
// oldest first. A limit of zero or less returns every event.
func (s *Store) ListTrustEvents(limit int) ([]*TrustEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, repo, name, action, version, content_marker, timestamp
		FROM (
			SELECT * FROM trust_events ORDER BY id DESC LIMIT ?
		)
		ORDER BY id
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, wrap("list events", err)
	}
	defer rows.Close()

	return scanTrustEvents(rows)
}

func scanTrustEvents(rows *sql.Rows) ([]*TrustEvent, error) {
	var events []*TrustEvent
	for rows.Next() {
		var ev TrustEvent
		var action, timestamp string
		var version, marker sql.NullString

		err := rows.Scan(
			&ev.ID,
			&ev.Identity.Repo,
			&ev.Identity.Name,
			&action,
			&version,
			&marker,
			&timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		ev.Action = Action(action)
		ev.Fingerprint = fingerprintFrom(version, marker)
		ev.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp for event %d: %w", ev.ID, err)
		}

		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// Check run operations

// InsertCheckRun records a reconciliation report and returns the run ID.
// The run and its per-package results are written in one transaction.
func (s *Store) InsertCheckRun(startedAt time.Time, report reconcile.Report) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	counts := report.Counts()
	result, err := tx.Exec(`
		INSERT INTO check_runs (started_at, trusted, changed, unknown, removed_upstream, indeterminate, excluded)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		startedAt.UTC().Format(time.RFC3339Nano),
		counts.Trusted,
		counts.Changed,
		counts.Unknown,
		counts.RemovedUpstream,
		counts.Indeterminate,
		counts.Excluded,
	)
	if err != nil {
		return 0, wrap("insert check run", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get check run ID: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO check_results (run_id, repo, name, state, version, content_marker, cause)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range report.Entries {
		fp := e.Classification.New
		if fp == nil {
			fp = e.Classification.Old
		}
		version, marker := fingerprintColumns(fp)
		if _, err := stmt.Exec(runID, e.Identity.Repo, e.Identity.Name, string(e.Classification.Kind), version, marker, nullString(e.Classification.Reason)); err != nil {
			return 0, fmt.Errorf("failed to insert result for %s: %w", e.Identity, err)
		}
	}
	for _, x := range report.Excluded {
		if _, err := stmt.Exec(runID, x.Identity.Repo, x.Identity.Name, string(StateExcluded), nil, nil, nullString(x.Reason)); err != nil {
			return 0, fmt.Errorf("failed to insert result for %s: %w", x.Identity, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit check run: %w", err)
	}
	return runID, nil
}

// ListCheckRuns returns the most recent check runs, newest first.
// A limit of zero or less returns every run.
func (s *Store) ListCheckRuns(limit int) ([]*CheckRun, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, started_at, trusted, changed, unknown, removed_upstream, indeterminate, excluded
		FROM check_runs
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, wrap("list check runs", err)
	}
	defer rows.Close()

	var runs []*CheckRun
	for rows.Next() {
		var run CheckRun
		var startedAt string

		err := rows.Scan(
			&run.ID,
			&startedAt,
			&run.Counts.Trusted,
			&run.Counts.Changed,
			&run.Counts.Unknown,
			&run.Counts.RemovedUpstream,
			&run.Counts.Indeterminate,
			&run.Counts.Excluded,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check run row: %w", err)
		}

		run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse started_at for run %d: %w", run.ID, err)
		}

		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating check runs: %w", err)
	}

	return runs, nil
}

// GetCheckResults returns the per-package results of a run, ordered by identity.
func (s *Store) GetCheckResults(runID int64) ([]*CheckResult, error) {
	query := `
		SELECT run_id, repo, name, state, version, content_marker, cause
		FROM check_results
		WHERE run_id = ?
		ORDER BY repo, name
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, wrap(fmt.Sprintf("get results for run %d", runID), err)
	}
	defer rows.Close()

	var results []*CheckResult
	for rows.Next() {
		var res CheckResult
		var state string
		var version, marker, cause sql.NullString

		err := rows.Scan(
			&res.RunID,
			&res.Identity.Repo,
			&res.Identity.Name,
			&state,
			&version,
			&marker,
			&cause,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check result row: %w", err)
		}

		res.State = reconcile.Kind(state)
		res.Fingerprint = fingerprintFrom(version, marker)
		res.Cause = cause.String
		results = append(results, &res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating check results: %w", err)
	}

	return results, nil
}

// LatestStates returns the state of every package in the most recent check
// run. It returns an empty map when no run has been recorded.
func (s *Store) LatestStates() (map[trust.Identity]reconcile.Kind, error) {
	var runID int64
	err := s.db.QueryRow("SELECT id FROM check_runs ORDER BY id DESC LIMIT 1").Scan(&runID)
	if err == sql.ErrNoRows {
		return map[trust.Identity]reconcile.Kind{}, nil
	}
	if err != nil {
		return nil, wrap("get latest check run", err)
	}

	results, err := s.GetCheckResults(runID)
	if err != nil {
		return nil, err
	}

	states := make(map[trust.Identity]reconcile.Kind, len(results))
	for _, res := range results {
		states[res.Identity] = res.State
	}
	return states, nil
}

// GetCheckRunCount returns the total number of check runs recorded.
func (s *Store) GetCheckRunCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM check_runs").Scan(&count)
	if err != nil {
		return 0, wrap("get check run count", err)
	}
	return count, nil
}

func fingerprintColumns(fp *trust.Fingerprint) (any, any) {
	if fp == nil {
		return nil, nil
	}
	return fp.Version, fp.ContentMarker
}

func fingerprintFrom(version, marker sql.NullString) *trust.Fingerprint {
	if !version.Valid || !marker.Valid {
		return nil
	}
	return &trust.Fingerprint{Version: version.String, ContentMarker: marker.String}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
