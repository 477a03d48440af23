package app

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blackwell-systems/aurtrust/internal/aur"
	"github.com/blackwell-systems/aurtrust/internal/config"
	"github.com/blackwell-systems/aurtrust/internal/ledger"
	"github.com/blackwell-systems/aurtrust/internal/output"
	"github.com/blackwell-systems/aurtrust/internal/reconcile"
	"github.com/blackwell-systems/aurtrust/internal/store"
	"github.com/blackwell-systems/aurtrust/internal/trust"
	"github.com/blackwell-systems/aurtrust/internal/upstream"
)

// parseIdentities parses command-line package arguments ("name" or
// "repo/name").
func parseIdentities(args []string) ([]trust.Identity, error) {
	ids := make([]trust.Identity, 0, len(args))
	for _, arg := range args {
		id, err := trust.ParseIdentity(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// newAURClient builds an RPC client for endpoint using the configured
// request timeout. roots, if non-nil, replaces the system certificate roots.
func (e *environment) newAURClient(repo, endpoint string, roots *x509.CertPool) *aur.Client {
	opts := []aur.Option{
		aur.WithBaseURL(endpoint),
		aur.WithTimeout(e.cfg.RequestTimeout),
		aur.WithUserAgent("aurtrust/" + Version),
		aur.WithLogger(e.logger.With().Str("repo", repo).Logger()),
	}
	if roots != nil {
		opts = append(opts, aur.WithRootCAs(roots))
	}
	return aur.NewClient(opts...)
}

// newFetcher returns a fetcher with the AUR and every repository from the
// sources file registered. onResult may be nil.
func (e *environment) newFetcher(onResult func(upstream.Result)) (*upstream.Fetcher, error) {
	opts := upstream.DefaultOptions()
	opts.Concurrency = e.cfg.Concurrency
	opts.Timeout = e.cfg.Timeout
	opts.Retries = e.cfg.Retries
	opts.Backoff = e.cfg.Backoff
	opts.Logger = e.logger
	opts.OnResult = onResult

	var roots *x509.CertPool
	if e.cfg.CAFile != "" {
		pool, err := aur.LoadRootCAs(e.cfg.CAFile)
		if err != nil {
			return nil, err
		}
		roots = pool
	}

	f := upstream.NewFetcher(opts)
	f.Register(trust.DefaultRepo, e.newAURClient(trust.DefaultRepo, e.cfg.RPCURL, roots))

	dir, err := config.Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config directory: %w", err)
	}
	sources, err := config.LoadSources(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	for repo, endpoint := range sources.Sources {
		f.Register(repo, e.newAURClient(repo, endpoint, roots))
	}
	return f, nil
}

// loadLedger reads the ledger. A corrupt ledger is fatal for every command.
func (e *environment) loadLedger() (*ledger.Ledger, error) {
	l, err := ledger.Load(e.cfg.LedgerPath)
	if err != nil {
		return nil, err
	}
	e.logger.Debug().Int("records", l.Len()).Str("path", e.cfg.LedgerPath).Msg("ledger loaded")
	return l, nil
}

// saveLedger persists l if it has unsaved changes.
func (e *environment) saveLedger(l *ledger.Ledger) error {
	if !l.Dirty() {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(e.cfg.LedgerPath), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}
	return l.Save(e.cfg.LedgerPath)
}

// openStore opens the audit database, creating it on first use.
func (e *environment) openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(e.cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	st, err := store.Open(e.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	return st, nil
}

// withStore runs fn against the audit database. The audit log is secondary
// to the ledger, so failures are logged and otherwise ignored.
func (e *environment) withStore(what string, fn func(st *store.Store) error) {
	st, err := e.openStore()
	if err != nil {
		e.logger.Warn().Err(err).Msg("audit log unavailable")
		return
	}
	defer st.Close()

	if err := fn(st); err != nil {
		e.logger.Warn().Err(err).Str("op", what).Msg("failed to update audit log")
	}
}

// fetchOptions controls progress display during a fetch.
type fetchOptions struct {
	progress    bool
	description string
}

// fetchAndReconcile fetches every ledger entry plus requested and classifies
// them. The ledger is only read.
func (e *environment) fetchAndReconcile(ctx context.Context, l *ledger.Ledger, requested []trust.Identity, fo fetchOptions) (reconcile.Report, error) {
	ids := append(l.Identities(), requested...)

	var bar *output.ProgressBar
	var onResult func(upstream.Result)
	if fo.progress && len(ids) > 0 {
		bar = output.NewProgress(countUnique(ids), fo.description)
		onResult = func(upstream.Result) { bar.Increment() }
	}

	f, err := e.newFetcher(onResult)
	if err != nil {
		return reconcile.Report{}, err
	}

	results := f.FetchAll(ctx, ids)
	if bar != nil {
		bar.Finish()
	}

	report := reconcile.Reconcile(l, results, requested)
	if len(e.cfg.TrustedMaintainers) > 0 {
		report.CheckMaintainers(results, e.cfg.TrustedMaintainers)
	}
	for _, ex := range report.Excluded {
		e.logger.Warn().Str("package", ex.Identity.String()).Str("reason", ex.Reason).Msg("excluded malformed upstream metadata")
	}
	return report, nil
}

func countUnique(ids []trust.Identity) int {
	seen := make(map[trust.Identity]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	return len(seen)
}

// formatSize converts bytes to human-readable size.
func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.0f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.0f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
