// Package upstream fetches current package metadata from remote repositories.
//
// Fetches for different identities are independent: each identity resolves to
// its own Result and a failure for one never affects the others. Work runs on
// a bounded pool; transient failures are retried with exponential backoff
// and a batch-wide timeout turns abandoned fetches into ErrUnavailable.
package upstream

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/aurtrust/internal/trust"
)

// Source looks up the current fingerprint of a package in one repository.
// A nil fingerprint with a nil error means the package does not exist upstream.
// Errors wrapped with Transient are retried; trust.ErrMalformedMetadata and any
// other error are returned without retry.
type Source interface {
	Info(ctx context.Context, name string) (*trust.Fingerprint, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, name string) (*trust.Fingerprint, error)

// Info implements Source.
func (f SourceFunc) Info(ctx context.Context, name string) (*trust.Fingerprint, error) {
	return f(ctx, name)
}

// Metadata is what a MetadataSource reports about an existing package.
type Metadata struct {
	Fingerprint trust.Fingerprint
	// Maintainers is empty for orphaned packages.
	Maintainers []string
}

// MetadataSource is a Source that also knows who maintains a package. The
// Fetcher uses Metadata instead of Info when a source implements it.
type MetadataSource interface {
	Source
	Metadata(ctx context.Context, name string) (*Metadata, error)
}

// Snapshot is the upstream state of one package for one fetch cycle.
type Snapshot struct {
	Identity    trust.Identity
	Fingerprint *trust.Fingerprint
	Maintainers []string
}

// Removed reports whether the package no longer exists upstream.
func (s Snapshot) Removed() bool {
	return s.Fingerprint == nil
}

// Result is the outcome of fetching one identity. Exactly one of a usable
// Snapshot or Err is meaningful.
type Result struct {
	Snapshot Snapshot
	Err      error
}

// Options bounds how a Fetcher talks to upstream.
type Options struct {
	// Concurrency is the maximum number of fetches in flight.
	Concurrency int
	// Timeout bounds a whole FetchAll batch. Zero means no batch timeout.
	Timeout time.Duration
	// Retries is how many times a transient failure is retried.
	Retries int
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration
	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
	// Logger receives structured fetch events.
	Logger zerolog.Logger
	// OnResult, if set, is called from the worker goroutine as each identity
	// resolves. It must be safe for concurrent use.
	OnResult func(Result)
}

// DefaultOptions returns conservative limits for the public AUR.
func DefaultOptions() Options {
	return Options{
		Concurrency: 8,
		Timeout:     30 * time.Second,
		Retries:     2,
		Backoff:     500 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
		Logger:      zerolog.Nop(),
	}
}

// Fetcher resolves identities against the source registered for their repository.
type Fetcher struct {
	sources map[string]Source
	opts    Options
}

// NewFetcher creates a Fetcher with no sources registered.
func NewFetcher(opts Options) *Fetcher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.MaxBackoff < opts.Backoff {
		opts.MaxBackoff = opts.Backoff
	}
	return &Fetcher{
		sources: make(map[string]Source),
		opts:    opts,
	}
}

// Register makes src answer for every identity in repo.
func (f *Fetcher) Register(repo string, src Source) {
	f.sources[repo] = src
}

// FetchAll fetches every identity with bounded parallelism and returns one
// Result per distinct identity. It never fails as a whole.
func (f *Fetcher) FetchAll(ctx context.Context, ids []trust.Identity) map[trust.Identity]Result {
	unique := make([]trust.Identity, 0, len(ids))
	seen := make(map[trust.Identity]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	started := time.Now()
	f.opts.Logger.Debug().
		Int("packages", len(unique)).
		Int("concurrency", f.opts.Concurrency).
		Msg("fetching upstream metadata")

	// Each task writes only its own slot, so no locking is needed.
	results := make([]Result, len(unique))
	var g errgroup.Group
	g.SetLimit(f.opts.Concurrency)
	for i, id := range unique {
		g.Go(func() error {
			results[i] = f.Fetch(ctx, id)
			if f.opts.OnResult != nil {
				f.opts.OnResult(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[trust.Identity]Result, len(unique))
	failed := 0
	for i, id := range unique {
		out[id] = results[i]
		if results[i].Err != nil {
			failed++
		}
	}

	f.opts.Logger.Debug().
		Int("packages", len(unique)).
		Int("failed", failed).
		Dur("elapsed", time.Since(started)).
		Msg("upstream fetch finished")

	return out
}

// Fetch resolves a single identity, retrying transient failures.
func (f *Fetcher) Fetch(ctx context.Context, id trust.Identity) Result {
	log := f.opts.Logger.With().Str("package", id.String()).Logger()

	src, ok := f.sources[id.Repo]
	if !ok {
		return f.fail(log, id, KindProtocol, 0, ErrNoSource)
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= f.opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		attempts++
		snap, err := lookup(ctx, src, id)
		if err == nil {
			if snap.Removed() {
				log.Debug().Msg("package not found upstream")
			} else {
				log.Debug().Str("version", snap.Fingerprint.Version).Str("marker", snap.Fingerprint.ContentMarker).Msg("fetched")
			}
			return Result{Snapshot: snap}
		}

		if errors.Is(err, trust.ErrMalformedMetadata) {
			log.Warn().Err(err).Msg("upstream metadata rejected")
			return Result{Snapshot: Snapshot{Identity: id}, Err: err}
		}

		if ctx.Err() != nil {
			lastErr = err
			break
		}

		if !IsTransient(err) {
			return f.fail(log, id, KindProtocol, attempts, err)
		}

		lastErr = err
		if attempt == f.opts.Retries {
			break
		}

		delay := f.backoff(attempt)
		log.Debug().Err(err).Int("attempt", attempts).Dur("retry_in", delay).Msg("transient fetch failure")
		if err := sleep(ctx, delay); err != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return f.fail(log, id, KindUnavailable, attempts, lastErr)
}

func lookup(ctx context.Context, src Source, id trust.Identity) (Snapshot, error) {
	snap := Snapshot{Identity: id}
	if ms, ok := src.(MetadataSource); ok {
		md, err := ms.Metadata(ctx, id.Name)
		if err != nil || md == nil {
			return snap, err
		}
		fp := md.Fingerprint
		snap.Fingerprint = &fp
		snap.Maintainers = md.Maintainers
		return snap, nil
	}

	fp, err := src.Info(ctx, id.Name)
	snap.Fingerprint = fp
	return snap, err
}

func (f *Fetcher) fail(log zerolog.Logger, id trust.Identity, kind ErrorKind, attempts int, err error) Result {
	fErr := &FetchError{Identity: id, Kind: kind, Attempts: attempts, Err: err}
	log.Warn().Err(err).Str("kind", kind.String()).Int("attempts", attempts).Msg("fetch failed")
	return Result{Snapshot: Snapshot{Identity: id}, Err: fErr}
}

// backoff returns the delay before retry number attempt+1.
func (f *Fetcher) backoff(attempt int) time.Duration {
	d := f.opts.Backoff
	for i := 0; i < attempt && d < f.opts.MaxBackoff; i++ {
		d *= 2
	}
	if d > f.opts.MaxBackoff {
		d = f.opts.MaxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
