package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Trigger says why a check ran.
type Trigger string

const (
	TriggerStart  Trigger = "start"
	TriggerTick   Trigger = "interval"
	TriggerLedger Trigger = "ledger_changed"
)

// CheckFunc runs one reconciliation pass.
type CheckFunc func(ctx context.Context, trigger Trigger) error

// DefaultDebounce is how long ledger events are coalesced before a check.
const DefaultDebounce = 250 * time.Millisecond

// Watcher re-runs a check on a fixed interval and whenever the ledger file
// is written. Checks never overlap: they all run on the watcher's loop
// goroutine.
type Watcher struct {
	ledgerPath string
	interval   time.Duration
	debounce   time.Duration
	check      CheckFunc
	logger     zerolog.Logger

	fsw    *fsnotify.Watcher
	ticker *time.Ticker
	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	runs    int
}

// New creates a watcher for the ledger at ledgerPath.
func New(ledgerPath string, interval time.Duration, check CheckFunc, logger zerolog.Logger) (*Watcher, error) {
	if check == nil {
		return nil, fmt.Errorf("watcher needs a check function")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("invalid watch interval %s", interval)
	}
	abs, err := filepath.Abs(ledgerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ledger path: %w", err)
	}

	return &Watcher{
		ledgerPath: abs,
		interval:   interval,
		debounce:   DefaultDebounce,
		check:      check,
		logger:     logger.With().Str("component", "watcher").Logger(),
	}, nil
}

// SetDebounce changes how long ledger events are coalesced. Must be called
// before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Runs returns how many checks have completed.
func (w *Watcher) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

// Start watches the ledger's directory and begins the check loop. The first
// check runs immediately. The ledger is replaced by rename on save, so the
// directory is watched rather than the file itself.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("watcher already started")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.ledgerPath)); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.ledgerPath), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.ticker = time.NewTicker(w.interval)
	w.stopCh = make(chan struct{})
	w.started = true

	w.logger.Info().
		Str("ledger", w.ledgerPath).
		Dur("interval", w.interval).
		Msg("watching")

	w.wg.Add(1)
	go w.loop(ctx)

	return nil
}

// Stop ends the loop, waiting for a running check to return.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	w.mu.Unlock()

	close(w.stopCh)
	w.cancel()
	w.wg.Wait()

	w.ticker.Stop()
	return w.fsw.Close()
}

// Run starts the watcher and blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.logger.Info().Msg("shutting down")
	return w.Stop()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	w.runCheck(ctx, TriggerStart)

	// pending fires once ledger events have been quiet for the debounce.
	var pending <-chan time.Time
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-w.stopCh:
			return

		case <-w.ticker.C:
			w.runCheck(ctx, TriggerTick)

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.isLedgerEvent(ev) {
				continue
			}
			w.logger.Debug().Str("op", ev.Op.String()).Msg("ledger event")
			if debounceTimer == nil {
				debounceTimer = time.NewTimer(w.debounce)
			} else {
				debounceTimer.Reset(w.debounce)
			}
			pending = debounceTimer.C

		case <-pending:
			pending = nil
			w.runCheck(ctx, TriggerLedger)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("file watcher error")
		}
	}
}

func (w *Watcher) isLedgerEvent(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.ledgerPath {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) runCheck(ctx context.Context, trigger Trigger) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	err := w.check(ctx, trigger)

	w.mu.Lock()
	w.runs++
	w.mu.Unlock()

	ev := w.logger.Info()
	if err != nil {
		ev = w.logger.Error().Err(err)
	}
	ev.Str("trigger", string(trigger)).
		Dur("elapsed", time.Since(start)).
		Msg("check finished")
}
