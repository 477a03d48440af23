// Package watcher re-checks trusted packages in the background.
//
// A Watcher runs a check when it starts, on every tick of the configured
// interval, and shortly after the ledger file is written (for example by
// `aurtrust approve` in another terminal). Ledger events are coalesced so a
// burst of writes yields one check.
//
// The check itself is injected; the watcher only schedules it and logs the
// outcome:
//
//	w, err := watcher.New(cfg.LedgerPath, cfg.WatchInterval, runCheck, logger)
//	if err != nil {
//		return err
//	}
//	return watcher.RunDaemon(ctx, w, "")
//
// StartDaemon and StopDaemon manage a detached watcher through a PID file.
package watcher
