package daemonrun

import (
	"context"
	"log/slog"

	"taskguard/internal/config"
	"taskguard/internal/history"
	"taskguard/internal/logging"
)

// eventLog writes history rows, degrading to log-only when the database is
// unavailable. A broken history database must never stop a task.
type eventLog struct {
	store  *history.Store
	logger *slog.Logger
}

func openHistory(cfg *config.Config, logger *slog.Logger) *eventLog {
	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		logging.WarnWithContext(logger, "history database unavailable", "history_open_failed",
			logging.Error(err),
			logging.String("history_db", cfg.Paths.HistoryDB),
			logging.String(logging.FieldImpact, "events from this run are only in the log"))
		return &eventLog{logger: logger}
	}
	return &eventLog{store: store, logger: logger}
}

func (e *eventLog) record(ctx context.Context, base history.Event, kind history.Kind, pid int, detail string) {
	if e == nil || e.store == nil {
		return
	}
	ev := base
	ev.Kind = kind
	ev.PID = pid
	ev.Detail = detail
	if err := e.store.Record(ctx, ev); err != nil {
		logging.WarnWithContext(e.logger, "history write failed", "history_write_failed",
			logging.String("history_kind", string(kind)), logging.Error(err))
	}
}

func (e *eventLog) close() {
	if e != nil && e.store != nil {
		_ = e.store.Close()
	}
}
