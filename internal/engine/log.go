package engine

import (
	"context"

	"choreline/internal/domain"
	"choreline/internal/repo"
)

// normalizeLimit maps a requested page size onto the configured bounds.
func (e Engine) normalizeLimit(in int) int {
	c := e.cfg().Log
	if in <= 0 {
		return c.DefaultLimit
	}
	if in > c.MaxLimit {
		return c.MaxLimit
	}
	return in
}

// ListLog returns recent log entries, newest first.
func (e Engine) ListLog(ctx context.Context, f repo.LogFilters) ([]domain.LogEntry, error) {
	f.Limit = e.normalizeLimit(f.Limit)
	entries, err := e.Repo.ListLog(ctx, f)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	return entries, nil
}

func (e Engine) GetLogEntry(ctx context.Context, id int64) (domain.LogEntry, error) {
	l, err := e.Repo.GetLogEntry(ctx, id)
	if err != nil {
		return l, notFound(err, "log entry", id)
	}
	return l, nil
}
