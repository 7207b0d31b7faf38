package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rl1809/restaurant/internal/core/domain"
	"github.com/rl1809/restaurant/internal/port"
)

// statusMessage is the wire body shared by the broker sinks.
type statusMessage struct {
	OrderID   string             `json:"order_id"`
	UserID    int64              `json:"user_id"`
	OldStatus domain.OrderStatus `json:"old_status"`
	NewStatus domain.OrderStatus `json:"new_status"`
	Reason    string             `json:"reason,omitempty"`
	Total     string             `json:"total,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

func newStatusMessage(c domain.StatusChange) statusMessage {
	m := statusMessage{
		OrderID:   c.OrderID,
		UserID:    c.UserID,
		OldStatus: c.From,
		NewStatus: c.To,
		Reason:    c.Reason,
		Timestamp: c.At.UTC(),
	}
	if c.Order != nil {
		m.Total = c.Order.Total.StringFixed(2)
	}
	return m
}

// LogSink writes every change to the structured log.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) HandleStatusChange(ctx context.Context, c domain.StatusChange) error {
	s.log.InfoContext(ctx, "status_notification",
		"order_id", c.OrderID,
		"user_id", c.UserID,
		"from", c.From,
		"to", c.To,
		"reason", c.Reason,
	)
	return nil
}

// CacheSink keeps the latest status of every order in a StatusCache.
type CacheSink struct {
	cache port.StatusCache
}

func NewCacheSink(cache port.StatusCache) *CacheSink {
	return &CacheSink{cache: cache}
}

func (s *CacheSink) Name() string { return "status_cache" }

func (s *CacheSink) HandleStatusChange(ctx context.Context, c domain.StatusChange) error {
	return s.cache.CacheStatus(ctx, c)
}

// ArchiveSink hands orders that reached a terminal status to every archive.
type ArchiveSink struct {
	archives []port.OrderArchive
}

func NewArchiveSink(archives ...port.OrderArchive) *ArchiveSink {
	return &ArchiveSink{archives: archives}
}

func (s *ArchiveSink) Name() string { return "archive" }

func (s *ArchiveSink) HandleStatusChange(ctx context.Context, c domain.StatusChange) error {
	if !c.To.Terminal() {
		return nil
	}
	if c.Order == nil {
		return fmt.Errorf("archive %s: change carries no order snapshot", c.OrderID)
	}
	for _, a := range s.archives {
		if err := a.ArchiveOrder(ctx, *c.Order); err != nil {
			return fmt.Errorf("archive %s: %w", c.OrderID, err)
		}
	}
	return nil
}
