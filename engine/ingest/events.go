package ingest

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/DocentAI/docent-engine/pkg/natsutil"
)

// NATS subjects for ingestion lifecycle events.
const (
	SubjectProgress = "docent.ingest.progress"
	SubjectDone     = "docent.ingest.done"
)

// ProgressEvent is published after each embedded page window.
type ProgressEvent struct {
	DocumentID     string `json:"document_id"`
	ProcessedPages int    `json:"processed_pages"`
	TotalPages     int    `json:"total_pages"`
}

// DoneEvent is published once a document run completes.
type DoneEvent struct {
	DocumentID string  `json:"document_id"`
	Summary    Summary `json:"summary"`
}

// EventSink receives ingestion lifecycle events. Delivery is best-effort;
// event failures never fail an ingestion run.
type EventSink interface {
	Progress(ctx context.Context, ev ProgressEvent)
	Done(ctx context.Context, ev DoneEvent)
}

// NATSEvents publishes lifecycle events to NATS.
type NATSEvents struct {
	nc     *nats.Conn
	logger *slog.Logger
}

func NewNATSEvents(nc *nats.Conn, logger *slog.Logger) *NATSEvents {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSEvents{nc: nc, logger: logger}
}

func (e *NATSEvents) Progress(ctx context.Context, ev ProgressEvent) {
	if err := natsutil.Publish(ctx, e.nc, SubjectProgress, ev); err != nil {
		e.logger.Warn("ingest: progress event dropped", "doc", ev.DocumentID, "err", err)
	}
}

func (e *NATSEvents) Done(ctx context.Context, ev DoneEvent) {
	if err := natsutil.Publish(ctx, e.nc, SubjectDone, ev); err != nil {
		e.logger.Warn("ingest: done event dropped", "doc", ev.DocumentID, "err", err)
	}
}

// NopEvents discards all events.
type NopEvents struct{}

func (NopEvents) Progress(context.Context, ProgressEvent) {}
func (NopEvents) Done(context.Context, DoneEvent)         {}
