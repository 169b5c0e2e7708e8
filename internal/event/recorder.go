package event

import (
	"context"
	"log/slog"

	"settlement-service/internal/models"
	"settlement-service/internal/repository"
)

// Recorder fans a protocol event out to the journal, the message queue and
// the severity cache. Any of the three may be nil (degraded deployments);
// failures are logged and never surface into the settlement path.
type Recorder struct {
	journal    *repository.SettlementJournal
	publisher  *ProtocolPublisher
	severities *repository.SeverityCache
}

func NewRecorder(journal *repository.SettlementJournal, publisher *ProtocolPublisher, severities *repository.SeverityCache) *Recorder {
	return &Recorder{
		journal:    journal,
		publisher:  publisher,
		severities: severities,
	}
}

func (r *Recorder) Emit(ctx context.Context, event models.ProtocolEvent) {
	if r.journal != nil {
		if err := r.journal.Insert(ctx, &event); err != nil {
			slog.Error("failed to journal protocol event", "type", event.Type, "error", err)
		}
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, event); err != nil {
			slog.Error("failed to publish protocol event", "type", event.Type, "error", err)
		}
	}
	if r.severities != nil && event.Type == models.EventSeverityAggregated {
		if err := r.severities.Set(ctx, event.Season, event.Region, event.Severity); err != nil {
			slog.Error("failed to cache aggregated severity", "season", event.Season, "region", event.Region, "error", err)
		}
	}
}
