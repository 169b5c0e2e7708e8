package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"settlement-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SettlementJournal is the append-only audit trail of protocol events. It is
// write-behind: the engines never wait on it and a journal failure never
// rolls back a settlement.
type SettlementJournal struct {
	db *sqlx.DB
}

func NewSettlementJournal(db *sqlx.DB) *SettlementJournal {
	return &SettlementJournal{db: db}
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS settlement_event (
	id UUID PRIMARY KEY,
	event_type TEXT NOT NULL,
	season INT NOT NULL DEFAULT 0,
	region TEXT NOT NULL DEFAULT '',
	farm_id TEXT NOT NULL DEFAULT '',
	account TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT '',
	severity TEXT NOT NULL DEFAULT '',
	amount BIGINT NOT NULL DEFAULT 0,
	payload JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS settlement_event_season_region_idx ON settlement_event (season, region);
CREATE INDEX IF NOT EXISTS settlement_event_type_idx ON settlement_event (event_type);`

func (j *SettlementJournal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, journalSchema); err != nil {
		return fmt.Errorf("failed to ensure settlement_event schema: %w", err)
	}
	return nil
}

type journalRow struct {
	ID        uuid.UUID       `db:"id"`
	EventType string          `db:"event_type"`
	Season    int             `db:"season"`
	Region    string          `db:"region"`
	FarmID    string          `db:"farm_id"`
	Account   string          `db:"account"`
	Role      string          `db:"role"`
	Severity  string          `db:"severity"`
	Amount    int64           `db:"amount"`
	Payload   json.RawMessage `db:"payload"`
	CreatedAt time.Time       `db:"created_at"`
}

func (j *SettlementJournal) Insert(ctx context.Context, event *models.ProtocolEvent) error {
	row := journalRow{
		ID:        event.ID,
		EventType: string(event.Type),
		Season:    event.Season,
		Region:    event.Region,
		FarmID:    event.FarmID,
		Account:   event.Account,
		Role:      string(event.Role),
		Severity:  string(event.Severity),
		Amount:    event.Amount,
		CreatedAt: event.CreatedAt,
	}
	if event.Details != nil {
		payload, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
		row.Payload = payload
	}

	query := `
		INSERT INTO settlement_event (
			id, event_type, season, region, farm_id, account, role, severity, amount, payload, created_at
		) VALUES (
			:id, :event_type, :season, :region, :farm_id, :account, :role, :severity, :amount, :payload, :created_at
		)`

	if _, err := j.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to insert settlement event: %w", err)
	}
	return nil
}

// ListBySeason returns a season's events in insertion order.
func (j *SettlementJournal) ListBySeason(ctx context.Context, season int) ([]models.ProtocolEvent, error) {
	var rows []journalRow
	query := `SELECT * FROM settlement_event WHERE season = $1 ORDER BY created_at ASC`
	if err := j.db.SelectContext(ctx, &rows, query, season); err != nil {
		return nil, fmt.Errorf("failed to list settlement events: %w", err)
	}
	return toEvents(rows)
}

// ListByAccount returns every event that touched an account, newest first.
func (j *SettlementJournal) ListByAccount(ctx context.Context, account string, limit int) ([]models.ProtocolEvent, error) {
	var rows []journalRow
	query := `SELECT * FROM settlement_event WHERE account = $1 ORDER BY created_at DESC LIMIT $2`
	if err := j.db.SelectContext(ctx, &rows, query, account, limit); err != nil {
		return nil, fmt.Errorf("failed to list settlement events: %w", err)
	}
	return toEvents(rows)
}

func toEvents(rows []journalRow) ([]models.ProtocolEvent, error) {
	events := make([]models.ProtocolEvent, 0, len(rows))
	for _, row := range rows {
		event := models.ProtocolEvent{
			ID:        row.ID,
			Type:      models.EventType(row.EventType),
			Season:    row.Season,
			Region:    row.Region,
			FarmID:    row.FarmID,
			Account:   row.Account,
			Role:      models.RoleID(row.Role),
			Severity:  models.Severity(row.Severity),
			Amount:    row.Amount,
			CreatedAt: row.CreatedAt,
		}
		if len(row.Payload) > 0 {
			if err := json.Unmarshal(row.Payload, &event.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, nil
}
