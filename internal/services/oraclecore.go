package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"settlement-service/internal/config"
	"settlement-service/internal/models"

	"github.com/google/uuid"
)

// OracleFacade is the read-only view the insurance pool takes on the oracle
// engine.
type OracleFacade interface {
	GetSeasonState(season int) models.SeasonState
	GetAggregatedSeverity(season int, region string) models.Severity
}

type regionKey struct {
	season int
	region string
}

// OracleCore runs the season lifecycle and turns independent oracle
// submissions into one aggregated severity per (season, region). Keepers pay
// for driving the lifecycle and oracles for reporting, out of liquidity
// provided by insurers.
type OracleCore struct {
	mu         sync.Mutex
	gatekeeper AccessController
	escrow     *Escrow
	cfg        config.ProtocolConfig
	sink       EventSink

	balance     int64
	seasons     map[int]models.SeasonState
	seasonList  []int
	submissions map[regionKey]map[string]models.Submission
	tallies     map[regionKey]*models.SubmissionTally
	aggregated  map[regionKey]models.Severity
}

func NewOracleCore(gatekeeper AccessController, escrow *Escrow, cfg config.ProtocolConfig, sink EventSink) *OracleCore {
	return &OracleCore{
		gatekeeper:  gatekeeper,
		escrow:      escrow,
		cfg:         cfg,
		sink:        sink,
		seasons:     make(map[int]models.SeasonState),
		submissions: make(map[regionKey]map[string]models.Submission),
		tallies:     make(map[regionKey]*models.SubmissionTally),
		aggregated:  make(map[regionKey]models.Severity),
	}
}

func (o *OracleCore) emit(ctx context.Context, event models.ProtocolEvent) {
	if o.sink == nil {
		return
	}
	event.ID = uuid.New()
	event.CreatedAt = time.Now()
	o.sink.Emit(ctx, event)
}

func (o *OracleCore) guard(role models.RoleID, caller, op string) error {
	if !o.gatekeeper.IsActive() {
		return fmt.Errorf("%s: %w", op, models.ErrContractSuspended)
	}
	if !o.gatekeeper.IsAssigned(role, caller) {
		return fmt.Errorf("%s: caller %s must hold %s: %w", op, caller, role, models.ErrUnauthorized)
	}
	return nil
}

// payFee moves amount from the engine balance to payee's escrow balance.
// The precondition check happens before any mutation.
func (o *OracleCore) payFee(ctx context.Context, payee string, amount int64, op string) error {
	if o.balance < amount {
		return fmt.Errorf("%s: balance %d below fee %d: %w", op, o.balance, amount, models.ErrInsufficientFunds)
	}
	o.balance -= amount
	return o.escrow.DepositFor(ctx, payee, amount)
}

// Fund adds liquidity. Restricted to insurers.
func (o *OracleCore) Fund(ctx context.Context, caller string, amount int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.guard(models.InsurerRole, caller, "fund oracle"); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("fund oracle: amount %d must be positive", amount)
	}
	o.balance += amount
	o.emit(ctx, models.ProtocolEvent{
		Type:    models.EventLiquidityProvided,
		Account: caller,
		Amount:  amount,
	})
	return nil
}

// OpenSeason transitions season to Open and pays the keeper.
func (o *OracleCore) OpenSeason(ctx context.Context, season int, caller string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	op := fmt.Sprintf("open season %d", season)
	if err := o.guard(models.KeeperRole, caller, op); err != nil {
		return err
	}
	if o.seasons[season] != models.SeasonDefault {
		return fmt.Errorf("%s: %w", op, models.ErrAlreadyExists)
	}
	if err := o.payFee(ctx, caller, o.cfg.OracleKeeperFee, op); err != nil {
		return err
	}
	o.seasons[season] = models.SeasonOpen
	o.seasonList = append(o.seasonList, season)
	o.emit(ctx, models.ProtocolEvent{
		Type:    models.EventSeasonOpen,
		Season:  season,
		Account: caller,
	})
	return nil
}

// CloseSeason transitions an open season to Closed, terminally.
func (o *OracleCore) CloseSeason(ctx context.Context, season int, caller string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	op := fmt.Sprintf("close season %d", season)
	if err := o.guard(models.KeeperRole, caller, op); err != nil {
		return err
	}
	if o.seasons[season] != models.SeasonOpen {
		return fmt.Errorf("%s: season must be open: %w", op, models.ErrInvalidState)
	}
	if err := o.payFee(ctx, caller, o.cfg.OracleKeeperFee, op); err != nil {
		return err
	}
	o.seasons[season] = models.SeasonClosed
	o.emit(ctx, models.ProtocolEvent{
		Type:    models.EventSeasonClosed,
		Season:  season,
		Account: caller,
	})
	return nil
}

// Submit records one oracle's severity observation for (season, region).
// One submission per oracle per key, immutable afterwards.
func (o *OracleCore) Submit(ctx context.Context, season int, region string, severity models.Severity, caller string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	op := fmt.Sprintf("submit severity for season %d region %s", season, region)
	if err := o.guard(models.OracleRole, caller, op); err != nil {
		return err
	}
	if o.seasons[season] != models.SeasonOpen {
		return fmt.Errorf("%s: season must be open: %w", op, models.ErrInvalidState)
	}
	if !severity.IsSubmittable() {
		return fmt.Errorf("%s: severity %q: %w", op, severity, models.ErrInvalidSeverity)
	}
	key := regionKey{season: season, region: region}
	if _, ok := o.submissions[key][caller]; ok {
		return fmt.Errorf("%s: oracle %s already submitted: %w", op, caller, models.ErrDuplicate)
	}
	if err := o.payFee(ctx, caller, o.cfg.OracleFee, op); err != nil {
		return err
	}

	if o.submissions[key] == nil {
		o.submissions[key] = make(map[string]models.Submission)
	}
	o.submissions[key][caller] = models.Submission{
		Season:      season,
		Region:      region,
		Oracle:      caller,
		Severity:    severity,
		SubmittedAt: time.Now().Unix(),
	}
	tally := o.tallies[key]
	if tally == nil {
		tally = &models.SubmissionTally{}
		o.tallies[key] = tally
	}
	tally.BySeverity[severity.Level()]++
	tally.Total++

	o.emit(ctx, models.ProtocolEvent{
		Type:     models.EventSeveritySubmitted,
		Season:   season,
		Region:   region,
		Account:  caller,
		Severity: severity,
	})
	return nil
}

// Aggregate folds the submissions for (season, region) into one severity.
// The dominant bucket is {D0,D1} only on a strict mild majority; ties go to
// the severe bucket. Within the dominant bucket the most submitted level
// wins and count ties resolve to the highest severity. Zero submissions
// yield SeverityDefault. Runs exactly once per key.
func (o *OracleCore) Aggregate(ctx context.Context, season int, region string, caller string) (models.Severity, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	op := fmt.Sprintf("aggregate season %d region %s", season, region)
	if err := o.guard(models.KeeperRole, caller, op); err != nil {
		return models.SeverityDefault, err
	}
	if o.seasons[season] != models.SeasonClosed {
		return models.SeverityDefault, fmt.Errorf("%s: season must be closed: %w", op, models.ErrInvalidState)
	}
	key := regionKey{season: season, region: region}
	if _, done := o.aggregated[key]; done {
		return models.SeverityDefault, fmt.Errorf("%s: %w", op, models.ErrAlreadyAggregated)
	}
	if err := o.payFee(ctx, caller, o.cfg.OracleKeeperFee, op); err != nil {
		return models.SeverityDefault, err
	}

	result := computeAggregate(o.tallies[key])
	o.aggregated[key] = result
	o.emit(ctx, models.ProtocolEvent{
		Type:     models.EventSeverityAggregated,
		Season:   season,
		Region:   region,
		Account:  caller,
		Severity: result,
	})
	return result, nil
}

func computeAggregate(tally *models.SubmissionTally) models.Severity {
	if tally == nil || tally.Total == 0 {
		return models.SeverityDefault
	}
	mild := tally.BySeverity[0] + tally.BySeverity[1]
	severe := tally.BySeverity[2] + tally.BySeverity[3] + tally.BySeverity[4]
	lo, hi := 2, 4
	if mild > severe {
		lo, hi = 0, 1
	}
	best := lo
	for level := lo + 1; level <= hi; level++ {
		if tally.BySeverity[level] >= tally.BySeverity[best] {
			best = level
		}
	}
	return models.SeverityFromLevel(best)
}

// GetAggregatedSeverity implements OracleFacade. SeverityDefault until
// aggregation has run for the key.
func (o *OracleCore) GetAggregatedSeverity(season int, region string) models.Severity {
	o.mu.Lock()
	defer o.mu.Unlock()
	if severity, ok := o.aggregated[regionKey{season: season, region: region}]; ok {
		return severity
	}
	return models.SeverityDefault
}

// IsAggregated reports whether aggregation already ran for the key.
func (o *OracleCore) IsAggregated(season int, region string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.aggregated[regionKey{season: season, region: region}]
	return ok
}

func (o *OracleCore) GetSeasonState(season int) models.SeasonState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if state, ok := o.seasons[season]; ok {
		return state
	}
	return models.SeasonDefault
}

// ListSeasons returns every season ever opened, ascending.
func (o *OracleCore) ListSeasons() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	seasons := make([]int, len(o.seasonList))
	copy(seasons, o.seasonList)
	sort.Ints(seasons)
	return seasons
}

// GetSubmissionTally returns a copy of the per-severity counts for a key.
func (o *OracleCore) GetSubmissionTally(season int, region string) models.SubmissionTally {
	o.mu.Lock()
	defer o.mu.Unlock()
	if tally := o.tallies[regionKey{season: season, region: region}]; tally != nil {
		return *tally
	}
	return models.SubmissionTally{}
}

// GetSubmission returns the recorded submission of one oracle, if any.
func (o *OracleCore) GetSubmission(season int, region, oracle string) (models.Submission, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	submission, ok := o.submissions[regionKey{season: season, region: region}][oracle]
	return submission, ok
}

func (o *OracleCore) Balance() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.balance
}

// SetGatekeeper swaps the access registry. Restricted to accounts holding
// DefaultAdminRole on the current registry; the replacement must provide the
// AccessController capability.
func (o *OracleCore) SetGatekeeper(candidate any, caller string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.gatekeeper.IsAssigned(models.DefaultAdminRole, caller) {
		return fmt.Errorf("set gatekeeper: caller %s must hold %s: %w", caller, models.DefaultAdminRole, models.ErrUnauthorized)
	}
	replacement, ok := candidate.(AccessController)
	if !ok {
		return fmt.Errorf("set gatekeeper: provided registry %T does not implement %s", candidate, AccessControllerCapability)
	}
	o.gatekeeper = replacement
	o.emit(context.Background(), models.ProtocolEvent{
		Type:    models.EventNewGatekeeper,
		Account: caller,
	})
	return nil
}
