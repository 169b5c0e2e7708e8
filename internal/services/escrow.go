package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"settlement-service/internal/models"

	"github.com/google/uuid"
)

// Escrow is a pull-payment ledger: the engines credit payees here and each
// payee withdraws its full balance itself. Crediting never triggers payee
// code, which keeps fund movement decoupled from settlement logic.
type Escrow struct {
	mu       sync.Mutex
	name     string
	balances map[string]int64
	sink     EventSink
}

func NewEscrow(name string, sink EventSink) *Escrow {
	return &Escrow{
		name:     name,
		balances: make(map[string]int64),
		sink:     sink,
	}
}

func (e *Escrow) emit(ctx context.Context, event models.ProtocolEvent) {
	if e.sink == nil {
		return
	}
	event.ID = uuid.New()
	event.CreatedAt = time.Now()
	if event.Details == nil {
		event.Details = map[string]any{}
	}
	event.Details["escrow"] = e.name
	e.sink.Emit(ctx, event)
}

// DepositFor credits payee. Internal to the engines; there is no public
// deposit entry point.
func (e *Escrow) DepositFor(ctx context.Context, payee string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit %d for %s: amount must be positive", amount, payee)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.balances[payee] += amount
	e.emit(ctx, models.ProtocolEvent{
		Type:    models.EventDeposited,
		Account: payee,
		Amount:  amount,
	})
	return nil
}

// Withdraw pays out the caller's full balance and zeroes it. A zero balance
// is rejected with ErrNothingToWithdraw rather than treated as a no-op.
func (e *Escrow) Withdraw(ctx context.Context, caller string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	amount := e.balances[caller]
	if amount == 0 {
		return 0, fmt.Errorf("withdraw for %s: %w", caller, models.ErrNothingToWithdraw)
	}
	e.balances[caller] = 0
	e.emit(ctx, models.ProtocolEvent{
		Type:    models.EventWithdrawn,
		Account: caller,
		Amount:  amount,
	})
	return amount, nil
}

func (e *Escrow) BalanceOf(account string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[account]
}

// TotalHeld is the sum of all withdrawable balances.
func (e *Escrow) TotalHeld() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var total int64
	for _, balance := range e.balances {
		total += balance
	}
	return total
}
