package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"settlement-service/internal/models"

	"github.com/google/uuid"
)

// AccessController is the capability the oracle and insurance engines
// require from an access registry. A replacement registry must implement it
// to pass the SetGatekeeper capability check.
type AccessController interface {
	IsAssigned(role models.RoleID, account string) bool
	IsAdmin(role models.RoleID, account string) bool
	IsActive() bool
}

// AccessControllerCapability names the required capability in SetGatekeeper
// errors.
const AccessControllerCapability = "AccessController(IsAssigned,IsAdmin,IsActive)"

// EventSink receives domain events after a successful state transition.
// Implementations must not influence the transition outcome.
type EventSink interface {
	Emit(ctx context.Context, event models.ProtocolEvent)
}

type roleRecord struct {
	admin   models.RoleID
	members []string
	index   map[string]int
}

func (r *roleRecord) has(account string) bool {
	_, ok := r.index[account]
	return ok
}

func (r *roleRecord) add(account string) {
	r.index[account] = len(r.members)
	r.members = append(r.members, account)
}

// remove swaps the removed member with the last one so positional access
// stays dense. Membership order is not part of the contract.
func (r *roleRecord) remove(account string) {
	pos, ok := r.index[account]
	if !ok {
		return
	}
	last := len(r.members) - 1
	if pos != last {
		r.members[pos] = r.members[last]
		r.index[r.members[pos]] = pos
	}
	r.members = r.members[:last]
	delete(r.index, account)
}

// Gatekeeper owns the role hierarchy and the process-wide circuit breaker.
// Every role points at one admin role; the tree is rooted at
// DefaultAdminRole which administers itself. The deployer account is granted
// DefaultAdminRole at construction.
type Gatekeeper struct {
	mu     sync.RWMutex
	active bool
	roles  map[models.RoleID]*roleRecord
	sink   EventSink
}

func NewGatekeeper(deployer string, sink EventSink) *Gatekeeper {
	g := &Gatekeeper{
		active: true,
		roles:  make(map[models.RoleID]*roleRecord),
		sink:   sink,
	}
	root := &roleRecord{admin: models.DefaultAdminRole, index: make(map[string]int)}
	root.add(deployer)
	g.roles[models.DefaultAdminRole] = root
	g.emit(context.Background(), models.ProtocolEvent{
		Type:    models.EventRoleGranted,
		Role:    models.DefaultAdminRole,
		Account: deployer,
	})
	return g
}

func (g *Gatekeeper) emit(ctx context.Context, event models.ProtocolEvent) {
	if g.sink == nil {
		return
	}
	event.ID = uuid.New()
	event.CreatedAt = time.Now()
	g.sink.Emit(ctx, event)
}

// AddRole creates role under adminRole. The caller must hold adminRole; a
// role is created once and never deleted.
func (g *Gatekeeper) AddRole(ctx context.Context, role, adminRole models.RoleID, caller string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active {
		return fmt.Errorf("add role %s: %w", role, models.ErrContractSuspended)
	}
	if _, ok := g.roles[role]; ok {
		return fmt.Errorf("role %s: %w", role, models.ErrAlreadyExists)
	}
	parent, ok := g.roles[adminRole]
	if !ok {
		return fmt.Errorf("admin role %s: %w", adminRole, models.ErrNotFound)
	}
	if !parent.has(caller) {
		return fmt.Errorf("add role %s: caller %s must hold %s: %w", role, caller, adminRole, models.ErrUnauthorized)
	}

	g.roles[role] = &roleRecord{admin: adminRole, index: make(map[string]int)}
	g.emit(ctx, models.ProtocolEvent{
		Type:    models.EventRoleAdminChanged,
		Role:    role,
		Account: caller,
		Details: map[string]any{"admin_role": adminRole},
	})
	g.emit(ctx, models.ProtocolEvent{
		Type:    models.EventNewRole,
		Role:    role,
		Account: caller,
		Details: map[string]any{"admin_role": adminRole},
	})
	return nil
}

// AddAssignment grants role to account. Restricted to holders of the role's
// admin role. Granting an account a role it already holds is an explicit
// error, not a no-op.
func (g *Gatekeeper) AddAssignment(ctx context.Context, role models.RoleID, account, caller string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, _, err := g.adminGuard(role, caller, "add assignment")
	if err != nil {
		return err
	}
	if rec.has(account) {
		return fmt.Errorf("account %s on role %s: %w", account, role, models.ErrAlreadyAssigned)
	}
	rec.add(account)
	g.emit(ctx, models.ProtocolEvent{
		Type:    models.EventRoleGranted,
		Role:    role,
		Account: account,
		Details: map[string]any{"sender": caller},
	})
	return nil
}

// RemoveAssignment revokes role from account. Revoking a role the account
// does not hold is a no-op.
func (g *Gatekeeper) RemoveAssignment(ctx context.Context, role models.RoleID, account, caller string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, _, err := g.adminGuard(role, caller, "remove assignment")
	if err != nil {
		return err
	}
	if !rec.has(account) {
		return nil
	}
	rec.remove(account)
	g.emit(ctx, models.ProtocolEvent{
		Type:    models.EventRoleRevoked,
		Role:    role,
		Account: account,
		Details: map[string]any{"sender": caller},
	})
	return nil
}

// RenounceAdmin removes the caller from role's admin role.
func (g *Gatekeeper) RenounceAdmin(ctx context.Context, role models.RoleID, caller string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, adminRec, err := g.adminGuard(role, caller, "renounce admin")
	if err != nil {
		return err
	}
	adminRec.remove(caller)
	g.emit(ctx, models.ProtocolEvent{
		Type:    models.EventRoleRevoked,
		Role:    rec.admin,
		Account: caller,
		Details: map[string]any{"sender": caller},
	})
	return nil
}

// AddAdmin grants account the admin role of role. Restricted to holders of
// the admin role's own admin (the grandparent), so only the admin-of-admins
// can mint peer admins.
func (g *Gatekeeper) AddAdmin(ctx context.Context, role models.RoleID, account, caller string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active {
		return fmt.Errorf("add admin on role %s: %w", role, models.ErrContractSuspended)
	}
	rec, ok := g.roles[role]
	if !ok {
		return fmt.Errorf("role %s: %w", role, models.ErrNotFound)
	}
	adminRec := g.roles[rec.admin]
	grandRec := g.roles[adminRec.admin]
	if !grandRec.has(caller) {
		return fmt.Errorf("add admin on role %s: caller %s must hold %s: %w", role, caller, adminRec.admin, models.ErrUnauthorized)
	}
	if adminRec.has(account) {
		return fmt.Errorf("account %s on role %s: %w", account, rec.admin, models.ErrAlreadyAssigned)
	}
	adminRec.add(account)
	g.emit(ctx, models.ProtocolEvent{
		Type:    models.EventNewAdmin,
		Role:    role,
		Account: account,
		Details: map[string]any{"admin": caller},
	})
	g.emit(ctx, models.ProtocolEvent{
		Type:    models.EventRoleGranted,
		Role:    rec.admin,
		Account: account,
		Details: map[string]any{"sender": caller},
	})
	return nil
}

// adminGuard checks the breaker, resolves role and its admin role record and
// verifies the caller holds the admin role.
func (g *Gatekeeper) adminGuard(role models.RoleID, caller, op string) (*roleRecord, *roleRecord, error) {
	if !g.active {
		return nil, nil, fmt.Errorf("%s on role %s: %w", op, role, models.ErrContractSuspended)
	}
	rec, ok := g.roles[role]
	if !ok {
		return nil, nil, fmt.Errorf("role %s: %w", role, models.ErrNotFound)
	}
	adminRec := g.roles[rec.admin]
	if !adminRec.has(caller) {
		return nil, nil, fmt.Errorf("%s on role %s: caller %s must hold %s: %w", op, role, caller, rec.admin, models.ErrUnauthorized)
	}
	return rec, adminRec, nil
}

// SwitchOff suspends every privileged mutation across the protocol.
func (g *Gatekeeper) SwitchOff(ctx context.Context, caller string) error {
	return g.switchTo(ctx, false, caller)
}

// SwitchOn lifts the suspension.
func (g *Gatekeeper) SwitchOn(ctx context.Context, caller string) error {
	return g.switchTo(ctx, true, caller)
}

func (g *Gatekeeper) switchTo(ctx context.Context, active bool, caller string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.roles[models.DefaultAdminRole].has(caller) {
		return fmt.Errorf("switch breaker: caller %s must hold %s: %w", caller, models.DefaultAdminRole, models.ErrUnauthorized)
	}
	g.active = active
	eventType := models.EventSwitchedOff
	if active {
		eventType = models.EventSwitchedOn
	}
	g.emit(ctx, models.ProtocolEvent{Type: eventType, Account: caller})
	return nil
}

func (g *Gatekeeper) IsActive() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

func (g *Gatekeeper) IsAssigned(role models.RoleID, account string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.roles[role]
	return ok && rec.has(account)
}

// IsAdmin reports whether account holds role's admin role. Admin status
// never inherits further up the tree.
func (g *Gatekeeper) IsAdmin(role models.RoleID, account string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.roles[role]
	if !ok {
		return false
	}
	return g.roles[rec.admin].has(account)
}

// RoleAdmin returns the admin role of role.
func (g *Gatekeeper) RoleAdmin(role models.RoleID) (models.RoleID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.roles[role]
	if !ok {
		return "", fmt.Errorf("role %s: %w", role, models.ErrNotFound)
	}
	return rec.admin, nil
}

func (g *Gatekeeper) GetAssigneesCount(role models.RoleID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.roles[role]
	if !ok {
		return 0
	}
	return len(rec.members)
}

func (g *Gatekeeper) GetAssigneeAt(role models.RoleID, index int) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.roles[role]
	if !ok {
		return "", fmt.Errorf("role %s: %w", role, models.ErrNotFound)
	}
	if index < 0 || index >= len(rec.members) {
		return "", fmt.Errorf("assignee %d of role %s: %w", index, role, models.ErrNotFound)
	}
	return rec.members[index], nil
}
