package orchestrator

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/Veraticus/finmail/internal/common"
)

// Role is the access level of a caller.
type Role string

// Roles.
const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// Action is what a tool needs permission to do.
type Action string

// Actions.
const (
	ActionRead    Action = "read"
	ActionProcess Action = "process"
	ActionModify  Action = "modify"
	ActionAdmin   Action = "admin"
)

// Permissions maps roles to allowed actions.
type Permissions struct {
	roles map[Role]map[Action]bool
	mu    sync.RWMutex
}

// NewPermissions returns the default grants: users read and process, admins and the system do everything.
func NewPermissions() *Permissions {
	all := []Action{ActionRead, ActionProcess, ActionModify, ActionAdmin}
	p := &Permissions{roles: make(map[Role]map[Action]bool)}
	p.Grant(RoleUser, ActionRead, ActionProcess)
	p.Grant(RoleAdmin, all...)
	p.Grant(RoleSystem, all...)
	return p
}

// RoleFor derives a role from a user id.
func (p *Permissions) RoleFor(userID string) Role {
	switch {
	case strings.HasPrefix(userID, "admin_"):
		return RoleAdmin
	case userID == "system" || strings.HasPrefix(userID, "system_"):
		return RoleSystem
	default:
		return RoleUser
	}
}

// Allowed reports whether role may perform action.
func (p *Permissions) Allowed(role Role, action Action) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.roles[role][action]
}

// Check returns ErrPermissionDenied when the user's role lacks action.
func (p *Permissions) Check(userID string, action Action) error {
	role := p.RoleFor(userID)
	if p.Allowed(role, action) {
		return nil
	}
	slog.Warn("Permission denied", "user_id", userID, "role", role, "action", action)
	return fmt.Errorf("%w: role %s cannot %s", common.ErrPermissionDenied, role, action)
}

// Grant adds actions to role.
func (p *Permissions) Grant(role Role, actions ...Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.roles[role] == nil {
		p.roles[role] = make(map[Action]bool)
	}
	for _, a := range actions {
		p.roles[role][a] = true
	}
}

// Revoke removes actions from role.
func (p *Permissions) Revoke(role Role, actions ...Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range actions {
		delete(p.roles[role], a)
	}
}

// Actions lists the actions granted to role, sorted.
func (p *Permissions) Actions(role Role) []Action {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Action, 0, len(p.roles[role]))
	for a, ok := range p.roles[role] {
		if ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
