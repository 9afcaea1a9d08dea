package rbac

import (
	"errors"
	"fmt"
)

// Wildcard matches any resource or action. Reserved for the top role.
const Wildcard = "*"

var (
	// ErrUnknownRole reports a role name absent from the registry.
	ErrUnknownRole = errors.New("unknown role")
	// ErrCyclicRoles reports an inheritance cycle found at load time.
	ErrCyclicRoles = errors.New("cyclic role inheritance")
)

// Permission grants one action on one resource, optionally gated by
// conditions that are evaluated against the request context.
type Permission struct {
	Resource   string            `json:"resource"`
	Action     string            `json:"action"`
	Conditions map[string]string `json:"conditions,omitempty"`
}

// RoleDefinition names a role, its direct permissions, and the roles it
// inherits from.
type RoleDefinition struct {
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
	Inherits    []string     `json:"inherits,omitempty"`
	Rank        int          `json:"rank"`
}

// Context carries the caller identity attributes conditions are evaluated
// against.
type Context struct {
	UserID            string
	Role              string
	WarehouseID       string
	ResourceOwnerID   string
	ResourceWarehouse string
}

// Registry is the static, immutable role table. Build once at startup; all
// methods are safe for concurrent use afterwards.
type Registry struct {
	roles map[string]RoleDefinition
}

// NewRegistry validates the role table (known inheritance targets, acyclic
// graph, wildcard reserved to the highest rank) and returns a Registry.
func NewRegistry(defs []RoleDefinition) (*Registry, error) {
	roles := make(map[string]RoleDefinition, len(defs))
	maxRank := 0
	for _, def := range defs {
		if def.Name == "" {
			return nil, errors.New("role with empty name")
		}
		if _, dup := roles[def.Name]; dup {
			return nil, fmt.Errorf("duplicate role %q", def.Name)
		}
		roles[def.Name] = def
		if def.Rank > maxRank {
			maxRank = def.Rank
		}
	}

	for _, def := range roles {
		for _, parent := range def.Inherits {
			if _, ok := roles[parent]; !ok {
				return nil, fmt.Errorf("role %q inherits %w %q", def.Name, ErrUnknownRole, parent)
			}
		}
		for _, perm := range def.Permissions {
			if (perm.Resource == Wildcard || perm.Action == Wildcard) && def.Rank < maxRank {
				return nil, fmt.Errorf("wildcard permission on non-top role %q", def.Name)
			}
		}
	}

	r := &Registry{roles: roles}
	for name := range roles {
		if r.hasCycle(name) {
			return nil, fmt.Errorf("%w involving %q", ErrCyclicRoles, name)
		}
	}
	return r, nil
}

// Role returns the definition for name.
func (r *Registry) Role(name string) (RoleDefinition, bool) {
	def, ok := r.roles[name]
	return def, ok
}

// AllPermissions collects the permissions of role and every ancestor via
// depth-first traversal. The visited set makes traversal terminate even on a
// graph that slipped past load-time validation.
func (r *Registry) AllPermissions(role string) []Permission {
	visited := make(map[string]bool, len(r.roles))
	var perms []Permission
	r.collect(role, visited, &perms)
	return perms
}

func (r *Registry) collect(role string, visited map[string]bool, out *[]Permission) {
	if visited[role] {
		return
	}
	visited[role] = true

	def, ok := r.roles[role]
	if !ok {
		return
	}
	*out = append(*out, def.Permissions...)
	for _, parent := range def.Inherits {
		r.collect(parent, visited, out)
	}
}

// HasPermission reports whether ctx.Role is allowed to perform action on
// resource. A permission matches on exact resource/action or via wildcard;
// when the matching permission carries conditions, all of them must pass.
func (r *Registry) HasPermission(ctx Context, resource, action string) bool {
	for _, perm := range r.AllPermissions(ctx.Role) {
		if perm.Resource != Wildcard && perm.Resource != resource {
			continue
		}
		if perm.Action != Wildcard && perm.Action != action {
			continue
		}
		if conditionsPass(ctx, perm.Conditions) {
			return true
		}
	}
	return false
}

// conditionsPass evaluates every condition against the context. Unknown keys
// fail the check: an unrecognized grant restriction must never widen access.
func conditionsPass(ctx Context, conditions map[string]string) bool {
	for key, want := range conditions {
		switch key {
		case "assignedTo":
			if want != "self" || ctx.ResourceOwnerID == "" || ctx.ResourceOwnerID != ctx.UserID {
				return false
			}
		case "warehouse":
			if want != "same" || ctx.WarehouseID == "" || ctx.ResourceWarehouse != ctx.WarehouseID {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// ValidateRoleChange reports whether actorRole may assign targetRole. A role
// at or above the actor's rank cannot be granted, and the admin role can only
// be granted by an admin.
func (r *Registry) ValidateRoleChange(actorRole, targetRole string) error {
	actor, ok := r.roles[actorRole]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownRole, actorRole)
	}
	target, ok := r.roles[targetRole]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownRole, targetRole)
	}
	if targetRole == RoleAdmin {
		if actorRole != RoleAdmin {
			return fmt.Errorf("only %q may grant %q", RoleAdmin, RoleAdmin)
		}
		return nil
	}
	if target.Rank >= actor.Rank {
		return fmt.Errorf("role %q cannot grant %q", actorRole, targetRole)
	}
	return nil
}

// hasCycle walks inheritance edges from start looking for a back edge.
func (r *Registry) hasCycle(start string) bool {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(r.roles))

	var walk func(name string) bool
	walk = func(name string) bool {
		switch state[name] {
		case inStack:
			return true
		case done:
			return false
		}
		state[name] = inStack
		for _, parent := range r.roles[name].Inherits {
			if walk(parent) {
				return true
			}
		}
		state[name] = done
		return false
	}
	return walk(start)
}
