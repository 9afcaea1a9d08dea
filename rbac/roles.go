package rbac

// Role names used across MaintainPro.
const (
	RoleTechnician = "technician"
	RoleSupervisor = "supervisor"
	RoleManager    = "manager"
	RoleAdmin      = "admin"
)

// DefaultRoles is the production MaintainPro role table. Technicians act on
// work assigned to them inside their own warehouse; supervisors manage their
// warehouse; managers operate across warehouses including destructive
// operations; admin holds the reserved wildcard.
func DefaultRoles() []RoleDefinition {
	return []RoleDefinition{
		{
			Name: RoleTechnician,
			Rank: 1,
			Permissions: []Permission{
				{Resource: "work_orders", Action: "read", Conditions: map[string]string{"warehouse": "same"}},
				{Resource: "work_orders", Action: "update", Conditions: map[string]string{"assignedTo": "self"}},
				{Resource: "equipment", Action: "read", Conditions: map[string]string{"warehouse": "same"}},
				{Resource: "parts", Action: "read", Conditions: map[string]string{"warehouse": "same"}},
				{Resource: "pm_schedules", Action: "read", Conditions: map[string]string{"warehouse": "same"}},
			},
		},
		{
			Name:     RoleSupervisor,
			Rank:     2,
			Inherits: []string{RoleTechnician},
			Permissions: []Permission{
				{Resource: "work_orders", Action: "create"},
				{Resource: "work_orders", Action: "update", Conditions: map[string]string{"warehouse": "same"}},
				{Resource: "work_orders", Action: "assign", Conditions: map[string]string{"warehouse": "same"}},
				{Resource: "equipment", Action: "update", Conditions: map[string]string{"warehouse": "same"}},
				{Resource: "parts", Action: "update", Conditions: map[string]string{"warehouse": "same"}},
				{Resource: "pm_schedules", Action: "create", Conditions: map[string]string{"warehouse": "same"}},
				{Resource: "reports", Action: "read"},
			},
		},
		{
			Name:     RoleManager,
			Rank:     3,
			Inherits: []string{RoleSupervisor},
			Permissions: []Permission{
				{Resource: "work_orders", Action: "delete"},
				{Resource: "equipment", Action: "create"},
				{Resource: "equipment", Action: "delete"},
				{Resource: "parts", Action: "create"},
				{Resource: "parts", Action: "delete"},
				{Resource: "pm_schedules", Action: "update"},
				{Resource: "pm_schedules", Action: "delete"},
				{Resource: "vendors", Action: "create"},
				{Resource: "vendors", Action: "update"},
				{Resource: "users", Action: "read"},
			},
		},
		{
			Name:     RoleAdmin,
			Rank:     4,
			Inherits: []string{RoleManager},
			Permissions: []Permission{
				{Resource: Wildcard, Action: Wildcard},
			},
		},
	}
}
