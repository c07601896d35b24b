package model

// Tables returns the MES tables in dependency order: every table appears after
// the tables it references.
func Tables() []any {
	return []any{
		&Machine{},
		&Tool{},
		&ToolMetric{},
		&ToolAssignment{},
		&User{},
		&MaintenanceLog{},
		&MachineMetric{},
	}
}

// All returns every migrated model, including notification tables.
func All() []any {
	return append(Tables(), &PushSubscription{})
}
