package csvimport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"mes-backend/internal/model"
)

// File names read by the importer, in load order.
const (
	MachinesFile        = "machines.csv"
	ToolsFile           = "tools.csv"
	ToolMetricsFile     = "tool_metrics.csv"
	ToolAssignmentsFile = "tool_assignments.csv"
	UsersFile           = "users.csv"
	MaintenanceLogsFile = "maintenance_logs.csv"
	MachineMetricsFile  = "machine_metrics.csv"
)

const batchSize = 500

// Result holds the number of rows inserted per table.
type Result struct {
	Machines        int `json:"machines"`
	Tools           int `json:"tools"`
	ToolMetrics     int `json:"tool_metrics"`
	ToolAssignments int `json:"tool_assignments"`
	Users           int `json:"users"`
	MaintenanceLogs int `json:"maintenance_logs"`
	MachineMetrics  int `json:"machine_metrics"`
}

// Importer replaces the whole dataset with the contents of a CSV directory.
type Importer struct {
	db  *gorm.DB
	dir string
	log *zap.Logger

	mu sync.Mutex // serializes Run
}

// NewImporter creates an importer reading from dir.
func NewImporter(db *gorm.DB, dir string, log *zap.Logger) *Importer {
	return &Importer{db: db, dir: dir, log: log}
}

// Dir returns the directory the importer reads from.
func (im *Importer) Dir() string {
	return im.dir
}

// Run parses every file, then drops, recreates and fills the schema in one
// transaction. Nothing is written unless every file parses and every
// reference resolves; a failed insert rolls back the drop as well.
func (im *Importer) Run(ctx context.Context) (*Result, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	start := time.Now()
	im.log.Info("starting csv import", zap.String("dir", im.dir))

	ds, err := load(im.dir)
	if err != nil {
		im.log.Error("csv import aborted while parsing", zap.Error(err))
		return nil, err
	}

	var res Result
	err = im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := resetSchema(tx); err != nil {
			return err
		}
		return ds.insert(tx, &res)
	})
	if err != nil {
		im.log.Error("csv import rolled back", zap.Error(err))
		return nil, err
	}

	im.log.Info("csv import complete",
		zap.Int("machines", res.Machines),
		zap.Int("tools", res.Tools),
		zap.Int("tool_metrics", res.ToolMetrics),
		zap.Int("tool_assignments", res.ToolAssignments),
		zap.Int("users", res.Users),
		zap.Int("maintenance_logs", res.MaintenanceLogs),
		zap.Int("machine_metrics", res.MachineMetrics),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &res, nil
}

// resetSchema drops every managed table, dependents first, and recreates
// the empty schema.
func resetSchema(tx *gorm.DB) error {
	m := tx.Migrator()
	if m.HasTable("subscription_machines") {
		if err := m.DropTable("subscription_machines"); err != nil {
			return fmt.Errorf("failed to drop subscription_machines: %w", err)
		}
	}

	tables := model.Tables()
	for i := len(tables) - 1; i >= 0; i-- {
		if err := m.DropTable(tables[i]); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}

	if err := tx.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("failed to recreate schema: %w", err)
	}
	return nil
}

type keyed[T any] struct {
	key  string
	line int
	v    T
}

type toolMetricRow struct {
	line int
	tool string
	v    model.ToolMetric
}

type assignmentRow struct {
	line    int
	machine string
	tool    string
}

type maintenanceRow struct {
	line    int
	machine string
	user    string
	v       model.MaintenanceLog
}

type machineMetricRow struct {
	line    int
	machine string
	v       model.MachineMetric
}

// dataset is the parsed content of a CSV directory. Foreign keys are still
// CSV-local keys at this point.
type dataset struct {
	machines       []keyed[model.Machine]
	tools          []keyed[model.Tool]
	toolMetrics    []toolMetricRow
	assignments    []assignmentRow
	users          []keyed[model.User]
	maintenance    []maintenanceRow
	machineMetrics []machineMetricRow
}

// load parses every file in dir and checks all cross-file references.
func load(dir string) (*dataset, error) {
	if !dirExists(dir) {
		return nil, fmt.Errorf("csv directory %q does not exist", dir)
	}
	ds := &dataset{}
	now := time.Now().UTC()

	steps := []struct {
		file     string
		optional bool
		parse    func(*table) error
	}{
		{MachinesFile, false, ds.parseMachines},
		{ToolsFile, false, ds.parseTools},
		{ToolMetricsFile, true, ds.parseToolMetrics},
		{ToolAssignmentsFile, true, ds.parseAssignments},
		{UsersFile, false, func(t *table) error { return ds.parseUsers(t, now) }},
		{MaintenanceLogsFile, false, ds.parseMaintenance},
		{MachineMetricsFile, false, ds.parseMachineMetrics},
	}

	for _, step := range steps {
		t, err := readTable(filepath.Join(dir, step.file))
		if errors.Is(err, fs.ErrNotExist) && step.optional {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", step.file, err)
		}
		if err := step.parse(t); err != nil {
			return nil, err
		}
	}

	ds.resolvePerformers(now)
	if err := ds.checkReferences(); err != nil {
		return nil, err
	}
	return ds, nil
}

func (ds *dataset) parseMachines(t *table) error {
	if err := t.require("name", "category", "group", "manufacturer", "created_at"); err != nil {
		return err
	}
	for i := range t.rows {
		r := t.row(i)
		m := model.Machine{
			Name:         r.str("name"),
			Category:     r.str("category"),
			Group:        r.str("group"),
			Manufacturer: r.str("manufacturer"),
			CreatedAt:    r.timestamp("created_at"),
		}
		key := r.key()
		if err := r.Err(); err != nil {
			return err
		}
		ds.machines = append(ds.machines, keyed[model.Machine]{key: key, line: r.line, v: m})
	}
	return uniqueKeys(t.file, ds.machines)
}

// parseTools also accepts the older layout carrying status, wear_level and
// storage_location; those columns become one tool metric per tool.
func (ds *dataset) parseTools(t *table) error {
	if err := t.require("name", "type", "created_at"); err != nil {
		return err
	}
	legacy := t.has("status") && t.has("wear_level")
	for i := range t.rows {
		r := t.row(i)
		tool := model.Tool{
			Name:      r.str("name"),
			Type:      r.str("type"),
			CreatedAt: r.timestamp("created_at"),
		}
		key := r.key()
		var metric model.ToolMetric
		if legacy {
			metric = model.ToolMetric{
				Status:          r.str("status"),
				WearLevel:       r.integer("wear_level"),
				StorageLocation: r.optional("storage_location"),
			}
		}
		if err := r.Err(); err != nil {
			return err
		}
		if legacy {
			if err := checkWear(r, metric.WearLevel); err != nil {
				return err
			}
			metric.NormalizeStorage()
			ds.toolMetrics = append(ds.toolMetrics, toolMetricRow{line: r.line, tool: key, v: metric})
		}
		ds.tools = append(ds.tools, keyed[model.Tool]{key: key, line: r.line, v: tool})
	}
	return uniqueKeys(t.file, ds.tools)
}

// parseToolMetrics replaces any metrics derived from the legacy tools layout.
func (ds *dataset) parseToolMetrics(t *table) error {
	if err := t.require("tool_id", "status", "wear_level"); err != nil {
		return err
	}
	ds.toolMetrics = ds.toolMetrics[:0]
	for i := range t.rows {
		r := t.row(i)
		tool := r.str("tool_id")
		m := model.ToolMetric{
			Status:          r.str("status"),
			WearLevel:       r.integer("wear_level"),
			StorageLocation: r.optional("storage_location"),
		}
		if err := r.Err(); err != nil {
			return err
		}
		if err := checkWear(r, m.WearLevel); err != nil {
			return err
		}
		m.NormalizeStorage()
		ds.toolMetrics = append(ds.toolMetrics, toolMetricRow{line: r.line, tool: tool, v: m})
	}
	return nil
}

func (ds *dataset) parseAssignments(t *table) error {
	if err := t.require("machine_id", "tool_id"); err != nil {
		return err
	}
	seen := make(map[string]int)
	for i := range t.rows {
		r := t.row(i)
		a := assignmentRow{line: r.line, machine: r.str("machine_id"), tool: r.str("tool_id")}
		if err := r.Err(); err != nil {
			return err
		}
		if prev, dup := seen[a.machine]; dup {
			return &RowError{File: t.file, Line: r.line, Column: "machine_id",
				Err: fmt.Errorf("machine %s already assigned on line %d", a.machine, prev)}
		}
		seen[a.machine] = r.line
		ds.assignments = append(ds.assignments, a)
	}
	return nil
}

// parseUsers accepts firstname/lastname as aliases of first_name/last_name.
// The older credentials layout has no name columns at all; those names are
// taken from the username. created_at defaults to now when the file has no
// such column.
func (ds *dataset) parseUsers(t *table, now time.Time) error {
	if err := t.require("username"); err != nil {
		return err
	}
	names := make(map[string]int)
	for i := range t.rows {
		r := t.row(i)
		u := model.User{Username: r.str("username"), CreatedAt: now}
		derivedFirst, derivedLast := namesFromUsername(u.Username)
		if t.has("first_name") || t.has("firstname") {
			_, u.FirstName = r.first("first_name", "firstname")
		} else {
			u.FirstName = derivedFirst
		}
		if t.has("last_name") || t.has("lastname") {
			_, u.LastName = r.first("last_name", "lastname")
		} else {
			u.LastName = derivedLast
		}
		if t.has("created_at") {
			u.CreatedAt = r.timestamp("created_at")
		}
		if role := r.optional("role"); role != "" {
			u.Role = role
		} else {
			u.Role = model.DefaultRole
		}
		if hash := r.optional("password_hash"); hash != "" {
			u.PasswordHash = &hash
		}
		key := r.key()
		if err := r.Err(); err != nil {
			return err
		}
		if prev, dup := names[u.Username]; dup {
			return &RowError{File: t.file, Line: r.line, Column: "username",
				Err: fmt.Errorf("username %q already used on line %d", u.Username, prev)}
		}
		names[u.Username] = r.line
		ds.users = append(ds.users, keyed[model.User]{key: key, line: r.line, v: u})
	}
	return uniqueKeys(t.file, ds.users)
}

// namesFromUsername splits a username such as "jane.doe" on dots,
// underscores and spaces: the first part is the first name, the rest the last
// name.
func namesFromUsername(username string) (string, string) {
	parts := strings.FieldsFunc(username, func(r rune) bool {
		return r == '.' || r == '_' || r == ' '
	})
	if len(parts) == 0 {
		return username, ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func (ds *dataset) parseMaintenance(t *table) error {
	if err := t.require("machine_id", "performed_by", "notes", "planned"); err != nil {
		return err
	}
	for i := range t.rows {
		r := t.row(i)
		entry := maintenanceRow{
			line:    r.line,
			machine: r.str("machine_id"),
			user:    r.str("performed_by"),
			v: model.MaintenanceLog{
				Date:    r.timestamp("date", "timestamp"),
				Notes:   r.optional("notes"),
				Planned: r.flag("planned"),
			},
		}
		if err := r.Err(); err != nil {
			return err
		}
		ds.maintenance = append(ds.maintenance, entry)
	}
	return nil
}

func (ds *dataset) parseMachineMetrics(t *table) error {
	if err := t.require("machine_id", "oee", "availability", "performance", "output_quality", "status"); err != nil {
		return err
	}
	for i := range t.rows {
		r := t.row(i)
		sample := machineMetricRow{
			line:    r.line,
			machine: r.str("machine_id"),
			v: model.MachineMetric{
				Timestamp:     r.timestamp("timestamp", "date"),
				OEE:           r.number("oee"),
				Availability:  r.number("availability"),
				Performance:   r.number("performance"),
				OutputQuality: r.number("output_quality"),
				Status:        r.str("status"),
			},
		}
		if err := r.Err(); err != nil {
			return err
		}
		ds.machineMetrics = append(ds.machineMetrics, sample)
	}
	return nil
}

func checkWear(r *row, wear int) error {
	if wear < 0 || wear > 100 {
		return &RowError{File: r.t.file, Line: r.line, Column: "wear_level",
			Err: fmt.Errorf("wear level %d outside 0-100", wear)}
	}
	return nil
}

func uniqueKeys[T any](file string, rows []keyed[T]) error {
	seen := make(map[string]int, len(rows))
	for _, r := range rows {
		if prev, dup := seen[r.key]; dup {
			return &RowError{File: file, Line: r.line, Column: "id",
				Err: fmt.Errorf("id %s already used on line %d", r.key, prev)}
		}
		seen[r.key] = r.line
	}
	return nil
}

func keySet[T any](rows []keyed[T]) map[string]struct{} {
	out := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		out[r.key] = struct{}{}
	}
	return out
}

// resolvePerformers rewrites performed_by values that are not user keys.
// A username resolves to that user. Any other non-numeric value is a person's
// name from the older free-text layout: one user is created per distinct
// name, with the first word as first name and the rest as last name. Numeric
// values are left alone so checkReferences reports them.
func (ds *dataset) resolvePerformers(now time.Time) {
	keys := keySet(ds.users)
	byUsername := make(map[string]string, len(ds.users))
	for _, u := range ds.users {
		byUsername[u.v.Username] = u.key
	}

	for i := range ds.maintenance {
		ref := ds.maintenance[i].user
		if _, ok := keys[ref]; ok {
			continue
		}
		if key, ok := byUsername[ref]; ok {
			ds.maintenance[i].user = key
			continue
		}
		if _, err := strconv.Atoi(ref); err == nil {
			continue
		}

		fields := strings.Fields(ref)
		username := strings.ToLower(strings.Join(fields, "."))
		if key, ok := byUsername[username]; ok {
			ds.maintenance[i].user = key
			continue
		}
		u := model.User{
			Username:  username,
			FirstName: fields[0],
			LastName:  strings.Join(fields[1:], " "),
			Role:      model.DefaultRole,
			CreatedAt: now,
		}
		key := "name:" + username
		ds.users = append(ds.users, keyed[model.User]{key: key, line: ds.maintenance[i].line, v: u})
		byUsername[username] = key
		ds.maintenance[i].user = key
	}
}

// checkReferences verifies that every foreign key names a parsed parent row.
func (ds *dataset) checkReferences() error {
	machines, tools, users := keySet(ds.machines), keySet(ds.tools), keySet(ds.users)

	unknown := func(file string, line int, col, key string, in map[string]struct{}) error {
		if _, ok := in[key]; ok {
			return nil
		}
		return &RowError{File: file, Line: line, Column: col, Err: fmt.Errorf("unknown reference %q", key)}
	}

	for _, m := range ds.toolMetrics {
		if err := unknown(ToolMetricsFile, m.line, "tool_id", m.tool, tools); err != nil {
			return err
		}
	}
	for _, a := range ds.assignments {
		if err := unknown(ToolAssignmentsFile, a.line, "machine_id", a.machine, machines); err != nil {
			return err
		}
		if err := unknown(ToolAssignmentsFile, a.line, "tool_id", a.tool, tools); err != nil {
			return err
		}
	}
	for _, l := range ds.maintenance {
		if err := unknown(MaintenanceLogsFile, l.line, "machine_id", l.machine, machines); err != nil {
			return err
		}
		if err := unknown(MaintenanceLogsFile, l.line, "performed_by", l.user, users); err != nil {
			return err
		}
	}
	for _, m := range ds.machineMetrics {
		if err := unknown(MachineMetricsFile, m.line, "machine_id", m.machine, machines); err != nil {
			return err
		}
	}
	return nil
}

// insert writes the dataset in dependency order, rewriting CSV-local keys to
// the generated ids.
func (ds *dataset) insert(tx *gorm.DB, res *Result) error {
	machineIDs, err := insertKeyed(tx, ds.machines, func(m *model.Machine) int64 { return m.ID })
	if err != nil {
		return fmt.Errorf("failed to insert machines: %w", err)
	}
	res.Machines = len(machineIDs)

	toolIDs, err := insertKeyed(tx, ds.tools, func(t *model.Tool) int64 { return t.ID })
	if err != nil {
		return fmt.Errorf("failed to insert tools: %w", err)
	}
	res.Tools = len(toolIDs)

	metrics := make([]model.ToolMetric, len(ds.toolMetrics))
	for i, m := range ds.toolMetrics {
		metrics[i] = m.v
		metrics[i].ToolID = toolIDs[m.tool]
	}
	if err := createAll(tx, metrics); err != nil {
		return fmt.Errorf("failed to insert tool metrics: %w", err)
	}
	res.ToolMetrics = len(metrics)

	assignments := make([]model.ToolAssignment, len(ds.assignments))
	for i, a := range ds.assignments {
		assignments[i] = model.ToolAssignment{MachineID: machineIDs[a.machine], ToolID: toolIDs[a.tool]}
	}
	if err := createAll(tx, assignments); err != nil {
		return fmt.Errorf("failed to insert tool assignments: %w", err)
	}
	res.ToolAssignments = len(assignments)

	userIDs, err := insertKeyed(tx, ds.users, func(u *model.User) int64 { return u.ID })
	if err != nil {
		return fmt.Errorf("failed to insert users: %w", err)
	}
	res.Users = len(userIDs)

	logs := make([]model.MaintenanceLog, len(ds.maintenance))
	for i, l := range ds.maintenance {
		logs[i] = l.v
		logs[i].MachineID = machineIDs[l.machine]
		logs[i].PerformedBy = userIDs[l.user]
	}
	if err := createAll(tx, logs); err != nil {
		return fmt.Errorf("failed to insert maintenance logs: %w", err)
	}
	res.MaintenanceLogs = len(logs)

	samples := make([]model.MachineMetric, len(ds.machineMetrics))
	for i, m := range ds.machineMetrics {
		samples[i] = m.v
		samples[i].MachineID = machineIDs[m.machine]
	}
	if err := createAll(tx, samples); err != nil {
		return fmt.Errorf("failed to insert machine metrics: %w", err)
	}
	res.MachineMetrics = len(samples)
	return nil
}

// insertKeyed inserts parent rows and maps each CSV-local key to its new id.
func insertKeyed[T any](tx *gorm.DB, rows []keyed[T], id func(*T) int64) (map[string]int64, error) {
	values := make([]T, len(rows))
	for i, r := range rows {
		values[i] = r.v
	}
	if err := createAll(tx, values); err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(rows))
	for i, r := range rows {
		ids[r.key] = id(&values[i])
	}
	return ids, nil
}

func createAll[T any](tx *gorm.DB, values []T) error {
	if len(values) == 0 {
		return nil
	}
	return tx.CreateInBatches(&values, batchSize).Error
}

// dirExists reports whether dir is an existing directory.
func dirExists(dir string) bool {
	st, err := os.Stat(dir)
	return err == nil && st.IsDir()
}
