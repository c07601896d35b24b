package csvimport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mes-backend/internal/model"
)

var fixture = map[string]string{
	MachinesFile: `id,name,category,group,manufacturer,created_at
10,Lathe,CNC,Line A,Haas,2024-01-01
20,Mill,CNC,Line B,DMG,2024-01-02T08:30:00
`,
	ToolsFile: `name,type,created_at
Drill,cutting,2024-02-01
Saw,cutting,2024-02-02 10:00:00
`,
	ToolMetricsFile: `tool_id,status,storage_location,wear_level
1,in storage,Shelf A3,12
2,in use,Shelf B1,40
`,
	ToolAssignmentsFile: `machine_id,tool_id
20,2
`,
	UsersFile: `username,first_name,last_name,role
jdoe,Jane,Doe,
msmith,Max,Smith,supervisor
`,
	MaintenanceLogsFile: `machine_id,performed_by,date,notes,planned
10,2,2024-03-01,Oil change,true
20,1,2024-03-02T09:00:00Z,"Belt, replaced",false
`,
	MachineMetricsFile: `machine_id,timestamp,oee,availability,performance,output_quality,status
10,2024-04-01,0.81,0.9,0.95,0.95,running
10,2024-04-02,0.79,0.88,0.95,0.94,idle
20,2024-04-01,0.7,0.8,0.9,0.97,running
`,
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
}

func withFiles(overrides map[string]string, drop ...string) map[string]string {
	out := make(map[string]string, len(fixture))
	for k, v := range fixture {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	for _, k := range drop {
		delete(out, k)
	}
	return out
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "mes.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, gdb.AutoMigrate(model.All()...))
	return gdb
}

func TestImporter_Run(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	writeFiles(t, dir, fixture)

	res, err := NewImporter(db, dir, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{
		Machines: 2, Tools: 2, ToolMetrics: 2, ToolAssignments: 1,
		Users: 2, MaintenanceLogs: 2, MachineMetrics: 3,
	}, *res)

	var mill model.Machine
	require.NoError(t, db.Where("name = ?", "Mill").First(&mill).Error)
	assert.Equal(t, 8, mill.CreatedAt.Hour())

	t.Run("storage location kept only in storage", func(t *testing.T) {
		var metrics []model.ToolMetric
		require.NoError(t, db.Order("id").Find(&metrics).Error)
		require.Len(t, metrics, 2)
		assert.Equal(t, "Shelf A3", metrics[0].StorageLocation)
		assert.Equal(t, model.NoStorageLocation, metrics[1].StorageLocation)
	})

	t.Run("csv keys are rewritten to generated ids", func(t *testing.T) {
		var saw model.Tool
		require.NoError(t, db.Where("name = ?", "Saw").First(&saw).Error)

		var a model.ToolAssignment
		require.NoError(t, db.First(&a).Error)
		assert.Equal(t, mill.ID, a.MachineID)
		assert.Equal(t, saw.ID, a.ToolID)

		var log model.MaintenanceLog
		require.NoError(t, db.Preload("Performer").Where("notes = ?", "Oil change").First(&log).Error)
		require.NotNil(t, log.Performer)
		assert.Equal(t, "msmith", log.Performer.Username)
		assert.True(t, log.Planned)

		var n int64
		db.Model(&model.MachineMetric{}).Where("machine_id = ?", mill.ID).Count(&n)
		assert.Equal(t, int64(1), n)
	})

	t.Run("role defaults to technician", func(t *testing.T) {
		var u model.User
		require.NoError(t, db.Where("username = ?", "jdoe").First(&u).Error)
		assert.Equal(t, model.DefaultRole, u.Role)
		assert.Nil(t, u.PasswordHash)
	})
}

func TestImporter_RunIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	writeFiles(t, dir, fixture)
	im := NewImporter(db, dir, zap.NewNop())

	first, err := im.Run(context.Background())
	require.NoError(t, err)

	// Rows added between runs are discarded.
	require.NoError(t, db.Create(&model.User{Username: "extra", FirstName: "E", LastName: "X"}).Error)

	second, err := im.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var users []model.User
	require.NoError(t, db.Order("username").Find(&users).Error)
	require.Len(t, users, 2)
	assert.Equal(t, "jdoe", users[0].Username)
}

func TestImporter_FailureKeepsPreviousData(t *testing.T) {
	testCases := []struct {
		name  string
		files map[string]string
		check func(t *testing.T, err error)
	}{
		{
			name: "bad date",
			files: withFiles(map[string]string{
				MachinesFile: "name,category,group,manufacturer,created_at\nLathe,CNC,A,Haas,01/02/2024\n",
			}),
			check: func(t *testing.T, err error) {
				var re *RowError
				require.True(t, errors.As(err, &re))
				assert.Equal(t, MachinesFile, re.File)
				assert.Equal(t, 2, re.Line)
				assert.Equal(t, "created_at", re.Column)
			},
		},
		{
			name: "unknown user reference",
			files: withFiles(map[string]string{
				MaintenanceLogsFile: "machine_id,performed_by,date,notes,planned\n10,9,2024-03-01,x,true\n",
			}),
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), `column "performed_by": unknown reference "9"`)
			},
		},
		{
			name:  "missing required file",
			files: withFiles(nil, UsersFile),
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), UsersFile)
			},
		},
		{
			name: "wear level out of range",
			files: withFiles(map[string]string{
				ToolMetricsFile: "tool_id,status,wear_level\n1,in use,120\n",
			}),
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "wear_level")
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db := newTestDB(t)
			good := t.TempDir()
			writeFiles(t, good, fixture)
			_, err := NewImporter(db, good, zap.NewNop()).Run(context.Background())
			require.NoError(t, err)

			bad := t.TempDir()
			writeFiles(t, bad, tc.files)
			_, err = NewImporter(db, bad, zap.NewNop()).Run(context.Background())
			require.Error(t, err)
			tc.check(t, err)

			var n int64
			db.Model(&model.MachineMetric{}).Count(&n)
			assert.Equal(t, int64(3), n)
		})
	}
}

func TestImporter_InsertFailureRollsBackDrop(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	writeFiles(t, dir, fixture)
	im := NewImporter(db, dir, zap.NewNop())

	_, err := im.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_metrics", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "machine_metrics" {
			tx.AddError(errors.New("disk full"))
		}
	}))

	_, err = im.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	require.NoError(t, db.Callback().Create().Remove("test:fail_metrics"))

	var machines, samples int64
	db.Model(&model.Machine{}).Count(&machines)
	db.Model(&model.MachineMetric{}).Count(&samples)
	assert.Equal(t, int64(2), machines)
	assert.Equal(t, int64(3), samples)
}

func TestImporter_LegacyToolsLayout(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	writeFiles(t, dir, withFiles(map[string]string{
		ToolsFile: `name,type,created_at,status,wear_level,storage_location
Drill,cutting,2024-02-01,in storage,5,Shelf C2
Saw,cutting,2024-02-02,broken,90,Shelf C3
`,
		MaintenanceLogsFile: `machine_id,performed_by,date,notes,planned
10,1,2024-03-01,Oil change,false
`,
	}, ToolMetricsFile, ToolAssignmentsFile))

	res, err := NewImporter(db, dir, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.ToolMetrics)
	assert.Zero(t, res.ToolAssignments)

	var tools []model.Tool
	require.NoError(t, db.Preload("Metrics").Order("id").Find(&tools).Error)
	require.Len(t, tools, 2)
	require.Len(t, tools[0].Metrics, 1)
	assert.Equal(t, "Shelf C2", tools[0].Metrics[0].StorageLocation)
	assert.Equal(t, model.NoStorageLocation, tools[1].Metrics[0].StorageLocation)
	assert.Equal(t, 90, tools[1].Metrics[0].WearLevel)
}

func TestImporter_MissingDir(t *testing.T) {
	_, err := NewImporter(newTestDB(t), filepath.Join(t.TempDir(), "nope"), zap.NewNop()).Run(context.Background())
	assert.ErrorContains(t, err, "does not exist")
}

func TestImporter_FreeTextPerformer(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	writeFiles(t, dir, withFiles(map[string]string{
		MaintenanceLogsFile: `machine_id,performed_by,date,notes,planned
10,Ada  Lovelace,2024-03-01,Oil change,true
20,ada lovelace,2024-03-02,Belt,false
20,msmith,2024-03-03,Filter,false
`,
	}))

	res, err := NewImporter(db, dir, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Users)
	assert.Equal(t, 3, res.MaintenanceLogs)

	var ada model.User
	require.NoError(t, db.Where("username = ?", "ada.lovelace").First(&ada).Error)
	assert.Equal(t, "Ada", ada.FirstName)
	assert.Equal(t, "Lovelace", ada.LastName)
	assert.Equal(t, model.DefaultRole, ada.Role)

	var n int64
	db.Model(&model.MaintenanceLog{}).Where("performed_by = ?", ada.ID).Count(&n)
	assert.Equal(t, int64(2), n)

	var smith model.User
	require.NoError(t, db.Where("username = ?", "msmith").First(&smith).Error)
	db.Model(&model.MaintenanceLog{}).Where("performed_by = ?", smith.ID).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestImporter_LegacyUsersLayout(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()
	writeFiles(t, dir, withFiles(map[string]string{
		UsersFile: `id,username,password_hash,role,created_at
1,jdoe,$2b$12$abc,,2024-01-01
2,max.smith,,supervisor,2024-01-02
`,
	}))

	res, err := NewImporter(db, dir, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Users)
	assert.Equal(t, 2, res.MaintenanceLogs)

	var users []model.User
	require.NoError(t, db.Order("id").Find(&users).Error)
	require.Len(t, users, 2)

	assert.Equal(t, "jdoe", users[0].FirstName)
	assert.Empty(t, users[0].LastName)
	assert.Equal(t, model.DefaultRole, users[0].Role)
	require.NotNil(t, users[0].PasswordHash)
	assert.Equal(t, "$2b$12$abc", *users[0].PasswordHash)

	assert.Equal(t, "max", users[1].FirstName)
	assert.Equal(t, "smith", users[1].LastName)
	assert.Equal(t, "supervisor", users[1].Role)
	assert.Nil(t, users[1].PasswordHash)
}
