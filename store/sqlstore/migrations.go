package sqlstore

import (
	"database/sql"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
)

// migrationTable keeps sql-migrate's bookkeeping apart from domain tables.
const migrationTable = "schema_migrations"

// migrations returns the schema history for d. Column types differ only
// where the dialects disagree (large text, 64-bit integers).
func migrations(d dialect) *migrate.MemoryMigrationSource {
	text, bigint := "TEXT", "BIGINT"
	if d.name == "mysql" {
		text = "LONGTEXT"
	}
	if d.name == "sqlite3" {
		bigint = "INTEGER"
	}

	snapshotTable := func(name string) string {
		return fmt.Sprintf(`CREATE TABLE %s (
	id VARCHAR(64) PRIMARY KEY,
	uploaded_at %s NOT NULL,
	record_count INTEGER NOT NULL,
	records_json %s NOT NULL
)`, name, bigint, text)
	}

	return &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "0001_snapshots",
				Up: []string{
					snapshotTable("roster_monthly"),
					snapshotTable("roster_semiannual"),
					snapshotTable("roster_corrective"),
					snapshotTable("equipment_master"),
				},
				Down: []string{
					"DROP TABLE equipment_master",
					"DROP TABLE roster_corrective",
					"DROP TABLE roster_semiannual",
					"DROP TABLE roster_monthly",
				},
			},
			{
				Id: "0002_completion_events",
				Up: []string{
					fmt.Sprintf(`CREATE TABLE completion_events (
	id VARCHAR(64) PRIMARY KEY,
	equipment_id VARCHAR(255) NOT NULL,
	maintenance_type VARCHAR(32) NOT NULL,
	technician %[1]s,
	client %[1]s,
	report_date VARCHAR(10) NOT NULL,
	recorded_at %[2]s NOT NULL,
	source VARCHAR(16) NOT NULL,
	attributions_json %[1]s,
	UNIQUE (equipment_id, maintenance_type)
)`, text, bigint),
					"CREATE INDEX idx_completion_events_type ON completion_events (maintenance_type, recorded_at)",
				},
				Down: []string{"DROP TABLE completion_events"},
			},
			{
				Id: "0003_last_update",
				Up: []string{
					`CREATE TABLE last_update (
	id INTEGER PRIMARY KEY,
	stamp VARCHAR(32) NOT NULL,
	timezone VARCHAR(64) NOT NULL
)`,
				},
				Down: []string{"DROP TABLE last_update"},
			},
			{
				// Identifiers are case-sensitive; MySQL's default collation
				// would make "a1" collide with "A1" on the unique key.
				Id:   "0004_equipment_id_binary_collation",
				Up:   mysqlOnly(d, "ALTER TABLE completion_events MODIFY equipment_id VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL"),
				Down: mysqlOnly(d, "ALTER TABLE completion_events MODIFY equipment_id VARCHAR(255) NOT NULL"),
			},
		},
	}
}

// mysqlOnly returns stmts for MySQL and nothing for the other dialects,
// whose default text comparison is already binary.
func mysqlOnly(d dialect, stmts ...string) []string {
	if d.name != "mysql" {
		return nil
	}
	return stmts
}

// migrateUp applies every pending migration and returns how many ran.
func migrateUp(db *sql.DB, d dialect) (int, error) {
	migrate.SetTable(migrationTable)
	return migrate.Exec(db, d.migrateDialect, migrations(d), migrate.Up)
}
