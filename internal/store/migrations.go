package store

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type migration struct {
	version int
	apply   func(db *gorm.DB) error
}

var migrations = []migration{
	{version: 1, apply: migrateV1},
	{version: 2, apply: migrateV2},
}

// runMigrations applies every migration not yet recorded in
// schema_migrations, in version order, inside its own small transaction.
func runMigrations(db *gorm.DB) error {
	if err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`).Error; err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var count int64
		if err := db.Raw(`SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, m.version).Scan(&count).Error; err != nil {
			return fmt.Errorf("check migration v%d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.apply(tx); err != nil {
				return fmt.Errorf("apply migration v%d: %w", m.version, err)
			}
			if err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
				m.version, time.Now().UTC().Format(time.RFC3339Nano)).Error; err != nil {
				return fmt.Errorf("record migration v%d: %w", m.version, err)
			}
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func migrateV1(db *gorm.DB) error {
	if err := db.Exec(`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		source_path TEXT NOT NULL,
		source_name TEXT NOT NULL,
		source_hash TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'queued',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		duration_sec REAL NOT NULL DEFAULT 0,
		chunks_total INTEGER NOT NULL DEFAULT 0,
		chunks_done INTEGER NOT NULL DEFAULT 0,
		transcript_json TEXT,
		error_message TEXT
	)`).Error; err != nil {
		return err
	}

	return db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		start_sec REAL NOT NULL,
		end_sec REAL NOT NULL,
		chunk_path TEXT NOT NULL,
		chunk_hash TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'queued',
		engine TEXT NOT NULL DEFAULT '',
		attempt_count INTEGER NOT NULL DEFAULT 0,
		transcript_json TEXT,
		confidence REAL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (job_id, idx)
	)`).Error
}

// migrateV2 adds the per-job speaker role counts introduced after v1 shipped,
// idempotently via PRAGMA table_info rather than re-running on every boot.
func migrateV2(db *gorm.DB) error {
	hasColumn := func(table, column string) (bool, error) {
		rows, err := db.Raw(fmt.Sprintf(`PRAGMA table_info(%s)`, table)).Rows()
		if err != nil {
			return false, err
		}
		defer rows.Close()

		for rows.Next() {
			var cid int
			var name, ctype string
			var notNull, pk int
			var dflt *string
			if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
				return false, err
			}
			if name == column {
				return true, nil
			}
		}
		return false, rows.Err()
	}

	has, err := hasColumn("jobs", "interviewer_count")
	if err != nil {
		return err
	}
	if !has {
		if err := db.Exec(`ALTER TABLE jobs ADD COLUMN interviewer_count INTEGER NOT NULL DEFAULT 1`).Error; err != nil {
			return err
		}
	}

	has, err = hasColumn("jobs", "participant_count")
	if err != nil {
		return err
	}
	if !has {
		if err := db.Exec(`ALTER TABLE jobs ADD COLUMN participant_count INTEGER NOT NULL DEFAULT 1`).Error; err != nil {
			return err
		}
	}
	return nil
}
