package db

import (
	"database/sql"
)

// MigrateUp creates the profile schema. Every statement is idempotent.
func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS user_profiles (
    user_id                 TEXT PRIMARY KEY,
    age                     INTEGER,
    birthday                DATE,
    gender                  TEXT,
    country_code            CHAR(2),
    zip_code                TEXT,
    preferred_survey_length VARCHAR(10),
    interests               JSONB NOT NULL DEFAULT '[]'::jsonb,
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_user_profiles_country ON user_profiles(country_code)`,
		`CREATE INDEX IF NOT EXISTS idx_user_profiles_updated_at ON user_profiles(updated_at DESC)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	// The constraint syntax is PostgreSQL specific; an existing constraint is fine.
	_, _ = db.Exec(`
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM pg_constraint
        WHERE conname = 'chk_preferred_survey_length'
    ) THEN
        ALTER TABLE user_profiles ADD CONSTRAINT chk_preferred_survey_length
        CHECK (preferred_survey_length IS NULL OR preferred_survey_length IN ('short', 'medium', 'long'));
    END IF;
END $$;
`)
	return nil
}
