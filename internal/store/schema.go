// ABOUTME: SQLite schema for the four fixed measurements.
// ABOUTME: One table per measurement, primary-keyed by its identity tags.
package store

// initSchema creates or updates the database schema.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workouts (
		source TEXT NOT NULL,
		source_id TEXT NOT NULL,
		date TEXT NOT NULL,
		start_time TEXT,
		type TEXT,
		name TEXT,
		duration_minutes REAL NOT NULL DEFAULT 0,
		distance_meters REAL NOT NULL DEFAULT 0,
		elevation_gain REAL NOT NULL DEFAULT 0,
		avg_hr REAL NOT NULL DEFAULT 0,
		max_hr REAL NOT NULL DEFAULT 0,
		calories INTEGER NOT NULL DEFAULT 0,
		effort REAL NOT NULL DEFAULT 0,
		feeling TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (source, source_id)
	);

	CREATE TABLE IF NOT EXISTS daily_health (
		source TEXT NOT NULL,
		date TEXT NOT NULL,
		sleep_duration_hours REAL,
		hrv_avg REAL,
		hrv_sd REAL,
		resting_hr REAL,
		steps REAL,
		weight REAL,
		recovery_score REAL,
		training_load REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (source, date)
	);

	CREATE TABLE IF NOT EXISTS load_series (
		date TEXT PRIMARY KEY,
		load REAL NOT NULL DEFAULT 0,
		fitness REAL NOT NULL DEFAULT 0,
		fatigue REAL NOT NULL DEFAULT 0,
		balance REAL NOT NULL DEFAULT 0,
		provisional INTEGER NOT NULL DEFAULT 0,
		computed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS manual_values (
		date TEXT NOT NULL,
		field TEXT NOT NULL,
		value REAL NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (date, field)
	);

	CREATE INDEX IF NOT EXISTS idx_workouts_date ON workouts(date);
	CREATE INDEX IF NOT EXISTS idx_workouts_source_date ON workouts(source, date);
	CREATE INDEX IF NOT EXISTS idx_daily_date ON daily_health(date);
	`

	_, err := s.db.Exec(schema)
	return err
}
