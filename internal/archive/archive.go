// Package archive persists every successfully refreshed measurement to
// SQLite so operators can query the observation history behind a
// prediction.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS observations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	category    TEXT    NOT NULL,
	station_id  TEXT    NOT NULL,
	attribute   TEXT    NOT NULL,
	value       REAL    NOT NULL,
	source      TEXT    NOT NULL,
	tier        INTEGER NOT NULL,
	measured_at TIMESTAMP NOT NULL,
	recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_category_recorded
	ON observations (category, recorded_at);
`

// Observation is one archived attribute reading.
type Observation struct {
	Category   domain.Category  `json:"category"`
	StationID  string           `json:"station_id"`
	Attribute  domain.Attribute `json:"attribute"`
	Value      float64          `json:"value"`
	Source     string           `json:"source"`
	Tier       int              `json:"tier"`
	MeasuredAt time.Time        `json:"measured_at"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// Store is the SQLite-backed observation log.
type Store struct {
	db    *sql.DB
	clock clockwork.Clock
}

// Open opens (creating if needed) the archive database at path.
func Open(path string, clock clockwork.Clock) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	return &Store{db: db, clock: clock}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SaveMeasurements writes one row per attribute of each measurement, all in
// a single transaction.
func (s *Store) SaveMeasurements(ctx context.Context, cat domain.Category, ms []domain.Measurement, src domain.SourceInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations
			(category, station_id, attribute, value, source, tier, measured_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare archive insert: %w", err)
	}
	defer stmt.Close()

	now := s.clock.Now().UTC()
	for _, m := range ms {
		for attr, v := range m.Values {
			if _, err := stmt.ExecContext(ctx,
				string(cat), m.StationID, string(attr), v,
				src.Name, src.Tier, m.Timestamp.UTC(), now); err != nil {
				return fmt.Errorf("insert observation: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive transaction: %w", err)
	}
	return nil
}

// History returns a category's observations recorded at or after since,
// oldest first.
func (s *Store) History(ctx context.Context, cat domain.Category, since time.Time) ([]Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, station_id, attribute, value, source, tier, measured_at, recorded_at
		FROM observations
		WHERE category = ? AND recorded_at >= ?
		ORDER BY recorded_at, station_id, attribute`,
		string(cat), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.Category, &o.StationID, &o.Attribute, &o.Value,
			&o.Source, &o.Tier, &o.MeasuredAt, &o.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return out, nil
}
