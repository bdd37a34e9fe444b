package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RMahshie/psychro/internal/repository"
	"github.com/RMahshie/psychro/pkg/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS calibration_records (
		name       TEXT PRIMARY KEY,
		exemplars  JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// PostgresCalibrationRepository implements CalibrationRepository for PostgreSQL.
// The buffer lives in one row keyed by record name.
type PostgresCalibrationRepository struct {
	db   *sql.DB
	name string
}

// NewPostgresCalibrationRepository creates a new PostgreSQL calibration repository
func NewPostgresCalibrationRepository(db *sql.DB, recordName string) *PostgresCalibrationRepository {
	return &PostgresCalibrationRepository{db: db, name: recordName}
}

// Migrate creates the calibration table if it does not exist
func (r *PostgresCalibrationRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create calibration_records table: %w", err)
	}
	return nil
}

// Load retrieves the exemplar buffer
func (r *PostgresCalibrationRepository) Load(ctx context.Context) ([]models.CalibrationExemplar, error) {
	query := `
		SELECT exemplars
		FROM calibration_records
		WHERE name = $1`

	var raw []byte
	err := r.db.QueryRowContext(ctx, query, r.name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []models.CalibrationExemplar{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load calibration record: %w", err)
	}

	return repository.DecodeRecord(raw)
}

// Replace overwrites the whole record in a single statement
func (r *PostgresCalibrationRepository) Replace(ctx context.Context, exemplars []models.CalibrationExemplar) error {
	data, err := repository.EncodeRecord(exemplars)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO calibration_records (name, exemplars, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE
		SET exemplars = EXCLUDED.exemplars, updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, r.name, string(data)); err != nil {
		return fmt.Errorf("failed to replace calibration record: %w", err)
	}
	return nil
}

// Clear deletes the record
func (r *PostgresCalibrationRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM calibration_records WHERE name = $1`, r.name); err != nil {
		return fmt.Errorf("failed to clear calibration record: %w", err)
	}
	return nil
}
