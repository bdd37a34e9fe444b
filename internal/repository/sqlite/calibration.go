// Package sqlite keeps the calibration record in a local SQLite file
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/psychro/internal/repository"
	"github.com/RMahshie/psychro/pkg/models"
)

// SQLiteCalibrationRepository implements CalibrationRepository using SQLite
type SQLiteCalibrationRepository struct {
	db     *sql.DB
	name   string
	DBPath string
}

// NewSQLiteCalibrationRepository opens (or creates) the database and its table
func NewSQLiteCalibrationRepository(dbPath, recordName string) (*SQLiteCalibrationRepository, error) {
	if dbPath == "" {
		dbPath = filepath.Join("data", "calibration.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("Opening calibration database")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS calibration_records (
		name       TEXT PRIMARY KEY,
		exemplars  TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteCalibrationRepository{
		db:     db,
		name:   recordName,
		DBPath: dbPath,
	}, nil
}

// Close closes the database connection
func (r *SQLiteCalibrationRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Load retrieves the exemplar buffer
func (r *SQLiteCalibrationRepository) Load(ctx context.Context) ([]models.CalibrationExemplar, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, "SELECT exemplars FROM calibration_records WHERE name = ?", r.name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []models.CalibrationExemplar{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load calibration record: %w", err)
	}

	return repository.DecodeRecord([]byte(raw))
}

// Replace overwrites the whole record
func (r *SQLiteCalibrationRepository) Replace(ctx context.Context, exemplars []models.CalibrationExemplar) error {
	data, err := repository.EncodeRecord(exemplars)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO calibration_records(name, exemplars, updated_at)
		VALUES(?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
		exemplars=excluded.exemplars,
		updated_at=excluded.updated_at
	`, r.name, string(data))
	if err != nil {
		return fmt.Errorf("failed to replace calibration record: %w", err)
	}
	return nil
}

// Clear deletes the record
func (r *SQLiteCalibrationRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM calibration_records WHERE name = ?", r.name); err != nil {
		return fmt.Errorf("failed to clear calibration record: %w", err)
	}
	return nil
}
