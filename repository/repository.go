package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/martin8756/termelesinaplo/repository/models"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Repository error codes
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeNotFound   = "ENTITY_NOT_FOUND"
	ErrCodeDatabase   = "DATABASE_ERROR"
)

// MaxRows caps every list/query result
const MaxRows = 1000

// RepositoryError represent an error in the repository layer
type RepositoryError struct {
	Code    string
	Message string
	Detail  string
}

func (e *RepositoryError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
}

// IsNotFound reports whether the error signals a missing entity
func (e *RepositoryError) IsNotFound() bool {
	return e != nil && e.Code == ErrCodeNotFound
}

// IsValidation reports whether the input was rejected before storage
func (e *RepositoryError) IsValidation() bool {
	return e != nil && e.Code == ErrCodeValidation
}

// RecordStore is the persistence contract used by the API handlers
type RecordStore interface {
	Insert(ctx context.Context, record *models.Record) (int64, *RepositoryError)
	ListRecent(ctx context.Context, limit int) ([]models.Record, *RepositoryError)
	QueryFiltered(ctx context.Context, filter Filter) ([]models.Record, *RepositoryError)
	DeleteByID(ctx context.Context, id int64) *RepositoryError
}

// Options tunes query behaviour
type Options struct {
	// CaseInsensitive switches substring filters from LIKE to ILIKE
	CaseInsensitive bool
}

type Repository struct {
	db     *gorm.DB
	logger cmtlog.Logger
	opts   Options
}

var _ RecordStore = (*Repository)(nil)

// NewRepository wraps an open gorm connection
func NewRepository(db *gorm.DB, logger cmtlog.Logger, opts Options) *Repository {
	return &Repository{
		db:     db,
		logger: logger.With("module", "repository"),
		opts:   opts,
	}
}

// ConnectDB opens a PostgreSQL connection, retrying while the database comes up.
func ConnectDB(dsn string, attempts int, logger cmtlog.Logger) (*gorm.DB, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := range attempts {
		logger.Info("Connecting to Postgres", "attempt", i+1)
		db, err := openAndPing(dsn)
		if err == nil {
			logger.Info("Connected to Postgres")
			return db, nil
		}
		lastErr = err
		logger.Error("Connection attempt failed", "attempt", i+1, "err", err)
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("connecting to postgres after %d attempts: %w", attempts, lastErr)
}

func openAndPing(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying connection pool
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates or updates the records table
func (r *Repository) Migrate() error {
	if err := r.db.AutoMigrate(&models.Record{}); err != nil {
		return fmt.Errorf("migrating records: %w", err)
	}
	r.logger.Info("Database migration completed successfully")
	return nil
}

// Seed inserts demo records when the table is empty
func (r *Repository) Seed(ctx context.Context) *RepositoryError {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Record{}).Count(&count).Error; err != nil {
		return toRepositoryError(err)
	}
	if count > 0 {
		r.logger.Info("Seed data already exists, skipping...")
		return nil
	}

	r.logger.Info("Seeding database with initial data...")
	for _, rec := range demoRecords() {
		if _, repoErr := r.Insert(ctx, &rec); repoErr != nil {
			r.logger.Error("Error creating seed record", "machine", rec.Machine, "err", repoErr)
			return repoErr
		}
	}
	r.logger.Info("Database seeding completed successfully")
	return nil
}

// DB Operations

// Insert stores a record and returns its assigned id
func (r *Repository) Insert(ctx context.Context, record *models.Record) (int64, *RepositoryError) {
	if repoErr := validateRecord(record); repoErr != nil {
		return 0, repoErr
	}
	record.ID = 0

	err := r.db.WithContext(ctx).Create(record).Error
	if err != nil {
		r.logger.Error("Failed to insert record", "err", err)
		return 0, toRepositoryError(err)
	}
	return record.ID, nil
}

// ListRecent returns the newest records first, at most limit rows
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.Record, *RepositoryError) {
	rows := make([]models.Record, 0)
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		r.logger.Error("Failed to list records", "err", err)
		return nil, toRepositoryError(err)
	}
	return rows, nil
}

// QueryFiltered returns records matching every set filter field, ordered by
// business date then creation time, newest first.
func (r *Repository) QueryFiltered(ctx context.Context, filter Filter) ([]models.Record, *RepositoryError) {
	clauses, err := CompilePredicates(filter.Predicates(), r.opts.CaseInsensitive)
	if err != nil {
		return nil, &RepositoryError{
			Code:    ErrCodeValidation,
			Message: "Invalid filter",
			Detail:  err.Error(),
		}
	}

	query := r.db.WithContext(ctx).Model(&models.Record{})
	for _, c := range clauses {
		query = query.Where(c.SQL, c.Args...)
	}

	rows := make([]models.Record, 0)
	err = query.
		Order("date DESC, created_at DESC, id DESC").
		Limit(MaxRows).
		Find(&rows).Error
	if err != nil {
		r.logger.Error("Failed to query records", "err", err)
		return nil, toRepositoryError(err)
	}
	return rows, nil
}

// DeleteByID removes exactly one record
func (r *Repository) DeleteByID(ctx context.Context, id int64) *RepositoryError {
	if id <= 0 {
		return invalidIDError(id)
	}

	result := r.db.WithContext(ctx).Delete(&models.Record{}, id)
	if result.Error != nil {
		r.logger.Error("Failed to delete record", "id", id, "err", result.Error)
		return toRepositoryError(result.Error)
	}
	if result.RowsAffected == 0 {
		return &RepositoryError{
			Code:    ErrCodeNotFound,
			Message: "Record does not exist",
			Detail:  fmt.Sprintf("Record with id %d does not exist", id),
		}
	}
	return nil
}

func validateRecord(record *models.Record) *RepositoryError {
	if record == nil {
		return &RepositoryError{Code: ErrCodeValidation, Message: "Record is required"}
	}
	if record.Date == "" || record.Machine == "" || record.Product == "" {
		return &RepositoryError{
			Code:    ErrCodeValidation,
			Message: "Missing required fields",
			Detail:  "date, machine and product are required",
		}
	}
	return nil
}

func invalidIDError(id int64) *RepositoryError {
	return &RepositoryError{
		Code:    ErrCodeValidation,
		Message: "Invalid id",
		Detail:  fmt.Sprintf("id must be a positive integer, got %d", id),
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxRows {
		return MaxRows
	}
	return limit
}

func toRepositoryError(err error) *RepositoryError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &RepositoryError{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Detail:  pgErr.Detail,
		}
	}
	return &RepositoryError{
		Code:    ErrCodeDatabase,
		Message: "Database error occured",
		Detail:  err.Error(),
	}
}

func ptrString(s string) *string {
	return &s
}

func demoRecords() []models.Record {
	return []models.Record{
		{Date: "2024-03-04", Machine: "CNC-01", Product: "Flange A", Quantity: 120, Rejects: 3},
		{Date: "2024-03-04", Machine: "CNC-02", Product: "Flange B", Quantity: 80, Rejects: 5, Note: ptrString("tool change at 10:00")},
		{Date: "2024-03-05", Machine: "PRESS-1", Product: "Bracket", Quantity: 400, Rejects: 12},
		{Date: "2024-03-05", Machine: "CNC-01", Product: "Flange A", Quantity: 135, Rejects: 1},
		{Date: "2024-03-06", Machine: "WELD-3", Product: "Frame", Quantity: 40, Rejects: 0, Note: ptrString("new operator")},
	}
}
