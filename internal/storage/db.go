package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/NgigiN/finboard/internal/metrics"
)

var (
	// ErrNotFound is returned by Tx reads when the document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict means a compare-and-set write lost to a concurrent commit.
	ErrConflict = errors.New("concurrent modification")
	// ErrRetriesExhausted is returned once every attempt ended in a conflict.
	ErrRetriesExhausted = errors.New("transaction conflict retries exhausted")
)

type Options struct {
	Path        string
	LogMode     bool
	MaxAttempts int
}

type Database struct {
	db          *gorm.DB
	maxAttempts int
	backoff     time.Duration
}

// NewDatabase opens the SQLite file at dbPath with default options.
func NewDatabase(dbPath string) (*Database, error) {
	return Open(Options{Path: dbPath})
}

func Open(opts Options) (*Database, error) {
	gormLogger := logger.Default
	if !opts.LogMode {
		gormLogger = gormLogger.LogMode(logger.Silent)
	}

	// Immediate transactions take the write lock at BEGIN, so two
	// read-modify-write attempts never deadlock on lock upgrade.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", opts.Path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 5
	}
	return &Database{db: db, maxAttempts: attempts, backoff: 10 * time.Millisecond}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Conn exposes the underlying handle for read-only queries.
func (d *Database) Conn(ctx context.Context, userID string) *Tx {
	return &Tx{db: d.db.WithContext(ctx), userID: userID}
}

// RunInTransaction runs fn inside one atomic transaction scoped to userID.
// All reads fn performs see one snapshot and all writes commit together or
// not at all. If a write loses a compare-and-set race the whole attempt is
// rolled back and fn runs again against fresh state.
func (d *Database) RunInTransaction(ctx context.Context, userID string, fn func(tx *Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := d.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			return fn(&Tx{db: gtx, userID: userID})
		})
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		metrics.StoreConflicts.Inc()
		if attempt >= d.maxAttempts {
			return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.backoff * time.Duration(attempt)):
		}
	}
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// Tx is the per-attempt view of the store handed to transaction bodies.
type Tx struct {
	db     *gorm.DB
	userID string
}

func (t *Tx) UserID() string { return t.userID }

func (t *Tx) scoped() *gorm.DB {
	return t.db.Where("user_id = ?", t.userID)
}

func (t *Tx) first(dst interface{}, id string) error {
	err := t.scoped().Where("id = ?", id).First(dst).Error
	if isNotFound(err) {
		return ErrNotFound
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func (t *Tx) create(doc interface{}) error {
	return t.db.Create(doc).Error
}

func (t *Tx) deleteByID(model interface{}, id string) error {
	res := t.scoped().Where("id = ?", id).Delete(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compareAndSet applies updates to the row only if its version still
// matches, bumping the version on success.
func (t *Tx) compareAndSet(model interface{}, id string, version int64, updates map[string]interface{}) error {
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = time.Now()
	res := t.db.Model(model).
		Where("id = ? AND user_id = ? AND version = ?", id, t.userID, version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}
