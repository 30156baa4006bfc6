// Package sql implements store.Store on GORM, supporting SQLite for
// single-node deployments and PostgreSQL where the message log must
// survive the host. Appends commit transactionally before returning,
// which is what makes inbound sequence acceptance durable.
package sql

import (
	"context"
	dbsql "database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/fixgate/pkg/store"
)

// Store is the GORM-backed store.Store.
type Store struct {
	db     *gorm.DB
	config *Config
}

// New opens the database and migrates the schema.
func New(config *Config) (*Store, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if config.SQLite.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		// WAL keeps readers off the writer's back; busy_timeout rides
		// out short lock contention instead of failing appends.
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
		dialector = sqlite.Open(dsn)

	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())

	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.Type == DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	return &Store{db: db, config: config}, nil
}

// DB returns the underlying GORM handle, for advanced queries and tests.
func (s *Store) DB() *gorm.DB { return s.db }

// AppendMessage implements store.MessageStore.
func (s *Store) AppendMessage(ctx context.Context, msg *store.StoredMessage) error {
	err := s.db.WithContext(ctx).Create(toMessageRow(msg)).Error
	if err != nil {
		if isUniqueConstraintError(err) {
			return store.ErrDuplicateSeq
		}
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// GetMessage implements store.MessageStore.
func (s *Store) GetMessage(ctx context.Context, sessionID string, dir store.Direction, seq uint32) (*store.StoredMessage, error) {
	var row messageRow
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND direction = ? AND seq = ?", sessionID, string(dir), seq).
		First(&row).Error
	if err != nil {
		return nil, convertNotFoundError(err)
	}
	return row.toStored(), nil
}

// RangeMessages implements store.MessageStore. Rows stream through a
// cursor in seq order; a zero `to` is unbounded.
func (s *Store) RangeMessages(ctx context.Context, sessionID string, dir store.Direction, from, to uint32, fn func(*store.StoredMessage) error) error {
	q := s.db.WithContext(ctx).Model(&messageRow{}).
		Where("session_id = ? AND direction = ? AND seq >= ?", sessionID, string(dir), from).
		Order("seq ASC")
	if to > 0 {
		q = q.Where("seq <= ?", to)
	}

	rows, err := q.Rows()
	if err != nil {
		return fmt.Errorf("range messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row messageRow
		if err := s.db.ScanRows(rows, &row); err != nil {
			return fmt.Errorf("range messages: %w", err)
		}
		if err := fn(row.toStored()); err != nil {
			return err
		}
	}
	return rows.Err()
}

// LastSeq implements store.MessageStore.
func (s *Store) LastSeq(ctx context.Context, sessionID string, dir store.Direction) (uint32, error) {
	var last dbsql.NullInt64
	err := s.db.WithContext(ctx).Model(&messageRow{}).
		Where("session_id = ? AND direction = ?", sessionID, string(dir)).
		Select("MAX(seq)").
		Scan(&last).Error
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	if !last.Valid {
		return 0, nil
	}
	return uint32(last.Int64), nil
}

// ArchiveBefore implements store.MessageStore.
func (s *Store) ArchiveBefore(ctx context.Context, sessionID string, ts time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&messageRow{}).
		Where("session_id = ? AND sent_at < ? AND archived_at IS NULL", sessionID, ts).
		Update("archived_at", time.Now().UTC())
	if res.Error != nil {
		return 0, fmt.Errorf("archive before: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteArchivedBefore implements store.MessageStore.
func (s *Store) DeleteArchivedBefore(ctx context.Context, ts time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("archived_at IS NOT NULL AND archived_at < ?", ts).
		Delete(&messageRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete archived: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ResetSequences implements store.MessageStore.
func (s *Store) ResetSequences(ctx context.Context, sessionID string) error {
	res := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&messageRow{})
	if res.Error != nil {
		return fmt.Errorf("reset sequences: %w", res.Error)
	}
	return nil
}

// ListSessions implements store.SessionStore.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&sessionRow{}).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

// LoadSession implements store.SessionStore.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (*store.SessionState, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).Where("id = ?", sessionID).First(&row).Error
	if err != nil {
		return nil, convertNotFoundError(err)
	}
	return row.toState(), nil
}

// SaveSession implements store.SessionStore. Upserts by primary key.
func (s *Store) SaveSession(ctx context.Context, state *store.SessionState) error {
	row := toSessionRow(state)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// DeleteSession implements store.SessionStore.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	res := s.db.WithContext(ctx).Where("id = ?", sessionID).Delete(&sessionRow{})
	if res.Error != nil {
		return fmt.Errorf("delete session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendAudit implements store.AuditStore.
func (s *Store) AppendAudit(ctx context.Context, rec *store.AuditRecord) error {
	if err := s.db.WithContext(ctx).Create(toAuditRow(rec)).Error; err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// AuditRange implements store.AuditStore.
func (s *Store) AuditRange(ctx context.Context, sessionID string, from, to time.Time) ([]*store.AuditRecord, error) {
	q := s.db.WithContext(ctx).Model(&auditRow{}).
		Where("session_id = ?", sessionID).
		Order("at ASC")
	if !from.IsZero() {
		q = q.Where("at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("at <= ?", to)
	}

	var rows []auditRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("audit range: %w", err)
	}

	out := make([]*store.AuditRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].toRecord()
	}
	return out, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isUniqueConstraintError checks for a unique constraint violation
// from either backend.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

// convertNotFoundError maps gorm.ErrRecordNotFound to the domain error.
func convertNotFoundError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}
