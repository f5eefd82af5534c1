// Package deadletter durably records transactions the processor gave up
// on after exhausting retries, so operators can inspect and replay them
// without grepping logs. This has no analogue in the original: it simply
// logged an error and dropped the hash.
package deadletter

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Entry is one abandoned transaction record.
type Entry struct {
	ID        uint   `gorm:"primaryKey"`
	Namespace string `gorm:"index"`
	TxHash    string `gorm:"index"`
	Reason    string
	Attempts  int
	CreatedAt time.Time
}

// TableName pins the table name instead of gorm's pluralization guess.
func (Entry) TableName() string { return "dead_letter_transactions" }

// Store persists abandoned transactions via gorm.
type Store struct {
	db *gorm.DB
}

// OpenPostgres opens a Postgres connection via the given DSN and returns a
// Store. Dead-letter persistence is optional and environment-specific, so
// callers only invoke this when a DSN is configured.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return New(db)
}

// New wraps an already-opened *gorm.DB and ensures the dead-letter table
// exists.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Record inserts an abandoned-transaction entry.
func (s *Store) Record(ctx context.Context, namespace, txHash, reason string, attempts int) error {
	return s.db.WithContext(ctx).Create(&Entry{
		Namespace: namespace,
		TxHash:    txHash,
		Reason:    reason,
		Attempts:  attempts,
		CreatedAt: time.Now(),
	}).Error
}

// List returns the most recent abandoned transactions for a namespace, for
// the report CLI subcommand.
func (s *Store) List(ctx context.Context, namespace string, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("namespace = ?", namespace).
		Order("created_at desc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
