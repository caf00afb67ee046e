package storage

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/syndtr/goleveldb/leveldb/util"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// kvEntry is the single table backing SQLDB.
type kvEntry struct {
	Key   []byte `gorm:"column:entry_key;primaryKey"`
	Value []byte `gorm:"column:entry_value;not null"`
}

func (kvEntry) TableName() string { return "ledger_entries" }

// SQLDB maps the key-value contract onto a relational table via GORM.
type SQLDB struct {
	db *gorm.DB
}

// NewSQLDB opens a SQL backed store. driver is "postgres" or "sqlite".
func NewSQLDB(driver, dsn string) (*SQLDB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("storage: unsupported sql driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	return NewSQLDBFromGorm(db)
}

// NewSQLDBFromGorm wraps an existing GORM handle and migrates the table.
func NewSQLDBFromGorm(db *gorm.DB) (*SQLDB, error) {
	if db == nil {
		return nil, errors.New("storage: nil gorm handle")
	}
	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, err
	}
	return &SQLDB{db: db}, nil
}

func upsert(tx *gorm.DB, key, value []byte) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value"}),
	}).Create(&kvEntry{Key: cloneBytes(key), Value: cloneBytes(value)}).Error
}

func (s *SQLDB) Put(key []byte, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return upsert(s.db, key, value)
}

func (s *SQLDB) Get(key []byte) ([]byte, error) {
	var entry kvEntry
	err := s.db.Where("entry_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

func (s *SQLDB) Delete(key []byte) error {
	return s.db.Where("entry_key = ?", key).Delete(&kvEntry{}).Error
}

func (s *SQLDB) Write(batch *Batch) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return batch.Replay(
			func(key, value []byte) error {
				if value == nil {
					value = []byte{}
				}
				return upsert(tx, key, value)
			},
			func(key []byte) error {
				return tx.Where("entry_key = ?", key).Delete(&kvEntry{}).Error
			},
		)
	})
}

func (s *SQLDB) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	query := s.db.Model(&kvEntry{}).Order("entry_key ASC")
	if len(prefix) > 0 {
		bounds := util.BytesPrefix(prefix)
		query = query.Where("entry_key >= ?", bounds.Start)
		if bounds.Limit != nil {
			query = query.Where("entry_key < ?", bounds.Limit)
		}
	}
	rows, err := query.Rows()
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var entry kvEntry
		if err := s.db.ScanRows(rows, &entry); err != nil {
			return err
		}
		if !fn(entry.Key, entry.Value) {
			break
		}
	}
	return rows.Err()
}

func (s *SQLDB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
