// Package history keeps a local record of every scan and upload pass in a
// sqlite database next to the config file. The upload command records each
// pass through the Recorder; the clean and bugtool commands read and reset
// the store.
package history

import (
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mitchellh/go-homedir"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/datadock/datadock/pkg/errors"
)

// DefaultPath is where the history database lives unless configured
// otherwise.
const DefaultPath = "~/.datadock.db"

// homedirExpand will be overridden in mock tests.
var homedirExpand = homedir.Expand

// Pass is one completed scan and upload pass.
type Pass struct {
	ID         uint `gorm:"primarykey"`
	StartedAt  time.Time
	FinishedAt time.Time

	// Folders, Files and Bytes total what the scan found.
	Folders int
	Files   int
	Bytes   int64

	// The remaining counters total how the pass's tasks settled.
	Uploaded  int
	Verified  int
	Completed int
	Failed    int
	Canceled  int
}

// Record is one file's outcome within a pass.
type Record struct {
	ID     uint `gorm:"primarykey"`
	PassID uint `gorm:"index;not null"`

	Dataset   string
	Directory string
	Filename  string

	Size          int64
	UploadedBytes int64
	Status        string
	Message       string
}

// Store wraps the history database.
type Store struct {
	db *gorm.DB
}

// Open opens (and if necessary creates and migrates) the history database at
// path. The path may start with ~.
func Open(path string) (*Store, error) {
	expanded, err := homedirExpand(path)
	if err != nil {
		return nil, errors.WithContext(err, "expand history path")
	}

	// The application logs through logrus, so gorm's own logging stays off.
	db, err := gorm.Open(sqlite.Open(expanded), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.WithContext(err, "open history database")
	}

	if err := db.AutoMigrate(&Pass{}, &Record{}); err != nil {
		return nil, errors.WithContext(err, "migrate history database")
	}
	return &Store{db: db}, nil
}

// RecordPass writes the pass and its per-file records in one transaction.
func (s *Store) RecordPass(pass Pass, records []Record) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&pass).Error; err != nil {
			return errors.WithContext(err, "record pass")
		}
		if len(records) == 0 {
			return nil
		}
		for i := range records {
			records[i].PassID = pass.ID
		}
		if err := tx.Create(&records).Error; err != nil {
			return errors.WithContext(err, "record pass files")
		}
		return nil
	})
}

// LastPass returns the most recent pass. Returns a NotFoundError when no
// pass has been recorded yet.
func (s *Store) LastPass() (Pass, error) {
	var pass Pass
	err := s.db.Order("id desc").First(&pass).Error
	if err == gorm.ErrRecordNotFound {
		return Pass{}, errors.NotFoundError{Kind: "pass", Key: "latest"}
	}
	if err != nil {
		return Pass{}, errors.WithContext(err, "load last pass")
	}
	return pass, nil
}

// RecentPasses returns up to limit passes, newest first.
func (s *Store) RecentPasses(limit int) ([]Pass, error) {
	var passes []Pass
	err := s.db.Order("id desc").Limit(limit).Find(&passes).Error
	if err != nil {
		return nil, errors.WithContext(err, "load passes")
	}
	return passes, nil
}

// PassRecords returns the per-file records of one pass in the order they
// were written.
func (s *Store) PassRecords(passID uint) ([]Record, error) {
	var records []Record
	err := s.db.Where("pass_id = ?", passID).Order("id").Find(&records).Error
	if err != nil {
		return nil, errors.WithContext(err, "load pass records")
	}
	return records, nil
}

// Totals reports how many passes are recorded and how many bytes their
// tasks placed on the server in all.
func (s *Store) Totals() (passes int64, bytes int64, err error) {
	if err := s.db.Model(&Pass{}).Count(&passes).Error; err != nil {
		return 0, 0, errors.WithContext(err, "count passes")
	}
	err = s.db.Model(&Record{}).
		Select("COALESCE(SUM(uploaded_bytes), 0)").Scan(&bytes).Error
	if err != nil {
		return passes, 0, errors.WithContext(err, "sum uploaded bytes")
	}
	return passes, bytes, nil
}

// Clear removes every pass and record, returning how many records were
// dropped.
func (s *Store) Clear() (int64, error) {
	var removed int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Unscoped().Delete(&Record{}, "1 = 1")
		if result.Error != nil {
			return errors.WithContext(result.Error, "clear records")
		}
		removed = result.RowsAffected

		result = tx.Unscoped().Delete(&Pass{}, "1 = 1")
		if result.Error != nil {
			return errors.WithContext(result.Error, "clear passes")
		}
		return nil
	})
	return removed, err
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
