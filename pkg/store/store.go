// Package store persists assembled run reports in a relational
// database so sweeps accumulate into a queryable history.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okulev/facs/pkg/result"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("report not found")

// Store persists run reports.
type Store interface {
	// Save upserts a report. Reports are unique per sample, index and
	// begin timestamp; re-saving the same run overwrites it.
	Save(ctx context.Context, report *result.RunReport) error

	// List returns records matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*Record, error)

	// Get returns a single record by ID.
	Get(ctx context.Context, id uint) (*Record, error)

	Close() error
}

// Config contains store configuration.
type Config struct {
	// Driver is "sqlite" or "postgres".
	Driver string

	// DSN is the file path for sqlite or a keyword/value connection
	// string for postgres.
	DSN string
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Sample    string
	IndexName string
	Limit     int
}

// Record is the stored form of a run report.
type Record struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Sample         string    `gorm:"uniqueIndex:idx_run;not null" json:"sample"`
	IndexName      string    `gorm:"uniqueIndex:idx_run;not null" json:"fastq_screen_index"`
	BeginTimestamp time.Time `gorm:"uniqueIndex:idx_run;not null" json:"begin_timestamp"`
	EndTimestamp   time.Time `json:"end_timestamp"`

	ToolVersion    string `json:"fastq_screen_version"`
	AlignerVersion string `json:"aligner_version,omitempty"`
	Threads        int    `json:"threads"`

	ContaminationRate float64 `json:"contamination_rate"`

	MaxMem  float64 `json:"max_mem"`
	MinMem  float64 `json:"min_mem"`
	MeanMem float64 `json:"mean_mem"`

	// Organisms holds the per-library statistics as a JSON array,
	// preserving the tool's own column names.
	Organisms json.RawMessage `gorm:"type:text" json:"organisms"`
}

type store struct {
	log logrus.FieldLogger
	db  *gorm.DB
}

var _ Store = (*store)(nil)

// New opens the database and migrates the schema.
func New(log logrus.FieldLogger, cfg *Config) (Store, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &store{
		log: log.WithField("component", "store"),
		db:  db,
	}, nil
}

func (s *store) Save(ctx context.Context, report *result.RunReport) error {
	rec, err := recordFromReport(report)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "sample"},
			{Name: "index_name"},
			{Name: "begin_timestamp"},
		},
		UpdateAll: true,
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("saving report: %w", err)
	}

	return nil
}

func (s *store) List(ctx context.Context, filter Filter) ([]*Record, error) {
	q := s.db.WithContext(ctx).Model(&Record{})

	if filter.Sample != "" {
		q = q.Where("sample = ?", filter.Sample)
	}

	if filter.IndexName != "" {
		q = q.Where("index_name = ?", filter.IndexName)
	}

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var records []*Record
	if err := q.Order("begin_timestamp DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}

	return records, nil
}

func (s *store) Get(ctx context.Context, id uint) (*Record, error) {
	var rec Record

	err := s.db.WithContext(ctx).First(&rec, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("fetching report: %w", err)
	}

	return &rec, nil
}

func (s *store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting database handle: %w", err)
	}

	return sqlDB.Close()
}

func recordFromReport(report *result.RunReport) (*Record, error) {
	organisms, err := json.Marshal(report.Organisms)
	if err != nil {
		return nil, fmt.Errorf("encoding organisms: %w", err)
	}

	return &Record{
		Sample:            report.Sample,
		IndexName:         report.IndexName,
		BeginTimestamp:    report.BeginTimestamp,
		EndTimestamp:      report.EndTimestamp,
		ToolVersion:       report.ToolVersion,
		AlignerVersion:    report.AlignerVersion,
		Threads:           report.Threads,
		ContaminationRate: report.ContaminationRate,
		MaxMem:            report.MaxMem,
		MinMem:            report.MinMem,
		MeanMem:           report.MeanMem,
		Organisms:         organisms,
	}, nil
}
