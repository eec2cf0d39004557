package history

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusSummary aggregates archived records for one status.
type StatusSummary struct {
	Count int64
	Size  int64
}

// Operation defines the interface for history database operations
type Operation interface {
	// SaveRecord inserts or updates the record keyed by its JobID.
	SaveRecord(rec *Record) error
	// GetRecord retrieves a record by its job id.
	GetRecord(jobID string) (*Record, error)
	// DeleteRecord deletes a record by its job id.
	DeleteRecord(jobID string) error
	// ListRecords retrieves all records with pagination.
	ListRecords(offset, limit int) ([]*Record, error)
	// CountRecords returns the total number of records in the database.
	CountRecords() (int64, error)
	// Summarize returns per-status record counts and byte totals.
	Summarize() (map[string]StatusSummary, error)
}

// DB is the concrete implementation of Operation
type DB struct {
	conn *gorm.DB
}

// NewDB creates a new DB instance with the given gorm.DB connection
func NewDB(conn *gorm.DB) *DB {
	if conn == nil {
		panic("gorm.DB connection cannot be nil")
	}
	if err := conn.AutoMigrate(&Record{}); err != nil {
		panic("failed to auto migrate Record model: " + err.Error())
	}
	return &DB{conn: conn}
}

func (db *DB) SaveRecord(rec *Record) error {
	if err := db.conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		UpdateAll: true,
	}).Create(rec).Error; err != nil {
		return err
	}
	return nil
}

func (db *DB) GetRecord(jobID string) (*Record, error) {
	var rec Record
	if err := db.conn.Where("job_id = ?", jobID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (db *DB) DeleteRecord(jobID string) error {
	if err := db.conn.Where("job_id = ?", jobID).Delete(&Record{}).Error; err != nil {
		return err
	}
	return nil
}

func (db *DB) ListRecords(offset, limit int) ([]*Record, error) {
	var recs []*Record
	if err := db.conn.Offset(offset).Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (db *DB) CountRecords() (int64, error) {
	var count int64
	if err := db.conn.Model(&Record{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (db *DB) Summarize() (map[string]StatusSummary, error) {
	var rows []struct {
		Status string
		Count  int64
		Size   int64
	}
	if err := db.conn.Model(&Record{}).
		Select("status, count(*) as count, coalesce(sum(size_bytes), 0) as size").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]StatusSummary, len(rows))
	for _, row := range rows {
		out[row.Status] = StatusSummary{Count: row.Count, Size: row.Size}
	}
	return out, nil
}
