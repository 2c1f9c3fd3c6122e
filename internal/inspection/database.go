package inspection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/inspectdiff/internal/reportdiff"
)

const (
	inspectionBucketName = "inspections"
	imageBucketName      = "images"
	historyBucketName    = "history"
)

// DB defines the interface for database operations
type DB interface {
	// SaveInspection saves an inspection to the database
	SaveInspection(inspection *Inspection) error

	// GetInspection retrieves an inspection by ID
	GetInspection(id string) (*Inspection, error)

	// SaveImage saves an image record, replacing any record of the same type
	SaveImage(record *ImageRecord) error

	// GetImage retrieves the image record of one type within an inspection
	GetImage(inspectionID, imageType string) (*ImageRecord, error)

	// ListImages returns all image records of an inspection
	ListImages(inspectionID string) ([]*ImageRecord, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements DB and HistoryStore using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{inspectionBucketName, imageBucketName, historyBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func imageKey(inspectionID, imageType string) []byte {
	return []byte(inspectionID + "/" + imageType)
}

// SaveInspection saves an inspection to the database
func (b *BoltDB) SaveInspection(inspection *Inspection) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(inspectionBucketName))
		data, err := json.Marshal(inspection)
		if err != nil {
			return fmt.Errorf("marshaling inspection: %w", err)
		}
		return bucket.Put([]byte(inspection.ID), data)
	})
}

// GetInspection retrieves an inspection by ID
func (b *BoltDB) GetInspection(id string) (*Inspection, error) {
	var inspection *Inspection
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(inspectionBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: inspection %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &inspection)
	})
	if err != nil {
		return nil, err
	}
	return inspection, nil
}

// SaveImage saves an image record to the database
func (b *BoltDB) SaveImage(record *ImageRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(imageBucketName))
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling image record: %w", err)
		}
		return bucket.Put(imageKey(record.InspectionID, record.ImageType), data)
	})
}

// GetImage retrieves an image record
func (b *BoltDB) GetImage(inspectionID, imageType string) (*ImageRecord, error) {
	var record *ImageRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(imageBucketName))
		data := bucket.Get(imageKey(inspectionID, imageType))
		if data == nil {
			return fmt.Errorf("%w: image %s of inspection %s", ErrNotFound, imageType, inspectionID)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListImages returns all image records of an inspection ordered by type
func (b *BoltDB) ListImages(inspectionID string) ([]*ImageRecord, error) {
	records := make([]*ImageRecord, 0)
	prefix := []byte(inspectionID + "/")
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(imageBucketName)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var record ImageRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling image record: %w", err)
			}
			records = append(records, &record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetFindings returns the findings stored for key
func (b *BoltDB) GetFindings(key ReportKey) ([]reportdiff.Finding, bool, error) {
	var (
		findings []reportdiff.Finding
		found    bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(historyBucketName)).Get([]byte(key.String()))
		if data == nil {
			return nil
		}
		found = true
		if err := json.Unmarshal(data, &findings); err != nil {
			return fmt.Errorf("unmarshaling findings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return findings, found, nil
}

// PutFindings overwrites the findings stored for key
func (b *BoltDB) PutFindings(key ReportKey, findings []reportdiff.Finding) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if findings == nil {
			findings = []reportdiff.Finding{}
		}
		data, err := json.Marshal(findings)
		if err != nil {
			return fmt.Errorf("marshaling findings: %w", err)
		}
		return tx.Bucket([]byte(historyBucketName)).Put([]byte(key.String()), data)
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

var (
	_ DB           = (*BoltDB)(nil)
	_ HistoryStore = (*BoltDB)(nil)
)
