package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrDuplicateFileName indicates an upload reused an existing file name.
var ErrDuplicateFileName = errors.New("backend.files.duplicate_name")

// UploadedFile is the stored record of one upload.
type UploadedFile struct {
	ID         string
	FileName   string
	Username   string
	Size       int64
	UploadedAt time.Time
}

// FileStore persists upload records. File names are unique platform-wide.
type FileStore interface {
	Create(ctx context.Context, record UploadedFile) (UploadedFile, error)
	ByName(ctx context.Context, fileName string) (UploadedFile, error)
}

// ErrFileNotFound indicates no record matches the file name.
var ErrFileNotFound = errors.New("backend.files.not_found")

// MemoryFileStore keeps upload records in memory.
type MemoryFileStore struct {
	mutex  sync.Mutex
	byName map[string]UploadedFile
}

// NewMemoryFileStore creates an empty in-memory file store.
func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{byName: make(map[string]UploadedFile)}
}

// Create stores a record, rejecting duplicate file names.
func (store *MemoryFileStore) Create(ctx context.Context, record UploadedFile) (UploadedFile, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, exists := store.byName[record.FileName]; exists {
		return UploadedFile{}, ErrDuplicateFileName
	}
	record.ID = uuid.NewString()
	record.UploadedAt = time.Now().UTC()
	store.byName[record.FileName] = record
	return record, nil
}

// ByName returns the record for the file name.
func (store *MemoryFileStore) ByName(ctx context.Context, fileName string) (UploadedFile, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, exists := store.byName[fileName]
	if !exists {
		return UploadedFile{}, ErrFileNotFound
	}
	return record, nil
}

// DatabaseFileStore persists upload records using GORM.
type DatabaseFileStore struct {
	db          *gorm.DB
	driverLabel string
}

type uploadedFileRecord struct {
	ID             string `gorm:"column:id;primaryKey"`
	FileName       string `gorm:"column:file_name;uniqueIndex;not null"`
	Username       string `gorm:"column:username;index;not null"`
	Size           int64  `gorm:"column:size;not null"`
	UploadedAtUnix int64  `gorm:"column:uploaded_at_unix;not null"`
}

func (uploadedFileRecord) TableName() string {
	return "uploaded_files"
}

// NewDatabaseFileStore constructs a GORM-backed file store.
func NewDatabaseFileStore(ctx context.Context, database *Database) (*DatabaseFileStore, error) {
	if migrateErr := database.handle.WithContext(ctx).AutoMigrate(&uploadedFileRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("backend.files.migrate.%s: %w", database.driverLabel, migrateErr)
	}
	return &DatabaseFileStore{db: database.handle, driverLabel: database.driverLabel}, nil
}

// Create stores a record, rejecting duplicate file names.
func (store *DatabaseFileStore) Create(ctx context.Context, record UploadedFile) (UploadedFile, error) {
	var count int64
	if err := store.db.WithContext(ctx).Model(&uploadedFileRecord{}).Where("file_name = ?", record.FileName).Count(&count).Error; err != nil {
		return UploadedFile{}, fmt.Errorf("backend.files.create.%s: %w", store.driverLabel, err)
	}
	if count > 0 {
		return UploadedFile{}, ErrDuplicateFileName
	}
	now := time.Now().UTC()
	stored := uploadedFileRecord{
		ID:             uuid.NewString(),
		FileName:       record.FileName,
		Username:       record.Username,
		Size:           record.Size,
		UploadedAtUnix: now.Unix(),
	}
	if err := store.db.WithContext(ctx).Create(&stored).Error; err != nil {
		return UploadedFile{}, fmt.Errorf("backend.files.create.%s: %w", store.driverLabel, err)
	}
	record.ID = stored.ID
	record.UploadedAt = now
	return record, nil
}

// ByName returns the record for the file name.
func (store *DatabaseFileStore) ByName(ctx context.Context, fileName string) (UploadedFile, error) {
	var stored uploadedFileRecord
	err := store.db.WithContext(ctx).Where("file_name = ?", fileName).Take(&stored).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return UploadedFile{}, ErrFileNotFound
		}
		return UploadedFile{}, fmt.Errorf("backend.files.find.%s: %w", store.driverLabel, err)
	}
	return UploadedFile{
		ID:         stored.ID,
		FileName:   stored.FileName,
		Username:   stored.Username,
		Size:       stored.Size,
		UploadedAt: time.Unix(stored.UploadedAtUnix, 0).UTC(),
	}, nil
}
