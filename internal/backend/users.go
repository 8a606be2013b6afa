package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mprlab/classgate/internal/platform"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("backend.users.email_taken")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("backend.users.username_taken")
	// ErrUserNotFound indicates no account matches the username.
	ErrUserNotFound = errors.New("backend.users.not_found")
	// ErrInvalidPassword indicates the password did not match.
	ErrInvalidPassword = errors.New("backend.users.invalid_password")
)

// NewAccount is the registration input.
type NewAccount struct {
	Username string
	Name     string
	Email    string
	Password string
	Role     platform.Role
}

// UserStore persists accounts and checks passwords.
type UserStore interface {
	Create(ctx context.Context, account NewAccount) (platform.User, error)
	Authenticate(ctx context.Context, username string, password string) (platform.User, error)
	ByUsername(ctx context.Context, username string) (platform.User, error)
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("backend.users.hash: %w", err)
	}
	return string(hashed), nil
}

func checkPassword(hashed string, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}

// MemoryUserStore keeps accounts in memory for tests and dev runs.
type MemoryUserStore struct {
	mutex      sync.Mutex
	byUsername map[string]*memoryAccount
	emails     map[string]struct{}
}

type memoryAccount struct {
	user         platform.User
	name         string
	passwordHash string
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byUsername: make(map[string]*memoryAccount),
		emails:     make(map[string]struct{}),
	}
}

// Create registers an account after uniqueness checks.
func (store *MemoryUserStore) Create(ctx context.Context, account NewAccount) (platform.User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, exists := store.emails[account.Email]; exists {
		return platform.User{}, ErrEmailTaken
	}
	if _, exists := store.byUsername[account.Username]; exists {
		return platform.User{}, ErrUsernameTaken
	}
	passwordHash, hashErr := hashPassword(account.Password)
	if hashErr != nil {
		return platform.User{}, hashErr
	}
	user := platform.User{
		Username: account.Username,
		Email:    account.Email,
		Role:     account.Role,
	}
	store.byUsername[account.Username] = &memoryAccount{
		user:         user,
		name:         account.Name,
		passwordHash: passwordHash,
	}
	store.emails[account.Email] = struct{}{}
	return user, nil
}

// Authenticate verifies the password for the username.
func (store *MemoryUserStore) Authenticate(ctx context.Context, username string, password string) (platform.User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	account, exists := store.byUsername[username]
	if !exists {
		return platform.User{}, ErrUserNotFound
	}
	if !checkPassword(account.passwordHash, password) {
		return platform.User{}, ErrInvalidPassword
	}
	return account.user, nil
}

// ByUsername returns the profile for the username.
func (store *MemoryUserStore) ByUsername(ctx context.Context, username string) (platform.User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	account, exists := store.byUsername[username]
	if !exists {
		return platform.User{}, ErrUserNotFound
	}
	return account.user, nil
}

// DatabaseUserStore persists accounts using GORM.
type DatabaseUserStore struct {
	db          *gorm.DB
	driverLabel string
}

type userRecord struct {
	ID           string `gorm:"column:id;primaryKey"`
	Username     string `gorm:"column:username;uniqueIndex;not null"`
	Name         string `gorm:"column:name;not null"`
	Email        string `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string `gorm:"column:password_hash;not null"`
	Role         string `gorm:"column:role;not null"`
}

func (userRecord) TableName() string {
	return "users"
}

// NewDatabaseUserStore constructs a GORM-backed user store on an open handle.
func NewDatabaseUserStore(ctx context.Context, database *Database) (*DatabaseUserStore, error) {
	if migrateErr := database.handle.WithContext(ctx).AutoMigrate(&userRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("backend.users.migrate.%s: %w", database.driverLabel, migrateErr)
	}
	return &DatabaseUserStore{db: database.handle, driverLabel: database.driverLabel}, nil
}

// Create registers an account after uniqueness checks.
func (store *DatabaseUserStore) Create(ctx context.Context, account NewAccount) (platform.User, error) {
	var emailCount int64
	if err := store.db.WithContext(ctx).Model(&userRecord{}).Where("email = ?", account.Email).Count(&emailCount).Error; err != nil {
		return platform.User{}, fmt.Errorf("backend.users.create.%s: %w", store.driverLabel, err)
	}
	if emailCount > 0 {
		return platform.User{}, ErrEmailTaken
	}
	var usernameCount int64
	if err := store.db.WithContext(ctx).Model(&userRecord{}).Where("username = ?", account.Username).Count(&usernameCount).Error; err != nil {
		return platform.User{}, fmt.Errorf("backend.users.create.%s: %w", store.driverLabel, err)
	}
	if usernameCount > 0 {
		return platform.User{}, ErrUsernameTaken
	}
	passwordHash, hashErr := hashPassword(account.Password)
	if hashErr != nil {
		return platform.User{}, hashErr
	}
	record := userRecord{
		ID:           uuid.NewString(),
		Username:     account.Username,
		Name:         account.Name,
		Email:        account.Email,
		PasswordHash: passwordHash,
		Role:         string(account.Role),
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return platform.User{}, fmt.Errorf("backend.users.create.%s: %w", store.driverLabel, err)
	}
	return platform.User{
		Username: record.Username,
		Email:    record.Email,
		Role:     account.Role,
	}, nil
}

// Authenticate verifies the password for the username.
func (store *DatabaseUserStore) Authenticate(ctx context.Context, username string, password string) (platform.User, error) {
	record, findErr := store.findByUsername(ctx, username)
	if findErr != nil {
		return platform.User{}, findErr
	}
	if !checkPassword(record.PasswordHash, password) {
		return platform.User{}, ErrInvalidPassword
	}
	return platform.User{
		Username: record.Username,
		Email:    record.Email,
		Role:     platform.Role(record.Role),
	}, nil
}

// ByUsername returns the profile for the username.
func (store *DatabaseUserStore) ByUsername(ctx context.Context, username string) (platform.User, error) {
	record, findErr := store.findByUsername(ctx, username)
	if findErr != nil {
		return platform.User{}, findErr
	}
	return platform.User{
		Username: record.Username,
		Email:    record.Email,
		Role:     platform.Role(record.Role),
	}, nil
}

func (store *DatabaseUserStore) findByUsername(ctx context.Context, username string) (userRecord, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("username = ?", username).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return userRecord{}, ErrUserNotFound
		}
		return userRecord{}, fmt.Errorf("backend.users.find.%s: %w", store.driverLabel, err)
	}
	return record, nil
}
