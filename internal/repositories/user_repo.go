package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lumenclass/authcore/internal/database"
	"github.com/lumenclass/authcore/internal/models"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// rowScanner interface for scanning user rows (single row or rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var phoneNumber *string
	var lockedUntil, passwordChangedAt *time.Time

	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name,
		&user.Role, &user.Status, &user.TwoFactorEnabled, &phoneNumber,
		&lockedUntil, &passwordChangedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	user.PhoneNumber = phoneNumber
	user.LockedUntil = lockedUntil
	user.PasswordChangedAt = passwordChangedAt

	return &user, nil
}

const userColumns = `id, email, password_hash, name, role, status, two_factor_enabled, phone_number, locked_until, password_changed_at, created_at, updated_at`

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = "student"
	}
	if user.Status == "" {
		user.Status = "active"
	}

	query := `
		INSERT INTO users (id, email, password_hash, name, role, status, two_factor_enabled, phone_number, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Name,
		user.Role, user.Status, user.TwoFactorEnabled, user.PhoneNumber,
		user.PasswordChangedAt, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return user, nil
}

// SetTwoFactorEnabled toggles the account-level 2FA flag.
func (r *UserRepository) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE users SET two_factor_enabled = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, id, enabled)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdatePassword sets a new hash and stamps password_changed_at so older
// tokens can be invalidated.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, password_changed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// TOTP devices

func (r *UserRepository) CreateTOTPDevice(ctx context.Context, device *models.TOTPDevice) error {
	device.ID = uuid.New().String()
	device.CreatedAt = time.Now()

	query := `
		INSERT INTO totp_devices (id, user_id, secret_encrypted, secret_nonce, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		device.ID, device.UserID, device.SecretEncrypted, device.SecretNonce, device.CreatedAt,
	)
	return database.MapPostgresError(err)
}

func (r *UserRepository) GetTOTPDevice(ctx context.Context, userID string) (*models.TOTPDevice, error) {
	query := `
		SELECT id, user_id, secret_encrypted, secret_nonce, last_used_at, verified_at, created_at
		FROM totp_devices
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var device models.TOTPDevice
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&device.ID, &device.UserID, &device.SecretEncrypted, &device.SecretNonce,
		&device.LastUsedAt, &device.VerifiedAt, &device.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &device, nil
}

func (r *UserRepository) MarkTOTPDeviceVerified(ctx context.Context, deviceID string) error {
	query := `UPDATE totp_devices SET verified_at = CURRENT_TIMESTAMP WHERE id = $1 AND verified_at IS NULL`

	tag, err := r.db.Pool.Exec(ctx, query, deviceID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("totp device %s already verified or missing: %w", deviceID, models.ErrConflict)
	}
	return nil
}

func (r *UserRepository) TouchTOTPDevice(ctx context.Context, deviceID string) error {
	query := `UPDATE totp_devices SET last_used_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, deviceID)
	return database.MapPostgresError(err)
}
