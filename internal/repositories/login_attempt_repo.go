package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lumenclass/authcore/internal/database"
	"github.com/lumenclass/authcore/internal/models"
)

// LoginAttemptRepository owns the append-only login history.
type LoginAttemptRepository struct {
	db *database.DB
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Record appends a login attempt. Rows are immutable once written.
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	attempt.ID = uuid.New().String()
	if attempt.AttemptTime.IsZero() {
		attempt.AttemptTime = time.Now()
	}

	query := `
		INSERT INTO login_attempts (id, account_id, email, ip_address, user_agent, device_fingerprint, country, city, attempt_time, success, failure_reason, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.AccountID,
		attempt.Email,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.DeviceFingerprint,
		attempt.Country,
		attempt.City,
		attempt.AttemptTime,
		attempt.Success,
		attempt.FailureReason,
		attempt.ExpiresAt,
	)

	return database.MapPostgresError(err)
}

func (r *LoginAttemptRepository) GetByID(ctx context.Context, id string) (*models.LoginAttempt, error) {
	query := `
		SELECT id, account_id, email, ip_address, user_agent, device_fingerprint, country, city, attempt_time, success, failure_reason, expires_at
		FROM login_attempts
		WHERE id = $1
	`

	var a models.LoginAttempt
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.AccountID, &a.Email, &a.IPAddress, &a.UserAgent,
		&a.DeviceFingerprint, &a.Country, &a.City, &a.AttemptTime,
		&a.Success, &a.FailureReason, &a.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}

// ListByAccount returns the most recent attempts for an account, newest
// first, for the risk engine's baseline.
func (r *LoginAttemptRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]models.LoginAttempt, error) {
	query := `
		SELECT id, account_id, email, ip_address, user_agent, device_fingerprint, country, city, attempt_time, success, failure_reason, expires_at
		FROM login_attempts
		WHERE account_id = $1
		ORDER BY attempt_time DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	attempts := make([]models.LoginAttempt, 0)
	for rows.Next() {
		var a models.LoginAttempt
		if err := rows.Scan(
			&a.ID, &a.AccountID, &a.Email, &a.IPAddress, &a.UserAgent,
			&a.DeviceFingerprint, &a.Country, &a.City, &a.AttemptTime,
			&a.Success, &a.FailureReason, &a.ExpiresAt,
		); err != nil {
			return nil, database.MapPostgresError(err)
		}
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}

// CountRecentByEmail counts attempts (any outcome) for an email since the
// given time, used for the velocity risk factor.
func (r *LoginAttemptRepository) CountRecentByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM login_attempts WHERE email = $1 AND attempt_time >= $2`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// CountFailedByIP counts failed attempts from an IP since the given time.
func (r *LoginAttemptRepository) CountFailedByIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM login_attempts WHERE ip_address = $1 AND success = false AND attempt_time >= $2`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, ipAddress, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// CountRecentFailuresByAccount counts failed attempts for an account since
// the given time, used by the repeated-failures notification.
func (r *LoginAttemptRepository) CountRecentFailuresByAccount(ctx context.Context, accountID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM login_attempts WHERE account_id = $1 AND success = false AND attempt_time >= $2`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, accountID, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// DeleteExpired removes attempts past their retention expiry.
func (r *LoginAttemptRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM login_attempts WHERE expires_at <= CURRENT_TIMESTAMP`
	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
