package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lumenclass/authcore/internal/database"
	"github.com/lumenclass/authcore/internal/models"
)

// ChallengeRepository persists pending two-factor challenges. Status
// transitions are one-shot updates guarded by WHERE status = 'pending' so a
// challenge can resolve exactly once.
type ChallengeRepository struct {
	db *database.DB
}

func NewChallengeRepository(db *database.DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

const challengeColumns = `id, account_id, login_attempt_id, code_hash, delivery_method, status, expires_at, attempts_used, max_attempts, trust_device_requested, created_at, last_sent_at`

func scanChallengeRow(scanner rowScanner) (*models.TwoFactorChallenge, error) {
	var c models.TwoFactorChallenge
	err := scanner.Scan(
		&c.ID, &c.AccountID, &c.LoginAttemptID, &c.CodeHash, &c.DeliveryMethod,
		&c.Status, &c.ExpiresAt, &c.AttemptsUsed, &c.MaxAttempts,
		&c.TrustDeviceRequested, &c.CreatedAt, &c.LastSentAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &c, nil
}

func (r *ChallengeRepository) Create(ctx context.Context, challenge *models.TwoFactorChallenge) error {
	challenge.ID = uuid.New().String()
	now := time.Now()
	challenge.CreatedAt = now
	challenge.LastSentAt = now
	challenge.Status = models.ChallengePending

	query := `
		INSERT INTO two_factor_challenges (id, account_id, login_attempt_id, code_hash, delivery_method, status, expires_at, attempts_used, max_attempts, trust_device_requested, created_at, last_sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		challenge.ID, challenge.AccountID, challenge.LoginAttemptID, challenge.CodeHash,
		challenge.DeliveryMethod, challenge.Status, challenge.ExpiresAt,
		challenge.AttemptsUsed, challenge.MaxAttempts, challenge.TrustDeviceRequested,
		challenge.CreatedAt, challenge.LastSentAt,
	)
	return database.MapPostgresError(err)
}

func (r *ChallengeRepository) GetByID(ctx context.Context, id string) (*models.TwoFactorChallenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM two_factor_challenges WHERE id = $1`
	return scanChallengeRow(r.db.Pool.QueryRow(ctx, query, id))
}

// IncrementAttempts counts a failed code entry and returns the updated
// usage, so the caller can decide on exhaustion without a second read.
func (r *ChallengeRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE two_factor_challenges
		SET attempts_used = attempts_used + 1
		WHERE id = $1 AND status = 'pending'
		RETURNING attempts_used
	`

	var used int
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(&used)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return used, nil
}

// MarkStatus moves a pending challenge to a terminal status. Returns
// ErrConflict if the challenge already resolved.
func (r *ChallengeRepository) MarkStatus(ctx context.Context, id, status string) error {
	query := `UPDATE two_factor_challenges SET status = $2 WHERE id = $1 AND status = 'pending'`

	tag, err := r.db.Pool.Exec(ctx, query, id, status)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}
	return nil
}

// UpdateCodeForResend replaces the code hash and stamps last_sent_at. The
// attempt counter and expiry carry over unchanged.
func (r *ChallengeRepository) UpdateCodeForResend(ctx context.Context, id, codeHash string) error {
	query := `
		UPDATE two_factor_challenges
		SET code_hash = $2, last_sent_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, codeHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}
	return nil
}

// DeleteResolved removes terminal challenges older than the cutoff.
func (r *ChallengeRepository) DeleteResolved(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM two_factor_challenges WHERE status <> 'pending' AND created_at < $1`

	tag, err := r.db.Pool.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// ExpirePending marks pending challenges past their expiry as expired so
// stale rows do not linger in the pending state.
func (r *ChallengeRepository) ExpirePending(ctx context.Context) (int64, error) {
	query := `UPDATE two_factor_challenges SET status = 'expired' WHERE status = 'pending' AND expires_at <= CURRENT_TIMESTAMP`

	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
