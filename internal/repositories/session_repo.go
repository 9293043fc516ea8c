package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lumenclass/authcore/internal/database"
	"github.com/lumenclass/authcore/internal/models"
)

// SessionRepository persists the server-side session records that make
// tokens revocable. Per-account mutations rely on row-level conditions
// (compare-and-swap on the refresh hash) rather than in-process locking, so
// the service stays correct across replicas.
type SessionRepository struct {
	db *database.DB
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, account_id, device_fingerprint, device_name, access_token_id, refresh_token_hash, previous_refresh_hash, ip_address, user_agent, created_at, last_accessed, expires_at, is_active`

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var s models.Session
	err := scanner.Scan(
		&s.ID, &s.AccountID, &s.DeviceFingerprint, &s.DeviceName,
		&s.AccessTokenID, &s.RefreshTokenHash, &s.PreviousRefreshHash,
		&s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.LastAccessed,
		&s.ExpiresAt, &s.IsActive,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now()
	session.CreatedAt = now
	session.LastAccessed = now
	session.IsActive = true

	query := `
		INSERT INTO sessions (id, account_id, device_fingerprint, device_name, access_token_id, refresh_token_hash, previous_refresh_hash, ip_address, user_agent, created_at, last_accessed, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		session.ID, session.AccountID, session.DeviceFingerprint, session.DeviceName,
		session.AccessTokenID, session.RefreshTokenHash, session.PreviousRefreshHash,
		session.IPAddress, session.UserAgent, session.CreatedAt, session.LastAccessed,
		session.ExpiresAt, session.IsActive,
	)
	return database.MapPostgresError(err)
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSessionRow(r.db.Pool.QueryRow(ctx, query, id))
}

// GetByRefreshHash finds the session currently owning a refresh token hash.
func (r *SessionRepository) GetByRefreshHash(ctx context.Context, hash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_token_hash = $1`
	return scanSessionRow(r.db.Pool.QueryRow(ctx, query, hash))
}

// GetByPreviousRefreshHash finds the session that already rotated a token
// away. A hit means the presented token was consumed before — the reuse
// signal.
func (r *SessionRepository) GetByPreviousRefreshHash(ctx context.Context, hash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE previous_refresh_hash = $1`
	return scanSessionRow(r.db.Pool.QueryRow(ctx, query, hash))
}

// RotateRefresh swaps in the next refresh hash if and only if the current
// hash still matches and the session is active. The conditional update is
// the linearization point for concurrent refreshes: exactly one wins.
func (r *SessionRepository) RotateRefresh(ctx context.Context, sessionID, currentHash, nextHash, nextAccessTokenID string, nextExpiry time.Time) error {
	query := `
		UPDATE sessions
		SET refresh_token_hash = $3,
		    previous_refresh_hash = $2,
		    access_token_id = $4,
		    expires_at = $5,
		    last_accessed = CURRENT_TIMESTAMP
		WHERE id = $1 AND refresh_token_hash = $2 AND is_active = true
	`

	tag, err := r.db.Pool.Exec(ctx, query, sessionID, currentHash, nextHash, nextAccessTokenID, nextExpiry)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}
	return nil
}

func (r *SessionRepository) IsSessionActive(ctx context.Context, sessionID string) (bool, error) {
	query := `SELECT is_active AND expires_at > CURRENT_TIMESTAMP FROM sessions WHERE id = $1`

	var active bool
	err := r.db.Pool.QueryRow(ctx, query, sessionID).Scan(&active)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return active, nil
}

func (r *SessionRepository) TouchLastAccessed(ctx context.Context, sessionID string) error {
	query := `UPDATE sessions SET last_accessed = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, sessionID)
	return database.MapPostgresError(err)
}

func (r *SessionRepository) ListActive(ctx context.Context, accountID string) ([]models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE account_id = $1 AND is_active = true AND expires_at > CURRENT_TIMESTAMP
		ORDER BY last_accessed DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}

	return sessions, rows.Err()
}

func (r *SessionRepository) Deactivate(ctx context.Context, sessionID, accountID string) error {
	query := `UPDATE sessions SET is_active = false WHERE id = $1 AND account_id = $2 AND is_active = true`

	tag, err := r.db.Pool.Exec(ctx, query, sessionID, accountID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) DeactivateAll(ctx context.Context, accountID string) (int64, error) {
	query := `UPDATE sessions SET is_active = false WHERE account_id = $1 AND is_active = true`

	tag, err := r.db.Pool.Exec(ctx, query, accountID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) DeactivateAllExcept(ctx context.Context, accountID, keepSessionID string) (int64, error) {
	query := `UPDATE sessions SET is_active = false WHERE account_id = $1 AND id <> $2 AND is_active = true`

	tag, err := r.db.Pool.Exec(ctx, query, accountID, keepSessionID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// DeactivateByFingerprint revokes every active session tied to a device
// fingerprint — the cascade behind device revocation.
func (r *SessionRepository) DeactivateByFingerprint(ctx context.Context, accountID, fingerprintHash string) (int64, error) {
	query := `UPDATE sessions SET is_active = false WHERE account_id = $1 AND device_fingerprint = $2 AND is_active = true`

	tag, err := r.db.Pool.Exec(ctx, query, accountID, fingerprintHash)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteStale removes long-inactive and long-expired session rows.
func (r *SessionRepository) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE (is_active = false OR expires_at <= CURRENT_TIMESTAMP) AND last_accessed < $1`

	tag, err := r.db.Pool.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
