package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lumenclass/authcore/internal/database"
	"github.com/lumenclass/authcore/internal/models"
)

// DeviceRepository persists per-account known devices, one row per
// (account, fingerprint hash).
type DeviceRepository struct {
	db *database.DB
}

func NewDeviceRepository(db *database.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

const deviceColumns = `id, account_id, fingerprint_hash, friendly_name, device_class, trusted, first_seen, last_seen, last_ip, country, city`

func scanDeviceRow(scanner rowScanner) (*models.TrustedDevice, error) {
	var d models.TrustedDevice
	err := scanner.Scan(
		&d.ID, &d.AccountID, &d.FingerprintHash, &d.FriendlyName, &d.DeviceClass,
		&d.Trusted, &d.FirstSeen, &d.LastSeen, &d.LastIP, &d.Country, &d.City,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &d, nil
}

// Upsert performs the atomic register-or-touch: inserts a new untrusted
// device on first sight, otherwise updates last_seen/last_ip/location. The
// trusted flag is deliberately absent from the update list so it never
// auto-downgrades.
func (r *DeviceRepository) Upsert(ctx context.Context, device *models.TrustedDevice) (*models.TrustedDevice, error) {
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	now := time.Now()

	query := `
		INSERT INTO trusted_devices (id, account_id, fingerprint_hash, friendly_name, device_class, trusted, first_seen, last_seen, last_ip, country, city)
		VALUES ($1, $2, $3, $4, $5, false, $6, $6, $7, $8, $9)
		ON CONFLICT (account_id, fingerprint_hash) DO UPDATE
		SET last_seen = EXCLUDED.last_seen,
		    last_ip = EXCLUDED.last_ip,
		    country = COALESCE(NULLIF(EXCLUDED.country, ''), trusted_devices.country),
		    city = COALESCE(NULLIF(EXCLUDED.city, ''), trusted_devices.city)
		RETURNING ` + deviceColumns

	return scanDeviceRow(r.db.Pool.QueryRow(ctx, query,
		device.ID, device.AccountID, device.FingerprintHash, device.FriendlyName,
		device.DeviceClass, now, device.LastIP, device.Country, device.City,
	))
}

func (r *DeviceRepository) GetByID(ctx context.Context, id, accountID string) (*models.TrustedDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM trusted_devices WHERE id = $1 AND account_id = $2`
	return scanDeviceRow(r.db.Pool.QueryRow(ctx, query, id, accountID))
}

func (r *DeviceRepository) GetByFingerprint(ctx context.Context, accountID, fingerprintHash string) (*models.TrustedDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM trusted_devices WHERE account_id = $1 AND fingerprint_hash = $2`
	return scanDeviceRow(r.db.Pool.QueryRow(ctx, query, accountID, fingerprintHash))
}

func (r *DeviceRepository) List(ctx context.Context, accountID string) ([]models.TrustedDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM trusted_devices WHERE account_id = $1 ORDER BY last_seen DESC`

	rows, err := r.db.Pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	devices := make([]models.TrustedDevice, 0)
	for rows.Next() {
		d, err := scanDeviceRow(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}

	return devices, rows.Err()
}

// SetTrusted flips the trust flag. Only upward transitions happen in
// practice; removal is a delete, not a downgrade.
func (r *DeviceRepository) SetTrusted(ctx context.Context, id, accountID string, trusted bool) error {
	query := `UPDATE trusted_devices SET trusted = $3 WHERE id = $1 AND account_id = $2`

	tag, err := r.db.Pool.Exec(ctx, query, id, accountID, trusted)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *DeviceRepository) Delete(ctx context.Context, id, accountID string) error {
	query := `DELETE FROM trusted_devices WHERE id = $1 AND account_id = $2`

	tag, err := r.db.Pool.Exec(ctx, query, id, accountID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *DeviceRepository) DeleteAllExcept(ctx context.Context, accountID, keepDeviceID string) (int64, error) {
	query := `DELETE FROM trusted_devices WHERE account_id = $1 AND id <> $2`

	tag, err := r.db.Pool.Exec(ctx, query, accountID, keepDeviceID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
