package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lumenclass/authcore/internal/database"
	"github.com/lumenclass/authcore/internal/models"
)

type NotificationRepository struct {
	db *database.DB
}

func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, account_id, event_type, severity, title, message, metadata, emailed, read_at, created_at`

func scanNotificationRow(scanner rowScanner) (*models.SecurityNotification, error) {
	var n models.SecurityNotification
	err := scanner.Scan(
		&n.ID, &n.AccountID, &n.EventType, &n.Severity, &n.Title, &n.Message,
		&n.Metadata, &n.Emailed, &n.ReadAt, &n.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &n, nil
}

func (r *NotificationRepository) Create(ctx context.Context, notification *models.SecurityNotification) error {
	notification.ID = uuid.New().String()
	notification.CreatedAt = time.Now()

	query := `
		INSERT INTO security_notifications (id, account_id, event_type, severity, title, message, metadata, emailed, read_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		notification.ID, notification.AccountID, notification.EventType,
		notification.Severity, notification.Title, notification.Message,
		notification.Metadata, notification.Emailed, notification.ReadAt,
		notification.CreatedAt,
	)
	return database.MapPostgresError(err)
}

func (r *NotificationRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]models.SecurityNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM security_notifications
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	notifications := make([]models.SecurityNotification, 0)
	for rows.Next() {
		n, err := scanNotificationRow(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *n)
	}

	return notifications, rows.Err()
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id, accountID string) error {
	query := `UPDATE security_notifications SET read_at = CURRENT_TIMESTAMP WHERE id = $1 AND account_id = $2 AND read_at IS NULL`

	tag, err := r.db.Pool.Exec(ctx, query, id, accountID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MarkEmailed records that the email copy went out, after the fact. Email
// delivery is best-effort so this runs outside the insert.
func (r *NotificationRepository) MarkEmailed(ctx context.Context, id string) error {
	query := `UPDATE security_notifications SET emailed = true WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, id)
	return database.MapPostgresError(err)
}
