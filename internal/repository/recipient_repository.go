// internal/repository/recipient_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/unclebandit/msgblast-backend/internal/model"
)

type RecipientRepository struct {
	DB *sql.DB
}

const recipientColumns = `id, job_id, position, email, phone, name, custom_fields,
	status, message_id, error_message, delivered_at, opened_at, clicked_at,
	created_at, updated_at`

func (r *RecipientRepository) ListPage(ctx context.Context, jobID string, offset, limit int) ([]*model.Recipient, int, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT `+recipientColumns+` FROM job_recipients
        WHERE job_id=$1 ORDER BY position ASC LIMIT $2 OFFSET $3`,
		jobID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	recipients, err := scanRecipients(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_recipients WHERE job_id=$1`, jobID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return recipients, total, nil
}

func (r *RecipientRepository) Pending(ctx context.Context, jobID string, limit int) ([]*model.Recipient, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT `+recipientColumns+` FROM job_recipients
        WHERE job_id=$1 AND status='pending' ORDER BY position ASC LIMIT $2`,
		jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecipients(rows)
}

// MarkSent records the message id unconditionally but only advances the
// status when the recipient is still pending, so a webhook event racing in
// first is never downgraded.
func (r *RecipientRepository) MarkSent(ctx context.Context, id int64, messageID string) error {
	_, err := r.DB.ExecContext(ctx, `
        UPDATE job_recipients SET
            message_id=$2,
            status = CASE WHEN status='pending' THEN 'sent' ELSE status END,
            updated_at=NOW()
        WHERE id=$1`, id, messageID)
	return err
}

// MarkFailed advances pending->failed with the reason. A recipient a webhook
// already moved past pending keeps its status and stays free of an error
// message it never earned.
func (r *RecipientRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.DB.ExecContext(ctx, `
        UPDATE job_recipients SET
            error_message = CASE WHEN status='pending' THEN $2 ELSE error_message END,
            status = CASE WHEN status='pending' THEN 'failed' ELSE status END,
            updated_at=NOW()
        WHERE id=$1`, id, reason)
	return err
}

func (r *RecipientRepository) ByMessageID(ctx context.Context, jobID, messageID string) (*model.Recipient, error) {
	row := r.DB.QueryRowContext(ctx, `
        SELECT `+recipientColumns+` FROM job_recipients
        WHERE job_id=$1 AND message_id=$2`, jobID, messageID)
	return scanOneRecipient(row)
}

func (r *RecipientRepository) ByEmailAndMessageID(ctx context.Context, jobID, email, messageID string) (*model.Recipient, error) {
	row := r.DB.QueryRowContext(ctx, `
        SELECT `+recipientColumns+` FROM job_recipients
        WHERE job_id=$1 AND email=$2 AND message_id=$3`, jobID, email, messageID)
	return scanOneRecipient(row)
}

// ApplyEvent locks the recipient row, applies the transition in Go through
// model.ApplyEvent, and writes the result back. SELECT FOR UPDATE gives the
// per-recipient atomic read-modify-write that keeps the dispatcher and the
// reconciler from losing each other's updates.
func (r *RecipientRepository) ApplyEvent(ctx context.Context, id int64, ev model.DeliveryEvent) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
        SELECT `+recipientColumns+` FROM job_recipients WHERE id=$1 FOR UPDATE`, id)
	rec, err := scanOneRecipient(row)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	if !model.ApplyEvent(rec, ev, time.Now()) {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE job_recipients SET
            status=$2, error_message=$3,
            delivered_at=$4, opened_at=$5, clicked_at=$6, updated_at=NOW()
        WHERE id=$1`,
		id, rec.Status, rec.ErrorMessage,
		rec.DeliveredAt, rec.OpenedAt, rec.ClickedAt); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (r *RecipientRepository) AppendEvent(ctx context.Context, id int64, eventType string, payload []byte) error {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO recipient_events (recipient_id, event_type, payload)
        VALUES ($1,$2,$3)`, id, eventType, payload)
	return err
}

func scanRecipients(rows *sql.Rows) ([]*model.Recipient, error) {
	recipients := []*model.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

func scanOneRecipient(row rowScanner) (*model.Recipient, error) {
	rec, err := scanRecipient(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return rec, nil
}

func scanRecipient(row rowScanner) (*model.Recipient, error) {
	var rec model.Recipient
	var fieldsJSON []byte
	err := row.Scan(
		&rec.ID, &rec.JobID, &rec.Position,
		&rec.Email, &rec.Phone, &rec.Name, &fieldsJSON,
		&rec.Status, &rec.MessageID, &rec.ErrorMessage,
		&rec.DeliveredAt, &rec.OpenedAt, &rec.ClickedAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &rec.CustomFields); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
