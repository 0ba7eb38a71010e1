// Package clickhouse stores the audit trail. ClickHouse fits the write
// pattern here: append-only inserts, occasional pseudonym scans, and a
// bulk retention sweep.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"recordkeeper-auth/internal/bucketing"
	"recordkeeper-auth/internal/client"
	"recordkeeper-auth/internal/models"
	"recordkeeper-auth/internal/util"
)

const insertEntry = `
    INSERT INTO audit_entries (
        entry_id, event, pseudonymized_user_id, pseudonymized_email,
        ip, token_hash, encrypted_data, risk_score, event_bucket,
        date_bucket, timestamp, retain_until
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectByPseudonym = `
    SELECT entry_id, event, pseudonymized_user_id, pseudonymized_email,
        ip, token_hash, encrypted_data, risk_score, timestamp, retain_until
    FROM audit_entries
    WHERE pseudonymized_user_id = ?
    ORDER BY timestamp DESC
    LIMIT ?`

const deleteExpired = `
    ALTER TABLE audit_entries DELETE WHERE retain_until <= ?`

type AuditRepository struct {
	client    *client.ClickHouseClient
	bucketing *bucketing.Manager
}

func NewAuditRepository(chClient *client.ClickHouseClient, bucketManager *bucketing.Manager) *AuditRepository {
	return &AuditRepository{
		client:    chClient,
		bucketing: bucketManager,
	}
}

func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	err := r.client.Exec(ctx, insertEntry,
		entry.EntryID, entry.Event, entry.PseudonymizedUserID,
		entry.PseudonymizedEmail, entry.IP, entry.TokenHash,
		entry.EncryptedData, int32(entry.RiskScore),
		int32(r.bucketing.EventBucket(entry.PseudonymizedUserID)),
		r.bucketing.DateBucket(), entry.Timestamp, entry.RetainUntil,
	)
	if err != nil {
		util.Error("Failed to insert audit entry",
			zap.String("entry_id", entry.EntryID),
			zap.String("event", entry.Event),
			zap.Error(err))
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) FindByPseudonym(ctx context.Context, pseudonymizedUserID string, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.client.QueryRows(ctx, selectByPseudonym, pseudonymizedUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		entry := &models.AuditEntry{}
		var riskScore int32
		if err := rows.Scan(
			&entry.EntryID, &entry.Event, &entry.PseudonymizedUserID,
			&entry.PseudonymizedEmail, &entry.IP, &entry.TokenHash,
			&entry.EncryptedData, &riskScore, &entry.Timestamp,
			&entry.RetainUntil,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.RiskScore = int(riskScore)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit entries: %w", err)
	}
	return entries, nil
}

// PurgeExpired drops entries past their retention horizon. The mutation
// is asynchronous on the ClickHouse side.
func (r *AuditRepository) PurgeExpired(ctx context.Context, now time.Time) error {
	if err := r.client.Exec(ctx, deleteExpired, now); err != nil {
		return fmt.Errorf("failed to purge expired audit entries: %w", err)
	}
	util.Info("Audit retention sweep issued", zap.Time("horizon", now))
	return nil
}
