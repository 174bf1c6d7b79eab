package repository

import (
	"context"
	"database/sql"

	"github.com/akylbek/payment-system/terminal-connector/internal/models"
)

// TransactionLogRepository stores one row per proxied terminal call.
type TransactionLogRepository struct {
	db *sql.DB
}

func NewTransactionLogRepository(db *sql.DB) *TransactionLogRepository {
	return &TransactionLogRepository{db: db}
}

func (r *TransactionLogRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS terminal_transaction_logs (
			id BIGSERIAL PRIMARY KEY,
			method_id VARCHAR(255) NOT NULL,
			line_id VARCHAR(64),
			operation VARCHAR(50) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			request_data TEXT,
			response_data TEXT,
			error_message TEXT,
			request_timestamp TIMESTAMP,
			response_timestamp TIMESTAMP,
			duration_ms BIGINT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_terminal_logs_method_op ON terminal_transaction_logs(method_id, operation)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *TransactionLogRepository) LogRequest(ctx context.Context, entry *models.TransactionLog) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO terminal_transaction_logs (method_id, line_id, operation, status, request_data, request_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, entry.MethodID, entry.LineID, entry.Operation, models.LogStatusPending, entry.RequestData, entry.RequestTimestamp).Scan(&entry.ID)
}

func (r *TransactionLogRepository) LogResponse(ctx context.Context, entry *models.TransactionLog) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE terminal_transaction_logs
		SET status = $1, response_data = $2, error_message = $3, response_timestamp = $4, duration_ms = $5
		WHERE id = $6
	`, entry.Status, entry.ResponseData, entry.ErrorMessage, entry.ResponseTimestamp, entry.Duration().Milliseconds(), entry.ID)
	return err
}
