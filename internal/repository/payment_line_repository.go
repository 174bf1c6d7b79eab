package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/terminal-connector/internal/models"
)

type PaymentLineRepository struct {
	db *sql.DB
}

func NewPaymentLineRepository(db *sql.DB) *PaymentLineRepository {
	return &PaymentLineRepository{db: db}
}

func (r *PaymentLineRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_lines (
			id UUID PRIMARY KEY,
			order_id VARCHAR(255) NOT NULL,
			amount NUMERIC(14, 2) NOT NULL,
			status VARCHAR(50) NOT NULL DEFAULT 'init',
			transaction_id VARCHAR(255),
			card_type VARCHAR(50),
			card_last_four VARCHAR(20),
			auth_code VARCHAR(50),
			cardholder_name VARCHAR(255),
			reference VARCHAR(255),
			terminal_amount NUMERIC(14, 2),
			terminal_result VARCHAR(50),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_lines_order ON payment_lines(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_lines_status ON payment_lines(status)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// InsertLine creates a line for the order surface; the payment core never creates lines.
func (r *PaymentLineRepository) InsertLine(ctx context.Context, line models.PaymentLine) error {
	status := line.Status
	if status == "" {
		status = models.StatusInit
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_lines (id, order_id, amount, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, line.ID, line.OrderID, line.Amount, status)
	return err
}

func (r *PaymentLineRepository) GetLine(ctx context.Context, id uuid.UUID) (*models.PaymentLine, error) {
	var line models.PaymentLine
	var txID, cardType, last4, authCode, holder, ref, res sql.NullString
	var terminalAmount decimal.NullDecimal
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, amount, status, transaction_id, card_type, card_last_four,
			auth_code, cardholder_name, reference, terminal_amount, terminal_result, updated_at
		FROM payment_lines WHERE id = $1
	`, id).Scan(&line.ID, &line.OrderID, &line.Amount, &line.Status, &txID, &cardType, &last4,
		&authCode, &holder, &ref, &terminalAmount, &res, &line.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrLineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select payment line: %w", err)
	}

	if line.Status == models.StatusDone {
		line.Settlement = &models.Settlement{
			TransactionID:  txID.String,
			CardType:       cardType.String,
			CardLastFour:   last4.String,
			AuthCode:       authCode.String,
			CardholderName: holder.String,
			Reference:      ref.String,
			Amount:         terminalAmount.Decimal,
			Result:         res.String,
		}
	}
	return &line, nil
}

func (r *PaymentLineRepository) TransitionLine(ctx context.Context, id uuid.UUID, from []models.LineStatus, to models.LineStatus, settlement *models.Settlement) (int64, error) {
	sources := make([]string, 0, len(from))
	for _, s := range from {
		sources = append(sources, string(s))
	}

	var (
		result sql.Result
		err    error
	)
	if settlement != nil {
		result, err = r.db.ExecContext(ctx, `
			UPDATE payment_lines
			SET status = $1, transaction_id = $2, card_type = $3, card_last_four = $4, auth_code = $5,
				cardholder_name = $6, reference = $7, terminal_amount = $8, terminal_result = $9, updated_at = NOW()
			WHERE id = $10 AND status = ANY($11)
		`, to, settlement.TransactionID, settlement.CardType, settlement.CardLastFour, settlement.AuthCode,
			settlement.CardholderName, settlement.Reference, settlement.Amount, settlement.Result, id, pq.Array(sources))
	} else {
		result, err = r.db.ExecContext(ctx, `
			UPDATE payment_lines
			SET status = $1, updated_at = NOW()
			WHERE id = $2 AND status = ANY($3)
		`, to, id, pq.Array(sources))
	}
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
