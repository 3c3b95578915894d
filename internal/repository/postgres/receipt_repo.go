package postgres

import (
	"context"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const receiptColumns = `id, contract_id, installment_number, thumbnail_path, display_path, original_path, created_at`

// ReceiptRepository implements domain.ReceiptRepository using PostgreSQL
type ReceiptRepository struct {
	pool *pgxpool.Pool
}

// NewReceiptRepository creates a new ReceiptRepository
func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool}
}

// Create records an uploaded receipt
func (r *ReceiptRepository) Create(ctx context.Context, receipt *domain.Receipt) (*domain.Receipt, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO installment_receipts (id, contract_id, installment_number, thumbnail_path, display_path, original_path)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+receiptColumns,
		uuidToPg(receipt.ID),
		receipt.ContractID,
		receipt.InstallmentNumber,
		receipt.ThumbnailPath,
		receipt.DisplayPath,
		receipt.OriginalPath,
	)
	return scanReceipt(row)
}

// GetByID retrieves a receipt of a contract
func (r *ReceiptRepository) GetByID(ctx context.Context, contractID int32, id uuid.UUID) (*domain.Receipt, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+receiptColumns+`
		FROM installment_receipts
		WHERE contract_id = $1 AND id = $2`, contractID, uuidToPg(id))
	receipt, err := scanReceipt(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrReceiptNotFound
		}
		return nil, err
	}
	return receipt, nil
}

// GetByInstallment lists the receipts of one installment, oldest first
func (r *ReceiptRepository) GetByInstallment(ctx context.Context, contractID int32, number int32) ([]*domain.Receipt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+receiptColumns+`
		FROM installment_receipts
		WHERE contract_id = $1 AND installment_number = $2
		ORDER BY created_at, id`, contractID, number)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Receipt, error) {
		return scanReceipt(row)
	})
}

// Delete removes a receipt record
func (r *ReceiptRepository) Delete(ctx context.Context, contractID int32, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM installment_receipts WHERE contract_id = $1 AND id = $2`, contractID, uuidToPg(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReceiptNotFound
	}
	return nil
}

func scanReceipt(row pgx.Row) (*domain.Receipt, error) {
	var (
		id      pgtype.UUID
		receipt domain.Receipt
	)
	err := row.Scan(
		&id,
		&receipt.ContractID,
		&receipt.InstallmentNumber,
		&receipt.ThumbnailPath,
		&receipt.DisplayPath,
		&receipt.OriginalPath,
		&receipt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	receipt.ID = pgToUUID(id)
	return &receipt, nil
}
