package postgres

import (
	"context"
	"fmt"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var installmentCopyColumns = []string{"contract_id", "number", "month", "year", "amount", "due_date", "stored_state"}

// InstallmentRepository implements domain.InstallmentRepository using PostgreSQL
type InstallmentRepository struct {
	pool *pgxpool.Pool
}

// NewInstallmentRepository creates a new InstallmentRepository
func NewInstallmentRepository(pool *pgxpool.Pool) *InstallmentRepository {
	return &InstallmentRepository{pool: pool}
}

// GetByContractID returns a contract's installments ordered by number
func (r *InstallmentRepository) GetByContractID(ctx context.Context, contractID int32) ([]domain.Installment, error) {
	byContract, err := loadInstallments(ctx, r.pool, []int32{contractID})
	if err != nil {
		return nil, err
	}
	return byContract[contractID], nil
}

// ReplaceAll swaps the full installment array of a contract in one transaction.
// The contract row is locked so concurrent saves serialize (last writer wins).
func (r *InstallmentRepository) ReplaceAll(ctx context.Context, contractID int32, installments []domain.Installment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var id int32
	err = tx.QueryRow(ctx,
		`SELECT id FROM contracts WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, contractID,
	).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return domain.ErrContractNotFound
		}
		return err
	}

	if err := replaceInstallments(ctx, tx, contractID, installments); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE contracts SET updated_at = NOW() WHERE id = $1`, contractID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// replaceInstallments deletes and re-inserts a contract's installments inside tx
func replaceInstallments(ctx context.Context, tx pgx.Tx, contractID int32, installments []domain.Installment) error {
	if _, err := tx.Exec(ctx, `DELETE FROM contract_installments WHERE contract_id = $1`, contractID); err != nil {
		return fmt.Errorf("failed to clear installments: %w", err)
	}
	if len(installments) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(installments))
	for _, inst := range installments {
		amount, err := decimalToPgNumeric(inst.Amount)
		if err != nil {
			return fmt.Errorf("invalid amount for installment %d: %w", inst.Number, err)
		}
		rows = append(rows, []any{
			contractID,
			inst.Number,
			inst.Month,
			inst.Year,
			amount,
			timeToPgDate(inst.DueDate),
			string(inst.StoredState),
		})
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"contract_installments"}, installmentCopyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to insert installments: %w", err)
	}
	if int(copied) != len(installments) {
		return fmt.Errorf("inserted %d of %d installments", copied, len(installments))
	}
	return nil
}

// loadInstallments fetches the installments of several contracts, grouped by contract
func loadInstallments(ctx context.Context, q querier, contractIDs []int32) (map[int32][]domain.Installment, error) {
	result := make(map[int32][]domain.Installment, len(contractIDs))
	if len(contractIDs) == 0 {
		return result, nil
	}

	rows, err := q.Query(ctx, `
		SELECT contract_id, number, month, year, amount, due_date, stored_state
		FROM contract_installments
		WHERE contract_id = ANY($1)
		ORDER BY contract_id, number`, contractIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			contractID int32
			inst       domain.Installment
			amount     pgtype.Numeric
			dueDate    pgtype.Date
			state      string
		)
		if err := rows.Scan(&contractID, &inst.Number, &inst.Month, &inst.Year, &amount, &dueDate, &state); err != nil {
			return nil, err
		}
		inst.Amount = pgNumericToDecimal(amount)
		inst.DueDate = pgDateToTime(dueDate)
		inst.StoredState = domain.StoredState(state)
		result[contractID] = append(result[contractID], inst)
	}
	return result, rows.Err()
}
