package postgres

import (
	"context"
	"fmt"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const contractColumns = `id, workspace_id, property_name, tenant_name, kind, start_date, end_date,
	total_price, reserved, notes, created_at, updated_at, deleted_at`

// ContractRepository implements domain.ContractRepository using PostgreSQL.
// Contracts are always returned with their installments.
type ContractRepository struct {
	pool *pgxpool.Pool
}

// NewContractRepository creates a new ContractRepository
func NewContractRepository(pool *pgxpool.Pool) *ContractRepository {
	return &ContractRepository{pool: pool}
}

// Create inserts the contract and its installments in one transaction
func (r *ContractRepository) Create(ctx context.Context, contract *domain.Contract) (*domain.Contract, error) {
	totalPrice, err := decimalToPgNumeric(contract.TotalPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid total price: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO contracts (workspace_id, property_name, tenant_name, kind, start_date, end_date, total_price, reserved, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+contractColumns,
		contract.WorkspaceID,
		contract.PropertyName,
		contract.TenantName,
		string(contract.Kind),
		timeToPgDate(contract.StartDate),
		timeToPgDate(contract.EndDate),
		totalPrice,
		contract.Reserved,
		stringPtrToPgText(contract.Notes),
	)
	created, err := scanContract(row)
	if err != nil {
		return nil, err
	}

	if err := replaceInstallments(ctx, tx, created.ID, contract.Installments); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	created.Installments = domain.CloneInstallments(contract.Installments)
	if created.Installments == nil {
		created.Installments = []domain.Installment{}
	}
	return created, nil
}

// GetByID retrieves a live contract by its ID within a workspace
func (r *ContractRepository) GetByID(ctx context.Context, workspaceID int32, id int32) (*domain.Contract, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+contractColumns+`
		FROM contracts
		WHERE workspace_id = $1 AND id = $2 AND deleted_at IS NULL`, workspaceID, id)
	contract, err := scanContract(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrContractNotFound
		}
		return nil, err
	}

	if err := r.attachInstallments(ctx, r.pool, contract); err != nil {
		return nil, err
	}
	return contract, nil
}

// GetAllByWorkspace retrieves all live contracts of a workspace, newest start first
func (r *ContractRepository) GetAllByWorkspace(ctx context.Context, workspaceID int32) ([]*domain.Contract, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+contractColumns+`
		FROM contracts
		WHERE workspace_id = $1 AND deleted_at IS NULL
		ORDER BY start_date DESC, id DESC`, workspaceID)
	if err != nil {
		return nil, err
	}

	contracts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Contract, error) {
		return scanContract(row)
	})
	if err != nil {
		return nil, err
	}

	if err := r.attachInstallments(ctx, r.pool, contracts...); err != nil {
		return nil, err
	}
	return contracts, nil
}

// Update writes contract fields; when replaceInstallments is set the installment
// array is swapped in the same transaction
func (r *ContractRepository) Update(ctx context.Context, contract *domain.Contract, replace bool) (*domain.Contract, error) {
	totalPrice, err := decimalToPgNumeric(contract.TotalPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid total price: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE contracts SET
			property_name = $3,
			tenant_name = $4,
			kind = $5,
			start_date = $6,
			end_date = $7,
			total_price = $8,
			reserved = $9,
			notes = $10,
			updated_at = NOW()
		WHERE workspace_id = $1 AND id = $2 AND deleted_at IS NULL
		RETURNING `+contractColumns,
		contract.WorkspaceID,
		contract.ID,
		contract.PropertyName,
		contract.TenantName,
		string(contract.Kind),
		timeToPgDate(contract.StartDate),
		timeToPgDate(contract.EndDate),
		totalPrice,
		contract.Reserved,
		stringPtrToPgText(contract.Notes),
	)
	updated, err := scanContract(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrContractNotFound
		}
		return nil, err
	}

	if replace {
		if err := replaceInstallments(ctx, tx, updated.ID, contract.Installments); err != nil {
			return nil, err
		}
	}
	if err := r.attachInstallments(ctx, tx, updated); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// SoftDelete marks a contract deleted; its installments stay attached but unreachable
func (r *ContractRepository) SoftDelete(ctx context.Context, workspaceID int32, id int32) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE contracts SET deleted_at = NOW(), updated_at = NOW()
		WHERE workspace_id = $1 AND id = $2 AND deleted_at IS NULL`, workspaceID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrContractNotFound
	}
	return nil
}

func (r *ContractRepository) attachInstallments(ctx context.Context, q querier, contracts ...*domain.Contract) error {
	ids := make([]int32, len(contracts))
	for i, c := range contracts {
		ids[i] = c.ID
	}

	byContract, err := loadInstallments(ctx, q, ids)
	if err != nil {
		return fmt.Errorf("failed to load installments: %w", err)
	}
	for _, c := range contracts {
		c.Installments = byContract[c.ID]
		if c.Installments == nil {
			c.Installments = []domain.Installment{}
		}
	}
	return nil
}

func scanContract(row pgx.Row) (*domain.Contract, error) {
	var (
		c          domain.Contract
		kind       string
		startDate  pgtype.Date
		endDate    pgtype.Date
		totalPrice pgtype.Numeric
		notes      pgtype.Text
		deletedAt  pgtype.Timestamptz
	)
	err := row.Scan(
		&c.ID,
		&c.WorkspaceID,
		&c.PropertyName,
		&c.TenantName,
		&kind,
		&startDate,
		&endDate,
		&totalPrice,
		&c.Reserved,
		&notes,
		&c.CreatedAt,
		&c.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Kind = domain.ContractKind(kind)
	c.StartDate = pgDateToTime(startDate)
	c.EndDate = pgDateToTime(endDate)
	c.TotalPrice = pgNumericToDecimal(totalPrice)
	c.Notes = pgTextToStringPtr(notes)
	c.DeletedAt = pgTimestamptzToPtr(deletedAt)
	return &c, nil
}
