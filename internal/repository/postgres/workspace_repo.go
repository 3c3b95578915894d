package postgres

import (
	"context"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const workspaceColumns = `w.id, w.user_id, w.name, w.created_at, w.updated_at`

// WorkspaceRepository implements domain.WorkspaceRepository using PostgreSQL
type WorkspaceRepository struct {
	pool *pgxpool.Pool
}

// NewWorkspaceRepository creates a new WorkspaceRepository
func NewWorkspaceRepository(pool *pgxpool.Pool) *WorkspaceRepository {
	return &WorkspaceRepository{pool: pool}
}

// GetByUserID retrieves a workspace by user ID
func (r *WorkspaceRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Workspace, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+workspaceColumns+` FROM workspaces w WHERE w.user_id = $1`, uuidToPg(userID))
	return scanWorkspaceOrNotFound(row)
}

// GetByUserAuth0ID retrieves a workspace by user's Auth0 ID
func (r *WorkspaceRepository) GetByUserAuth0ID(ctx context.Context, auth0ID string) (*domain.Workspace, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+workspaceColumns+`
		FROM workspaces w
		JOIN users u ON u.id = w.user_id
		WHERE u.auth0_id = $1`, auth0ID)
	return scanWorkspaceOrNotFound(row)
}

// Create creates a new workspace
func (r *WorkspaceRepository) Create(ctx context.Context, workspace *domain.Workspace) (*domain.Workspace, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO workspaces AS w (user_id, name)
		VALUES ($1, $2)
		RETURNING `+workspaceColumns,
		uuidToPg(workspace.UserID), workspace.Name,
	)
	return scanWorkspace(row)
}

func scanWorkspaceOrNotFound(row pgx.Row) (*domain.Workspace, error) {
	workspace, err := scanWorkspace(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrWorkspaceNotFound
		}
		return nil, err
	}
	return workspace, nil
}

func scanWorkspace(row pgx.Row) (*domain.Workspace, error) {
	var (
		userID    pgtype.UUID
		workspace domain.Workspace
	)
	if err := row.Scan(&workspace.ID, &userID, &workspace.Name, &workspace.CreatedAt, &workspace.UpdatedAt); err != nil {
		return nil, err
	}
	workspace.UserID = pgToUUID(userID)
	return &workspace, nil
}
