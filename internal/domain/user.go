package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultWorkspaceName names the workspace created on a landlord's first login
const DefaultWorkspaceName = "Rentals"

// User is an Auth0 identity. Profile fields come from token claims and may be absent.
type User struct {
	ID         uuid.UUID `json:"id"`
	Auth0ID    string    `json:"auth0Id"`
	Email      string    `json:"email"`
	Name       *string   `json:"name"`
	PictureURL *string   `json:"pictureUrl"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Workspace owns a landlord's contracts. Each user has exactly one.
type Workspace struct {
	ID        int32     `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewDefaultWorkspace builds the unsaved workspace for a first login
func NewDefaultWorkspace(userID uuid.UUID) *Workspace {
	return &Workspace{UserID: userID, Name: DefaultWorkspaceName}
}

type UserRepository interface {
	GetByAuth0ID(ctx context.Context, auth0ID string) (*User, error)
	// CreateOrGetByAuth0ID is idempotent so concurrent first logins converge on one row
	CreateOrGetByAuth0ID(ctx context.Context, auth0ID, email string, name, pictureURL *string) (*User, error)
}

type WorkspaceRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Workspace, error)
	GetByUserAuth0ID(ctx context.Context, auth0ID string) (*Workspace, error)
	Create(ctx context.Context, workspace *Workspace) (*Workspace, error)
}
