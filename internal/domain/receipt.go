package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrReceiptNotFound = errors.New("receipt not found")

// Receipt is an uploaded proof of payment attached to an installment.
// Attaching a receipt never changes the installment's stored state.
type Receipt struct {
	ID                uuid.UUID `json:"id"`
	ContractID        int32     `json:"contractId"`
	InstallmentNumber int32     `json:"installmentNumber"`
	ThumbnailPath     string    `json:"-"`
	DisplayPath       string    `json:"-"`
	OriginalPath      string    `json:"-"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Paths returns every stored object path of the receipt
func (r *Receipt) Paths() []string {
	return []string{r.ThumbnailPath, r.DisplayPath, r.OriginalPath}
}

type ReceiptRepository interface {
	Create(ctx context.Context, receipt *Receipt) (*Receipt, error)
	GetByID(ctx context.Context, contractID int32, id uuid.UUID) (*Receipt, error)
	GetByInstallment(ctx context.Context, contractID int32, number int32) ([]*Receipt, error)
	Delete(ctx context.Context, contractID int32, id uuid.UUID) error
}
