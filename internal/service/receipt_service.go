package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/dafibh/rentals/rentals-backend/internal/repository/storage"
	"github.com/dafibh/rentals/rentals-backend/internal/websocket"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	MaxImageSize        = 5 * 1024 * 1024 // 5MB
	MinImageWidth       = 50
	MinImageHeight      = 50
	ThumbnailWidth      = 200
	DisplayWidth        = 1200
	JPEGQuality         = 85
	ReceiptURLExpiry    = 15 * time.Minute
	MaxReceiptsPerEntry = 10
)

var (
	ErrImageTooLarge               = errors.New("file too large. Maximum size is 5MB")
	ErrInvalidFormat               = errors.New("invalid format. Supported: JPEG, PNG")
	ErrImageTooSmall               = errors.New("image too small. Minimum 50x50 pixels")
	ErrInvalidImageData            = errors.New("invalid image data")
	ErrReceiptStorageNotConfigured = errors.New("receipt storage not configured")
	ErrTooManyReceipts             = errors.New("installment already has the maximum number of receipts")
)

// AllowedExtensions maps extensions to content types
var AllowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// receiptVariants are the stored renditions of a receipt; 0 keeps the original width
var receiptVariants = []struct {
	name     string
	maxWidth int
}{
	{"thumb", ThumbnailWidth},
	{"display", DisplayWidth},
	{"original", 0},
}

// ReceiptView is a receipt with presigned URLs for each variant
type ReceiptView struct {
	*domain.Receipt
	ThumbnailURL string `json:"thumbnailUrl"`
	DisplayURL   string `json:"displayUrl"`
	OriginalURL  string `json:"originalUrl"`
}

// ReceiptService stores payment receipt images for installments
type ReceiptService struct {
	receiptRepo    domain.ReceiptRepository
	contractRepo   domain.ContractRepository
	storage        storage.ReceiptStorage
	eventPublisher websocket.EventPublisher
}

// NewReceiptService creates a new ReceiptService. A nil storage disables uploads.
func NewReceiptService(receiptRepo domain.ReceiptRepository, contractRepo domain.ContractRepository, receiptStorage storage.ReceiptStorage) *ReceiptService {
	return &ReceiptService{
		receiptRepo:  receiptRepo,
		contractRepo: contractRepo,
		storage:      receiptStorage,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *ReceiptService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// IsEnabled indicates whether uploads/deletes are supported (storage configured).
func (s *ReceiptService) IsEnabled() bool {
	return s != nil && s.storage != nil
}

// ValidateImage validates image format and size
func (s *ReceiptService) ValidateImage(data []byte, filename string) error {
	_, err := s.validateAndDecode(data, filename)
	return err
}

// validateAndDecode validates the image and returns the decoded image
func (s *ReceiptService) validateAndDecode(data []byte, filename string) (image.Image, error) {
	if len(data) > MaxImageSize {
		return nil, ErrImageTooLarge
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := AllowedExtensions[ext]; !ok {
		return nil, ErrInvalidFormat
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrInvalidImageData
	}

	bounds := img.Bounds()
	if bounds.Dx() < MinImageWidth || bounds.Dy() < MinImageHeight {
		return nil, ErrImageTooSmall
	}

	return img, nil
}

// findInstallment checks the contract belongs to the workspace and has the installment
func (s *ReceiptService) findInstallment(ctx context.Context, workspaceID, contractID, number int32) error {
	contract, err := s.contractRepo.GetByID(ctx, workspaceID, contractID)
	if err != nil {
		return err
	}
	for _, inst := range contract.Installments {
		if inst.Number == number {
			return nil
		}
	}
	return domain.ErrInstallmentNotFound
}

// Upload resizes a receipt image into its variants, stores them and records the receipt
func (s *ReceiptService) Upload(ctx context.Context, workspaceID, contractID, number int32, data []byte, filename string) (*ReceiptView, error) {
	if !s.IsEnabled() {
		return nil, ErrReceiptStorageNotConfigured
	}

	if err := s.findInstallment(ctx, workspaceID, contractID, number); err != nil {
		return nil, err
	}

	existing, err := s.receiptRepo.GetByInstallment(ctx, contractID, number)
	if err != nil {
		return nil, err
	}
	if len(existing) >= MaxReceiptsPerEntry {
		return nil, ErrTooManyReceipts
	}

	img, err := s.validateAndDecode(data, filename)
	if err != nil {
		return nil, err
	}

	receipt := &domain.Receipt{
		ID:                uuid.New(),
		ContractID:        contractID,
		InstallmentNumber: number,
	}

	uploaded := make([]string, 0, len(receiptVariants))
	for _, variant := range receiptVariants {
		processed := img
		if variant.maxWidth > 0 && img.Bounds().Dx() > variant.maxWidth {
			processed = imaging.Resize(img, variant.maxWidth, 0, imaging.Lanczos)
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, processed, &jpeg.Options{Quality: JPEGQuality}); err != nil {
			s.cleanup(ctx, uploaded)
			return nil, fmt.Errorf("failed to encode receipt: %w", err)
		}

		objectPath := storage.ReceiptObjectPath(workspaceID, contractID, number, receipt.ID, variant.name)
		path, err := s.storage.Upload(ctx, objectPath, bytes.NewReader(buf.Bytes()), "image/jpeg", int64(buf.Len()))
		if err != nil {
			s.cleanup(ctx, uploaded)
			return nil, fmt.Errorf("failed to upload %s variant: %w", variant.name, err)
		}
		uploaded = append(uploaded, path)

		switch variant.name {
		case "thumb":
			receipt.ThumbnailPath = path
		case "display":
			receipt.DisplayPath = path
		case "original":
			receipt.OriginalPath = path
		}
	}

	created, err := s.receiptRepo.Create(ctx, receipt)
	if err != nil {
		s.cleanup(ctx, uploaded)
		return nil, err
	}

	log.Info().
		Int32("workspace_id", workspaceID).
		Int32("contract_id", contractID).
		Int32("installment", number).
		Str("receipt_id", created.ID.String()).
		Msg("Receipt uploaded")

	view, err := s.presign(ctx, created)
	if err != nil {
		return nil, err
	}
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(workspaceID, websocket.ReceiptCreated(contractID, view))
	}
	return view, nil
}

// ListReceipts returns the receipts of one installment with fresh presigned URLs
func (s *ReceiptService) ListReceipts(ctx context.Context, workspaceID, contractID, number int32) ([]*ReceiptView, error) {
	if err := s.findInstallment(ctx, workspaceID, contractID, number); err != nil {
		return nil, err
	}

	receipts, err := s.receiptRepo.GetByInstallment(ctx, contractID, number)
	if err != nil {
		return nil, err
	}

	views := make([]*ReceiptView, 0, len(receipts))
	for _, r := range receipts {
		if !s.IsEnabled() {
			views = append(views, &ReceiptView{Receipt: r})
			continue
		}
		view, err := s.presign(ctx, r)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// DeleteReceipt removes a receipt and its stored objects
func (s *ReceiptService) DeleteReceipt(ctx context.Context, workspaceID, contractID int32, receiptID uuid.UUID) error {
	if !s.IsEnabled() {
		return ErrReceiptStorageNotConfigured
	}
	if _, err := s.contractRepo.GetByID(ctx, workspaceID, contractID); err != nil {
		return err
	}

	receipt, err := s.receiptRepo.GetByID(ctx, contractID, receiptID)
	if err != nil {
		return err
	}
	if err := s.receiptRepo.Delete(ctx, contractID, receiptID); err != nil {
		return err
	}

	// The record is gone; orphaned objects are only logged
	if err := s.storage.DeleteAll(ctx, receipt.Paths()); err != nil {
		log.Warn().Err(err).Str("receipt_id", receiptID.String()).Msg("Failed to delete receipt objects")
	}

	if s.eventPublisher != nil {
		s.eventPublisher.Publish(workspaceID, websocket.ReceiptDeleted(contractID, map[string]interface{}{
			"id":                receiptID,
			"contractId":        contractID,
			"installmentNumber": receipt.InstallmentNumber,
		}))
	}
	return nil
}

func (s *ReceiptService) presign(ctx context.Context, receipt *domain.Receipt) (*ReceiptView, error) {
	view := &ReceiptView{Receipt: receipt}
	targets := []struct {
		path string
		url  *string
	}{
		{receipt.ThumbnailPath, &view.ThumbnailURL},
		{receipt.DisplayPath, &view.DisplayURL},
		{receipt.OriginalPath, &view.OriginalURL},
	}
	for _, t := range targets {
		if t.path == "" {
			continue
		}
		url, err := s.storage.GeneratePresignedURL(ctx, t.path, ReceiptURLExpiry)
		if err != nil {
			return nil, err
		}
		*t.url = url
	}
	return view, nil
}

// cleanup removes variants uploaded during a failed operation
func (s *ReceiptService) cleanup(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	if err := s.storage.DeleteAll(ctx, paths); err != nil {
		log.Warn().Err(err).Strs("paths", paths).Msg("Failed to clean up receipt variants")
	}
}

// GetContentType returns the content type for a file extension
func GetContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := AllowedExtensions[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
