package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/dafibh/rentals/rentals-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestImage creates a test image of the specified size and format
func createTestImage(width, height int, format string) ([]byte, string) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 0, A: 255})
		}
	}

	var buf bytes.Buffer
	var filename string

	switch format {
	case "png":
		png.Encode(&buf, img)
		filename = "receipt.png"
	default:
		jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85})
		filename = "receipt.jpg"
	}

	return buf.Bytes(), filename
}

type receiptFixture struct {
	svc       *ReceiptService
	receipts  *testutil.MockReceiptRepository
	contracts *testutil.MockContractRepository
	storage   *testutil.MockObjectStorage
	publisher *testutil.MockEventPublisher
}

func setupReceiptService(t *testing.T) *receiptFixture {
	t.Helper()
	f := &receiptFixture{
		receipts:  testutil.NewMockReceiptRepository(),
		contracts: testutil.NewMockContractRepository(),
		storage:   testutil.NewMockObjectStorage(),
		publisher: &testutil.MockEventPublisher{},
	}
	f.contracts.AddContract(rentalContract(t, true))
	f.svc = NewReceiptService(f.receipts, f.contracts, f.storage)
	f.svc.SetEventPublisher(f.publisher)
	return f
}

func TestValidateImage_ValidJPEG(t *testing.T) {
	svc := NewReceiptService(nil, nil, nil)
	data, filename := createTestImage(100, 100, "jpeg")

	err := svc.ValidateImage(data, filename)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidateImage_ValidPNG(t *testing.T) {
	svc := NewReceiptService(nil, nil, nil)
	data, filename := createTestImage(100, 100, "png")

	err := svc.ValidateImage(data, filename)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidateImage_TooLarge(t *testing.T) {
	svc := NewReceiptService(nil, nil, nil)
	data := make([]byte, MaxImageSize+1)

	err := svc.ValidateImage(data, "receipt.jpg")
	if err != ErrImageTooLarge {
		t.Errorf("expected ErrImageTooLarge, got %v", err)
	}
}

func TestValidateImage_InvalidFormat(t *testing.T) {
	svc := NewReceiptService(nil, nil, nil)
	data, _ := createTestImage(100, 100, "jpeg")

	err := svc.ValidateImage(data, "receipt.gif")
	if err != ErrInvalidFormat {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestValidateImage_TooSmall(t *testing.T) {
	svc := NewReceiptService(nil, nil, nil)
	data, filename := createTestImage(30, 30, "jpeg")

	err := svc.ValidateImage(data, filename)
	if err != ErrImageTooSmall {
		t.Errorf("expected ErrImageTooSmall, got %v", err)
	}
}

func TestValidateImage_InvalidData(t *testing.T) {
	svc := NewReceiptService(nil, nil, nil)

	err := svc.ValidateImage([]byte("not an image"), "receipt.jpg")
	if err != ErrInvalidImageData {
		t.Errorf("expected ErrInvalidImageData, got %v", err)
	}
}

func TestGetContentType(t *testing.T) {
	tests := []struct {
		filename string
		expected string
	}{
		{"receipt.jpg", "image/jpeg"},
		{"receipt.JPEG", "image/jpeg"},
		{"receipt.png", "image/png"},
		{"receipt.gif", "application/octet-stream"},
		{"receipt.pdf", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetContentType(tt.filename))
		})
	}
}

func TestReceiptService_Upload(t *testing.T) {
	f := setupReceiptService(t)
	data, filename := createTestImage(1600, 900, "png")

	view, err := f.svc.Upload(context.Background(), 1, 7, 3, data, filename)

	require.NoError(t, err)
	assert.Equal(t, int32(3), view.InstallmentNumber)
	assert.Equal(t, 3, f.storage.Count())
	assert.True(t, strings.HasSuffix(view.ThumbnailPath, "_thumb.jpg"))
	assert.True(t, strings.HasPrefix(view.DisplayPath, "1/contracts/7/installments/3/"))
	assert.Equal(t, "https://storage.test/"+view.OriginalPath, view.OriginalURL)
	assert.Len(t, f.receipts.Receipts, 1)
	assert.Equal(t, []string{"receipt.created"}, f.publisher.Types())

	// Thumbnail was downscaled
	thumb, _, err := image.Decode(bytes.NewReader(f.storage.Objects[view.ThumbnailPath]))
	require.NoError(t, err)
	assert.Equal(t, ThumbnailWidth, thumb.Bounds().Dx())

	// Receipts never touch the stored state
	assert.Equal(t, domain.StoredStatePending, f.contracts.Contracts[7].Installments[2].StoredState)
}

func TestReceiptService_Upload_UnknownInstallment(t *testing.T) {
	f := setupReceiptService(t)
	data, filename := createTestImage(100, 100, "jpeg")

	_, err := f.svc.Upload(context.Background(), 1, 7, 13, data, filename)
	assert.ErrorIs(t, err, domain.ErrInstallmentNotFound)

	_, err = f.svc.Upload(context.Background(), 2, 7, 1, data, filename)
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
	assert.Equal(t, 0, f.storage.Count())
}

func TestReceiptService_Upload_CleansUpOnFailure(t *testing.T) {
	f := setupReceiptService(t)
	f.storage.UploadFn = func(objectPath string) error {
		if strings.HasSuffix(objectPath, "_original.jpg") {
			return errors.New("bucket unavailable")
		}
		return nil
	}
	data, filename := createTestImage(100, 100, "jpeg")

	_, err := f.svc.Upload(context.Background(), 1, 7, 1, data, filename)

	assert.Error(t, err)
	assert.Equal(t, 0, f.storage.Count())
	assert.Empty(t, f.receipts.Receipts)
}

func TestReceiptService_Upload_RecordFailureCleansUp(t *testing.T) {
	f := setupReceiptService(t)
	f.receipts.CreateFn = func(receipt *domain.Receipt) (*domain.Receipt, error) {
		return nil, errors.New("insert failed")
	}
	data, filename := createTestImage(100, 100, "jpeg")

	_, err := f.svc.Upload(context.Background(), 1, 7, 1, data, filename)

	assert.Error(t, err)
	assert.Equal(t, 0, f.storage.Count())
}

func TestReceiptService_Upload_Disabled(t *testing.T) {
	svc := NewReceiptService(testutil.NewMockReceiptRepository(), testutil.NewMockContractRepository(), nil)
	data, filename := createTestImage(100, 100, "jpeg")

	_, err := svc.Upload(context.Background(), 1, 7, 1, data, filename)

	assert.ErrorIs(t, err, ErrReceiptStorageNotConfigured)
}

func TestReceiptService_ListAndDelete(t *testing.T) {
	f := setupReceiptService(t)
	ctx := context.Background()
	data, filename := createTestImage(100, 100, "jpeg")
	first, err := f.svc.Upload(ctx, 1, 7, 2, data, filename)
	require.NoError(t, err)
	_, err = f.svc.Upload(ctx, 1, 7, 2, data, filename)
	require.NoError(t, err)
	_, err = f.svc.Upload(ctx, 1, 7, 5, data, filename)
	require.NoError(t, err)

	views, err := f.svc.ListReceipts(ctx, 1, 7, 2)
	require.NoError(t, err)
	assert.Len(t, views, 2)
	for _, v := range views {
		assert.NotEmpty(t, v.DisplayURL)
	}

	require.NoError(t, f.svc.DeleteReceipt(ctx, 1, 7, first.ID))
	assert.Equal(t, 6, f.storage.Count())
	assert.ErrorIs(t, f.svc.DeleteReceipt(ctx, 1, 7, first.ID), domain.ErrReceiptNotFound)
	assert.ErrorIs(t, f.svc.DeleteReceipt(ctx, 1, 7, uuid.New()), domain.ErrReceiptNotFound)
	assert.Equal(t, "receipt.deleted", f.publisher.Types()[3])
}

func TestReceiptService_Upload_Limit(t *testing.T) {
	f := setupReceiptService(t)
	for i := 0; i < MaxReceiptsPerEntry; i++ {
		id := uuid.New()
		f.receipts.Receipts[id] = &domain.Receipt{ID: id, ContractID: 7, InstallmentNumber: 1}
	}
	data, filename := createTestImage(100, 100, "jpeg")

	_, err := f.svc.Upload(context.Background(), 1, 7, 1, data, filename)

	assert.ErrorIs(t, err, ErrTooManyReceipts)
}
