package postgres

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalToPgNumeric(t *testing.T) {
	num, err := decimalToPgNumeric(decimal.RequireFromString("1234.56"))

	require.NoError(t, err)
	assert.True(t, num.Valid)
	assert.True(t, decimal.RequireFromString("1234.56").Equal(pgNumericToDecimal(num)))
}

func TestPgNumericToDecimal_Null(t *testing.T) {
	assert.True(t, pgNumericToDecimal(pgtype.Numeric{}).IsZero())
	assert.True(t, pgNumericToDecimal(pgtype.Numeric{Valid: true}).IsZero())
	assert.Equal(t, "1.05", pgNumericToDecimal(pgtype.Numeric{Int: big.NewInt(105), Exp: -2, Valid: true}).String())
}

func TestTimeToPgDate(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	d := timeToPgDate(time.Date(2024, 3, 15, 23, 30, 0, 0, jakarta))

	require.True(t, d.Valid)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), d.Time)

	assert.False(t, timeToPgDate(time.Time{}).Valid)
	assert.True(t, pgDateToTime(pgtype.Date{}).IsZero())
}

func TestTextAndUUIDHelpers(t *testing.T) {
	notes := "north wing"
	assert.Equal(t, &notes, pgTextToStringPtr(stringPtrToPgText(&notes)))
	assert.Nil(t, pgTextToStringPtr(stringPtrToPgText(nil)))

	id := uuid.New()
	assert.Equal(t, id, pgToUUID(uuidToPg(id)))
	assert.Equal(t, uuid.Nil, pgToUUID(pgtype.UUID{}))

	assert.Nil(t, pgTimestamptzToPtr(pgtype.Timestamptz{}))
}
