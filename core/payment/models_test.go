package payment

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehmanpranto/QuizFlow/core"
)

func TestDecodeScreenshot(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	enc := base64.StdEncoding.EncodeToString(png)

	tests := []struct {
		name    string
		in      string
		want    []byte
		wantErr bool
	}{
		{name: "empty", in: ""},
		{name: "raw base64", in: enc, want: png},
		{name: "data url", in: "data:image/png;base64," + enc, want: png},
		{name: "bad data url", in: "data:image/png;base64", wantErr: true},
		{name: "not base64", in: "%%%", wantErr: true},
		{name: "too large", in: base64.StdEncoding.EncodeToString(make([]byte, MaxScreenshotSize+1)), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeScreenshot(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewPayment_Validate(t *testing.T) {
	validate := validator.New()

	np := NewPayment{
		Email:      " Payer@Example.COM ",
		TrxID:      " 8N7A6B5C4D ",
		PlanName:   "Basic",
		Amount:     500,
		Screenshot: base64.StdEncoding.EncodeToString([]byte("img")),
	}
	require.NoError(t, np.Validate(validate))
	assert.Equal(t, "payer@example.com", np.Email)
	assert.Equal(t, "8N7A6B5C4D", np.TrxID)
	assert.Equal(t, DefaultCurrency, np.Currency)
	assert.Equal(t, DefaultMethod, np.Method)
	assert.Equal(t, []byte("img"), np.screenshot)

	missing := NewPayment{PlanName: "Basic"}
	assert.Error(t, missing.Validate(validate))

	zero := NewPayment{Email: "a@b.co", TrxID: "X1", PlanName: "Basic"}
	assert.Error(t, zero.Validate(validate))

	badImg := NewPayment{Email: "a@b.co", TrxID: "X1", PlanName: "Basic", Amount: 500, Screenshot: "@@"}
	err := badImg.Validate(validate)
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "screenshot", verr.Fields[0].Field)
}

func TestNotPendingError(t *testing.T) {
	err := notPendingError(StatusApproved)
	assert.Equal(t, "Payment already approved", err.Error())

	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, StatusApproved, serr.Status)
}

func TestRejection_Validate(t *testing.T) {
	validate := validator.New()

	r := Rejection{}
	require.NoError(t, r.Validate(validate))
	assert.Equal(t, "No reason provided", r.Reason)

	r = Rejection{Reason: strings.Repeat("x", 1001)}
	assert.Error(t, r.Validate(validate))
}
