package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_Accumulates(t *testing.T) {
	v := NewValidator()
	v.Required("response", "").
		OneOf("response", "maybe", []string{"approved", "rejected"}).
		Range("threshold", 120, 0, 100).
		Positive("transitionId", 0).
		MaxLength("comment", strings.Repeat("x", 11), 10)

	require.True(t, v.HasErrors())
	errs := v.Errors().Errors
	assert.Len(t, errs["response"], 2)
	assert.Equal(t, []string{"Must be between 0 and 100"}, errs["threshold"])
	assert.Contains(t, errs, "transitionId")
	assert.Contains(t, errs, "comment")

	var verrs *apperrors.ValidationErrors
	assert.ErrorAs(t, v.Err(), &verrs)
	assert.NoError(t, NewValidator().Err())
}

func TestDecodeAndValidate(t *testing.T) {
	type body struct {
		TransitionID int64  `json:"transitionId"`
		Comment      string `json:"comment"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"transitionId":4,"comment":"go"}`))
	got, err := DecodeAndValidate[body](req)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.TransitionID)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"transitionId":4,"extra":true}`))
	_, err = DecodeAndValidate[body](req)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "BAD_REQUEST", appErr.Code)

	req = httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	got, err = DecodeAndValidate[body](req)
	require.NoError(t, err)
	assert.Zero(t, got.TransitionID)
}

func TestQueryParsing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500&offset=10&days=3&threshold=abc&active=true", nil)

	p := ParsePagination(req, 100)
	assert.Equal(t, PaginationParams{Limit: 100, Offset: 10}, p)
	assert.Equal(t, 3, ParseIntQueryParam(req, "days", 7))
	assert.Equal(t, 7, ParseIntQueryParam(req, "missing", 7))
	assert.True(t, ParseBoolQueryParam(req, "active", false))
	assert.Nil(t, ParseStringQueryParam(req, "ticketType"))

	v := NewValidator()
	assert.Zero(t, ParseFloatQueryParam(req, v, "threshold"))
	assert.True(t, v.HasErrors())

	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	_, err = ParseID("-1")
	assert.Error(t, err)
}
