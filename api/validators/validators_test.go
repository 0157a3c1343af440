package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
)

type addItemBody struct {
	BeatID    string `json:"beat_id" validate:"required,uuid"`
	LicenseID string `json:"license_id" validate:"required,uuid"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"beat_id":"nope"}`))
	var body addItemBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a valid uuid", details["beat_id"])
	assert.Equal(t, "is required", details["license_id"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"beat_id":"`+uuid.NewString()+`","license_id":"`+uuid.NewString()+`","price":"0.01"}`))
	var body addItemBody
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &body), pkgerrors.CodeValidation))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	_, err := ParseQueryInt(req, "limit", 25, 1, 100)
	assert.Error(t, err)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	v, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, v)
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", id.String())
	rc.URLParams.Add("bad", "123")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := ParseUUIDParam(req, "id")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(req, "bad")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyRejectsEmptyTrailingAndMistyped(t *testing.T) {
	var body addItemBody

	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &body)
	assert.Equal(t, "request body is empty", pkgerrors.As(err).Message())

	valid := `{"beat_id":"` + uuid.NewString() + `","license_id":"` + uuid.NewString() + `"}`
	err = DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(valid+valid)), &body)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"beat_id":42}`)), &body)
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be string", details["beat_id"])

	huge := `{"beat_id":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	err = DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(huge)), &body)
	assert.Equal(t, "request body too large", pkgerrors.As(err).Message())
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Basic Lease", SanitizeString("  Basic \t\n Lease ", 0))
	assert.Equal(t, "Exclu", SanitizeString("Exclusive", 5))
	assert.Equal(t, "Beat", SanitizeString("Beat ñ", 5))
	assert.Equal(t, "Beat ñ", SanitizeString("Beat ñ", 6))
}
