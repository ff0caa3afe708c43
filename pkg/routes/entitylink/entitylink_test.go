package entitylink

import (
	gocontext "context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewline/atlas/pkg/context"
	"github.com/crewline/atlas/pkg/models"
	"github.com/crewline/atlas/pkg/normalize"
)

type fakeStore struct {
	upserted *models.EntityLink
	deleted  []string
	listed   []models.EntityLink

	listLimit  int
	listOffset int
}

func (f *fakeStore) Upsert(_ gocontext.Context, tenantID string, link models.EntityLink) (*models.EntityLink, error) {
	link.TenantID = tenantID
	f.upserted = &link
	return &link, nil
}

func (f *fakeStore) Delete(_ gocontext.Context, _ string, entityType models.LinkedEntityType, entityID string) error {
	f.deleted = append(f.deleted, string(entityType)+":"+entityID)
	return nil
}

func (f *fakeStore) List(_ gocontext.Context, _ string, limit, offset int) ([]models.EntityLink, error) {
	f.listLimit = limit
	f.listOffset = offset
	return f.listed, nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, http.NoBody)
	}
	req = req.WithContext(context.SetTenantID(req.Context(), "tenant-1"))

	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestUpsert_NormalizesServerSide(t *testing.T) {
	store := &fakeStore{}
	handler := NewHandler(noopLogger(), store)

	body := `{
		"entity_id": "cust-1",
		"entity_type": "customer",
		"label": "Pacific Rim Builders",
		"address": "123 Main St Apt 4B",
		"phone": "1 (604) 555-1234",
		"email": "Office@PacificRim.example"
	}`
	c, rec := newTestContext(t, http.MethodPost, "/api/v1/entity-links", body)

	require.NoError(t, handler.Upsert(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, store.upserted)
	assert.Equal(t, normalize.HashAddress("123 Main St Apt 4B"), store.upserted.AddressHash)
	assert.Equal(t, "6045551234", store.upserted.PhoneNormalized)
	assert.Equal(t, "office@pacificrim.example", store.upserted.EmailNormalized)
	assert.False(t, store.upserted.EntityCreatedAt.IsZero())
}

func TestUpsert_RejectsUnknownEntityType(t *testing.T) {
	store := &fakeStore{}
	handler := NewHandler(noopLogger(), store)

	body := `{"entity_id": "v-1", "entity_type": "vehicle", "label": "Truck 7"}`
	c, _ := newTestContext(t, http.MethodPost, "/api/v1/entity-links", body)

	err := handler.Upsert(c)
	require.Error(t, err)
	assert.Nil(t, store.upserted)
}

func TestDelete(t *testing.T) {
	store := &fakeStore{}
	handler := NewHandler(noopLogger(), store)

	c, rec := newTestContext(t, http.MethodDelete, "/api/v1/entity-links/jobsite/js-1", "")
	c.SetParamNames("entity_type", "entity_id")
	c.SetParamValues("jobsite", "js-1")

	require.NoError(t, handler.Delete(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"jobsite:js-1"}, store.deleted)
}

func TestDelete_RejectsUnknownEntityType(t *testing.T) {
	store := &fakeStore{}
	handler := NewHandler(noopLogger(), store)

	c, _ := newTestContext(t, http.MethodDelete, "/api/v1/entity-links/vehicle/v-1", "")
	c.SetParamNames("entity_type", "entity_id")
	c.SetParamValues("vehicle", "v-1")

	err := handler.Delete(c)
	require.Error(t, err)
	assert.Empty(t, store.deleted)
}

func TestList_Paging(t *testing.T) {
	store := &fakeStore{listed: []models.EntityLink{{EntityID: "cust-1"}}}
	handler := NewHandler(noopLogger(), store)

	c, rec := newTestContext(t, http.MethodGet, "/api/v1/entity-links?limit=25&offset=50", "")

	require.NoError(t, handler.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 25, store.listLimit)
	assert.Equal(t, 50, store.listOffset)
}

func TestList_DefaultsAndCaps(t *testing.T) {
	store := &fakeStore{}
	handler := NewHandler(noopLogger(), store)

	c, _ := newTestContext(t, http.MethodGet, "/api/v1/entity-links", "")
	require.NoError(t, handler.List(c))
	assert.Equal(t, defaultListLimit, store.listLimit)

	c, _ = newTestContext(t, http.MethodGet, "/api/v1/entity-links?limit=9999", "")
	require.NoError(t, handler.List(c))
	assert.Equal(t, maxListLimit, store.listLimit)
}

func TestList_RejectsBadLimit(t *testing.T) {
	handler := NewHandler(noopLogger(), &fakeStore{})

	c, _ := newTestContext(t, http.MethodGet, "/api/v1/entity-links?limit=zero", "")
	err := handler.List(c)
	require.Error(t, err)
}
