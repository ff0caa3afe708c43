package processor

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewline/atlas/pkg/kafka"
	"github.com/crewline/atlas/pkg/models"
	"github.com/crewline/atlas/pkg/normalize"
)

type fakeLinkStore struct {
	upserts []models.EntityLink
	deletes []string
	tenant  string
}

func (f *fakeLinkStore) Upsert(_ context.Context, tenantID string, link models.EntityLink) (*models.EntityLink, error) {
	f.tenant = tenantID
	f.upserts = append(f.upserts, link)
	return &link, nil
}

func (f *fakeLinkStore) Delete(_ context.Context, tenantID string, entityType models.LinkedEntityType, entityID string) error {
	f.tenant = tenantID
	f.deletes = append(f.deletes, string(entityType)+":"+entityID)
	return nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func msg(eventType, payload string) *kafka.IncomingMessage {
	return &kafka.IncomingMessage{
		Headers:   map[string]string{"event_type": eventType},
		Value:     []byte(payload),
		Timestamp: time.Now(),
	}
}

func TestProcessMessage_Upsert(t *testing.T) {
	store := &fakeLinkStore{}
	p := NewEntityProcessor(noopLogger(), store)

	err := p.ProcessMessage(context.Background(), msg("entity.upserted", `{
		"type": "entity.upserted",
		"tenant_id": "tenant-1",
		"entity_type": "jobsite",
		"entity_id": "js-1",
		"label": "Harbour Site",
		"address": "123 Main St, Vancouver",
		"phone": "(604) 555-1234",
		"email": "Site@Example.com"
	}`))
	require.NoError(t, err)
	require.Len(t, store.upserts, 1)

	link := store.upserts[0]
	assert.Equal(t, "tenant-1", store.tenant)
	assert.Equal(t, models.EntityTypeJobsite, link.EntityType)
	assert.Equal(t, normalize.HashAddress("123 Main St, Vancouver"), link.AddressHash)
	assert.Equal(t, "6045551234", link.PhoneNormalized)
	assert.Equal(t, "site@example.com", link.EmailNormalized)
}

func TestProcessMessage_Delete(t *testing.T) {
	store := &fakeLinkStore{}
	p := NewEntityProcessor(noopLogger(), store)

	err := p.ProcessMessage(context.Background(), msg("entity.deleted", `{
		"tenant_id": "tenant-1",
		"entity_type": "customer",
		"entity_id": "cust-9"
	}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"customer:cust-9"}, store.deletes)
}

func TestProcessMessage_SkipsUnknownEventTypes(t *testing.T) {
	store := &fakeLinkStore{}
	p := NewEntityProcessor(noopLogger(), store)

	err := p.ProcessMessage(context.Background(), msg("invoice.created", `{}`))
	require.NoError(t, err)
	assert.Empty(t, store.upserts)
	assert.Empty(t, store.deletes)
}

func TestProcessMessage_IgnoresUnmatchableEntityKinds(t *testing.T) {
	store := &fakeLinkStore{}
	p := NewEntityProcessor(noopLogger(), store)

	err := p.ProcessMessage(context.Background(), msg("entity.upserted", `{
		"tenant_id": "tenant-1",
		"entity_type": "vehicle",
		"entity_id": "v-1"
	}`))
	require.NoError(t, err)
	assert.Empty(t, store.upserts)
}

func TestProcessMessage_MalformedPayloadErrors(t *testing.T) {
	store := &fakeLinkStore{}
	p := NewEntityProcessor(noopLogger(), store)

	err := p.ProcessMessage(context.Background(), msg("entity.upserted", `{"tenant_id": ""}`))
	assert.Error(t, err)
}
