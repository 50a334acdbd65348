package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/civicdesk/server/internal/agent/model"
	"github.com/civicdesk/server/internal/agent/session"
	"github.com/civicdesk/server/internal/agent/validation"
	"github.com/civicdesk/server/internal/requests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdentifier struct {
	desc *model.ServiceDescriptor
}

func (f *fakeIdentifier) Identify(ctx context.Context, namespace, userMessage string) *model.ServiceDescriptor {
	if f.desc == nil {
		return model.FallbackDescriptor()
	}
	return f.desc
}

type fakeStore struct {
	created []requests.CreateInput
	err     error
}

func (f *fakeStore) Create(ctx context.Context, in requests.CreateInput) (*requests.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, in)
	return &requests.Record{
		RequestID:   "req-123",
		ServiceName: in.ServiceName,
		Status:      requests.StatusPending,
		UserData:    in.UserData,
		SessionID:   in.SessionID,
		Namespace:   in.Namespace,
	}, nil
}

func testAgent(t *testing.T, desc *model.ServiceDescriptor) (*Agent, *fakeStore) {
	t.Helper()
	v, err := validation.Default()
	require.NoError(t, err)
	store := &fakeStore{}
	return New(&fakeIdentifier{desc: desc}, v, store, nil), store
}

func TestHandleTurnFullFlow(t *testing.T) {
	ag, store := testAgent(t, &model.ServiceDescriptor{
		ServiceName:    "Passport Renewal",
		Confidence:     "high",
		RequiredFields: []string{"full_name", "national_id"},
		Description:    "Renew an expired passport",
	})
	ctx := context.Background()

	resp := ag.HandleTurn(ctx, "s1", "default", "I need to renew my passport")
	assert.Equal(t, model.StatusSuccess, resp.Status)
	assert.True(t, resp.ServiceIdentified)
	assert.Equal(t, "full_name", resp.NextField)
	assert.Contains(t, resp.Response, "Passport Renewal")
	assert.False(t, resp.Completed)

	resp = ag.HandleTurn(ctx, "s1", "default", "Jane Doe")
	assert.Equal(t, model.StatusSuccess, resp.Status)
	assert.Equal(t, "national_id", resp.NextField)

	resp = ag.HandleTurn(ctx, "s1", "default", "1234567890")
	assert.Equal(t, model.StatusSuccess, resp.Status)
	assert.True(t, resp.Completed)
	assert.Contains(t, resp.Response, "req-123")
	assert.Contains(t, resp.Response, "Jane Doe")

	// exactly one persisted request with everything collected
	require.Len(t, store.created, 1)
	assert.Equal(t, "Passport Renewal", store.created[0].ServiceName)
	assert.Equal(t, map[string]string{
		"full_name":   "Jane Doe",
		"national_id": "1234567890",
	}, store.created[0].UserData)
	assert.Equal(t, "s1", store.created[0].SessionID)

	// completed sessions leave the map
	assert.Equal(t, 0, ag.Sessions().Len())
}

func TestHandleTurnValidationRetries(t *testing.T) {
	ag, store := testAgent(t, &model.ServiceDescriptor{
		ServiceName:    "Passport Renewal",
		RequiredFields: []string{"national_id"},
	})
	ctx := context.Background()

	ag.HandleTurn(ctx, "s1", "default", "renew passport")

	resp := ag.HandleTurn(ctx, "s1", "default", "abc")
	assert.Equal(t, model.StatusValidationError, resp.Status)
	assert.Contains(t, resp.Response, "(1/3)")
	assert.Equal(t, "national_id", resp.NextField)

	resp = ag.HandleTurn(ctx, "s1", "default", "abc")
	assert.Contains(t, resp.Response, "(2/3)")

	// third failure abandons the session
	resp = ag.HandleTurn(ctx, "s1", "default", "abc")
	assert.Equal(t, model.StatusError, resp.Status)
	assert.Contains(t, resp.Response, "Too many attempts")

	// no recovery: even a valid value is refused
	resp = ag.HandleTurn(ctx, "s1", "default", "1234567890")
	assert.Equal(t, model.StatusError, resp.Status)
	assert.Empty(t, store.created)

	// abandoned sessions stay in the map
	s, ok := ag.Sessions().Get("s1")
	require.True(t, ok)
	s.Lock()
	assert.True(t, s.Abandoned())
	assert.NotEqual(t, session.StateCompleted, s.State())
	s.Unlock()
}

func TestHandleTurnRetryThenSuccess(t *testing.T) {
	ag, store := testAgent(t, &model.ServiceDescriptor{
		ServiceName:    "Passport Renewal",
		RequiredFields: []string{"national_id"},
	})
	ctx := context.Background()

	ag.HandleTurn(ctx, "s1", "default", "renew passport")
	ag.HandleTurn(ctx, "s1", "default", "abc")
	ag.HandleTurn(ctx, "s1", "default", "def")

	resp := ag.HandleTurn(ctx, "s1", "default", "1234567890")
	assert.Equal(t, model.StatusSuccess, resp.Status)
	assert.True(t, resp.Completed)
	require.Len(t, store.created, 1)
}

func TestHandleTurnNoRequiredFields(t *testing.T) {
	ag, store := testAgent(t, &model.ServiceDescriptor{
		ServiceName: "General Inquiry",
	})

	resp := ag.HandleTurn(context.Background(), "s1", "default", "hello")
	assert.Equal(t, model.StatusSuccess, resp.Status)
	assert.True(t, resp.Completed)
	require.Len(t, store.created, 1)
	assert.Empty(t, store.created[0].UserData)
}

func TestHandleTurnFallbackDescriptor(t *testing.T) {
	ag, _ := testAgent(t, nil)

	resp := ag.HandleTurn(context.Background(), "s1", "default", "gibberish")
	assert.Equal(t, model.StatusSuccess, resp.Status)
	assert.True(t, resp.ServiceIdentified)
	require.NotNil(t, resp.ServiceInfo)
	assert.Equal(t, "General Service", resp.ServiceInfo.ServiceName)
	assert.Equal(t, "full_name", resp.NextField)
}

func TestHandleTurnPersistenceFailureDegrades(t *testing.T) {
	v, err := validation.Default()
	require.NoError(t, err)
	store := &fakeStore{err: errors.New("db down")}
	ag := New(&fakeIdentifier{desc: &model.ServiceDescriptor{ServiceName: "X"}}, v, store, nil)

	resp := ag.HandleTurn(context.Background(), "s1", "default", "hello")
	assert.Equal(t, model.StatusSuccess, resp.Status)
	assert.True(t, resp.Completed)
	assert.Contains(t, resp.Response, "could not be saved")
}

func TestHandleTurnCompletedSessionIsFresh(t *testing.T) {
	ag, store := testAgent(t, &model.ServiceDescriptor{ServiceName: "X"})
	ctx := context.Background()

	ag.HandleTurn(ctx, "s1", "default", "hello")
	require.Len(t, store.created, 1)

	// the id is free again after completion, so a new turn starts over
	resp := ag.HandleTurn(ctx, "s1", "default", "hello again")
	assert.True(t, resp.Completed)
	assert.Len(t, store.created, 2)
}
