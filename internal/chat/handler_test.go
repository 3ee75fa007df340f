package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDispatcher struct {
	resp *TurnResponse
	err  error
	got  TurnRequest
}

func (s *stubDispatcher) ProcessTurn(_ context.Context, req TurnRequest) (*TurnResponse, error) {
	s.got = req
	return s.resp, s.err
}

func (s *stubDispatcher) Shutdown(_ context.Context) error { return nil }

func TestHandlerTurn(t *testing.T) {
	dispatcher := &stubDispatcher{resp: &TurnResponse{Type: ResponseAskQuantity, Message: "How many?"}}
	h := NewHandler(dispatcher, nil, nil, nil)

	body := `{"patient_id": "p1", "message": "I need paracetamol"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Turn(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p1", dispatcher.got.PatientID)

	var resp TurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ResponseAskQuantity, resp.Type)
}

func TestHandlerTurnRejectsBadBody(t *testing.T) {
	h := NewHandler(&stubDispatcher{}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Turn(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerTurnRequiresFields(t *testing.T) {
	h := NewHandler(&stubDispatcher{}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message": "hi"}`))
	rec := httptest.NewRecorder()
	h.Turn(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerTurnDispatcherError(t *testing.T) {
	h := NewHandler(&stubDispatcher{err: errors.New("queue down")}, nil, nil, nil)

	body := `{"patient_id": "p1", "message": "hi"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Turn(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandlerHistoryWithoutStore(t *testing.T) {
	h := NewHandler(&stubDispatcher{}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/chat/history/p1", nil)
	rec := httptest.NewRecorder()
	h.History(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
