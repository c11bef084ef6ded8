package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbxark/onboardagent/types"
)

type stubHandler struct {
	reply types.Reply
	err   error
	got   types.Event
}

func (s *stubHandler) Handle(ctx context.Context, ev types.Event) (types.Reply, error) {
	s.got = ev
	if s.err != nil {
		return types.Reply{}, s.err
	}
	return s.reply, nil
}

func postEvent(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router := NewServer(&stubHandler{}).Router()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestPostTextEvent(t *testing.T) {
	handler := &stubHandler{reply: types.Reply{UserID: "u1", Text: "Please reply with 'yes' or 'no'."}}
	router := NewServer(handler).Router()

	rec := postEvent(t, router, `{"user_id": "u1", "kind": "text", "text": "yes"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply types.Reply
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, handler.reply, reply)
	assert.Equal(t, types.EventText, handler.got.Kind)
	assert.Equal(t, "yes", handler.got.Text)
}

func TestPostVoiceEventDecodesPayload(t *testing.T) {
	handler := &stubHandler{reply: types.Reply{UserID: "u1", Text: "ok"}}
	router := NewServer(handler).Router()

	audio := base64.StdEncoding.EncodeToString([]byte("intro-audio"))
	body := `{"user_id": "u1", "kind": "voice", "payload": "` + audio + `", "mime_type": "audio/ogg"}`
	rec := postEvent(t, router, body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("intro-audio"), handler.got.Payload)
	assert.Equal(t, "audio/ogg", handler.got.MIMEType)
}

func TestPostEventBadRequests(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed_json", `{"user_id":`},
		{"bad_base64", `{"user_id": "u1", "kind": "voice", "payload": "!!!", "mime_type": "audio/ogg"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := NewServer(&stubHandler{}).Router()
			rec := postEvent(t, router, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestPostEventValidationErrorIs400(t *testing.T) {
	handler := &stubHandler{err: &types.ValidationError{Field: "user_id", Reason: "must not be empty"}}
	router := NewServer(handler).Router()

	rec := postEvent(t, router, `{"kind": "text", "text": "hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "user_id")
}

func TestPostEventInternalErrorIs500(t *testing.T) {
	handler := &stubHandler{err: errors.New("database gone")}
	router := NewServer(handler).Router()

	rec := postEvent(t, router, `{"user_id": "u1", "kind": "text", "text": "hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "database gone", "internal details stay internal")
}
