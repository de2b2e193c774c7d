package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/msgblast-backend/internal/errors"
	"github.com/unclebandit/msgblast-backend/internal/model"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	mock := NewMockSender(1.0, 1)
	reg.Register(model.ChannelEmail, mock)

	s, err := reg.For(model.ChannelEmail)
	require.NoError(t, err)
	assert.Same(t, Sender(mock), s)

	_, err = reg.For(model.ChannelSMS)
	assert.Error(t, err)
}

func TestSendGridSenderSuccess(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("X-Message-Id", "sg-abc")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGridSender("key", "noreply@msgblast.io", "MsgBlast", 100)
	s.Endpoint = srv.URL

	rec := &model.Recipient{Email: "alice@example.com", Name: "Alice"}
	result, err := s.Send(context.Background(), rec, model.Content{Subject: "Hi", Body: "<p>Hello</p>"})
	require.NoError(t, err)
	assert.Equal(t, "sg-abc", result.MessageID)
	assert.Equal(t, "accepted", result.ProviderStatus)
	assert.Equal(t, "Hi", captured["subject"])
}

func TestSendGridSenderClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"errors":[{"message":"bad address"}]}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewSendGridSender("key", "noreply@msgblast.io", "MsgBlast", 100)
	s.Endpoint = srv.URL

	_, err := s.Send(context.Background(), &model.Recipient{Email: "x"}, model.Content{Body: "b"})
	var pErr *appErrors.ErrProvider
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "400", pErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not be retried")
}

func TestSendGridSenderRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("X-Message-Id", "sg-retried")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGridSender("key", "noreply@msgblast.io", "MsgBlast", 100)
	s.Endpoint = srv.URL

	result, err := s.Send(context.Background(), &model.Recipient{Email: "a@b.co"}, model.Content{Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, "sg-retried", result.MessageID)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestTwilioSenderSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+254712345678", r.PostForm.Get("To"))
		assert.Equal(t, "+15550001111", r.PostForm.Get("From"))
		json.NewEncoder(w).Encode(map[string]interface{}{"sid": "SM123", "status": "queued"})
	}))
	defer srv.Close()

	s := NewTwilioSender("AC1", "token", "+15550001111", false, 100)
	s.Endpoint = srv.URL

	rec := &model.Recipient{Phone: "+254712345678"}
	result, err := s.Send(context.Background(), rec, model.Content{Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "SM123", result.MessageID)
	assert.Equal(t, "queued", result.ProviderStatus)
}

func TestTwilioSenderWhatsAppPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "whatsapp:+254712345678", r.PostForm.Get("To"))
		assert.Equal(t, "whatsapp:+15550001111", r.PostForm.Get("From"))
		json.NewEncoder(w).Encode(map[string]interface{}{"sid": "WA123", "status": "queued"})
	}))
	defer srv.Close()

	s := NewTwilioSender("AC1", "token", "+15550001111", true, 100)
	s.Endpoint = srv.URL

	_, err := s.Send(context.Background(), &model.Recipient{Phone: "+254712345678"}, model.Content{Body: "hi"})
	require.NoError(t, err)
}

func TestTwilioSenderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 21211, "message": "invalid 'To' number",
		})
	}))
	defer srv.Close()

	s := NewTwilioSender("AC1", "token", "+15550001111", false, 100)
	s.Endpoint = srv.URL

	_, err := s.Send(context.Background(), &model.Recipient{Phone: "invalid"}, model.Content{Body: "hi"})
	var pErr *appErrors.ErrProvider
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "21211", pErr.Code)
	assert.Contains(t, pErr.Message, "invalid 'To'")
}

func TestMockSenderAlwaysSucceedsAtFullRate(t *testing.T) {
	m := NewMockSender(1.0, 42)
	for i := 0; i < 50; i++ {
		result, err := m.Send(context.Background(), &model.Recipient{Email: "a@b.co"}, model.Content{Body: "b"})
		require.NoError(t, err)
		assert.NotEmpty(t, result.MessageID)
	}
}
