package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackService_Post(t *testing.T) {
	var received SlackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewSlackService(server.Client())
	msg := SlackMessage{Attachments: []SlackAttachment{{
		Fallback: "New proposal: Go in production",
		Title:    "Go in production",
		Fields:   []SlackField{{Title: "Speakers", Value: "Ada", Short: true}},
	}}}

	err := svc.Post(context.Background(), server.URL, msg)

	require.NoError(t, err)
	assert.Equal(t, msg, received)
}

func TestSlackService_Post_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	err := NewSlackService(nil).Post(context.Background(), server.URL, SlackMessage{Text: "hello"})

	assert.ErrorContains(t, err, "status 404")
}

func TestSlackService_Post_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSlackService(server.Client()).Post(ctx, server.URL, SlackMessage{Text: "hello"})

	assert.ErrorIs(t, err, context.Canceled)
}
