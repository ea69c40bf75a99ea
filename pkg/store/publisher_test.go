package store

import (
	"encoding/base64"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayPublishAttempt(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = ioutil.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	uploader := NewGatewayPublisher(srv.URL)
	attempt := Attempt{
		Credential: NetworkCredential{SSID: "HomeNet", Passphrase: "validpass123"},
		SSID:       "HomeNet",
		DeviceID:   "bench-device-1",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Outcome:    Succeeded,
	}
	require.NoError(t, uploader.PublishAttempt(attempt))

	var envelope struct {
		Type    string `json:"type"`
		Version string `json:"version"`
		Payload string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &envelope))
	assert.Equal(t, "wifi_provision_attempt", envelope.Type)
	assert.Equal(t, "1", envelope.Version)

	decoded, err := base64.StdEncoding.DecodeString(envelope.Payload)
	require.NoError(t, err)

	var sent Attempt
	require.NoError(t, json.Unmarshal(decoded, &sent))
	assert.Equal(t, "HomeNet", sent.SSID)
	assert.Equal(t, "bench-device-1", sent.DeviceID)
	assert.Equal(t, Succeeded, sent.Outcome)
	// Secrets never leave the device.
	assert.NotContains(t, string(decoded), "validpass123")
}

func TestGatewayPublishAttemptRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	uploader := NewGatewayPublisher(srv.URL)
	err := uploader.PublishAttempt(Attempt{SSID: "HomeNet", Outcome: FailedTimeout})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway rejected")
}
