package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Publisher ships recorded events to the fleet backend.
type Publisher interface {
	Publish(eventType string, payload []byte) error
}

// AttemptPublisher additionally accepts structured attempt records, used
// for out-of-band publishes that bypass the on-disk queue.
type AttemptPublisher interface {
	Publisher
	PublishAttempt(attempt Attempt) error
}

// GatewayUploader posts events to the fleet ingestion gateway using its
// base64 envelope format.
type GatewayUploader struct {
	Endpoint string
}

func NewGatewayPublisher(endpoint string) *GatewayUploader {
	return &GatewayUploader{Endpoint: endpoint}
}

func (uploader *GatewayUploader) Publish(eventType string, payload []byte) error {
	base64Payload := base64.StdEncoding.EncodeToString(payload)
	requestBody := strings.NewReader(fmt.Sprintf("{\"type\":\"%s\",\"version\":\"1\",\"payload\":\"%s\"}", eventType, base64Payload))
	resp, err := http.Post(uploader.Endpoint, "application/json", requestBody)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway rejected event: %v", resp.Status)
	}
	return nil
}

func (uploader *GatewayUploader) PublishAttempt(attempt Attempt) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	return uploader.Publish("wifi_provision_attempt", payload)
}
