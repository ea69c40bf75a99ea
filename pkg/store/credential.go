package store

import (
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidCredential is returned when a submitted credential violates the
// SSID or passphrase length rules.
var ErrInvalidCredential = errors.New("invalid credential")

// NetworkCredential identifies a WiFi network plus the secret needed to join
// it. An empty passphrase means an open network. Values are never mutated
// after construction.
type NetworkCredential struct {
	SSID       string `json:"ssid"`
	Passphrase string `json:"passphrase,omitempty"`
}

// Validate enforces the 802.11 limits: an SSID is 1-32 bytes, a WPA
// passphrase is 8-63 bytes or absent entirely.
func (c NetworkCredential) Validate() error {
	if len(c.SSID) == 0 || len(c.SSID) > 32 {
		return errors.Wrapf(ErrInvalidCredential, "ssid must be 1-32 bytes, got %d", len(c.SSID))
	}
	if len(c.Passphrase) != 0 && (len(c.Passphrase) < 8 || len(c.Passphrase) > 63) {
		return errors.Wrapf(ErrInvalidCredential, "passphrase must be 8-63 bytes, got %d", len(c.Passphrase))
	}
	return nil
}

// Open reports whether the credential targets an open (passwordless) network.
func (c NetworkCredential) Open() bool {
	return c.Passphrase == ""
}

type Outcome int

const (
	Pending Outcome = iota
	Succeeded
	FailedAuth
	FailedNoSignal
	FailedTimeout
	FailedNoInternet
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case FailedAuth:
		return "failed-auth"
	case FailedNoSignal:
		return "failed-no-signal"
	case FailedTimeout:
		return "failed-timeout"
	case FailedNoInternet:
		return "failed-no-internet"
	}
	return "unknown"
}

// Failed reports whether the outcome is terminal and unsuccessful.
func (o Outcome) Failed() bool {
	return o != Pending && o != Succeeded
}

// Attempt is one connection attempt against a candidate network. The
// passphrase never leaves the process: only the SSID is serialized into the
// attempt history.
type Attempt struct {
	Credential NetworkCredential `json:"-"`
	SSID       string            `json:"ssid"`
	DeviceID   string            `json:"device_id,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`
	Outcome    Outcome           `json:"outcome"`
	Reason     string            `json:"reason,omitempty"`
}
