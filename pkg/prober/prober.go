package prober

import (
	"context"
	"net"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/setup-robot/wifi-connect/pkg/radio"
	"github.com/setup-robot/wifi-connect/pkg/store"
	log "github.com/sirupsen/logrus"
)

// Radio is the slice of the radio controller the prober needs.
type Radio interface {
	ConnectClient(ctx context.Context, cred store.NetworkCredential, timeout time.Duration) error
	Verify(ctx context.Context) bool
}

// reachFunc checks internet reachability within the context deadline.
type reachFunc func(ctx context.Context) error

// Prober drives one association attempt and then verifies that the network
// actually reaches the internet. Association without reachability counts as
// a failed attempt: the goal is usable internet access.
type Prober struct {
	radio     Radio
	checkAddr string
	reach     reachFunc
}

// New returns a prober that verifies reachability with a TCP dial to
// checkAddr (host:port).
func New(r Radio, checkAddr string) *Prober {
	p := &Prober{radio: r, checkAddr: checkAddr}
	p.reach = p.dialCheck
	return p
}

func (p *Prober) dialCheck(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.checkAddr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Probe runs one connection attempt against the credential, bounded overall
// by timeout. The returned attempt always carries a terminal outcome.
func (p *Prober) Probe(ctx context.Context, cred store.NetworkCredential, timeout time.Duration) store.Attempt {
	attempt := store.Attempt{
		Credential: cred,
		SSID:       cred.SSID,
		StartedAt:  time.Now(),
		Outcome:    store.Pending,
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.radio.ConnectClient(ctx, cred, timeout); err != nil {
		attempt.Outcome = outcomeForRadioError(err)
		attempt.Reason = err.Error()
		attempt.FinishedAt = time.Now()
		return attempt
	}

	if !p.radio.Verify(ctx) {
		log.Warnf("associated with %q but no IPv4 address yet", cred.SSID)
	}

	// Whatever time remains goes to the reachability check.
	if err := p.reach(ctx); err != nil {
		attempt.Outcome = store.FailedNoInternet
		attempt.Reason = "associated but internet unreachable: " + err.Error()
		attempt.FinishedAt = time.Now()
		return attempt
	}

	attempt.Outcome = store.Succeeded
	attempt.FinishedAt = time.Now()
	return attempt
}

func outcomeForRadioError(err error) store.Outcome {
	switch {
	case errors.Is(err, radio.ErrAuthFailed):
		return store.FailedAuth
	case errors.Is(err, radio.ErrNoSignal):
		return store.FailedNoSignal
	case errors.Is(err, radio.ErrTimeout):
		return store.FailedTimeout
	}
	// Driver and busy faults fold into FailedTimeout; the attempt's reason
	// string keeps the underlying error text.
	return store.FailedTimeout
}
