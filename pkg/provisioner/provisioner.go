package provisioner

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/setup-robot/wifi-connect/pkg/radio"
	"github.com/setup-robot/wifi-connect/pkg/store"
	"github.com/setup-robot/wifi-connect/pkg/util"
	log "github.com/sirupsen/logrus"
)

// State is the provisioning session's position in its lifecycle:
// Idle -> HotspotActive -> Attempting -> {Connected | HotspotActive}.
type State int

const (
	StateIdle State = iota
	StateHotspotActive
	StateAttempting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHotspotActive:
		return "hotspot-active"
	case StateAttempting:
		return "attempting"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// ErrBusy rejects a credential submitted while another attempt is running.
// Submissions are never queued.
var ErrBusy = errors.New("a connection attempt is already in progress")

// Radio is the slice of the radio controller the state machine drives.
type Radio interface {
	StartHotspot(ctx context.Context, ssid string, channel int) error
	StopHotspot(ctx context.Context) error
	DisconnectClient(ctx context.Context) error
	CurrentMode() radio.Mode
}

// Prober runs one bounded connection attempt.
type Prober interface {
	Probe(ctx context.Context, cred store.NetworkCredential, timeout time.Duration) store.Attempt
}

type Config struct {
	HotspotSSID    string
	HotspotChannel int
	ConnectTimeout time.Duration
	DeviceID       string
	// ExitOnConnect shuts the daemon down ShutdownDelay after a confirmed
	// connection; with it off the daemon keeps running so the device can be
	// re-provisioned later.
	ExitOnConnect bool
	ShutdownDelay time.Duration
	// OnConnected is invoked after every confirmed connection. Optional.
	OnConnected func(ssid string)
}

// Snapshot is the read-only session summary served by the portal.
type Snapshot struct {
	State         string `json:"state"`
	RadioMode     string `json:"radio_mode"`
	HotspotName   string `json:"hotspot_name"`
	HotspotActive bool   `json:"hotspot_active"`
	ConnectedSSID string `json:"connected_ssid,omitempty"`
	LastSSID      string `json:"last_ssid,omitempty"`
	LastOutcome   string `json:"last_outcome,omitempty"`
	LastError     string `json:"last_error,omitempty"`
}

// Provisioner owns the single provisioning session and serializes radio
// ownership: one attempt at a time, everything else observes snapshots.
type Provisioner struct {
	radio  Radio
	store  store.CredentialStore
	prober Prober
	cfg    Config

	mu            sync.Mutex
	state         State
	lastAttempt   *store.Attempt
	connectedSSID string

	exitOnce sync.Once
	done     chan struct{}
}

func New(r Radio, credStore store.CredentialStore, p Prober, cfg Config) *Provisioner {
	if r == nil || credStore == nil || p == nil {
		log.Fatalf("can't start a provisioner without a radio, store and prober. Got nil")
	}
	return &Provisioner{
		radio:  r,
		store:  credStore,
		prober: p,
		cfg:    cfg,
		done:   make(chan struct{}),
	}
}

// Run starts the session: it tries the persisted credential first and falls
// back to hotspot provisioning. It returns once the context is cancelled or
// the exit-on-connect policy fires.
func (p *Provisioner) Run(ctx context.Context) error {
	cred, err := p.store.LoadConfirmed()
	if err != nil {
		// A corrupt record is the same as no record.
		log.Warnf("ignoring unreadable persisted credential: %v", err)
	}
	if cred != nil {
		log.Infof("found confirmed credential for %q, attempting direct connect", cred.SSID)
		// The direct connect holds the single attempt slot like any other,
		// so a portal submission racing it gets ErrBusy.
		p.mu.Lock()
		p.state = StateAttempting
		p.lastAttempt = &store.Attempt{
			Credential: *cred,
			SSID:       cred.SSID,
			DeviceID:   p.cfg.DeviceID,
			StartedAt:  time.Now(),
			Outcome:    store.Pending,
		}
		p.mu.Unlock()

		attempt := p.prober.Probe(ctx, *cred, p.cfg.ConnectTimeout)
		attempt.DeviceID = p.cfg.DeviceID
		if attempt.Outcome == store.Succeeded {
			p.finishConnected(attempt)
			p.waitForExit(ctx)
			return nil
		}
		log.Warnf("direct connect to %q failed (%v), falling back to provisioning", cred.SSID, attempt.Outcome)
		p.recordAttempt(attempt)
		p.mu.Lock()
		p.lastAttempt = &attempt
		p.mu.Unlock()
	}

	if err := p.startHotspot(ctx); err != nil {
		return errors.Wrapf(err, "could not bring up provisioning hotspot")
	}
	p.waitForExit(ctx)
	return nil
}

func (p *Provisioner) waitForExit(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-p.done:
	}
}

// Done is closed when the exit-on-connect policy decides the daemon's work
// is finished.
func (p *Provisioner) Done() <-chan struct{} {
	return p.done
}

// Submit hands a candidate credential to the state machine. It returns
// immediately; the attempt runs on its own goroutine and its outcome lands
// in the status snapshot. A submission during a running attempt is rejected
// with ErrBusy.
func (p *Provisioner) Submit(cred store.NetworkCredential) error {
	if err := cred.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.state == StateAttempting {
		p.mu.Unlock()
		return ErrBusy
	}
	p.state = StateAttempting
	p.lastAttempt = &store.Attempt{
		Credential: cred,
		SSID:       cred.SSID,
		DeviceID:   p.cfg.DeviceID,
		StartedAt:  time.Now(),
		Outcome:    store.Pending,
	}
	p.mu.Unlock()

	log.Infof("attempting to connect to network: %v", cred.SSID)
	go p.runAttempt(cred)
	return nil
}

func (p *Provisioner) runAttempt(cred store.NetworkCredential) {
	ctx := context.Background()
	attempt := p.prober.Probe(ctx, cred, p.cfg.ConnectTimeout)
	attempt.DeviceID = p.cfg.DeviceID
	p.recordAttempt(attempt)

	if attempt.Outcome == store.Succeeded {
		if err := p.store.SaveConfirmed(cred); err != nil {
			log.Errorf("failed to persist confirmed credential: %v", err)
		}
		// The radio stopped the hotspot on its way into client mode; this
		// covers the case where it was never up.
		if err := p.radio.StopHotspot(ctx); err != nil {
			log.Warnf("error stopping hotspot after success: %v", err)
		}
		p.finishConnected(attempt)
		return
	}

	log.Warnf("failed to connect to %v: %v", cred.SSID, attempt.Reason)
	if err := p.startHotspot(ctx); err != nil {
		log.Errorf("could not restore hotspot after failed attempt: %v", err)
	}
	p.mu.Lock()
	p.state = StateHotspotActive
	p.lastAttempt = &attempt
	p.mu.Unlock()
}

func (p *Provisioner) startHotspot(ctx context.Context) error {
	if err := p.radio.StartHotspot(ctx, p.cfg.HotspotSSID, p.cfg.HotspotChannel); err != nil {
		return err
	}
	p.mu.Lock()
	p.state = StateHotspotActive
	p.mu.Unlock()
	util.Gauge("wificonnect.hotspot", 1, []string{"device-id:" + p.cfg.DeviceID})
	return nil
}

func (p *Provisioner) finishConnected(attempt store.Attempt) {
	p.mu.Lock()
	p.state = StateConnected
	p.lastAttempt = &attempt
	p.connectedSSID = attempt.SSID
	p.mu.Unlock()

	util.Gauge("wificonnect.hotspot", 0, []string{"device-id:" + p.cfg.DeviceID})
	log.Infof("successfully connected to %v", attempt.SSID)

	if p.cfg.OnConnected != nil {
		p.cfg.OnConnected(attempt.SSID)
	}

	if p.cfg.ExitOnConnect {
		go func() {
			time.Sleep(p.cfg.ShutdownDelay)
			p.exit()
		}()
	}
}

func (p *Provisioner) recordAttempt(attempt store.Attempt) {
	// Advisory history only; failures here never affect the session.
	if err := p.store.RecordAttempt(attempt); err != nil {
		log.Warnf("could not record attempt: %v", err)
	}
	util.Incr("wificonnect.attempt", []string{
		"device-id:" + p.cfg.DeviceID,
		"outcome:" + attempt.Outcome.String(),
	})
}

// Reprovision is the portal's factory reset: drop the client connection,
// forget the confirmed credential and put the hotspot back up so the device
// can be set up from scratch. Rejected with ErrBusy while an attempt runs.
func (p *Provisioner) Reprovision(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateAttempting {
		p.mu.Unlock()
		return ErrBusy
	}
	p.state = StateIdle
	p.lastAttempt = nil
	p.connectedSSID = ""
	p.mu.Unlock()

	if err := p.store.Clear(); err != nil {
		return errors.Wrapf(err, "could not clear confirmed credential")
	}
	if err := p.radio.DisconnectClient(ctx); err != nil {
		return errors.Wrapf(err, "could not leave client mode")
	}
	log.Infof("reprovisioning requested, returning to hotspot")
	return p.startHotspot(ctx)
}

// RequestShutdown is the portal's operator-initiated teardown: stop the
// hotspot and let the daemon exit.
func (p *Provisioner) RequestShutdown() {
	go func() {
		if err := p.radio.StopHotspot(context.Background()); err != nil {
			log.Warnf("error stopping hotspot on shutdown: %v", err)
		}
		p.exit()
	}()
}

func (p *Provisioner) exit() {
	p.exitOnce.Do(func() { close(p.done) })
}

// Status returns the current session snapshot.
func (p *Provisioner) Status() Snapshot {
	mode := p.radio.CurrentMode()
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := Snapshot{
		State:         p.state.String(),
		RadioMode:     mode.String(),
		HotspotName:   p.cfg.HotspotSSID,
		HotspotActive: mode == radio.ModeHotspot,
		ConnectedSSID: p.connectedSSID,
	}
	if p.lastAttempt != nil {
		snap.LastSSID = p.lastAttempt.SSID
		snap.LastOutcome = p.lastAttempt.Outcome.String()
		if p.lastAttempt.Outcome.Failed() {
			snap.LastError = p.lastAttempt.Reason
		}
	}
	return snap
}
