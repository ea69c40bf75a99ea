package radio

import (
	"bytes"
	"context"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/setup-robot/wifi-connect/pkg/store"
	log "github.com/sirupsen/logrus"
)

// Mode is the radio's current role. The single wireless interface supports
// exactly one role at a time.
type Mode int

const (
	ModeIdle Mode = iota
	ModeHotspot
	ModeClient
	ModeTransitioning
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeHotspot:
		return "hotspot"
	case ModeClient:
		return "client"
	case ModeTransitioning:
		return "transitioning"
	}
	return "unknown"
}

var (
	ErrDeviceBusy    = errors.New("radio: device busy")
	ErrDriverFailure = errors.New("radio: driver failure")
	ErrAuthFailed    = errors.New("radio: authentication failed")
	ErrNoSignal      = errors.New("radio: network not in range")
	ErrTimeout       = errors.New("radio: association timed out")
)

// Network is one visible network from a scan.
type Network struct {
	SSID     string `json:"ssid"`
	Signal   int    `json:"signal"`
	Security string `json:"security"`
}

// hotspotConn is the NetworkManager profile name used for the soft AP.
const hotspotConn = "Hotspot"

// runner executes one nmcli invocation and returns its combined output.
// Abstracted so tests can inject canned nmcli transcripts.
type runner interface {
	run(ctx context.Context, args ...string) (string, error)
}

type nmcliRunner struct{}

func (nmcliRunner) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "nmcli", args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}

// Controller owns the wireless interface. All mode-changing operations are
// serialized through opMu; mode observation never blocks behind them.
type Controller struct {
	iface string
	run   runner

	opMu    sync.Mutex // serializes nmcli mutations
	stateMu sync.Mutex // guards mode
	mode    Mode
}

// NewController wraps the given wireless interface. It fails fast when the
// interface is not a wifi device managed by NetworkManager, or when
// NetworkManager itself is unreachable.
func NewController(ctx context.Context, iface string) (*Controller, error) {
	return newController(ctx, iface, nmcliRunner{})
}

func newController(ctx context.Context, iface string, run runner) (*Controller, error) {
	c := &Controller{iface: iface, run: run}
	out, err := run.run(ctx, "-t", "-f", "DEVICE,TYPE", "device", "status")
	if err != nil {
		return nil, errors.Wrapf(err, "NetworkManager is unreachable")
	}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(line, ":")
		if len(parts) >= 2 && parts[0] == iface && parts[1] == "wifi" {
			return c, nil
		}
	}
	return nil, errors.Newf("wireless interface %q is not managed by NetworkManager", iface)
}

// CurrentMode is a pure observation with no side effect.
func (c *Controller) CurrentMode() Mode {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.mode
}

func (c *Controller) setMode(m Mode) {
	c.stateMu.Lock()
	c.mode = m
	c.stateMu.Unlock()
}

// StartHotspot brings the interface up as an open access point. It refuses
// with ErrDeviceBusy while a client connection is active: the caller must
// tear that down first.
func (c *Controller) StartHotspot(ctx context.Context, ssid string, channel int) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.CurrentMode() == ModeClient {
		return errors.Wrapf(ErrDeviceBusy, "client connection still active on %v", c.iface)
	}
	c.setMode(ModeTransitioning)

	// A stale profile from a previous run would make the add fail.
	if _, err := c.run.run(ctx, "connection", "delete", hotspotConn); err != nil {
		log.Debugf("no stale hotspot profile to delete")
	}

	if out, err := c.run.run(ctx, "connection", "add",
		"type", "wifi",
		"ifname", c.iface,
		"con-name", hotspotConn,
		"autoconnect", "yes",
		"ssid", ssid); err != nil {
		c.setMode(ModeIdle)
		return errors.Wrapf(ErrDriverFailure, "creating hotspot profile: %v", strings.TrimSpace(out))
	}

	modifyArgs := []string{"connection", "modify", hotspotConn,
		"802-11-wireless.mode", "ap",
		"802-11-wireless.band", "bg",
		"ipv4.method", "shared"}
	if channel > 0 {
		modifyArgs = append(modifyArgs, "802-11-wireless.channel", strconv.Itoa(channel))
	}
	if out, err := c.run.run(ctx, modifyArgs...); err != nil {
		c.setMode(ModeIdle)
		return errors.Wrapf(ErrDriverFailure, "configuring hotspot profile: %v", strings.TrimSpace(out))
	}

	if out, err := c.run.run(ctx, "connection", "up", hotspotConn); err != nil {
		c.setMode(ModeIdle)
		return errors.Wrapf(ErrDriverFailure, "activating hotspot: %v", strings.TrimSpace(out))
	}

	c.setMode(ModeHotspot)
	log.Infof("hotspot %q is up on %v", ssid, c.iface)
	return nil
}

// StopHotspot tears the access point down. Calling it when no hotspot is
// active is a successful no-op.
func (c *Controller) StopHotspot(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.stopHotspotLocked(ctx)
}

func (c *Controller) stopHotspotLocked(ctx context.Context) error {
	if c.CurrentMode() != ModeHotspot {
		return nil
	}
	c.setMode(ModeTransitioning)
	// Both are best effort: the profile may already be gone.
	if _, err := c.run.run(ctx, "connection", "down", hotspotConn); err != nil {
		log.Debugf("hotspot was not active while stopping")
	}
	if _, err := c.run.run(ctx, "connection", "delete", hotspotConn); err != nil {
		log.Debugf("hotspot profile already deleted")
	}
	c.setMode(ModeIdle)
	log.Infof("hotspot on %v is down", c.iface)
	return nil
}

// ConnectClient switches the interface to client mode and associates with
// the given network, bounded by timeout. An active hotspot is stopped first.
// On failure the interface is left down, never half-configured.
func (c *Controller) ConnectClient(ctx context.Context, cred store.NetworkCredential, timeout time.Duration) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.stopHotspotLocked(ctx); err != nil {
		return err
	}
	c.setMode(ModeTransitioning)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Remove any stale profile for this SSID to avoid conflicts.
	if _, err := c.run.run(ctx, "connection", "delete", "id", cred.SSID); err != nil {
		log.Debugf("no stale profile for %q to delete", cred.SSID)
	}

	args := []string{"device", "wifi", "connect", cred.SSID, "ifname", c.iface}
	if !cred.Open() {
		args = append(args, "password", cred.Passphrase)
	}
	out, err := c.run.run(ctx, args...)
	if err != nil {
		c.setMode(ModeIdle)
		return classifyConnectError(ctx, out, err)
	}

	c.setMode(ModeClient)
	log.Infof("associated with %q on %v", cred.SSID, c.iface)
	return nil
}

// DisconnectClient drops the client connection so the radio can be handed
// back to hotspot duty.
func (c *Controller) DisconnectClient(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.CurrentMode() != ModeClient {
		return nil
	}
	c.setMode(ModeTransitioning)
	if out, err := c.run.run(ctx, "device", "disconnect", c.iface); err != nil {
		c.setMode(ModeIdle)
		return errors.Wrapf(ErrDriverFailure, "disconnecting %v: %v", c.iface, strings.TrimSpace(out))
	}
	c.setMode(ModeIdle)
	return nil
}

// Verify reports whether the interface has an IPv4 address assigned, the
// same post-association check the portal's predecessors used.
func (c *Controller) Verify(ctx context.Context) bool {
	out, err := c.run.run(ctx, "device", "show", c.iface)
	if err != nil {
		return false
	}
	return strings.Contains(out, "IP4.ADDRESS")
}

func classifyConnectError(ctx context.Context, out string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrapf(ErrTimeout, "association did not finish in time")
	}
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "secrets were required"),
		strings.Contains(lower, "no secrets provided"),
		strings.Contains(lower, "802.1x supplicant"):
		return errors.Wrapf(ErrAuthFailed, "%v", strings.TrimSpace(out))
	case strings.Contains(lower, "no network with ssid"):
		return errors.Wrapf(ErrNoSignal, "%v", strings.TrimSpace(out))
	}
	return errors.Wrapf(ErrDriverFailure, "nmcli: %v: %v", err, strings.TrimSpace(out))
}

// Scan lists visible networks, strongest signal first, deduplicated by SSID.
// Scanning is best effort and does not take the operation lock so a running
// connection attempt cannot stall it.
func (c *Controller) Scan(ctx context.Context) ([]Network, error) {
	out, err := c.run.run(ctx, "-t", "-f", "SSID,SIGNAL,SECURITY", "device", "wifi", "list")
	if err != nil {
		return nil, errors.Wrapf(ErrDriverFailure, "scanning: %v", strings.TrimSpace(out))
	}

	var networks []Network
	seen := map[string]bool{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) < 3 {
			continue
		}
		ssid := strings.TrimSpace(parts[0])
		if ssid == "" || seen[ssid] {
			continue
		}
		signal, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			signal = 0
		}
		security := strings.TrimSpace(parts[2])
		if security == "" {
			security = "Open"
		}
		networks = append(networks, Network{SSID: ssid, Signal: signal, Security: security})
		seen[ssid] = true
	}
	sort.Slice(networks, func(i, j int) bool { return networks[i].Signal > networks[j].Signal })
	return networks, nil
}
