package radio

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setup-robot/wifi-connect/pkg/store"
)

type fakeResult struct {
	out string
	err error
}

// fakeRunner matches invocations by prefix of the joined nmcli arguments.
type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]fakeResult
	calls   []string
}

func (f *fakeRunner) run(ctx context.Context, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	for prefix, res := range f.outputs {
		if strings.HasPrefix(key, prefix) {
			return res.out, res.err
		}
	}
	return "", nil
}

func (f *fakeRunner) called(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			return true
		}
	}
	return false
}

const deviceStatus = "wlan0:wifi\neth0:ethernet\nlo:loopback"

func newTestController(t *testing.T, outputs map[string]fakeResult) (*Controller, *fakeRunner) {
	if outputs == nil {
		outputs = map[string]fakeResult{}
	}
	outputs["-t -f DEVICE,TYPE device status"] = fakeResult{out: deviceStatus}
	run := &fakeRunner{outputs: outputs}
	ctrl, err := newController(context.Background(), "wlan0", run)
	require.NoError(t, err)
	return ctrl, run
}

func TestNewControllerMissingInterface(t *testing.T) {
	run := &fakeRunner{outputs: map[string]fakeResult{
		"-t -f DEVICE,TYPE device status": {out: "eth0:ethernet"},
	}}
	_, err := newController(context.Background(), "wlan0", run)
	assert.Error(t, err)
}

func TestScanParsesAndSorts(t *testing.T) {
	ctrl, _ := newTestController(t, map[string]fakeResult{
		"-t -f SSID,SIGNAL,SECURITY device wifi list": {
			out: "HomeNet:62:WPA2\nCafeNet:85:WPA1 WPA2\nHomeNet:40:WPA2\n:30:WPA2\nOpenNet:55:\n",
		},
	})

	networks, err := ctrl.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, networks, 3)

	// Strongest first, duplicates and hidden SSIDs dropped.
	assert.Equal(t, "CafeNet", networks[0].SSID)
	assert.Equal(t, 85, networks[0].Signal)
	assert.Equal(t, "HomeNet", networks[1].SSID)
	assert.Equal(t, 62, networks[1].Signal)
	assert.Equal(t, "OpenNet", networks[2].SSID)
	assert.Equal(t, "Open", networks[2].Security)
}

func TestScanDriverError(t *testing.T) {
	ctrl, _ := newTestController(t, map[string]fakeResult{
		"-t -f SSID,SIGNAL,SECURITY device wifi list": {out: "Error: wifi is disabled", err: errors.New("exit status 10")},
	})

	_, err := ctrl.Scan(context.Background())
	assert.True(t, errors.Is(err, ErrDriverFailure))
}

func TestStartHotspot(t *testing.T) {
	ctrl, run := newTestController(t, nil)

	require.NoError(t, ctrl.StartHotspot(context.Background(), "Setup-Robot-WiFi", 6))
	assert.Equal(t, ModeHotspot, ctrl.CurrentMode())
	assert.True(t, run.called("connection add type wifi"))
	assert.True(t, run.called("connection modify Hotspot 802-11-wireless.mode ap"))
	assert.True(t, run.called("connection up Hotspot"))
}

func TestStartHotspotBusyWhileClient(t *testing.T) {
	ctrl, _ := newTestController(t, nil)
	ctrl.setMode(ModeClient)

	err := ctrl.StartHotspot(context.Background(), "Setup-Robot-WiFi", 0)
	assert.True(t, errors.Is(err, ErrDeviceBusy))
	assert.Equal(t, ModeClient, ctrl.CurrentMode())
}

func TestStartHotspotDriverFailureRollsBack(t *testing.T) {
	ctrl, _ := newTestController(t, map[string]fakeResult{
		"connection up Hotspot": {out: "Error: Connection activation failed", err: errors.New("exit status 4")},
	})

	err := ctrl.StartHotspot(context.Background(), "Setup-Robot-WiFi", 0)
	assert.True(t, errors.Is(err, ErrDriverFailure))
	assert.Equal(t, ModeIdle, ctrl.CurrentMode())
}

func TestStopHotspotIdempotent(t *testing.T) {
	ctrl, run := newTestController(t, nil)

	// Stopping with no hotspot up is a successful no-op.
	require.NoError(t, ctrl.StopHotspot(context.Background()))
	assert.False(t, run.called("connection down Hotspot"))

	require.NoError(t, ctrl.StartHotspot(context.Background(), "Setup-Robot-WiFi", 0))
	require.NoError(t, ctrl.StopHotspot(context.Background()))
	assert.Equal(t, ModeIdle, ctrl.CurrentMode())
	assert.True(t, run.called("connection down Hotspot"))

	require.NoError(t, ctrl.StopHotspot(context.Background()))
}

func TestConnectClientStopsHotspotFirst(t *testing.T) {
	ctrl, run := newTestController(t, nil)
	require.NoError(t, ctrl.StartHotspot(context.Background(), "Setup-Robot-WiFi", 0))

	cred := store.NetworkCredential{SSID: "HomeNet", Passphrase: "validpass123"}
	require.NoError(t, ctrl.ConnectClient(context.Background(), cred, 30*time.Second))

	assert.Equal(t, ModeClient, ctrl.CurrentMode())
	assert.True(t, run.called("connection down Hotspot"))
	assert.True(t, run.called("device wifi connect HomeNet ifname wlan0 password validpass123"))
}

func TestConnectClientOpenNetwork(t *testing.T) {
	ctrl, run := newTestController(t, nil)

	cred := store.NetworkCredential{SSID: "OpenNet"}
	require.NoError(t, ctrl.ConnectClient(context.Background(), cred, 30*time.Second))
	assert.True(t, run.called("device wifi connect OpenNet ifname wlan0"))
	assert.False(t, run.called("device wifi connect OpenNet ifname wlan0 password"))
}

func TestConnectClientAuthFailed(t *testing.T) {
	ctrl, _ := newTestController(t, map[string]fakeResult{
		"device wifi connect HomeNet": {
			out: "Error: Connection activation failed: (7) Secrets were required, but not provided.",
			err: errors.New("exit status 4"),
		},
	})

	cred := store.NetworkCredential{SSID: "HomeNet", Passphrase: "wrongpass"}
	err := ctrl.ConnectClient(context.Background(), cred, 30*time.Second)
	assert.True(t, errors.Is(err, ErrAuthFailed))
	assert.Equal(t, ModeIdle, ctrl.CurrentMode())
}

func TestConnectClientNoSignal(t *testing.T) {
	ctrl, _ := newTestController(t, map[string]fakeResult{
		"device wifi connect Nowhere": {
			out: "Error: No network with SSID 'Nowhere' found.",
			err: errors.New("exit status 10"),
		},
	})

	cred := store.NetworkCredential{SSID: "Nowhere", Passphrase: "validpass123"}
	err := ctrl.ConnectClient(context.Background(), cred, 30*time.Second)
	assert.True(t, errors.Is(err, ErrNoSignal))
}

func TestClassifyConnectErrorTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := classifyConnectError(ctx, "", errors.New("signal: killed"))
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestVerify(t *testing.T) {
	ctrl, _ := newTestController(t, map[string]fakeResult{
		"device show wlan0": {out: "GENERAL.DEVICE: wlan0\nIP4.ADDRESS[1]: 192.168.1.40/24"},
	})
	assert.True(t, ctrl.Verify(context.Background()))
}
