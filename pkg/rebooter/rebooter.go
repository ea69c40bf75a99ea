package rebooter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// Rebooter is a recovery watchdog for unattended devices: when the device
// has gone longer than RebootInterval without a confirmed connection, it
// requests a reboot through the Balena Supervisor API. The provisioner
// touches the timestamp file on every successful connection.
type Rebooter struct {
	CheckInterval  time.Duration
	RebootInterval time.Duration
	FilePath       string
	cancelFunc     context.CancelFunc
}

// New creates a new Rebooter instance.
func New(interval, rebootInterval time.Duration, filePath string) *Rebooter {
	return &Rebooter{
		CheckInterval:  interval,
		RebootInterval: rebootInterval,
		FilePath:       filePath,
	}
}

// Start begins the periodic staleness check. It returns an error if it
// fails to initialize the timestamp file.
func (r *Rebooter) Start(ctx context.Context) error {
	var cancelCtx context.Context
	cancelCtx, r.cancelFunc = context.WithCancel(ctx)

	if _, err := os.Stat(r.FilePath); os.IsNotExist(err) {
		// File does not exist, so the stale window starts now.
		if err := r.WriteTimestampToFile(time.Now()); err != nil {
			return fmt.Errorf("failed to initialize the timestamp file: %v", err)
		}
	} else if err != nil {
		return fmt.Errorf("error checking the timestamp file: %v", err)
	}

	go func() {
		ticker := time.NewTicker(r.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-cancelCtx.Done():
				log.Info("Stopping rebooter")
				return
			case <-ticker.C:
				if r.shouldReboot() {
					r.rebootDevice()
				}
			}
		}
	}()
	return nil
}

// Stop stops the rebooter goroutine.
func (r *Rebooter) Stop() {
	if r.cancelFunc != nil {
		r.cancelFunc()
	}
}

// MarkConnected records a confirmed connection, resetting the stale window.
func (r *Rebooter) MarkConnected() {
	if err := r.WriteTimestampToFile(time.Now()); err != nil {
		log.Errorf("Error updating connection timestamp: %v", err)
	}
}

// WriteTimestampToFile stores t as a Unix timestamp in the state file.
func (r *Rebooter) WriteTimestampToFile(t time.Time) error {
	return os.WriteFile(r.FilePath, []byte(strconv.FormatInt(t.Unix(), 10)), 0644)
}

// GetLastConnectedTimestamp reads the last recorded connection time.
func (r *Rebooter) GetLastConnectedTimestamp() (time.Time, error) {
	data, err := os.ReadFile(r.FilePath)
	if err != nil {
		return time.Time{}, err
	}
	unix, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(unix, 0), nil
}

// shouldReboot checks whether the device has been without a confirmed
// connection for longer than RebootInterval.
func (r *Rebooter) shouldReboot() bool {
	lastConnected, err := r.GetLastConnectedTimestamp()
	if err != nil {
		log.Errorf("Error reading connection timestamp: %v", err)
		// An unreadable timestamp must not cause a reboot loop.
		return false
	}

	if time.Since(lastConnected) > r.RebootInterval {
		// Reset the window so a failed reboot request does not retrigger
		// on every tick.
		if err := r.WriteTimestampToFile(time.Now()); err != nil {
			log.Errorf("Error writing current timestamp to file: %v", err)
		}
		return true
	}
	return false
}

// rebootDevice uses the Balena Supervisor API to reboot the device.
func (r *Rebooter) rebootDevice() {
	supervisorAddress := os.Getenv("BALENA_SUPERVISOR_ADDRESS")
	apiKey := os.Getenv("BALENA_SUPERVISOR_API_KEY")

	if supervisorAddress == "" || apiKey == "" {
		log.Errorf("Supervisor address or API key not set.")
		return
	}

	requestBody, err := json.Marshal(map[string]bool{"force": true})
	if err != nil {
		log.Errorf("Error marshaling request body: %v", err)
		return
	}

	url := fmt.Sprintf("%s/v1/reboot?apikey=%s", supervisorAddress, apiKey)
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		log.Errorf("Error creating request: %v", err)
		return
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		log.Errorf("Error making request: %v", err)
		return
	}
	defer resp.Body.Close()

	log.Infof("Reboot requested: device was stuck without a connection.")
}
