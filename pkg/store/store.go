package store

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// CredentialStore persists the last confirmed network credential plus an
// advisory append-only attempt history used for fleet diagnostics.
type CredentialStore interface {
	// SaveConfirmed overwrites the persisted credential. The write is
	// durable before the call returns.
	SaveConfirmed(cred NetworkCredential) error
	// LoadConfirmed returns the confirmed credential, or nil if none was
	// ever saved. A corrupt or unreadable record is reported through the
	// error but must be treated as "no prior credential" by callers.
	LoadConfirmed() (*NetworkCredential, error)
	// Clear removes the persisted credential (factory reset).
	Clear() error

	RecordAttempt(attempt Attempt) error
	// PendingAttempts returns the recorded attempt files that have not been
	// published yet, as parallel slices of file name and raw payload.
	PendingAttempts() ([]string, [][]byte, error)
	DeleteAttempt(name string) error
}

const confirmedFile = "confirmed.json"

type fileSystemStore struct {
	deviceID    string
	stateDir    string
	attemptsDir string
}

func NewFileSystemStore(deviceID string, stateDir string) (CredentialStore, error) {
	s := &fileSystemStore{
		deviceID:    deviceID,
		stateDir:    stateDir,
		attemptsDir: filepath.Join(stateDir, "attempts"),
	}
	for _, dir := range []string{s.stateDir, s.attemptsDir} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("error creating state directory: %v", err)
			}
		}
	}
	return s, nil
}

func (s *fileSystemStore) SaveConfirmed(cred NetworkCredential) error {
	payload, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("error marshaling credential: %v", err)
	}
	// Write to a temp file, fsync, then rename over the old record so a
	// crash mid-write can never leave a truncated credential behind.
	tmp, err := ioutil.TempFile(s.stateDir, confirmedFile+".tmp")
	if err != nil {
		return fmt.Errorf("error creating temp credential file: %v", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing credential file: %v", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("error syncing credential file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing credential file: %v", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.stateDir, confirmedFile)); err != nil {
		return fmt.Errorf("error replacing credential file: %v", err)
	}
	return nil
}

func (s *fileSystemStore) LoadConfirmed() (*NetworkCredential, error) {
	raw, err := ioutil.ReadFile(filepath.Join(s.stateDir, confirmedFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading credential file: %v", err)
	}
	var cred NetworkCredential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, fmt.Errorf("error unmarshaling credential file: %v", err)
	}
	if err := cred.Validate(); err != nil {
		return nil, fmt.Errorf("persisted credential is invalid: %v", err)
	}
	return &cred, nil
}

func (s *fileSystemStore) Clear() error {
	err := os.Remove(filepath.Join(s.stateDir, confirmedFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing credential file: %v", err)
	}
	return nil
}

func (s *fileSystemStore) RecordAttempt(attempt Attempt) error {
	if attempt.DeviceID == "" {
		attempt.DeviceID = s.deviceID
	}
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("error marshaling attempt: %v", err)
	}
	filename := getAttemptFilename(attempt.DeviceID, attempt.StartedAt)
	if err := ioutil.WriteFile(filepath.Join(s.attemptsDir, filename), payload, 0644); err != nil {
		return fmt.Errorf("error writing attempt file: %v", err)
	}
	return nil
}

func (s *fileSystemStore) PendingAttempts() ([]string, [][]byte, error) {
	files, err := ioutil.ReadDir(s.attemptsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading attempts directory: %v", err)
	}
	var names []string
	var payloads [][]byte
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		raw, err := ioutil.ReadFile(filepath.Join(s.attemptsDir, file.Name()))
		if err != nil {
			log.Warnf("skipping unreadable attempt file %v: %v", file.Name(), err)
			continue
		}
		names = append(names, file.Name())
		payloads = append(payloads, raw)
	}
	return names, payloads, nil
}

func (s *fileSystemStore) DeleteAttempt(name string) error {
	if err := os.Remove(filepath.Join(s.attemptsDir, name)); err != nil {
		return fmt.Errorf("error deleting attempt file: %v", err)
	}
	return nil
}

func getAttemptFilename(deviceID string, startTime time.Time) string {
	return fmt.Sprintf("%v_%v.json", deviceID, startTime.UnixNano())
}
