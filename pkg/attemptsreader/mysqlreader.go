package attemptsreader

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Attempt is the fleet backend's view of one provisioning attempt.
type Attempt struct {
	DeviceID  string    `json:"device_id"`
	SSID      string    `json:"ssid"`
	Outcome   string    `json:"outcome"`
	StartedAt time.Time `json:"started_at"`
}

// GetAttemptsForDevice retrieves provisioning attempts for a specific
// device within the last 2 days.
func GetAttemptsForDevice(db *sql.DB, deviceID string) ([]Attempt, error) {
	if deviceID == "" {
		return nil, errors.New("deviceID cannot be empty")
	}

	twoDaysAgo := time.Now().AddDate(0, 0, -2)

	query := `
		SELECT payload
		FROM Event
		WHERE created_at >= ?
		AND event_type = 'wifi_provision_attempt'
		ORDER by created_at desc
	`

	rows, err := db.Query(query, twoDaysAgo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []Attempt

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}

		var attempt Attempt
		if err := json.Unmarshal([]byte(payload), &attempt); err != nil {
			return nil, err
		}

		// Filter by DeviceID at the application level
		if attempt.DeviceID == deviceID {
			attempts = append(attempts, attempt)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return attempts, nil
}

// CountAttemptsInDuration counts the attempts that started within the
// given duration.
func CountAttemptsInDuration(attempts []Attempt, duration time.Duration) int {
	if len(attempts) == 0 {
		return 0
	}

	var count int
	now := time.Now()

	for _, attempt := range attempts {
		if now.Sub(attempt.StartedAt) <= duration {
			count++
		}
	}

	return count
}
