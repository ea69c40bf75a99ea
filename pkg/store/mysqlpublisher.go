package store

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

type MySQLPublisher struct {
	DB *sql.DB
}

func NewMySQLPublisher(dsn string) (*MySQLPublisher, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Optionally, ping the database to ensure the connection is established
	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &MySQLPublisher{DB: db}, nil
}

func (publisher *MySQLPublisher) Publish(eventType string, payload []byte) error {
	_, err := publisher.DB.Exec(
		"INSERT INTO Event (event_type, payload) VALUES (?, ?)",
		eventType, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %v", err)
	}
	return nil
}

func (publisher *MySQLPublisher) PublishAttempt(attempt Attempt) error {
	_, err := publisher.DB.Exec(
		"INSERT INTO ProvisionAttempt (device_id, ssid, outcome, started_at, finished_at) VALUES (?, ?, ?, ?, ?)",
		attempt.DeviceID, attempt.SSID, attempt.Outcome.String(), attempt.StartedAt, attempt.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to publish attempt: %v", err)
	}
	return nil
}
