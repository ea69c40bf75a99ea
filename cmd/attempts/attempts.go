package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/setup-robot/wifi-connect/pkg/attemptsreader"

	log "github.com/sirupsen/logrus"
)

// Fleet diagnostics: list the provisioning attempts one device reported to
// the backend over the last two days.
func main() {
	dsn := flag.String("dsn", os.Getenv("FLEET_MYSQL_DSN"), "MySQL DSN of the fleet event store")
	deviceID := flag.String("device-id", "", "device to inspect")
	flag.Parse()

	if *dsn == "" || *deviceID == "" {
		fmt.Println("dsn and device-id are required flags")
		flag.Usage()
		os.Exit(1)
	}

	db, err := sql.Open("mysql", *dsn)
	if err != nil {
		log.Fatalf("failed to open fleet database: %v", err)
	}
	defer db.Close()

	attempts, err := attemptsreader.GetAttemptsForDevice(db, *deviceID)
	if err != nil {
		log.Fatalf("failed to read attempts: %v", err)
	}

	if len(attempts) == 0 {
		fmt.Printf("No attempts recorded for %v in the last 2 days\n", *deviceID)
		return
	}

	lastHour := attemptsreader.CountAttemptsInDuration(attempts, 1*time.Hour)
	fmt.Printf("%v attempts in the last 2 days (%v in the last hour):\n", len(attempts), lastHour)
	for _, attempt := range attempts {
		fmt.Printf("  %v  ssid=%q  outcome=%v\n",
			attempt.StartedAt.Format(time.RFC3339), attempt.SSID, attempt.Outcome)
	}
}
