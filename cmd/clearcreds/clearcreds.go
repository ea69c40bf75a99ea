package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/setup-robot/wifi-connect/pkg/store"
)

// Factory-reset helper: removes the persisted credential so the next
// daemon start goes straight to provisioning mode.
func main() {
	stateDir := flag.String("state-dir", "/var/lib/wifi-connect", "daemon state directory")
	flag.Parse()

	credStore, err := store.NewFileSystemStore("", *stateDir)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	cred, err := credStore.LoadConfirmed()
	if err != nil {
		fmt.Printf("Warning: stored credential is unreadable (%v), clearing anyway\n", err)
	}
	if cred != nil {
		fmt.Printf("Clearing confirmed credential for %q\n", cred.SSID)
	}

	if err := credStore.Clear(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Done. The device will start in provisioning mode on next boot.")
}
