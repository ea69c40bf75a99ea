package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/setup-robot/wifi-connect/pkg/radio"
)

// Quick radio readout for bench debugging: prints the interface mode and
// visible networks every few seconds.
func main() {
	iface := "wlan0"
	if len(os.Args) > 1 {
		iface = os.Args[1]
	}

	ctx := context.Background()
	ctrl, err := radio.NewController(ctx, iface)
	if err != nil {
		fmt.Printf("Error: %v", err)
		return
	}

	for {
		fmt.Printf("Mode:       %v\n", ctrl.CurrentMode())
		fmt.Printf("Has IPv4:   %v\n", ctrl.Verify(ctx))

		networks, err := ctrl.Scan(ctx)
		if err != nil {
			fmt.Printf("scan failed: %v\n", err)
		}
		for _, network := range networks {
			fmt.Printf("  %-32s signal=%-3d %s\n", network.SSID, network.Signal, network.Security)
		}
		fmt.Println()

		time.Sleep(5 * time.Second)
	}
}
