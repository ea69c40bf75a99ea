package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/setup-robot/wifi-connect/pkg/eventsyncer"
	"github.com/setup-robot/wifi-connect/pkg/portal"
	"github.com/setup-robot/wifi-connect/pkg/prober"
	"github.com/setup-robot/wifi-connect/pkg/provisioner"
	"github.com/setup-robot/wifi-connect/pkg/radio"
	"github.com/setup-robot/wifi-connect/pkg/rebooter"
	"github.com/setup-robot/wifi-connect/pkg/store"
	"github.com/spf13/viper"

	log "github.com/sirupsen/logrus"
)

func main() {

	// Parse command line arguments
	flag.Parse()
	config := loadConfig()
	log.Infof("This is the config: %+v", config)

	customFormatter := new(log.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	customFormatter.FullTimestamp = true
	log.SetFormatter(customFormatter)

	if os.Geteuid() != 0 {
		fmt.Println("wifi-connect needs root privileges to manage network interfaces.")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received signal %v, shutting down", sig)
		cancel()
	}()

	radioCtrl, err := radio.NewController(ctx, config.Interface)
	if err != nil {
		log.Fatalf("radio unavailable: %v", err)
	}

	credStore, err := store.NewFileSystemStore(config.DeviceID, config.StateDir)
	if err != nil {
		log.Fatalf("can't initialize new filesystem store: %v", err)
	}

	provisionerCfg := provisioner.Config{
		HotspotSSID:    config.HotspotSSID,
		HotspotChannel: config.HotspotChannel,
		ConnectTimeout: config.ConnectTimeout,
		DeviceID:       config.DeviceID,
		ExitOnConnect:  config.ExitOnConnect,
		ShutdownDelay:  config.ShutdownDelay,
	}

	var onConnected []func(ssid string)

	if config.RebooterEnabled {
		watchdog := rebooter.New(
			config.RebooterCheckInterval,
			config.RebooterRebootInterval,
			config.RebooterStateFile)
		if err := watchdog.Start(ctx); err != nil {
			log.Fatalf("can't start rebooter watchdog: %v", err)
		}
		defer watchdog.Stop()
		onConnected = append(onConnected, func(ssid string) { watchdog.MarkConnected() })
	}

	if config.SyncEnabled {
		publisher, err := buildPublisher(config)
		if err != nil {
			log.Fatalf("can't initialize attempt publisher: %v", err)
		}
		onConnected = append(onConnected, func(ssid string) {
			announceConnected(publisher, config.DeviceID, ssid)
		})
		syncManager := eventsyncer.NewEventSyncer(config.SyncInterval, credStore, publisher)
		defer syncManager.Close()
		go syncManager.Run(ctx)
	}

	provisionerCfg.OnConnected = func(ssid string) {
		for _, fn := range onConnected {
			fn(ssid)
		}
	}

	connProber := prober.New(radioCtrl, config.CheckHost)
	prov := provisioner.New(radioCtrl, credStore, connProber, provisionerCfg)

	// The hotspot gateway address does not exist until NetworkManager
	// activates the shared profile, so the portal binds the wildcard
	// address by default. A failed bind leaves the daemon running; the
	// hotspot and stored-credential paths still work without the portal.
	portalAddr := net.JoinHostPort(config.PortalAddr, strconv.Itoa(config.PortalPort))
	portalServer := portal.New(portalAddr, prov, radioCtrl)
	go func() {
		if err := portalServer.Start(); err != nil {
			log.Errorf("portal server failed: %v", err)
		}
	}()

	log.Infof("starting provisioning for device %v on %v (hotspot %q)",
		config.DeviceID, config.Interface, config.HotspotSSID)

	if err := prov.Run(ctx); err != nil {
		log.Errorf("provisioning session ended with error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := portalServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("error shutting down portal: %v", err)
	}
	if err := radioCtrl.StopHotspot(shutdownCtx); err != nil {
		log.Warnf("error stopping hotspot: %v", err)
	}
	log.Infof("Program is exiting")
}

func buildPublisher(config Config) (store.AttemptPublisher, error) {
	if config.MySQLDSN != "" {
		return store.NewMySQLPublisher(config.MySQLDSN)
	}
	return store.NewGatewayPublisher(config.SyncEndpoint), nil
}

// announceConnected pushes a success record to the fleet backend right
// away, while the uplink is known to work. The attempt file on disk is
// still drained by the event syncer as usual.
func announceConnected(publisher store.AttemptPublisher, deviceID, ssid string) {
	now := time.Now()
	err := publisher.PublishAttempt(store.Attempt{
		SSID:       ssid,
		DeviceID:   deviceID,
		StartedAt:  now,
		FinishedAt: now,
		Outcome:    store.Succeeded,
	})
	if err != nil {
		log.Warnf("could not announce connection to fleet backend: %v", err)
		return
	}
	log.Infof("announced connection to %q for device %v", ssid, deviceID)
}

type Config struct {
	Interface              string        `mapstructure:"INTERFACE"`
	DeviceID               string        `mapstructure:"DEVICE_ID"`
	HotspotSSID            string        `mapstructure:"HOTSPOT_SSID"`
	HotspotChannel         int           `mapstructure:"HOTSPOT_CHANNEL"`
	PortalAddr             string        `mapstructure:"PORTAL_ADDR"`
	PortalPort             int           `mapstructure:"PORTAL_PORT"`
	ConnectTimeout         time.Duration `mapstructure:"CONNECT_TIMEOUT"`
	CheckHost              string        `mapstructure:"CHECK_HOST"`
	StateDir               string        `mapstructure:"STATE_DIR"`
	ExitOnConnect          bool          `mapstructure:"EXIT_ON_CONNECT"`
	ShutdownDelay          time.Duration `mapstructure:"SHUTDOWN_DELAY"`
	SyncEnabled            bool          `mapstructure:"SYNC_ENABLED"`
	SyncEndpoint           string        `mapstructure:"SYNC_ENDPOINT"`
	SyncInterval           time.Duration `mapstructure:"SYNC_INTERVAL"`
	MySQLDSN               string        `mapstructure:"MYSQL_DSN"`
	RebooterEnabled        bool          `mapstructure:"REBOOTER_ENABLED"`
	RebooterStateFile      string        `mapstructure:"REBOOTER_STATE_FILE"`
	RebooterCheckInterval  time.Duration `mapstructure:"REBOOTER_CHECK_INTERVAL"`
	RebooterRebootInterval time.Duration `mapstructure:"REBOOTER_REBOOT_INTERVAL"`
}

func loadConfig() Config {
	hostname, _ := os.Hostname()

	viper.SetDefault("INTERFACE", "wlan0")
	viper.SetDefault("DEVICE_ID", hostname)
	viper.SetDefault("HOTSPOT_SSID", "Setup-Robot-WiFi")
	viper.SetDefault("HOTSPOT_CHANNEL", 0)
	viper.SetDefault("PORTAL_ADDR", "0.0.0.0")
	viper.SetDefault("PORTAL_PORT", 5000)
	viper.SetDefault("CONNECT_TIMEOUT", 30*time.Second)
	viper.SetDefault("CHECK_HOST", "connectivitycheck.gstatic.com:80")
	viper.SetDefault("STATE_DIR", "/var/lib/wifi-connect")
	viper.SetDefault("EXIT_ON_CONNECT", true)
	viper.SetDefault("SHUTDOWN_DELAY", 5*time.Second)
	viper.SetDefault("SYNC_ENABLED", false)
	viper.SetDefault("SYNC_ENDPOINT", "")
	viper.SetDefault("SYNC_INTERVAL", 1*time.Minute)
	viper.SetDefault("MYSQL_DSN", "")
	viper.SetDefault("REBOOTER_ENABLED", false)
	viper.SetDefault("REBOOTER_STATE_FILE", filepath.Join("/var/lib/wifi-connect", "last-connected"))
	viper.SetDefault("REBOOTER_CHECK_INTERVAL", 1*time.Hour)
	viper.SetDefault("REBOOTER_REBOOT_INTERVAL", 24*time.Hour)

	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/wifi-connect/")
	viper.SetConfigType("env")
	viper.SetEnvPrefix("wificonnect")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Warnf("no config file found, running with defaults: %v", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	return config
}
