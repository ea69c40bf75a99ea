package util

import (
	"sync"

	"github.com/DataDog/datadog-go/statsd"
	log "github.com/sirupsen/logrus"
)

var (
	statsdOnce   sync.Once
	statsdClient *statsd.Client
)

// GetProvider returns the shared statsd client, or nil when the local
// statsd daemon could not be reached. Metrics are advisory: a missing
// daemon must never take the provisioner down.
func GetProvider() *statsd.Client {
	statsdOnce.Do(func() {
		client, err := statsd.New("127.0.0.1:8125")
		if err != nil {
			log.Warnf("statsd unavailable, metrics disabled: %v", err)
			return
		}
		statsdClient = client
	})
	return statsdClient
}

func Gauge(name string, value float64, tags []string) {
	if client := GetProvider(); client != nil {
		client.Gauge(name, value, tags, 1)
	}
}

func Incr(name string, tags []string) {
	if client := GetProvider(); client != nil {
		client.Incr(name, tags, 1)
	}
}
