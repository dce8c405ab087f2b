// Package config assembles the gateway's runtime configuration from
// environment variables, following this codebase's trim/fallback/default
// loader pattern (cmd/gateway's loadConfig, services/crypto-stream's
// getenv/getenvInt/getenvDuration helpers).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the gateway's full runtime configuration.
type Config struct {
	Env      string
	LogLevel string

	HTTPAddr string // e.g. ":8080"

	WriterAddr     string // host:port of the external hive-writer
	WriterRecvTimeout time.Duration
	ForwarderIdleSleep time.Duration
	ForwarderBusyThreshold int // sent-count below this triggers the idle sleep

	QueueDBPath string
	AuthDBPath  string

	PublishersSeedPath string

	RunAsUser string // empty => stay as current user, warn only
}

// Load reads Config from the environment, applying the defaults documented
// in SPEC_FULL.md §6.
func Load() Config {
	port := getenv("PODPING_PORT", "8080")
	return Config{
		Env:      getenv("PODPING_ENV", "local"),
		LogLevel: getenv("PODPING_LOG_LEVEL", "info"),

		HTTPAddr: ":" + port,

		WriterAddr:             getenv("PODPING_WRITER_ADDR", "127.0.0.1:9999"),
		WriterRecvTimeout:      getenvDuration("PODPING_WRITER_RECV_TIMEOUT", 10*time.Millisecond),
		ForwarderIdleSleep:     getenvDuration("PODPING_FORWARDER_IDLE_SLEEP", 500*time.Millisecond),
		ForwarderBusyThreshold: getenvInt("PODPING_FORWARDER_BUSY_THRESHOLD", 5),

		QueueDBPath: getenv("PODPING_QUEUE_DB", "/data/queue.db"),
		AuthDBPath:  getenv("PODPING_AUTH_DB", "/data/auth.db"),

		PublishersSeedPath: strings.TrimSpace(os.Getenv("PODPING_PUBLISHERS_SEED")),

		RunAsUser: strings.TrimSpace(os.Getenv("PODPING_RUNAS_USER")),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
