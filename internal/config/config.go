package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Interface string
	Addr      string
	DBPath    string
	MockMode  bool
	Debug     bool

	ScanEvery         time.Duration // 0 disables periodic sweeps
	PoisonInterval    time.Duration
	MaxPoisonDuration time.Duration // 0 means unbounded
	LivenessInterval  time.Duration
	LivenessTimeout   time.Duration

	DeepProbe bool
	ProbePort int
}

// Load parses command line flags and environment variables to populate Config.
// Flags take precedence over environment variables.
func Load() *Config {
	cfg := &Config{}

	// Defaults and Environment Variables
	cfg.Interface = getEnv("LANKILL_INTERFACE", "eth0")
	cfg.Addr = getEnv("LANKILL_ADDR", ":8080")
	cfg.DBPath = getEnv("LANKILL_DB", getDefaultDBPath())
	cfg.MockMode = getEnvBool("LANKILL_MOCK", false)
	cfg.Debug = getEnvBool("LANKILL_DEBUG", false)
	cfg.ScanEvery = getEnvDuration("LANKILL_SCAN_EVERY", 5*time.Minute)
	cfg.PoisonInterval = getEnvDuration("LANKILL_POISON_INTERVAL", time.Second)
	cfg.MaxPoisonDuration = getEnvDuration("LANKILL_MAX_POISON", 0)
	cfg.LivenessInterval = getEnvDuration("LANKILL_LIVENESS_INTERVAL", 30*time.Second)
	cfg.LivenessTimeout = getEnvDuration("LANKILL_LIVENESS_TIMEOUT", 60*time.Second)
	cfg.DeepProbe = getEnvBool("LANKILL_DEEP_PROBE", false)
	cfg.ProbePort = getEnvInt("LANKILL_PROBE_PORT", 80)

	// Command Line Flags (Override Env)
	flag.StringVar(&cfg.Interface, "i", cfg.Interface, "Network interface to scan and poison on")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite audit database")
	flag.BoolVar(&cfg.MockMode, "mock", cfg.MockMode, "Run in mock mode (simulation, no capture privileges needed)")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")
	flag.DurationVar(&cfg.ScanEvery, "scan-every", cfg.ScanEvery, "Automatic sweep cadence (0 disables)")
	flag.DurationVar(&cfg.PoisonInterval, "poison-interval", cfg.PoisonInterval, "ARP poison re-assertion interval")
	flag.DurationVar(&cfg.MaxPoisonDuration, "max-poison", cfg.MaxPoisonDuration, "Maximum time a target stays poisoned (0 = unbounded)")
	flag.DurationVar(&cfg.LivenessInterval, "liveness-interval", cfg.LivenessInterval, "Staleness check cadence")
	flag.DurationVar(&cfg.LivenessTimeout, "liveness-timeout", cfg.LivenessTimeout, "Silence before a device reads inactive")
	flag.BoolVar(&cfg.DeepProbe, "deep-probe", cfg.DeepProbe, "Follow sweeps with ICMP/TCP probes to silent hosts")
	flag.IntVar(&cfg.ProbePort, "probe-port", cfg.ProbePort, "TCP SYN probe target port")

	flag.Parse()

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getDefaultDBPath returns the default database path in user's home directory.
// Creates the directory if it doesn't exist.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Warning: Could not get user home directory, using current dir: %v", err)
		return "lankill.db"
	}

	dir := filepath.Join(home, ".lankill")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("Warning: Could not create .lankill directory, using current dir: %v", err)
		return "lankill.db"
	}

	return filepath.Join(dir, "lankill.db")
}
