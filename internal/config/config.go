package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hardstakes/arena/internal/domain/contest"
)

// Config holds arena node configuration.
type Config struct {
	NodeID            string
	RaftAddr          string
	HTTPAddr          string
	DataDir           string
	Bootstrap         bool
	ApplyTimeout      time.Duration
	JoinEndpoint      string
	JoinRetries       int
	JoinRetryDelay    time.Duration
	StartupWaitLeader time.Duration

	// DatabaseURL enables the Postgres receipt store when set.
	DatabaseURL string
	LogLevel    string

	OracleEnabled  bool
	OracleInterval time.Duration
	OracleBatch    int

	// Genesis identities, hex. Empty falls back to the local keystore.
	ResultsAuthority string
	Treasury         string
	ContestFile      string

	// WSAllowedOrigins lists browser origins accepted on the play channel.
	// Empty means same-host only; "*" accepts any origin.
	WSAllowedOrigins []string
}

// Load reads configuration from ARENA_* environment variables.
func Load() (*Config, error) {
	hostname, _ := os.Hostname()
	nodeID := getenv("ARENA_NODE_ID", strings.TrimSpace(hostname))
	if nodeID == "" {
		nodeID = "node-1"
	}

	cfg := &Config{
		NodeID:            nodeID,
		RaftAddr:          getenv("ARENA_RAFT_ADDR", "127.0.0.1:17000"),
		HTTPAddr:          getenv("ARENA_HTTP_ADDR", "0.0.0.0:18080"),
		DataDir:           getenv("ARENA_DATA_DIR", filepath.Join("tmp", "arenanode", nodeID)),
		Bootstrap:         parseBool(getenv("ARENA_BOOTSTRAP", "false"), false),
		ApplyTimeout:      parseDuration(getenv("ARENA_APPLY_TIMEOUT", "5s"), 5*time.Second),
		JoinEndpoint:      getenv("ARENA_JOIN_ENDPOINT", ""),
		JoinRetries:       parseInt(getenv("ARENA_JOIN_RETRIES", "30"), 30),
		JoinRetryDelay:    parseDuration(getenv("ARENA_JOIN_RETRY_DELAY", "1s"), time.Second),
		StartupWaitLeader: parseDuration(getenv("ARENA_STARTUP_WAIT_LEADER", "4s"), 4*time.Second),
		DatabaseURL:       getenv("DATABASE_URL", ""),
		LogLevel:          getenv("ARENA_LOG_LEVEL", "info"),
		OracleEnabled:     parseBool(getenv("ARENA_ORACLE_ENABLED", "true"), true),
		OracleInterval:    parseDuration(getenv("ARENA_ORACLE_INTERVAL", "2s"), 2*time.Second),
		OracleBatch:       parseInt(getenv("ARENA_ORACLE_BATCH", "50"), 50),
		ResultsAuthority:  getenv("ARENA_RESULTS_AUTHORITY", ""),
		Treasury:          getenv("ARENA_TREASURY", ""),
		ContestFile:       getenv("ARENA_CONTEST_FILE", ""),
		WSAllowedOrigins:  splitCSV(getenv("ARENA_WS_ALLOWED_ORIGINS", "")),
	}
	if cfg.JoinRetries < 1 {
		cfg.JoinRetries = 1
	}
	if cfg.OracleBatch < 1 {
		cfg.OracleBatch = 50
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	return cfg, nil
}

// ContestParams returns the contest tuning, from ContestFile if set.
func (c *Config) ContestParams() (contest.Params, error) {
	if c.ContestFile == "" {
		return contest.DefaultParams(), nil
	}
	return LoadContestParams(c.ContestFile)
}

// LoadContestParams reads a YAML tuning file. Missing keys keep defaults.
func LoadContestParams(path string) (contest.Params, error) {
	params := contest.DefaultParams()
	raw, err := os.ReadFile(path)
	if err != nil {
		return params, err
	}
	if err := yaml.Unmarshal(raw, &params); err != nil {
		return params, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if err := params.Validate(); err != nil {
		return params, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return params, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenv(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		return def
	}
	return d
}

func parseBool(val string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return def
	}
	return b
}

func parseInt(val string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return def
	}
	return v
}
