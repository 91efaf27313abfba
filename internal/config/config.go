package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8000"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"/app/data/ftpgate.db"`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	RedisAddr    string `envconfig:"REDIS_ADDR" default:""`
	RedisKey     string `envconfig:"REDIS_KEY" default:"ftpgate:tree"`

	// Connection profile. Ignored when ProfilesFile is set, except that
	// OpTimeout fills in profiles without a timeout of their own.
	ProfilesFile string        `envconfig:"PROFILES_FILE" default:""`
	FTPHost      string        `envconfig:"FTP_HOST" default:"localhost"`
	FTPPort      int           `envconfig:"FTP_PORT" default:"21"`
	FTPUser      string        `envconfig:"FTP_USER" default:"anonymous"`
	FTPPassword  string        `envconfig:"FTP_PASSWORD" default:"anonymous"`
	FTPTLS       bool          `envconfig:"FTP_TLS" default:"false"`
	OpTimeout    time.Duration `envconfig:"OP_TIMEOUT" default:"30s"`
	// Dials per minute to the FTP endpoint, across all connection keys.
	ConnectRateLimit int `envconfig:"CONNECT_RATE_LIMIT" default:"30"`

	// Tree refresh settings
	RefreshInterval   time.Duration `envconfig:"REFRESH_INTERVAL" default:"60s"`
	RefreshTimeout    time.Duration `envconfig:"REFRESH_TIMEOUT" default:"5m"`
	RefreshHistoryMax int           `envconfig:"REFRESH_HISTORY_MAX" default:"500"`
	TreeMaxDepth      int           `envconfig:"TREE_MAX_DEPTH" default:"64"`
	HealthInterval    time.Duration `envconfig:"HEALTH_INTERVAL" default:"30s"`
}

var Cfg Settings

// Process reads FTPGATE_* variables into a fresh Settings value.
func Process() (Settings, error) {
	var s Settings
	if err := envconfig.Process("FTPGATE", &s); err != nil {
		return Settings{}, fmt.Errorf("process env: %w", err)
	}
	if s.RefreshInterval <= 0 {
		return Settings{}, fmt.Errorf("refresh interval must be positive, got %s", s.RefreshInterval)
	}
	return s, nil
}

func Load() {
	s, err := Process()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	Cfg = s
}

// Profiles returns the configured connection profiles. Only the first one
// is used for connecting; the rest are accepted so a shared profiles file
// can list standby hosts.
func (s Settings) Profiles() ([]Profile, error) {
	if s.ProfilesFile != "" {
		profiles, err := LoadProfiles(s.ProfilesFile)
		if err != nil {
			return nil, err
		}
		for i := range profiles {
			if profiles[i].Timeout <= 0 {
				profiles[i].Timeout = s.OpTimeout
			}
		}
		return profiles, nil
	}
	return []Profile{{
		Name:     "default",
		Host:     s.FTPHost,
		Port:     s.FTPPort,
		User:     s.FTPUser,
		Password: s.FTPPassword,
		TLS:      s.FTPTLS,
		Timeout:  s.OpTimeout,
	}}, nil
}
