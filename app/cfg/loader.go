package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

const (
	PublishModeAuto   = "auto"
	PublishModeLocal  = "local"
	PublishModeRemote = "remote"
)

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Application configuration
	FeedsDir    string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing podcast feed definitions"`
	WorkerCount int    `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of feeds converted at the same time"`
	Serve       bool   `long:"serve" env:"SERVE" description:"Run the preview HTTP server instead of a one-shot conversion"`
	Port        string `long:"port" env:"PORT" default:"8080" description:"Preview HTTP server port"`

	// Publishing configuration
	PublishMode           string `long:"publish-mode" env:"PUBLISH_MODE" default:"auto" choice:"auto" choice:"local" choice:"remote" description:"Where converted feeds are delivered"`
	ProductionHostPattern string `long:"production-host" env:"PRODUCTION_HOST_PATTERN" default:"bluehost.com" description:"Host name substring that selects local publishing in auto mode"`
	LocalDir              string `long:"local-dir" env:"LOCAL_DIR" default:"/tmp" description:"Directory converted feeds are written to when publishing locally"`
	RemoteHost            string `long:"remote-host" env:"REMOTE_HOST" default:"www.dardan.com:22" description:"SSH host (host:port) converted feeds are copied to"`
	RemoteUser            string `long:"remote-user" env:"REMOTE_USER" default:"dardanco" description:"SSH user for remote publishing"`
	RemoteDir             string `long:"remote-dir" env:"REMOTE_DIR" default:"www/packy/npr" description:"Remote directory converted feeds are copied to"`
	SSHKey                string `long:"ssh-key" env:"SSH_KEY" default:"~/.ssh/id_rsa" description:"Private key used for remote publishing"`
	SSHKnownHosts         string `long:"ssh-known-hosts" env:"SSH_KNOWN_HOSTS" default:"~/.ssh/known_hosts" description:"known_hosts file used to verify the remote host"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"podcastify/1.0" description:"User agent string for HTTP requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load reads configuration from a .env file (if any), the environment and
// command-line flags. It returns nil, nil when help was requested.
func Load(args []string) (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		FeedsDir:              raw.FeedsDir,
		WorkerCount:           raw.WorkerCount,
		Serve:                 raw.Serve,
		Port:                  raw.Port,
		PublishMode:           raw.PublishMode,
		ProductionHostPattern: raw.ProductionHostPattern,
		LocalDir:              raw.LocalDir,
		RemoteHost:            raw.RemoteHost,
		RemoteUser:            raw.RemoteUser,
		RemoteDir:             raw.RemoteDir,
		SSHKey:                expandHome(raw.SSHKey),
		SSHKnownHosts:         expandHome(raw.SSHKnownHosts),
		UserAgent:             raw.UserAgent,
		Debug:                 raw.Debug,
		Version:               GetVersion(),
	}

	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}

	return cfg, nil
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
