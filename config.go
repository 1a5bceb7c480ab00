/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/fadetoe/internal/transport"
)

const (
	storeFile     = "file"
	storeMemory   = "memory"
	storeRedis    = "redis"
	storePostgres = "postgres"

	rejoinAsk    = "ask"
	rejoinAlways = "always"
	rejoinNever  = "never"
)

type Config struct {
	bind             string
	configFile       string
	connectTimeout   time.Duration
	handshakeTimeout time.Duration
	port             int
	prefix           string
	profile          bool
	publicURL        string
	reconnectTimeout time.Duration
	rejoin           string
	session          string
	spectate         bool
	spectateOnFull   bool
	stateDir         string
	store            string
	storeDSN         string
	tlsCert          string
	tlsKey           string
	verbose          bool
	version          bool

	relays []transport.Relay
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.handshakeTimeout <= 0 || c.reconnectTimeout <= 0 || c.connectTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}

	switch c.store {
	case storeFile:
		if c.stateDir == "" {
			return errors.New("--state-dir is required for the file store")
		}
	case storeMemory:
	case storeRedis, storePostgres:
		if c.storeDSN == "" {
			return fmt.Errorf("--store-dsn is required for the %s store", c.store)
		}
	default:
		return fmt.Errorf("unknown store %q (must be one of file, memory, redis, postgres)", c.store)
	}

	switch c.rejoin {
	case rejoinAsk, rejoinAlways, rejoinNever:
	default:
		return fmt.Errorf("invalid --rejoin %q (must be one of ask, always, never)", c.rejoin)
	}

	if c.publicURL != "" {
		u, err := url.Parse(c.publicURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid --public-url %q", c.publicURL)
		}
	}

	for _, r := range c.relays {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// loadConfigFile applies values from --config to every flag not set on the
// command line or in the environment, and reads the relay list.
func (c *Config) loadConfigFile(v *viper.Viper, fs *pflag.FlagSet) error {
	if c.configFile == "" {
		return nil
	}

	v.SetConfigFile(c.configFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
			errs = append(errs, fmt.Errorf("config %s: %w", f.Name, err))
		}
	})
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if err := v.UnmarshalKey("relays", &c.relays); err != nil {
		return fmt.Errorf("reading relays: %w", err)
	}

	return nil
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("FADETOE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "fadetoe",
		Short:         "Disappearing tic-tac-toe over a direct peer link.",
		Long:          "Hosts a match of disappearing tic-tac-toe and prints a link for the opponent.\nEach side keeps at most three pieces; the oldest vanishes when a fourth is placed.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.loadConfigFile(v, cmd.Root().PersistentFlags()); err != nil {
				return err
			}
			return cfg.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, "")
		},
	}

	join := &cobra.Command{
		Use:   "join URL",
		Short: "Join a match from the link its host shared.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, args[0])
		},
	}
	cmd.AddCommand(join)

	fs := cmd.PersistentFlags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: FADETOE_BIND)")
	fs.StringVarP(&cfg.configFile, "config", "c", "", "config file providing defaults and relays (env: FADETOE_CONFIG)")
	fs.DurationVar(&cfg.connectTimeout, "connect-timeout", 10*time.Second, "time allowed to reach a peer (env: FADETOE_CONNECT_TIMEOUT)")
	fs.DurationVar(&cfg.handshakeTimeout, "handshake-timeout", 5*time.Second, "time allowed for a peer to identify (env: FADETOE_HANDSHAKE_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: FADETOE_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: FADETOE_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: FADETOE_PROFILE)")
	fs.StringVar(&cfg.publicURL, "public-url", "", "base URL to share with the opponent (env: FADETOE_PUBLIC_URL)")
	fs.DurationVar(&cfg.reconnectTimeout, "reconnect-timeout", 60*time.Second, "time an interrupted match stays open for rejoin (env: FADETOE_RECONNECT_TIMEOUT)")
	fs.StringVar(&cfg.rejoin, "rejoin", rejoinAsk, "resume an interrupted match: ask, always or never (env: FADETOE_REJOIN)")
	fs.StringVarP(&cfg.session, "session", "s", "", "session id used to rejoin after an interruption (env: FADETOE_SESSION)")
	fs.BoolVar(&cfg.spectate, "spectate", false, "join as a spectator (env: FADETOE_SPECTATE)")
	fs.BoolVar(&cfg.spectateOnFull, "spectate-on-full", true, "watch instead when a match already has two players (env: FADETOE_SPECTATE_ON_FULL)")
	fs.StringVar(&cfg.stateDir, "state-dir", defaultStateDir(), "directory for the file store (env: FADETOE_STATE_DIR)")
	fs.StringVar(&cfg.store, "store", storeFile, "where interrupted sessions are kept: file, memory, redis or postgres (env: FADETOE_STORE)")
	fs.StringVar(&cfg.storeDSN, "store-dsn", "", "redis URL or postgres DSN for the session store (env: FADETOE_STORE_DSN)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: FADETOE_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: FADETOE_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: FADETOE_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: FADETOE_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("fadetoe v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
