/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/lightcycles/games/tron"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	gatherTimeout  time.Duration
	iceServers     []string
	loopback       bool
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.gatherTimeout <= 0 {
		return fmt.Errorf("invalid gather timeout (must be positive): %s", c.gatherTimeout)
	}
	for _, server := range c.iceServers {
		scheme, _, found := strings.Cut(server, ":")
		if !found {
			return fmt.Errorf("invalid ice server (missing scheme): %q", server)
		}
		switch scheme {
		case "stun", "stuns", "turn", "turns":
		default:
			return fmt.Errorf("invalid ice server (scheme must be stun, stuns, turn or turns): %q", server)
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

func (c *Config) dialer() tron.RTCDialer {
	return tron.RTCDialer{
		ICEServers:      c.iceServers,
		IncludeLoopback: c.loopback,
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LIGHTCYCLES")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "lightcycles",
		Short:         "A peer-to-peer light cycle duel, negotiated by copy and paste.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: LIGHTCYCLES_BIND)")
	fs.DurationVar(&cfg.gatherTimeout, "gather-timeout", 10*time.Second, "time allowed for collecting network candidates (env: LIGHTCYCLES_GATHER_TIMEOUT)")
	fs.StringSliceVar(&cfg.iceServers, "ice-server", tron.DefaultICEServers, "stun/turn server url, repeatable (env: LIGHTCYCLES_ICE_SERVER)")
	fs.BoolVar(&cfg.loopback, "loopback", false, "offer loopback candidates, for duels on a single machine (env: LIGHTCYCLES_LOOPBACK)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: LIGHTCYCLES_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: LIGHTCYCLES_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: LIGHTCYCLES_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle duel sessions are ended (env: LIGHTCYCLES_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: LIGHTCYCLES_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: LIGHTCYCLES_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: LIGHTCYCLES_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: LIGHTCYCLES_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("lightcycles v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
