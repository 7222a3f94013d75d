package main

import (
	"fmt"
	"os"
	"time"

	"github.com/KevinKickass/OpenPoolCore/internal/controller"
	"github.com/KevinKickass/OpenPoolCore/internal/procon"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagURL         string
	flagUser        string
	flagPasswordEnv string
	flagTimeout     time.Duration
	flagForbidOff   bool
	flagVerbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "proconctl",
	Short: "proconctl - ProCon.IP pool controller command line",
	Long: `proconctl talks directly to a ProCon.IP pool controller. It reads the
status feed, switches relays, starts manual dosage and sets DMX channels.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagURL, "url", envOr("PROCON_URL", "http://192.168.2.3"), "controller base URL")
	pf.StringVar(&flagUser, "user", envOr("PROCON_USER", "admin"), "basic auth username")
	pf.StringVar(&flagPasswordEnv, "password-env", "PROCON_PASSWORD", "environment variable holding the password")
	pf.DurationVar(&flagTimeout, "timeout", 10*time.Second, "request timeout")
	pf.BoolVar(&flagForbidOff, "forbid-dosage-relay-off", false, "refuse to switch dosage relays off")
	pf.BoolVar(&flagVerbose, "verbose", false, "log requests to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newController builds a controller from the persistent flags.
func newController() (*controller.Controller, error) {
	client, err := controller.NewClient(flagURL, flagUser, os.Getenv(flagPasswordEnv), flagTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid controller url: %w", err)
	}

	logger := zap.NewNop()
	if flagVerbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}

	engine := procon.Engine{ForbidDosageRelayOff: flagForbidOff}
	return controller.New("cli", client, engine, logger), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
