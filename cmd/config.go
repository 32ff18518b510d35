package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jalal-stack/cyberaudit/internal/certificate"
	"github.com/jalal-stack/cyberaudit/internal/orchestrator"
	"github.com/jalal-stack/cyberaudit/internal/shared/constants"
)

// durationSetting resolves a time budget: an explicitly set flag wins, then
// the config/env key, then the compiled-in fallback.
func durationSetting(flags *pflag.FlagSet, name, key string, fallback time.Duration) time.Duration {
	if flags != nil && name != "" {
		if flag := flags.Lookup(name); flag != nil && flag.Changed {
			if v, err := flags.GetDuration(name); err == nil && v > 0 {
				return v
			}
		}
	}
	if viper.IsSet(key) {
		if v := viper.GetDuration(key); v > 0 {
			return v
		}
	}
	return fallback
}

// intSetting is durationSetting for integer budgets.
func intSetting(flags *pflag.FlagSet, name, key string, fallback int) int {
	if flags != nil && name != "" {
		if flag := flags.Lookup(name); flag != nil && flag.Changed {
			if v, err := flags.GetInt(name); err == nil && v > 0 {
				return v
			}
		}
	}
	if viper.IsSet(key) {
		if v := viper.GetInt(key); v > 0 {
			return v
		}
	}
	return fallback
}

// engineSettings reads the probe engine budgets from configuration. Commands
// with their own budget flags layer them on top via durationSetting.
func engineSettings(flags *pflag.FlagSet) orchestrator.Config {
	return orchestrator.Config{
		Concurrency:  intSetting(flags, "concurrency", "concurrency", constants.DefaultConcurrency),
		DispatchRate: intSetting(nil, "", "rate_limit", constants.DefaultDispatchRate),
		ProbeTimeout: durationSetting(flags, "timeout", "probe_timeout", constants.DefaultProbeTimeout),
		JobDeadline:  durationSetting(flags, "deadline", "job_deadline", constants.DefaultJobDeadline),
	}
}

func verifyBaseURL() string {
	if v := viper.GetString("verify_base_url"); v != "" {
		return v
	}
	return certificate.DefaultVerifyBaseURL
}

var processSecret struct {
	once  sync.Once
	value string
}

// signingSecret returns the configured certificate signing secret. When none
// is configured a process-random secret is generated once, so certificates
// can still be issued but their tokens stop verifying after a restart.
func signingSecret() string {
	if s := viper.GetString("signing_secret"); s != "" {
		return s
	}
	processSecret.once.Do(func() {
		buf := make([]byte, 32)
		_, _ = rand.Read(buf)
		processSecret.value = hex.EncodeToString(buf)
		if logger != nil {
			logger.Warn("no signing secret configured, certificate tokens are valid for this process only",
				zap.String("hint", "set signing_secret in the config file or CYBERAUDIT_SIGNING_SECRET"))
		}
	})
	return processSecret.value
}

func secretStatus() string {
	if viper.GetString("signing_secret") != "" {
		return "(configured)"
	}
	return "(process-random)"
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := engineSettings(nil)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "results_dir\t%s\n", resultsDir)
		fmt.Fprintf(w, "verbose\t%t\n", viper.GetBool("verbose"))
		fmt.Fprintf(w, "signing_secret\t%s\n", secretStatus())
		fmt.Fprintf(w, "verify_base_url\t%s\n", verifyBaseURL())
		fmt.Fprintf(w, "probe_timeout\t%s\n", engine.ProbeTimeout)
		fmt.Fprintf(w, "job_deadline\t%s\n", engine.JobDeadline)
		fmt.Fprintf(w, "concurrency\t%d\n", engine.Concurrency)
		fmt.Fprintf(w, "rate_limit\t%d\n", engine.DispatchRate)
		return w.Flush()
	},
}
