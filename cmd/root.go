package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jalal-stack/cyberaudit/internal/shared/constants"
)

var (
	cfgFile    string
	logger     *zap.Logger
	resultsDir string
)

var rootCmd = &cobra.Command{
	Use:   "cyberaudit",
	Short: "Scan websites for security issues, score them and issue certificates",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init config
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath("$HOME")
			viper.SetConfigName(".cyberaudit")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("CYBERAUDIT")
		viper.AutomaticEnv()

		_ = viper.ReadInConfig()

		resultsDir = viper.GetString("results_dir")
		if resultsDir == "" {
			resultsDir = "./results"
		}

		// create results dir if not exists
		if err := os.MkdirAll(resultsDir, constants.DefaultDirPerm); err != nil {
			return fmt.Errorf("failed to create results directory: %s", err.Error())
		}

		// Make resultsDir absolute (for clarity in logs and summaries)
		if abs, err := filepath.Abs(resultsDir); err == nil {
			resultsDir = abs
		}

		// init logger
		var err error
		if viper.GetBool("verbose") {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// config file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cyberaudit.yaml)")

	rootCmd.PersistentFlags().String("results-dir", "./results", "directory for archived scan results")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose (development) logging")
	_ = viper.BindPFlag("results_dir", rootCmd.PersistentFlags().Lookup("results-dir"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// add subcommands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(certificateCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
