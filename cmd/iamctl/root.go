package cmd

import (
	"fmt"
	"os"

	"github.com/castellan/iamcore/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfg *config.Config

// Version information (set by main package via SetVersion)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "iamctl",
	Short: "iamcore policy administration server and CLI",
	Long: `iamctl runs the iamcore policy administration service (serve) and
manages its database schema migrations (db).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		// Flag and config-file values bound to Viper override the environment.
		if v := viper.GetString("database_url"); v != "" {
			cfg.DatabaseURL = v
		}
		if v := viper.GetString("redis_addr"); v != "" {
			cfg.RedisAddr = v
		}
		if viper.GetBool("debug") {
			cfg.Debug = true
		}
		if v := viper.GetInt("max_db_connections"); v > 0 {
			cfg.MaxDBConnections = v
		}
		return nil
	},
}

func init() {
	// Initialize Viper before binding flags
	cobra.OnInitialize(initConfig)

	// Optional --config flag to override default search paths
	rootCmd.PersistentFlags().String("config", "", "Config file path (YAML/JSON/TOML - overrides default search)")
	viper.BindPFlag("config_file", rootCmd.PersistentFlags().Lookup("config"))

	// Core configuration flags
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (DATABASE_URL)")
	rootCmd.PersistentFlags().String("redis-addr", "", "Redis address for the role cache (REDIS_ADDR)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (DEBUG)")
	rootCmd.PersistentFlags().Int("max-db-connections", 0, "Max DB connections (MAX_DB_CONNECTIONS)")

	// Bind flags to Viper keys
	viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("db-url"))
	viper.BindPFlag("redis_addr", rootCmd.PersistentFlags().Lookup("redis-addr"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("max_db_connections", rootCmd.PersistentFlags().Lookup("max-db-connections"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig initializes Viper configuration from config files and environment
func initConfig() {
	// If --config flag provided, use that file exclusively
	if cfgFile := viper.GetString("config_file"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Auto-discover config in default locations
		viper.SetConfigName("iamcore")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")              // Current directory
		viper.AddConfigPath("$HOME/.iamcore") // User home
		viper.AddConfigPath("/etc/iamcore")   // System-wide
	}

	// Read config file (silent if not found - not required)
	_ = viper.ReadInConfig()
}

// GetConfig returns the loaded configuration
// This should be called after the root command's PersistentPreRunE has executed
func GetConfig() *config.Config {
	return cfg
}

// SetVersion sets version information from the main package
func SetVersion(v, c, d, b string) {
	version = v
	commit = c
	date = d
	builtBy = b
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("iamctl version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built: %s\n", date)
		fmt.Printf("  by: %s\n", builtBy)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
