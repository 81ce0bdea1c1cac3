package am

import (
	"strings"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", DefaultDatabasePath)

	// Repair session defaults
	v.SetDefault("repair.scoring", ScoringVOI)
	v.SetDefault("repair.oracle", OracleGroundTruth)
	v.SetDefault("repair.max_interactions", 0)
	v.SetDefault("repair.batch_size", DefaultBatchSize)
	v.SetDefault("repair.epsilon", DefaultEpsilon)

	v.SetDefault("rules.path", "rules.toml")
	v.SetDefault("log.json", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Postgres DSN carries credentials
	v.BindEnv("database.dsn", "MEND_DATABASE_DSN")

	// Database path
	v.BindEnv("database.path", "MEND_DATABASE_PATH")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}

// DatabaseTarget returns the path or DSN handed to the configured driver
func (c *Config) DatabaseTarget() string {
	if c.Database.Driver == "pgx" {
		return c.Database.DSN
	}
	return c.GetDatabasePath()
}

// CleanTableName returns the clean reference table for the configured source.
// Without an explicit clean_table, "noise" in the source name becomes "clean"
// and "NOISE" becomes "CLEAN" (hospital_noise -> hospital_clean); other names
// get a "_clean" suffix.
func (c *Config) CleanTableName() string {
	if c.Source.CleanTable != "" {
		return c.Source.CleanTable
	}
	return DeriveCleanTable(c.Source.Table)
}

var cleanNames = strings.NewReplacer("NOISE", "CLEAN", "noise", "clean")

// DeriveCleanTable maps a dirty table name to its clean counterpart.
func DeriveCleanTable(table string) string {
	if clean := cleanNames.Replace(table); clean != table {
		return clean
	}
	return table + "_clean"
}

// GetBatchSize returns the insert batch size, falling back to the default
func (c *Config) GetBatchSize() int {
	if c.Repair.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.Repair.BatchSize
}

// GetEpsilon returns the strict inequality margin, falling back to the default
func (c *Config) GetEpsilon() float64 {
	if c.Repair.Epsilon <= 0 {
		return DefaultEpsilon
	}
	return c.Repair.Epsilon
}
