package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// TickConfig holds tick scheduler settings.
type TickConfig struct {
	IntervalMs int64         `json:"intervalMs" mapstructure:"intervalMs"`
	Poll       time.Duration `json:"poll" mapstructure:"poll"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("server.listen", ":8080")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "startide")

	viper.SetDefault("tick.intervalMs", 30000)
	viper.SetDefault("tick.poll", "1s")

	viper.SetDefault("universe.file", "universe.yaml")

	viper.SetDefault("economy.reversionRate", 0.1)
	viper.SetDefault("economy.noiseAmplitude", 3)
	viper.SetDefault("economy.productionRate", 5)
	viper.SetDefault("economy.consumptionRate", 5)

	viper.SetDefault("pricing.fuelPerUnit", 3)
	viper.SetDefault("pricing.hullPerPoint", 8)

	viper.SetDefault("encounter.chancePerDanger", 0.05)
	viper.SetDefault("worldEvents.spawnChance", 0.02)
	viper.SetDefault("worldEvents.phaseDurationTicks", 10)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "startide-metrics")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "startide-server")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetConfigName("startide.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetTickConfig returns tick scheduler settings.
func GetTickConfig() TickConfig {
	return TickConfig{
		IntervalMs: viper.GetInt64("tick.intervalMs"),
		Poll:       viper.GetDuration("tick.poll"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat64 returns a float64 config value.
func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}
