package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/dtiendzai123/newheadlockengine/internal/aimlock"
	"github.com/dtiendzai123/newheadlockengine/internal/controller"
	"github.com/dtiendzai123/newheadlockengine/internal/detector"
	"github.com/dtiendzai123/newheadlockengine/internal/zone"
)

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// ProfileDBConfig holds profile store settings
type ProfileDBConfig struct {
	Driver   string `json:"driver" mapstructure:"driver"` // sqlite or postgres
	Path     string `json:"path" mapstructure:"path"`     // sqlite file path
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./headlocklogs")

	viper.SetDefault("detection.scanRadius", 100.0)
	viper.SetDefault("detection.scanFOV", 90.0)
	viper.SetDefault("detection.detectionThreshold", 0.7)
	viper.SetDefault("detection.minTargetSize", 0.5)
	viper.SetDefault("detection.maxTargetSize", 3.0)
	viper.SetDefault("detection.priorityTargets", []string{"enemy", "player"})
	viper.SetDefault("detection.ignoredTargets", []string{"teammate", "neutral"})
	viper.SetDefault("detection.scanCooldown", 100)
	viper.SetDefault("detection.headOffset", "0,1.7,0")

	viper.SetDefault("aimlock.lockStrength", 0.8)
	viper.SetDefault("aimlock.smoothing", 0.15)
	viper.SetDefault("aimlock.maxLockDistance", 150.0)
	viper.SetDefault("aimlock.lockDuration", 3000)
	viper.SetDefault("aimlock.enablePrediction", true)
	viper.SetDefault("aimlock.predictionMultiplier", 1.0)
	viper.SetDefault("aimlock.aimBone", "head")
	viper.SetDefault("aimlock.humanization.enabled", true)
	viper.SetDefault("aimlock.humanization.jitter", 0.5)
	viper.SetDefault("aimlock.humanization.delay", 50)
	viper.SetDefault("aimlock.humanization.variation", 0.3)

	viper.SetDefault("controller.autoLock", true)
	viper.SetDefault("controller.updateInterval", 16)
	viper.SetDefault("controller.triggerBot", false)

	viper.SetDefault("zone.polygon", "")

	viper.SetDefault("feed.url", "ws://localhost:5001/feed")
	viper.SetDefault("feed.secret", "")

	viper.SetDefault("sink.url", "")
	viper.SetDefault("sink.secret", "")

	viper.SetDefault("profileDB.driver", "sqlite")
	viper.SetDefault("profileDB.path", "./headlock_profiles.db")
	viper.SetDefault("profileDB.host", "localhost")
	viper.SetDefault("profileDB.port", "5432")
	viper.SetDefault("profileDB.username", "postgres")
	viper.SetDefault("profileDB.password", "postgres")
	viper.SetDefault("profileDB.database", "headlock")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "headlock")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "headlock-metrics")

	viper.SetConfigName("headlock.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// DetectorConfig builds the detector configuration from loaded values.
// Intervals are configured in milliseconds.
func DetectorConfig() (detector.Config, error) {
	headOffset, err := zone.ParseVector(viper.GetString("detection.headOffset"))
	if err != nil {
		return detector.Config{}, fmt.Errorf("detection.headOffset: %w", err)
	}
	cfg := detector.Config{
		ScanRadius:         viper.GetFloat64("detection.scanRadius"),
		ScanFOV:            viper.GetFloat64("detection.scanFOV"),
		DetectionThreshold: viper.GetFloat64("detection.detectionThreshold"),
		MinTargetSize:      viper.GetFloat64("detection.minTargetSize"),
		MaxTargetSize:      viper.GetFloat64("detection.maxTargetSize"),
		PriorityTargets:    viper.GetStringSlice("detection.priorityTargets"),
		IgnoredTargets:     viper.GetStringSlice("detection.ignoredTargets"),
		ScanCooldown:       time.Duration(viper.GetInt("detection.scanCooldown")) * time.Millisecond,
		HeadOffset:         headOffset,
	}
	return cfg, cfg.Validate()
}

// AimLockConfig builds the aim lock configuration from loaded values.
func AimLockConfig() (aimlock.Config, error) {
	cfg := aimlock.Config{
		LockStrength:         viper.GetFloat64("aimlock.lockStrength"),
		Smoothing:            viper.GetFloat64("aimlock.smoothing"),
		MaxLockDistance:      viper.GetFloat64("aimlock.maxLockDistance"),
		LockDuration:         time.Duration(viper.GetInt("aimlock.lockDuration")) * time.Millisecond,
		EnablePrediction:     viper.GetBool("aimlock.enablePrediction"),
		PredictionMultiplier: viper.GetFloat64("aimlock.predictionMultiplier"),
		AimBone:              viper.GetString("aimlock.aimBone"),
		Humanization: aimlock.HumanizationConfig{
			Enabled:   viper.GetBool("aimlock.humanization.enabled"),
			Jitter:    viper.GetFloat64("aimlock.humanization.jitter"),
			Delay:     viper.GetFloat64("aimlock.humanization.delay"),
			Variation: viper.GetFloat64("aimlock.humanization.variation"),
		},
	}
	return cfg, cfg.Validate()
}

// ControllerConfig builds the controller configuration from loaded values.
func ControllerConfig() (controller.Config, error) {
	cfg := controller.Config{
		AutoLock:       viper.GetBool("controller.autoLock"),
		UpdateInterval: time.Duration(viper.GetInt("controller.updateInterval")) * time.Millisecond,
		TriggerBot:     viper.GetBool("controller.triggerBot"),
	}
	return cfg, cfg.Validate()
}

// Zone builds the engagement zone from loaded values. An empty polygon
// yields an inactive zone.
func Zone() (*zone.Zone, error) {
	return zone.FromWKT(viper.GetString("zone.polygon"))
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	timeout, err := time.ParseDuration(viper.GetString("otel.batchTimeout"))
	if err != nil {
		timeout = 5 * time.Second
	}
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: timeout,
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// ProfileDB returns the profile store settings.
func ProfileDB() ProfileDBConfig {
	return ProfileDBConfig{
		Driver:   viper.GetString("profileDB.driver"),
		Path:     viper.GetString("profileDB.path"),
		Host:     viper.GetString("profileDB.host"),
		Port:     viper.GetString("profileDB.port"),
		Username: viper.GetString("profileDB.username"),
		Password: viper.GetString("profileDB.password"),
		Database: viper.GetString("profileDB.database"),
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
