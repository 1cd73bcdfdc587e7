/**
 * @description
 * This package handles the configuration management for the subscription-service.
 * It uses the Viper library to read configuration from environment variables
 * (with an optional .env file), and validates the platform-specific RevenueCat
 * API key before the service attempts to talk to the vendor.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Build profiles distinguish the channel the app binary was built for.
const (
	ProfileDevelopment = "development"
	ProfilePreview     = "preview"
	ProfileProduction  = "production"
)

// Platforms supported by the mobile app.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// ErrInvalidAPIKey is returned when the configured vendor API key fails
// validation in the production profile.
var ErrInvalidAPIKey = errors.New("invalid revenuecat api key configuration")

// Config holds all the configuration variables for the subscription-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	EntitlementEventQueue string `mapstructure:"ENTITLEMENT_EVENT_QUEUE"`
	ClerkJWKSURL          string `mapstructure:"CLERK_JWKS_URL"`

	RevenueCatAPIBaseURL string `mapstructure:"REVENUECAT_API_BASE_URL"`
	RevenueCatAppleKey   string `mapstructure:"REVENUECAT_APPLE_API_KEY"`
	RevenueCatGoogleKey  string `mapstructure:"REVENUECAT_GOOGLE_API_KEY"`
	Platform             string `mapstructure:"PLATFORM"`
	BuildProfile         string `mapstructure:"BUILD_PROFILE"`

	ProEntitlementID string   `mapstructure:"PRO_ENTITLEMENT_ID"`
	ProProductIDs    []string `mapstructure:"-"`

	FreeTierRecordingLimit int `mapstructure:"FREE_TIER_RECORDING_LIMIT"`
	ProTierRecordingLimit  int `mapstructure:"PRO_TIER_RECORDING_LIMIT"`

	RefreshSchedule    string `mapstructure:"REFRESH_SCHEDULE"`
	UsageResetSchedule string `mapstructure:"USAGE_RESET_SCHEDULE"`

	InitRetryAttempts  int `mapstructure:"INIT_RETRY_ATTEMPTS"`
	ConfigureDelayMs   int `mapstructure:"CONFIGURE_DELAY_MS"`
	FirstFetchTimeoutS int `mapstructure:"FIRST_FETCH_TIMEOUT_SECONDS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("ENTITLEMENT_EVENT_QUEUE", "subscription_service.entitlement_updates")
	viper.SetDefault("REVENUECAT_API_BASE_URL", "https://api.revenuecat.com/v1")
	viper.SetDefault("PLATFORM", PlatformIOS)
	viper.SetDefault("BUILD_PROFILE", ProfileDevelopment)
	viper.SetDefault("PRO_ENTITLEMENT_ID", "pro")
	viper.SetDefault("FREE_TIER_RECORDING_LIMIT", 10)
	viper.SetDefault("PRO_TIER_RECORDING_LIMIT", 300)
	viper.SetDefault("REFRESH_SCHEDULE", "0 * * * *")
	viper.SetDefault("USAGE_RESET_SCHEDULE", "5 0 1 * *")
	viper.SetDefault("INIT_RETRY_ATTEMPTS", 3)
	viper.SetDefault("CONFIGURE_DELAY_MS", 100)
	viper.SetDefault("FIRST_FETCH_TIMEOUT_SECONDS", 10)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("ENTITLEMENT_EVENT_QUEUE")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("REVENUECAT_API_BASE_URL")
	_ = viper.BindEnv("REVENUECAT_APPLE_API_KEY")
	_ = viper.BindEnv("REVENUECAT_GOOGLE_API_KEY")
	_ = viper.BindEnv("PLATFORM")
	_ = viper.BindEnv("BUILD_PROFILE")
	_ = viper.BindEnv("PRO_ENTITLEMENT_ID")
	_ = viper.BindEnv("PRO_PRODUCT_IDS")
	_ = viper.BindEnv("FREE_TIER_RECORDING_LIMIT")
	_ = viper.BindEnv("PRO_TIER_RECORDING_LIMIT")
	_ = viper.BindEnv("REFRESH_SCHEDULE")
	_ = viper.BindEnv("USAGE_RESET_SCHEDULE")
	_ = viper.BindEnv("INIT_RETRY_ATTEMPTS")
	_ = viper.BindEnv("CONFIGURE_DELAY_MS")
	_ = viper.BindEnv("FIRST_FETCH_TIMEOUT_SECONDS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	config.Platform = strings.ToLower(strings.TrimSpace(config.Platform))
	config.BuildProfile = strings.ToLower(strings.TrimSpace(config.BuildProfile))
	config.ProEntitlementID = strings.TrimSpace(config.ProEntitlementID)

	// PRO_PRODUCT_IDS is a comma-separated list.
	for _, id := range strings.Split(viper.GetString("PRO_PRODUCT_IDS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			config.ProProductIDs = append(config.ProProductIDs, id)
		}
	}

	if config.InitRetryAttempts <= 0 {
		config.InitRetryAttempts = 3
	}
	if config.FreeTierRecordingLimit <= 0 {
		config.FreeTierRecordingLimit = 10
	}
	if config.FirstFetchTimeoutS <= 0 {
		config.FirstFetchTimeoutS = 10
	}

	return
}

// IsProduction reports whether the service runs under the production profile.
func (c Config) IsProduction() bool {
	return c.BuildProfile == ProfileProduction
}

// VendorLogVerbose reports whether vendor request/response logging should be
// elevated. Only non-production builds get verbose vendor logs.
func (c Config) VendorLogVerbose() bool {
	return !c.IsProduction()
}

// APIKeyForPlatform returns the RevenueCat API key for the configured platform.
func (c Config) APIKeyForPlatform() string {
	if c.Platform == PlatformAndroid {
		return c.RevenueCatGoogleKey
	}
	return c.RevenueCatAppleKey
}

// knownPlaceholders are values that ship in example env files and must never
// reach the vendor.
var knownPlaceholders = map[string]bool{
	"":                     true,
	"your_api_key_here":    true,
	"appl_xxxxxxxxxxxx":    true,
	"goog_xxxxxxxxxxxx":    true,
	"REPLACE_ME":           true,
	"changeme":             true,
	"test_key_do_not_ship": true,
}

// ValidateAPIKey checks the configured key for the active platform: it must be
// present, not a placeholder, and carry the vendor's platform prefix
// (appl_ for iOS, goog_ for Android). In the production profile a bad key is a
// hard configuration error; in development and preview builds it is downgraded
// to a warning so sandbox keys and fresh checkouts keep working.
func (c Config) ValidateAPIKey() error {
	key := strings.TrimSpace(c.APIKeyForPlatform())

	problem := ""
	switch {
	case knownPlaceholders[key]:
		problem = "missing or placeholder api key"
	case c.Platform == PlatformAndroid && !strings.HasPrefix(key, "goog_"):
		problem = "android key must start with goog_"
	case c.Platform != PlatformAndroid && !strings.HasPrefix(key, "appl_"):
		problem = "ios key must start with appl_"
	case len(key) < 12:
		problem = "api key too short"
	}

	if problem == "" {
		return nil
	}

	if c.IsProduction() {
		return fmt.Errorf("%w: %s (platform=%s)", ErrInvalidAPIKey, problem, c.Platform)
	}

	log.Printf("level=warn component=config msg=\"api key validation downgraded to warning in %s profile\" problem=%q platform=%s", c.BuildProfile, problem, c.Platform)
	return nil
}
