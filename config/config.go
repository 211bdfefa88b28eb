package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load initializes the configuration with viper
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading it. Using default values and environment variables.")
	}

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("callback.spotify", "http://localhost:8080/callback/spotify")
	viper.SetDefault("spotify.scopes", "user-read-currently-playing user-read-recently-played user-read-email")
	viper.SetDefault("db.path", "./data/chorus.db")

	// fast loop (currently-playing poller)
	viper.SetDefault("tracker.poll_interval_ms", 8000)
	viper.SetDefault("tracker.min_play_seconds", 30)
	viper.SetDefault("tracker.min_play_percent", 50)
	viper.SetDefault("tracker.wrap_min_tolerance_ms", 15000)
	viper.SetDefault("tracker.wrap_threshold_percent", 35)
	viper.SetDefault("tracker.max_delta_ms", 30000)
	viper.SetDefault("tracker.stale_session_ms", 1800000)
	viper.SetDefault("tracker.skip_threshold_percent", 90)
	viper.SetDefault("tracker.end_margin_ms", 15000)

	// slow loop (recently-played reconciler)
	viper.SetDefault("tracker.recently_played_interval_ms", 60000)

	// musicbrainz client
	viper.SetDefault("musicbrainz.base_url", "https://musicbrainz.org/ws/2")
	viper.SetDefault("musicbrainz.request_interval_ms", 1100)
	viper.SetDefault("musicbrainz.max_attempts", 5)
	viper.SetDefault("musicbrainz.backoff_base_ms", 2000)
	viper.SetDefault("musicbrainz.backoff_cap_ms", 60000)
	viper.SetDefault("coverart.base_url", "https://coverartarchive.org")

	// enrichment queue + worker
	viper.SetDefault("enrichment.batch_size", 10)
	viper.SetDefault("enrichment.lease_timeout_ms", 1800000)
	viper.SetDefault("enrichment.max_attempts", 5)
	viper.SetDefault("enrichment.retry_base_ms", 60000)
	viper.SetDefault("enrichment.retry_multiplier", 2)
	viper.SetDefault("enrichment.retry_cap_ms", 3600000)
	viper.SetDefault("enrichment.job_delay_ms", 3000)
	viper.SetDefault("enrichment.poll_interval_ms", 30000)
	viper.SetDefault("enrichment.reap_interval_ms", 3600000)
	viper.SetDefault("enrichment.reap_ttl_ms", 259200000)

	// token lifecycle
	viper.SetDefault("spotify.token_safety_margin_seconds", 60)

	viper.AutomaticEnv()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("Error reading config file: %v", err)
		}
		log.Println("Config file not found, using default values and environment variables")
	} else {
		log.Println("Using config file:", viper.ConfigFileUsed())
	}

	// check for required settings
	requiredVars := []string{
		"spotify.client_id",
		"spotify.client_secret",
		"musicbrainz.user_agent",
		"jwt.secret",
	}
	missingVars := []string{}

	for _, v := range requiredVars {
		if !viper.IsSet(v) {
			missingVars = append(missingVars, v)
		}
	}

	if len(missingVars) > 0 {
		log.Fatalf("Required configuration variables not set: %s", strings.Join(missingVars, ", "))
	}
}
