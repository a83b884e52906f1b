package config

import (
	"time"

	"github.com/spf13/viper"
)

// Global configuration variables
var (
	// UpdateCovers controls whether cover images are downloaded for new records
	UpdateCovers bool
	// EgressEnabled controls whether fetches go through the rotating egress pool
	EgressEnabled bool
)

// InitConfig initializes the global configuration
func InitConfig() {
	UpdateCovers = viper.GetBool("covers.update")
	EgressEnabled = viper.GetBool("egress.enabled")
}

// SetUpdateCovers sets the UpdateCovers flag
func SetUpdateCovers(update bool) {
	UpdateCovers = update
}

// SetEgressEnabled sets the EgressEnabled flag
func SetEgressEnabled(enabled bool) {
	EgressEnabled = enabled
}

// CatalogDBFile returns the path of the catalog database.
func CatalogDBFile() string {
	return viper.GetString("catalog.dbfile")
}

// CacheDBFile returns the path of the page cache database.
func CacheDBFile() string {
	return viper.GetString("cache.dbfile")
}

// CacheTTL returns the max age a cached page is served without refetching.
func CacheTTL() time.Duration {
	return viper.GetDuration("cache.ttl")
}

// BaseURL returns the external catalog's base URL.
func BaseURL() string {
	return viper.GetString("scrape.base_url")
}

// TargetLanguage returns the language editions must match to be usable.
func TargetLanguage() string {
	return viper.GetString("scrape.language")
}

// EgressDir returns the directory holding the egress pool's on-disk state.
func EgressDir() string {
	return viper.GetString("egress.dir")
}

// CoversDir returns the directory cover images are stored under.
func CoversDir() string {
	return viper.GetString("covers.dir")
}
