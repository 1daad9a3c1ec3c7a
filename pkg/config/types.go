// Package config manages application-wide settings and directory structures.
// It follows XDG specifications for storing cache, configuration, and state,
// and reads the API endpoint settings from the environment.
package config

import "time"

// Environment variables consulted by Init. A .env file in the working
// directory or the config directory may provide them as well.
const (
	EnvBaseURL           = "BASE_URL"
	EnvAPIPrefix         = "API_PREFIX"
	EnvAPIToken          = "API_TOKEN"
	EnvDownloadDir       = "DOWNLOAD_DIR"
	EnvInactivityTimeout = "DOWNLOAD_INACTIVITY_TIMEOUT"
)

const (
	// AppName names the XDG subdirectories.
	AppName = "dsget"
	// DefaultAPIPrefix is used when API_PREFIX is unset.
	DefaultAPIPrefix = "/api"
	// DefaultInactivityTimeout aborts a download that receives no data for this long.
	DefaultInactivityTimeout = 60 * time.Second
)
