// Package config loads and validates the service configuration from
// environment variables. A .env file is honored in development.
package config
