package config

import (
	"fmt"
	"os"
	"time"
)

// ClientConfig is a structure containing all loaded variables from environment
type ClientConfig struct {
	API APIConfig // FiliUp backend HTTP API

	MQ RabbitConfig // Message broker configs

	Auth AuthConfig // credentials
}

// APIConfig is a structure containing environment variables for the backend HTTP API
type APIConfig struct {
	BaseURL string        // e.g. https://filiup.example.com/api/v1
	Timeout time.Duration // per-request timeout
}

// RabbitConfig is a structure containing environment variables for the broker connection
type RabbitConfig struct {
	User     string
	Password string
	Host     string
	Port     string

	ConnectTimeout    time.Duration // bounded wait for the initial handshake
	ReconnectInterval time.Duration // fixed delay between redial attempts
	HeartbeatInterval time.Duration // presence ping period
}

// AuthConfig is a structure containing credential-related environment variables
type AuthConfig struct {
	Token string // bearer token issued at login
}

// URL builds the amqp connection url from the parts.
func (r RabbitConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", r.User, r.Password, r.Host, r.Port)
}

// config stores once parsed env variables
var config *ClientConfig

// LoadConfig is a singleton function, that returns parsed config.
// If the function have not been called, then it parses data from environment and stores in `config` variable.
// Otherwise, just returns already parsed config
func LoadConfig() *ClientConfig {
	if config != nil {
		return config
	}

	cfg := &ClientConfig{
		API: APIConfig{
			BaseURL: os.Getenv("FILIUP_API_BASE_URL"),
			Timeout: durationEnv("FILIUP_API_TIMEOUT", 10*time.Second),
		},
		MQ: RabbitConfig{
			User:     os.Getenv("RABBITMQ_USER"),
			Password: os.Getenv("RABBITMQ_PASSWORD"),
			Host:     os.Getenv("RABBITMQ_HOST"),
			Port:     os.Getenv("RABBITMQ_PORT"),

			ConnectTimeout:    durationEnv("FILIUP_MQ_CONNECT_TIMEOUT", 10*time.Second),
			ReconnectInterval: durationEnv("FILIUP_MQ_RECONNECT_INTERVAL", 5*time.Second),
			HeartbeatInterval: durationEnv("FILIUP_MQ_HEARTBEAT_INTERVAL", 30*time.Second),
		},
		Auth: AuthConfig{Token: os.Getenv("FILIUP_TOKEN")},
	}

	config = cfg

	return cfg
}

// durationEnv parses the named variable as a Go duration, falling back to def
// when unset or malformed.
func durationEnv(name string, def time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
