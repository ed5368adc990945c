// Package config provides Meteor configuration loaded from environment
// variables, optionally overlaid with a YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/MeteorMsg/Meteor/pkg/serializer"
)

const logPrefix = "config:LoadConfig"

// Transport names accepted by METEOR_TRANSPORT.
const (
	TransportLoopback = "loopback"
	TransportNATS     = "nats"
	TransportPostgres = "postgres"
	TransportMQTT     = "mqtt"
)

// Config holds Meteor configuration.
type Config struct {
	// Bus
	Transport  string `envconfig:"METEOR_TRANSPORT" default:"loopback" yaml:"transport"`
	Channel    string `envconfig:"METEOR_CHANNEL" default:"meteor" yaml:"channel"`
	Serializer string `envconfig:"METEOR_SERIALIZER" default:"json" yaml:"serializer"`

	// Invocations
	InvocationTimeout       time.Duration `envconfig:"METEOR_INVOCATION_TIMEOUT" default:"30s" yaml:"invocationTimeout"`
	IgnoreUnknownProcedures bool          `envconfig:"METEOR_IGNORE_UNKNOWN_PROCEDURES" default:"false" yaml:"ignoreUnknownProcedures"`

	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222" yaml:"commsUrl"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"meteor" yaml:"serviceName"`

	// Database (postgres transport)
	DatabaseURL string `envconfig:"DATABASE_URL" yaml:"databaseUrl"`

	// MQTT. LoadConfig defaults the client id to <SERVICE_NAME>-<random>.
	MQTTBroker   string `envconfig:"MQTT_BROKER" default:"127.0.0.1:1883" yaml:"mqttBroker"`
	MQTTClientID string `envconfig:"MQTT_CLIENT_ID" yaml:"mqttClientId"`

	// HTTP health endpoint (METEOR_HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"METEOR_HTTP_ADDR" yaml:"httpAddr"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080" yaml:"httpPort"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s" yaml:"healthCheckTimeout"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" yaml:"logLevel"`

	// ConfigFile names a YAML file whose values override the environment.
	ConfigFile string `envconfig:"METEOR_CONFIG_FILE" yaml:"-"`
}

// LoadConfig loads configuration from environment variables, then applies
// METEOR_CONFIG_FILE when it is set.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if c.ConfigFile != "" {
		if err := c.ApplyFile(c.ConfigFile); err != nil {
			return nil, err
		}
	}
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	c.Serializer = strings.ToLower(strings.TrimSpace(c.Serializer))
	if c.MQTTClientID == "" {
		c.MQTTClientID = uniqueClientID(c.COMMSName)
	}
	return &c, nil
}

// uniqueClientID suffixes base so processes sharing a broker never reuse an id;
// the broker drops the older session when a duplicate id connects.
func uniqueClientID(base string) string {
	if base == "" {
		base = "meteor"
	}
	return base + "-" + uuid.NewString()[:8]
}

// ApplyFile overlays the keys present in the YAML file at path.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s - failed to read config file %s: %w", logPrefix, path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%s - failed to parse config file %s: %w", logPrefix, path, err)
	}
	return nil
}

// ListenAddr returns the HTTP address to serve on.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// ClientID returns the MQTT client id, falling back to the service name.
func (c *Config) ClientID() string {
	if c.MQTTClientID != "" {
		return c.MQTTClientID
	}
	return c.COMMSName
}

// Validate checks settings shared by every command.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportLoopback:
	case TransportNATS:
		if c.COMMSURL == "" {
			return fmt.Errorf("%s - COMMS_URL is required for the nats transport", logPrefix)
		}
	case TransportPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%s - DATABASE_URL is required for the postgres transport", logPrefix)
		}
	case TransportMQTT:
		if c.MQTTBroker == "" {
			return fmt.Errorf("%s - MQTT_BROKER is required for the mqtt transport", logPrefix)
		}
		if c.ClientID() == "" {
			return fmt.Errorf("%s - MQTT_CLIENT_ID or SERVICE_NAME is required for the mqtt transport", logPrefix)
		}
	default:
		return fmt.Errorf("%s - unknown METEOR_TRANSPORT %q (use loopback, nats, postgres or mqtt)", logPrefix, c.Transport)
	}
	if _, err := serializer.ByName(c.Serializer); err != nil {
		return fmt.Errorf("%s - METEOR_SERIALIZER: %w", logPrefix, err)
	}
	if c.InvocationTimeout <= 0 {
		return fmt.Errorf("%s - METEOR_INVOCATION_TIMEOUT must be positive", logPrefix)
	}
	if c.Channel == "" {
		return fmt.Errorf("%s - METEOR_CHANNEL must not be empty", logPrefix)
	}
	return nil
}

// ValidateForServe checks required config when running the host process.
func (c *Config) ValidateForServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateForCall checks required config when calling a remote process.
func (c *Config) ValidateForCall() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Transport == TransportLoopback {
		return fmt.Errorf("%s - call needs a shared bus; set METEOR_TRANSPORT to nats, postgres or mqtt", logPrefix)
	}
	return nil
}
