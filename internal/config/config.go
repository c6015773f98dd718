// Package config loads service configuration from defaults, an optional YAML
// file and ROUTENAV_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/breatheroute/routenav/internal/directions"
	"github.com/breatheroute/routenav/internal/navigation"
	"github.com/breatheroute/routenav/internal/provider/resilience"
	"github.com/breatheroute/routenav/internal/simulator"
	"github.com/breatheroute/routenav/internal/telemetry"
	"github.com/breatheroute/routenav/internal/worker"
)

// EnvPrefix is the prefix of configuration environment variables, e.g.
// ROUTENAV_SERVER_PORT for server.port.
const EnvPrefix = "ROUTENAV"

// Event backends.
const (
	EventsLog    = "log"
	EventsPubSub = "pubsub"
	EventsNATS   = "nats"
)

// Config holds all service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Navigation NavigationConfig `mapstructure:"navigation"`
	Directions DirectionsConfig `mapstructure:"directions"`
	Simulator  SimulatorConfig  `mapstructure:"simulator"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Events     EventsConfig     `mapstructure:"events"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	// RateLimit is the number of position updates per minute per session.
	RateLimit int `mapstructure:"rate_limit" validate:"gte=0"`
	// RequireTLS rejects requests that did not arrive over TLS.
	RequireTLS bool `mapstructure:"require_tls"`
}

type NavigationConfig struct {
	RouteStepDistance        float64 `mapstructure:"route_step_distance" validate:"gt=0"`
	RouteStepInnerTolerance  float64 `mapstructure:"route_step_inner_tolerance" validate:"gt=0,lt=1"`
	RouteStepCenterTolerance float64 `mapstructure:"route_step_center_tolerance" validate:"gt=0,ltfield=RouteStepInnerTolerance"`
	RouteStepCourseTolerance float64 `mapstructure:"route_step_course_tolerance" validate:"gt=0,lte=180"`
}

type DirectionsConfig struct {
	Precision            int    `mapstructure:"precision" validate:"min=1,max=10"`
	DefaultDirectionType string `mapstructure:"default_direction_type" validate:"required"`
}

type SimulatorConfig struct {
	Speed         time.Duration `mapstructure:"speed" validate:"gt=0"`
	TurnSpeed     time.Duration `mapstructure:"turn_speed" validate:"gt=0"`
	TurnThreshold float64       `mapstructure:"turn_threshold" validate:"gt=0,lt=180"`
}

type SessionsConfig struct {
	EventLimit int           `mapstructure:"event_limit" validate:"gt=0"`
	MaxIdle    time.Duration `mapstructure:"max_idle" validate:"gt=0"`
	// SweepInterval is how often idle sessions are removed.
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
}

type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment" validate:"required"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

type EventsConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=log pubsub nats"`

	ProjectID string `mapstructure:"project_id" validate:"required_if=Backend pubsub"`
	Topic     string `mapstructure:"topic" validate:"required_if=Backend pubsub"`
	// Subscription carries positions for the worker.
	Subscription string `mapstructure:"subscription"`

	NATSURL       string `mapstructure:"nats_url" validate:"required_if=Backend nats"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	Stream        string `mapstructure:"stream"`

	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`
}

// Load reads configuration. path names an optional YAML file; when empty,
// config.yaml is looked up in the working directory and ./configs.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	// Environment variables: ROUTENAV_NAVIGATION_ROUTE_STEP_DISTANCE → navigation.route_step_distance
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.rate_limit", 600)
	v.SetDefault("server.require_tls", false)

	v.SetDefault("navigation.route_step_distance", navigation.DefaultRouteStepDistance)
	v.SetDefault("navigation.route_step_inner_tolerance", 0.75)
	v.SetDefault("navigation.route_step_center_tolerance", 0.10)
	v.SetDefault("navigation.route_step_course_tolerance", 30.0)

	v.SetDefault("directions.precision", 5)
	v.SetDefault("directions.default_direction_type", directions.DefaultDirectionType)

	v.SetDefault("simulator.speed", 30*time.Millisecond)
	v.SetDefault("simulator.turn_speed", 700*time.Millisecond)
	v.SetDefault("simulator.turn_threshold", 10.0)

	v.SetDefault("sessions.event_limit", navigation.DefaultEventLimit)
	v.SetDefault("sessions.max_idle", 30*time.Minute)
	v.SetDefault("sessions.sweep_interval", time.Minute)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("events.backend", EventsLog)
	v.SetDefault("events.project_id", "")
	v.SetDefault("events.topic", "navigation-events")
	v.SetDefault("events.subscription", "navigation-positions")
	v.SetDefault("events.nats_url", "nats://localhost:4222")
	v.SetDefault("events.subject_prefix", navigation.DefaultSubjectPrefix)
	v.SetDefault("events.stream", "")
	v.SetDefault("events.timeout", 5*time.Second)
	v.SetDefault("events.max_retries", 3)
}

// Validate checks the configuration against its validation tags.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return fmt.Errorf("validating config: %w", err)
	}

	msgs := make([]string, 0, len(invalid))
	for _, fe := range invalid {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// NavigatorConfig returns the navigator template for sessions.
func (c *Config) NavigatorConfig(logger zerolog.Logger, metrics *navigation.Metrics) navigation.Config {
	return navigation.Config{
		RouteStepDistance: c.Navigation.RouteStepDistance,
		InnerTolerance:    c.Navigation.RouteStepInnerTolerance,
		CenterTolerance:   c.Navigation.RouteStepCenterTolerance,
		CourseTolerance:   c.Navigation.RouteStepCourseTolerance,
		Metrics:           metrics,
		Logger:            logger,
	}
}

// DecoderConfig returns the directions decoder configuration.
func (c *Config) DecoderConfig(logger zerolog.Logger) directions.DecoderConfig {
	return directions.DecoderConfig{
		Precision:            c.Directions.Precision,
		DefaultDirectionType: c.Directions.DefaultDirectionType,
		Logger:               logger,
	}
}

// SimulatorConfig returns the position simulator configuration.
func (c *Config) SimulatorConfig(logger zerolog.Logger) simulator.Config {
	return simulator.Config{
		Speed:         c.Simulator.Speed,
		TurnSpeed:     c.Simulator.TurnSpeed,
		TurnThreshold: c.Simulator.TurnThreshold,
		Logger:        logger,
	}
}

// TelemetryConfig returns the OpenTelemetry setup for service.
func (c *Config) TelemetryConfig(service, version string) telemetry.Config {
	return telemetry.Config{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    c.Telemetry.Environment,
		OTLPEndpoint:   c.Telemetry.Endpoint,
		SampleRatio:    c.Telemetry.SampleRatio,
		Enabled:        c.Telemetry.Enabled,
	}
}

// SweepConfig returns the idle session sweep configuration.
func (c *Config) SweepConfig() worker.SweepConfig {
	cfg := worker.DefaultSweepConfig()
	cfg.MaxIdle = c.Sessions.MaxIdle
	cfg.Interval = c.Sessions.SweepInterval
	return cfg
}

// GuardConfig returns the circuit breaker and retry settings for the event
// backend. A zero MaxRetries keeps the guard default.
func (c *Config) GuardConfig() resilience.GuardConfig {
	cfg := resilience.DefaultGuardConfig(c.Events.Backend)
	cfg.Timeout = c.Events.Timeout
	if c.Events.MaxRetries > 0 {
		cfg.MaxRetries = uint64(c.Events.MaxRetries)
	}
	return cfg
}

// IngestEnabled reports whether positions are consumed from Pub/Sub.
func (c *Config) IngestEnabled() bool {
	return c.Events.ProjectID != "" && c.Events.Subscription != ""
}
