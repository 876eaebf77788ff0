// Package config defines the relay service configuration and the Loader
// abstraction used to obtain it.
package config

// Config represents the top-level relay service configuration.
type Config struct {
	Kafka     KafkaConfig     `yaml:"kafka"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Handlers  HandlersConfig  `yaml:"handlers"`
}

// KafkaConfig holds broker connection and topic routing settings for the
// outbound publisher.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `yaml:"brokers"`

	// DefaultTopic receives every outbound event without an explicit
	// mapping.
	DefaultTopic string `yaml:"default_topic"`

	// Topics optionally routes specific event types to dedicated topics.
	Topics map[string]string `yaml:"topics,omitempty"`

	// ClientID identifies this client to the cluster.
	ClientID string `yaml:"client_id"`

	// PublishRPS caps outbound publishes per second. Zero disables the
	// limiter.
	PublishRPS float64 `yaml:"publish_rps,omitempty"`

	// PublishBurst is the limiter's burst allowance.
	PublishBurst int `yaml:"publish_burst,omitempty"`
}

// TelemetryConfig holds tracing and metrics exporter settings.
type TelemetryConfig struct {
	ServiceName      string  `yaml:"service_name"`
	ExporterEndpoint string  `yaml:"exporter_endpoint"`
	Probability      float64 `yaml:"probability"`
}

// HandlersConfig holds per-handler settings keyed by handler name.
type HandlersConfig struct {
	// Ping enables the built-in ping handler.
	Ping bool `yaml:"ping"`
}
