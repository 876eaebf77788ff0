package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/automaxprocs/maxprocs"

	apprelay "github.com/clipwave/mediarelay/internal/app/relay"
	"github.com/clipwave/mediarelay/internal/app/relay/handlers"
	"github.com/clipwave/mediarelay/internal/config"
	"github.com/clipwave/mediarelay/internal/config/fileloader"
	"github.com/clipwave/mediarelay/internal/domain/events"
	eventdispatcher "github.com/clipwave/mediarelay/internal/infra/event_dispatcher"
	"github.com/clipwave/mediarelay/internal/infra/eventbus/kafka"
	"github.com/clipwave/mediarelay/pkg/common/logger"
	"github.com/clipwave/mediarelay/pkg/common/otel"
)

var build = "develop"

const serviceType = "relay"

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	var lg *logger.Logger

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}

			// Add any error-specific attributes.
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("RELAY-%s", hostname)
	metadata := map[string]string{
		"service":   svcName,
		"hostname":  hostname,
		"pod":       os.Getenv("POD_NAME"),
		"namespace": os.Getenv("POD_NAMESPACE"),
		"app":       serviceType,
	}

	lg = logger.NewWithMetadata(os.Stdout, logger.LevelDebug, svcName, traceIDFn, logEvents, metadata)

	ctx := context.Background()

	if err := run(ctx, lg, hostname); err != nil {
		lg.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, hostname string) error {
	// -------------------------------------------------------------------------
	// GOMAXPROCS
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	// -------------------------------------------------------------------------
	// Configuration
	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	// -------------------------------------------------------------------------
	// Start Tracing Support
	log.Info(ctx, "startup", "status", "initializing tracing support")

	traceProvider, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      cfg.Telemetry.ServiceName,
		ExporterEndpoint: cfg.Telemetry.ExporterEndpoint,
		Probability:      cfg.Telemetry.Probability,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"k8s.pod.name":     os.Getenv("POD_NAME"),
			"k8s.namespace":    os.Getenv("POD_NAMESPACE"),
			"k8s.container.id": hostname,
		},
		InsecureExporter: true,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer teardown(ctx)

	tracer := traceProvider.Tracer(cfg.Telemetry.ServiceName)

	// -------------------------------------------------------------------------
	// Outbound Publisher
	log.Info(ctx, "startup", "status", "connecting outbound publisher")

	metrics, err := apprelay.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("creating relay metrics: %w", err)
	}

	topicMap := make(map[events.EventType]string, len(cfg.Kafka.Topics))
	for eventType, topic := range cfg.Kafka.Topics {
		topicMap[events.EventType(eventType)] = topic
	}

	publisher, err := kafka.ConnectWithRetry(&kafka.Config{
		Brokers:      cfg.Kafka.Brokers,
		DefaultTopic: cfg.Kafka.DefaultTopic,
		TopicMap:     topicMap,
		ClientID:     cfg.Kafka.ClientID,
		ServiceType:  serviceType,
		PublishRPS:   cfg.Kafka.PublishRPS,
		PublishBurst: cfg.Kafka.PublishBurst,
	}, log, metrics, tracer)
	if err != nil {
		return fmt.Errorf("connecting publisher: %w", err)
	}

	// -------------------------------------------------------------------------
	// Handlers + Dispatcher
	log.Info(ctx, "startup", "status", "registering handlers")

	var registered []events.Handler
	if cfg.Handlers.Ping {
		ping, err := handlers.NewPingHandler(uuid.NewString(), publisher, log, tracer)
		if err != nil {
			return fmt.Errorf("creating ping handler: %w", err)
		}
		registered = append(registered, ping)
	}

	dispatcher, err := eventdispatcher.New(registered, tracer, log)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	// -------------------------------------------------------------------------
	// Inbound Consumer
	log.Info(ctx, "startup", "status", "starting inbound consumer")

	dispatch := func(ctx context.Context, batch []events.EventEnvelope) error {
		_, err := dispatcher.Dispatch(ctx, batch)
		return err
	}

	consumer, err := kafka.NewConsumerFromConfig(&kafka.ConsumerConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topics:   strings.Split(os.Getenv("KAFKA_INBOUND_TOPICS"), ","),
		GroupID:  os.Getenv("KAFKA_GROUP_ID"),
		ClientID: cfg.Kafka.ClientID,
	}, dispatch, log, tracer)
	if err != nil {
		return fmt.Errorf("creating consumer: %w", err)
	}
	defer consumer.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	consumerErrors := make(chan error, 1)
	go func() {
		consumerErrors <- consumer.Run(runCtx)
	}()

	// -------------------------------------------------------------------------
	// Shutdown

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-consumerErrors:
		return fmt.Errorf("consumer error: %w", err)

	case sig := <-shutdown:
		log.Info(ctx, "shutdown", "status", "shutdown started", "signal", sig)
		defer log.Info(ctx, "shutdown", "status", "shutdown complete", "signal", sig)
		cancel()
	}

	return nil
}

// loadConfig reads the config file named by CONFIG_PATH and applies
// environment overrides for deployment-specific values.
func loadConfig(ctx context.Context) (*config.Config, error) {
	var cfg *config.Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		loaded, err := fileloader.NewFileLoader(path).Load(ctx)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
		cfg.Handlers.Ping = true
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if topic := os.Getenv("KAFKA_DEFAULT_TOPIC"); topic != "" {
		cfg.Kafka.DefaultTopic = topic
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = os.Getenv("OTEL_SERVICE_NAME")
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = os.Getenv("OTEL_SERVICE_NAME")
	}
	if cfg.Telemetry.ExporterEndpoint == "" {
		cfg.Telemetry.ExporterEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if ratio := os.Getenv("OTEL_SAMPLING_RATIO"); ratio != "" {
		prob, err := strconv.ParseFloat(ratio, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing sampling ratio: %w", err)
		}
		cfg.Telemetry.Probability = prob
	}

	return cfg, nil
}
