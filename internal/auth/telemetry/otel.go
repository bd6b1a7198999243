package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"golang.org/x/time/rate"
)

const instrumentationName = "maidrobe.auth"

// OTelEmitter forwards events as OpenTelemetry log records. Forwarding is
// throttled so a retry storm cannot flood the collector; throttled events
// are still delivered to the other sinks of a fan-out.
type OTelEmitter struct {
	logger  otellog.Logger
	limiter *rate.Limiter
	dropped atomic.Int64
}

// NewOTelEmitter forwards through provider, allowing at most perSecond
// records per second with the given burst.
func NewOTelEmitter(provider otellog.LoggerProvider, perSecond float64, burst int) *OTelEmitter {
	return &OTelEmitter{
		logger:  provider.Logger(instrumentationName),
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Dropped is the number of events not forwarded because of throttling.
func (e *OTelEmitter) Dropped() int64 { return e.dropped.Load() }

func (e *OTelEmitter) Emit(ctx context.Context, event domain.AuthEvent) error {
	if !e.limiter.Allow() {
		e.dropped.Add(1)
		return nil
	}

	rec := otellog.Record{}
	rec.SetTimestamp(event.Timestamp)
	rec.SetObservedTimestamp(event.Timestamp)
	rec.SetBody(otellog.StringValue(string(event.Type)))
	rec.SetSeverity(otellog.SeverityInfo)
	if event.Outcome == domain.OutcomeFailure {
		rec.SetSeverity(otellog.SeverityWarn)
	}

	rec.AddAttributes(
		otellog.String("event_id", event.ID.String()),
		otellog.String("event_type", string(event.Type)),
	)
	if event.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", event.UserID))
	}
	if event.Outcome != "" {
		rec.AddAttributes(otellog.String("outcome", string(event.Outcome)))
	}
	if event.ErrorCode != "" {
		rec.AddAttributes(otellog.String("error_code", event.ErrorCode))
	}
	if event.Latency > 0 {
		rec.AddAttributes(otellog.Int64("latency_ms", event.Latency.Milliseconds()))
	}
	if len(event.Metadata) > 0 {
		rec.AddAttributes(otellog.Map("metadata", metadataKeyValues(event.Metadata)...))
	}

	e.logger.Emit(ctx, rec)
	return nil
}

func metadataKeyValues(metadata map[string]any) []otellog.KeyValue {
	kvs := make([]otellog.KeyValue, 0, len(metadata))
	for k, v := range metadata {
		kvs = append(kvs, otellog.KeyValue{Key: k, Value: metadataValue(v)})
	}
	return kvs
}

func metadataValue(v any) otellog.Value {
	switch val := v.(type) {
	case string:
		return otellog.StringValue(val)
	case bool:
		return otellog.BoolValue(val)
	case int:
		return otellog.IntValue(val)
	case int64:
		return otellog.Int64Value(val)
	case float64:
		return otellog.Float64Value(val)
	case map[string]any:
		return otellog.MapValue(metadataKeyValues(val)...)
	default:
		return otellog.StringValue(fmt.Sprint(val))
	}
}

// NewLoggerProvider creates a LoggerProvider exporting via OTLP/gRPC to
// endpoint. endpoint may be a URL; only host:port is used for the dial. If
// endpoint is empty a provider without processors is returned and nothing
// leaves the device. https endpoints use TLS unless insecure is set.
func NewLoggerProvider(ctx context.Context, endpoint, serviceName string, insecure bool) (*sdklog.LoggerProvider, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return sdklog.NewLoggerProvider(), nil
	}

	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(u.Host)}
	if insecure || u.Scheme != "https" {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exp, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	), nil
}
