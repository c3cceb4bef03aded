package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const defaultServiceName = "financial-rating-platform"

var (
	tracingOnce     sync.Once
	tracingShutdown = func(context.Context) error { return nil }
)

// InitTracing installs the global tracer provider when OTEL_ENABLED is set.
// Spans go to OTEL_EXPORTER_OTLP_ENDPOINT, or to stdout when no endpoint is configured.
// The returned func flushes pending spans; it is a no-op when tracing is disabled.
func InitTracing(ctx context.Context, logger *logrus.Logger) func(context.Context) error {
	tracingOnce.Do(func() {
		if !envBool("OTEL_ENABLED") {
			return
		}
		serviceName := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME"))
		if serviceName == "" {
			serviceName = defaultServiceName
		}
		res, err := resource.New(ctx, resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("deployment.environment", strings.TrimSpace(os.Getenv("GO_ENV"))),
		))
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "otel"}).Warn("otel resource init failed (continuing): " + err.Error())
		}

		sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tracingSampleRatio()))
		opts := []sdktrace.TracerProviderOption{sdktrace.WithSampler(sampler), sdktrace.WithResource(res)}
		exporter, err := traceExporter(ctx)
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "otel"}).Warn("otel exporter init failed (continuing): " + err.Error())
		} else {
			opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
		}

		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		tracingShutdown = tp.Shutdown
		logger.WithFields(logrus.Fields{
			"service":  serviceName,
			"endpoint": os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		}).Info("otel tracing initialized")
	})
	return tracingShutdown
}

func traceExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if envBool("OTEL_EXPORTER_OTLP_INSECURE") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if headers := otlpHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); headers != nil {
		opts = append(opts, otlptracehttp.WithHeaders(headers))
	}
	return otlptracehttp.New(ctx, opts...)
}

// tracingSampleRatio reads OTEL_SAMPLER_RATIO, clamped to [0,1]. Default 0.1.
func tracingSampleRatio() float64 {
	v := strings.TrimSpace(os.Getenv("OTEL_SAMPLER_RATIO"))
	f, err := strconv.ParseFloat(v, 64)
	if v == "" || err != nil {
		return 0.1
	}
	return min(max(f, 0), 1)
}

// otlpHeaders parses "k1=v1,k2=v2". Malformed pairs are skipped.
func otlpHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		headers[k] = v
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
