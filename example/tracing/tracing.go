package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/synoptiq/go-fluxq"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// initTracer creates and registers a new trace provider with OTLP exporter
func initTracer(otlpEndpoint string) (*tracesdk.TracerProvider, error) {
	fmt.Println("🔧 Initializing OpenTelemetry Tracer...")
	fmt.Printf("   Using OTLP endpoint: %s\n", otlpEndpoint)

	traceExporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(otlpEndpoint),
			otlptracegrpc.WithInsecure(), // Use insecure for local demo
		),
	)
	if err != nil {
		return nil, fmt.Errorf("❌ failed to create trace exporter: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(traceExporter),
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("fluxq-tracing-example"),
			attribute.String("environment", "demo"),
		)),
	)

	otel.SetTracerProvider(tp)
	fmt.Println("✅ Tracer initialized and registered globally.")
	return tp, nil
}

// Order is one line of the demo order book.
type Order struct {
	ID       int
	Customer string
	Total    decimal.Decimal
}

func sampleOrders() []Order {
	return []Order{
		{1, "acme", decimal.RequireFromString("120.50")},
		{2, "globex", decimal.RequireFromString("15.00")},
		{3, "acme", decimal.RequireFromString("310.25")},
		{4, "initech", decimal.RequireFromString("99.99")},
		{5, "globex", decimal.RequireFromString("250.00")},
		{6, "acme", decimal.RequireFromString("42.10")},
	}
}

// revenue sums the order totals of one customer inside a traced run.
func revenue(ctx context.Context, tp oteltrace.TracerProvider, orders []Order, customer string) (decimal.Decimal, error) {
	totals := fluxq.Select(
		fluxq.Where(fluxq.FromSlice(orders), func(o Order) bool { return o.Customer == customer }),
		func(o Order) decimal.Decimal { return o.Total },
	)
	traced := fluxq.NewTracedConsumer[decimal.Decimal, decimal.Decimal](
		ctx,
		fluxq.NewAccumulatingConsumer[decimal.Decimal, decimal.Decimal, decimal.Decimal](fluxq.DecimalSum{}),
		fluxq.WithTracerName[decimal.Decimal, decimal.Decimal]("revenue"),
		fluxq.WithTracerProvider[decimal.Decimal, decimal.Decimal](tp),
		fluxq.WithTracerAttributes[decimal.Decimal, decimal.Decimal](attribute.String("customer", customer)),
	)
	return fluxq.Consume[decimal.Decimal, decimal.Decimal](totals, traced)
}

// queryConfig builds a configured query that reports its runs over OTLP.
func queryConfig(otlpEndpoint string) string {
	return fmt.Sprintf(`name: "large_orders"
stages:
  - name: "large"
    type: "where"
    properties:
      predicate: "is_large"
  - name: "ids"
    type: "select"
    properties:
      selector: "order_id"
  - name: "top"
    type: "take"
    properties:
      count: 2
tracing:
  enabled: true
  type: "otlp"
  endpoint: %q`, otlpEndpoint)
}

func buildLargeOrdersQuery(otlpEndpoint string) (*fluxq.Query, error) {
	fmt.Println("🛠️ Building traced query from configuration...")
	config, err := fluxq.ParseQueryConfig([]byte(queryConfig(otlpEndpoint)))
	if err != nil {
		return nil, err
	}

	registry := fluxq.NewRegistry()
	threshold := decimal.NewFromInt(100)
	if err := registry.RegisterExecutor("is_large", func(v any) bool {
		return v.(Order).Total.GreaterThan(threshold)
	}); err != nil {
		return nil, err
	}
	if err := registry.RegisterExecutor("order_id", func(v any) any { return v.(Order).ID }); err != nil {
		return nil, err
	}

	query, err := fluxq.BuildQuery(config, registry)
	if err != nil {
		return nil, err
	}
	fmt.Printf("✅ Query built with stages %v.\n", query.Stages())
	return query, nil
}

func main() {
	fmt.Println("🛰️ fluxq OpenTelemetry Tracing Demonstration")
	fmt.Println("===========================================")
	fmt.Println("Every query run is recorded as one span with its item count and outcome.")

	otlpEndpoint := os.Getenv("OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317" // Default OTLP gRPC endpoint
	}

	tp, err := initTracer(otlpEndpoint)
	if err != nil {
		log.Fatalf("❌ Failed to initialize tracer: %v", err)
	}
	defer func() {
		fmt.Println("🔌 Shutting down tracer provider...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️ Error shutting down tracer provider: %v", err)
		} else {
			fmt.Println("✅ Tracer provider shut down.")
		}
	}()

	query, err := buildLargeOrdersQuery(otlpEndpoint)
	if err != nil {
		log.Fatalf("❌ Failed to build query: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := query.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️ Error shutting down query tracer: %v", err)
		}
	}()

	orders := sampleOrders()
	ctx, rootSpan := otel.Tracer("main-processor").Start(context.Background(), "MonthlyReport")

	fmt.Println("\n▶️ Computing revenue per customer...")
	for _, customer := range []string{"acme", "globex", "initech"} {
		total, err := revenue(ctx, tp, orders, customer)
		if err != nil {
			fmt.Printf("   ❌ %s: %v\n", customer, err)
			continue
		}
		fmt.Printf("   %-8s %s\n", customer, total.StringFixed(2))
	}

	fmt.Println("\n▶️ Running the configured query...")
	source := fluxq.Select(fluxq.FromSlice(orders), func(o Order) any { return o })
	ids, err := query.Run(ctx, source)
	if err != nil {
		rootSpan.RecordError(err)
		rootSpan.SetStatus(codes.Error, "report failed")
		fmt.Printf("❌ Query failed: %v\n", err)
	} else {
		rootSpan.SetStatus(codes.Ok, "Success")
		fmt.Printf("✅ First large orders: %v\n", ids)
	}
	rootSpan.End()

	fmt.Println("\n📍 Trace Viewing Instructions:")
	fmt.Println("   Ensure an OTLP collector (like Jaeger or Tempo) is running")
	fmt.Println("   and accessible at the configured endpoint (default: localhost:4317).")
	fmt.Println("   Example Jaeger setup (Docker):")
	fmt.Println("     docker run -d --name jaeger -p 16686:16686 -p 4317:4317 jaegertracing/all-in-one:latest")
	fmt.Println("\nDemo Complete!")
}
