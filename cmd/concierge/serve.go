// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/selaras-ai/concierge/services/assistant"
	"github.com/selaras-ai/concierge/services/assistant/audit"
	"github.com/selaras-ai/concierge/services/assistant/calibration"
	"github.com/selaras-ai/concierge/services/assistant/datatypes"
	"github.com/selaras-ai/concierge/services/assistant/memory"
	"github.com/selaras-ai/concierge/services/assistant/observability"
	"github.com/selaras-ai/concierge/services/assistant/reason"
	"github.com/selaras-ai/concierge/services/assistant/retrieval"
	"github.com/selaras-ai/concierge/services/assistant/routes"
	"github.com/selaras-ai/concierge/services/assistant/tools"
	"github.com/selaras-ai/concierge/services/llm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the concierge answer service",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "concierge-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("concierge-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newWeaviateClient connects to the knowledge store and ensures the
// schema exists. The URL is sanitized because container runtimes
// sometimes pass quoted values through literally.
func newWeaviateClient() *weaviate.Client {
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	if weaviateURL == "" {
		log.Fatalf("WEAVIATE_SERVICE_URL is not set; the knowledge store is required")
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		log.Fatalf("WEAVIATE_SERVICE_URL %q is not a valid URL: %v", weaviateURL, err)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		log.Fatalf("Failed to create Weaviate client: %v", err)
	}

	datatypes.EnsureWeaviateSchema(client)
	return client
}

// loaderPriceTable exposes the loader's current table to the pricing
// tool so hot-reloaded rules are visible without rewiring.
type loaderPriceTable struct {
	loader *calibration.Loader
}

func (p loaderPriceTable) LookupPrice(topic string) (string, string, bool) {
	return p.loader.Table().LookupPrice(topic)
}

func runServe() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	weaviateClient := newWeaviateClient()

	embedder, err := retrieval.NewHTTPEmbedder()
	if err != nil {
		log.Fatalf("Failed to configure the embedding service: %v", err)
	}

	gateway := retrieval.NewWeaviateGateway(weaviateClient, embedder, retrieval.DefaultSearchConfig())

	tiers, err := llm.NewModelTiersFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize LLM clients: %v", err)
	}

	loader, err := calibration.NewLoader(config.RulesPath)
	if err != nil {
		log.Fatalf("Failed to load calibration rules from %s: %v", config.RulesPath, err)
	}
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if err := loader.Watch(watchCtx); err != nil {
		slog.Warn("Rules file watch unavailable, refresh via admin endpoint only", "error", err)
	}

	registry := tools.NewRegistry()
	registry.Register(tools.NewCalculatorTool())
	registry.Register(tools.NewPricingLookupTool(loaderPriceTable{loader: loader}))
	registry.Register(tools.NewDirectoryLookupTool(gateway))
	executor := tools.NewExecutor(registry, nil)

	loop := reason.NewLoop(tiers, gateway, executor, registry, nil)

	sink, err := audit.NewBadgerSink(audit.DefaultConfig(config.AuditPath))
	if err != nil {
		log.Fatalf("Failed to open the audit store at %s: %v", config.AuditPath, err)
	}
	defer sink.Close()

	metrics := observability.InitMetrics()
	provider := memory.NewWeaviateProvider(weaviateClient)

	engine := assistant.NewEngine(loop, loader, nil, provider, sink, nil, metrics)

	router := gin.Default()
	router.Use(otelgin.Middleware("concierge-service"))
	routes.SetupRoutes(router, engine, loader, sink, weaviateClient, embedder, metrics)

	slog.Info("Starting the concierge server", "port", config.Port)
	if err := router.Run(":" + config.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
