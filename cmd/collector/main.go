// Command collector ingests OTLP trace export payloads from files into the
// in-memory stores and prints the reconstructed line runs as JSON. The wire
// transport that delivers spans in production is a separate concern; this
// binary exercises the full decode/reconstruct/persist pipeline offline.
//
// Usage: collector [file.pb|file.json ...]
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/flowline-ai/linerun-collector/internal/config"
	"github.com/flowline-ai/linerun-collector/internal/decoder"
	"github.com/flowline-ai/linerun-collector/internal/ingestion"
	"github.com/flowline-ai/linerun-collector/internal/linerun"
	"github.com/flowline-ai/linerun-collector/internal/store/memory"
)

func main() {
	cfg := config.Load()

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	spanStore := memory.NewSpanStore()
	eventStore := memory.NewEventStore()
	lineRunStore := memory.NewLineRunStore()

	dec := decoder.New(logger)
	builder := linerun.NewBuilder(lineRunStore, linerun.Options{
		DefaultCollection: cfg.DefaultCollection,
	}, logger)
	ing := ingestion.New(spanStore, eventStore, lineRunStore, builder, dec, logger,
		ingestion.Config{Workers: cfg.IngestWorkers})

	ctx := context.Background()
	for _, path := range os.Args[1:] {
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Error("read payload", "path", path, "err", err)
			os.Exit(1)
		}
		contentType := "application/x-protobuf"
		if strings.HasSuffix(path, ".json") {
			contentType = "application/json"
		}
		req, err := dec.DecodeRequest(raw, contentType)
		if err != nil {
			logger.Error("decode payload", "path", path, "err", err)
			os.Exit(1)
		}
		n, err := ing.IngestRequest(ctx, req)
		if err != nil {
			logger.Error("ingest payload", "path", path, "err", err)
			os.Exit(1)
		}
		logger.Info("payload ingested", "path", path, "spans", n)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, lineRun := range lineRunStore.LineRuns() {
		if err := enc.Encode(lineRun.RestObject()); err != nil {
			logger.Error("encode line run", "err", err)
			os.Exit(1)
		}
	}
}
