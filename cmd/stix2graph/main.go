package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/athapong/stix2graph/pkg/config"
	"github.com/athapong/stix2graph/pkg/graph"
	"github.com/athapong/stix2graph/pkg/graph/processors"
	"github.com/athapong/stix2graph/pkg/graph/visualizer"
	"github.com/athapong/stix2graph/pkg/loader"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	configFile  = flag.String("config", "", "Path to YAML configuration file")
	envFile     = flag.String("env", ".env", "Path to environment file")
	storeDir    = flag.String("store", "", "Graph store directory (overrides store.directory)")
	visualize   = flag.String("visualize", "", "Write a D3.js visualization of the graph to this file")
	metricsAddr = flag.String("metrics-addr", "", "Address to serve Prometheus metrics on (overrides metrics.addr)")
	logLevel    = flag.String("log-level", "", "Logging level (overrides log.level)")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		logrus.Warnf("Error loading env file %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	if *storeDir != "" {
		cfg.Store.Directory = *storeDir
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		logrus.Fatalf("Invalid log configuration: %v", err)
	}

	files, err := inputFiles(flag.Args())
	if err != nil {
		logger.Fatalf("Failed to read inputs: %v", err)
	}
	if len(files) == 0 {
		logger.Fatal("No input bundles given")
	}

	var metricsServer *http.Server
	if cfg.Metrics.Addr != "" {
		metricsServer = serveMetrics(cfg.Metrics.Addr, logger)
	}

	ctx := context.Background()
	documents := make([]*graph.Document, 0, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			logger.Errorf("Failed to read file %s: %v", file, err)
			continue
		}
		documents = append(documents, &graph.Document{Name: file, Content: content})
	}

	pipeline := graph.NewPipeline(processors.NewBundleProcessor(logger), logger, graph.DefaultBatchSize)
	if err := pipeline.BatchProcess(ctx, documents); err != nil {
		logger.Fatalf("Failed to decode bundles: %v", err)
	}
	records := graph.Records(documents)

	ld, err := loader.New(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatalf("Failed to open graph store: %v", err)
	}

	// Closing the store on a signal makes the remaining transactions fail
	// fast, so the load returns.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		logger.Warnf("Received signal %v, closing graph store", sig)
		if err := ld.Close(); err != nil {
			logger.WithError(err).Error("Failed to close graph store")
		}
	}()

	logger.Infof("Loading %d records from %d bundles...", len(records), len(documents))
	summary := ld.Load(ctx, records)
	logger.WithFields(summary.Fields()).Info("Load completed")

	if *visualize != "" {
		if data, ok := ld.Snapshot(); ok {
			viz := visualizer.NewD3Visualizer(*visualize)
			if err := viz.Visualize(data); err != nil {
				logger.Errorf("Failed to visualize graph: %v", err)
			} else {
				logger.Infof("Visualization saved to %s", *visualize)
			}
		} else {
			logger.Warnf("The %s backend does not support visualization", cfg.Store.Backend)
		}
	}

	signal.Stop(sigCh)
	close(sigCh)
	if err := ld.Close(); err != nil {
		logger.WithError(err).Error("Failed to close graph store")
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Error during metrics server shutdown")
		}
	}
}

func serveMetrics(addr string, logger logrus.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Infof("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Metrics server stopped")
		}
	}()
	return srv
}

// inputFiles expands the arguments into bundle files; directories are
// walked for .json files in lexical order.
func inputFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
