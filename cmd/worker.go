package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rolograph/rolograph/pkg/buildinfo"
	"github.com/rolograph/rolograph/pkg/db"
	"github.com/rolograph/rolograph/pkg/logging"
	"github.com/rolograph/rolograph/pkg/queues"
	"github.com/rolograph/rolograph/pkg/workers"
)

var workerMetricsAddr string

// WorkerCmd runs the background workers.
var WorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background workers",
	Long: `Run the background worker pools that consume the Redis queues:
fact extraction, duplicate scans and gap scans. Pool statistics, build
info and database pool metrics are exposed over HTTP.

Examples:
  rolo worker
  rolo worker --metrics-addr :9090`,
	RunE: runWorker,
}

func init() {
	WorkerCmd.Flags().StringVar(&workerMetricsAddr, "metrics-addr", "", "metrics listen address (overrides config)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := NewApp(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close()

	logger := app.Logger.With(logging.F("component", "worker-main"))

	redisClient := newRedisClient(app.Config)
	defer redisClient.Close()

	queueConfigs := queues.DefaultQueueConfigs()
	queueByName := make(map[string]queues.Queue, len(queueConfigs))
	for name, qc := range queueConfigs {
		queueByName[name] = queues.NewRedisQueue(redisClient, qc)
	}

	manager := workers.NewPoolManager()
	for workerType, wc := range workers.DefaultWorkerConfigs() {
		if workerType == workers.WorkerTypeExtract {
			wc.Count = app.Config.Workers.Count
		}
		queue, ok := queueByName[wc.QueueName]
		if !ok {
			return fmt.Errorf("no queue configured for %s", wc.QueueName)
		}
		manager.RegisterPool(workers.NewPool(wc, queue, app.Service.HandleMessage, app.Logger))
	}
	manager.StartAll()
	defer manager.StopAll()

	// Requeue jobs whose visibility timeout expired (worker crash, etc).
	recoveryDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-recoveryDone:
				return
			case <-ticker.C:
				for name, q := range queueByName {
					if rq, ok := q.(*queues.RedisQueue); ok {
						if err := rq.RecoverStaleMessages(); err != nil {
							logger.Warn("stale message recovery failed",
								logging.F("queue", name),
								logging.Err(err))
						}
					}
				}
			}
		}
	}()
	defer close(recoveryDone)

	prometheus.MustRegister(db.NewPoolStatsCollector(app.Pool, "rolograph"))

	addr := app.Config.Workers.MetricsAddr
	if workerMetricsAddr != "" {
		addr = workerMetricsAddr
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/version", buildinfo.Handler("rolo-worker"))
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(manager.AllStats())
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", logging.Err(err))
		}
	}()
	defer server.Close()

	logger.Info("workers started",
		logging.F("metrics_addr", addr),
		logging.F("extract_workers", app.Config.Workers.Count))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", logging.F("signal", sig.String()))
	case <-ctx.Done():
	}
	return nil
}
