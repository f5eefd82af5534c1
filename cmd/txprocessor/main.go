// Command txprocessor runs the transaction-receipt processing worker: it
// consumes pending transaction hashes from Redis, fetches receipts over
// JSON-RPC, and fans them out through the configured preloader chain.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chainindex/txprocessor/internal/config"
	"github.com/chainindex/txprocessor/internal/deadletter"
	"github.com/chainindex/txprocessor/internal/httpapi"
	"github.com/chainindex/txprocessor/internal/kvstore"
	"github.com/chainindex/txprocessor/internal/logging"
	"github.com/chainindex/txprocessor/internal/metrics"
	"github.com/chainindex/txprocessor/internal/pooldetector"
	"github.com/chainindex/txprocessor/internal/preloader"
	"github.com/chainindex/txprocessor/internal/preloader/eventfilter"
	"github.com/chainindex/txprocessor/internal/preloader/receiptdumper"
	"github.com/chainindex/txprocessor/internal/processor"
	"github.com/chainindex/txprocessor/internal/rpcclient"
)

func main() {
	app := &cli.App{
		Name:  "txprocessor",
		Usage: "index EVM transaction receipts through a configurable preloader chain",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "settings", Value: "config/settings.json", Usage: "path to settings.json"},
			&cli.StringFlag{Name: "preloaders", Value: "config/preloaders.json", Usage: "path to preloaders.json"},
			&cli.StringFlag{Name: "event-filters", Value: "config/event_filters.json", Usage: "path to the event filter config (overridden by EVENT_FILTER_CONFIG_PATH)"},
			&cli.StringFlag{Name: "projects", Value: "", Usage: "path to the project address-union file"},
			&cli.IntFlag{Name: "http-port", Value: 8080, Usage: "port for /healthz, /metrics, /debug/filters"},
			&cli.StringFlag{Name: "dead-letter-dsn", Value: "", EnvVars: []string{"DEAD_LETTER_DSN"}, Usage: "Postgres DSN for dead-letter persistence; left unset to disable"},
			&cli.StringFlag{Name: "address-gate", Value: "dynamic", Usage: "event filter address gate: \"dynamic\" (pool detector) or \"static\" (--projects allow-list)"},
		},
		Commands: []*cli.Command{
			runCommand(),
			reportCommand(),
			templateCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type wiring struct {
	settings       *config.Settings
	log            *zap.Logger
	kv             *kvstore.Store
	rpc            *rpcclient.Client
	cachingRPC     *rpcclient.CachingClient
	registry       *metrics.Registry
	detector       *pooldetector.Detector
	deadLtr        *deadletter.Store
	hookMgr        *preloader.Manager
	filterHook     *eventfilter.Hook
	filterCfgPath  string
}

// workerHealth implements httpapi.HealthChecker by probing the two external
// dependencies a stalled worker would otherwise fail silently against.
type workerHealth struct {
	kv  *kvstore.Store
	rpc *rpcclient.Client
}

func (h *workerHealth) Healthy(ctx context.Context) error {
	if err := h.kv.Ping(ctx); err != nil {
		return errors.Wrap(err, "redis unreachable")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := h.rpc.GetBlockNumber(ctx); err != nil {
		return errors.Wrap(err, "rpc node unreachable")
	}
	return nil
}

func wire(ctx context.Context, c *cli.Context) (*wiring, error) {
	settings, err := config.LoadSettings(c.String("settings"))
	if err != nil {
		return nil, err
	}

	log, err := logging.New(settings.Logs, logging.FileSinkConfig{Path: "logs/txprocessor.log"})
	if err != nil {
		return nil, err
	}

	kv, err := kvstore.Open(ctx, settings.Redis)
	if err != nil {
		return nil, err
	}

	rpc := rpcclient.New(settings.RPC, rate.Limit(20), 40, log)

	reg := metrics.New(prometheus.DefaultRegisterer)

	cachingRPC, err := rpcclient.NewCachingClient(rpc, 10_000, nil)
	if err != nil {
		return nil, err
	}

	detector, err := pooldetector.New(rpc, kv, pooldetector.DefaultConfig(), log, 50_000,
		pooldetector.MustLoadPoolABI(), pooldetector.MustLoadERC20ABI(), metrics.NewCacheRecorder(reg))
	if err != nil {
		return nil, err
	}

	var dl *deadletter.Store
	if dsn := c.String("dead-letter-dsn"); dsn != "" {
		dl, err = deadletter.OpenPostgres(dsn)
		if err != nil {
			return nil, err
		}
	}

	preloaderCfg, err := config.LoadPreloaderConfig(c.String("preloaders"))
	if err != nil {
		return nil, err
	}

	addresses, err := config.LoadProjectAddresses(c.String("projects"))
	if err != nil {
		return nil, err
	}

	var gate eventfilter.AddressGate
	switch c.String("address-gate") {
	case "static":
		gate = eventfilter.NewStaticAddressGate(addresses)
	case "dynamic", "":
		gate = eventfilter.NewDynamicAddressGate(detector)
	default:
		return nil, errors.Errorf("unknown --address-gate %q, want \"dynamic\" or \"static\"", c.String("address-gate"))
	}

	filterCfgPath := config.EventFilterConfigPath(c.String("event-filters"))
	var filterHook *eventfilter.Hook

	registry := map[string]preloader.Factory{
		"receipt_dumper": func(string) (preloader.Hook, error) {
			return receiptdumper.New(kv, settings.Redis.DataRetention), nil
		},
		"event_filter": func(string) (preloader.Hook, error) {
			filterCfg, err := config.LoadEventFiltersConfig(filterCfgPath)
			if err != nil {
				return nil, err
			}
			defs := eventFilterDefs(filterCfg)
			filterHook = eventfilter.New(log, kv, gate, defs)
			return filterHook, nil
		},
	}

	entries := make([]preloader.Entry, 0, len(preloaderCfg.Preloaders))
	for _, p := range preloaderCfg.Preloaders {
		entries = append(entries, preloader.Entry{Module: p.Module, ClassName: p.ClassName})
	}

	mgr := preloader.NewManager(registry)
	if err := mgr.Load(entries); err != nil {
		return nil, err
	}
	if err := mgr.Init(ctx); err != nil {
		return nil, err
	}

	return &wiring{
		settings:      settings,
		log:           log,
		kv:            kv,
		rpc:           rpc,
		cachingRPC:    cachingRPC,
		registry:      reg,
		detector:      detector,
		deadLtr:       dl,
		hookMgr:       mgr,
		filterHook:    filterHook,
		filterCfgPath: filterCfgPath,
	}, nil
}

// eventFilterDefs converts the parsed event-filter JSON into eventfilter's
// config-independent shape, shared by initial wiring and EVENT_FILTER_WATCH
// hot reloads.
func eventFilterDefs(cfg *config.EventFiltersConfig) []eventfilter.FilterDef {
	defs := make([]eventfilter.FilterDef, 0, len(cfg.Filters))
	for _, f := range cfg.Filters {
		defs = append(defs, eventfilter.FilterDef{
			Name:            f.FilterName,
			ABIPath:         f.ABIPath,
			EventTopics:     f.EventTopics,
			RedisKeyPattern: f.RedisKeyPattern,
		})
	}
	return defs
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "start the consumer loop",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := wire(ctx, c)
			if err != nil {
				return err
			}
			defer w.kv.Close()
			defer w.log.Sync()

			procCfg := processor.DefaultConfig(w.settings.Namespace, w.settings.Processor.RedisQueueKey)
			if w.settings.Processor.MaxConcurrentWorkers > 0 {
				procCfg.MaxConcurrentWorkers = w.settings.Processor.MaxConcurrentWorkers
			}
			if w.settings.Processor.RedisBlockTimeout > 0 {
				procCfg.BlockTimeout = time.Duration(w.settings.Processor.RedisBlockTimeout) * time.Second
			}

			var dl processor.DeadLetterRecorder
			if w.deadLtr != nil {
				dl = w.deadLtr
			}

			proc, err := processor.New(procCfg, w.kv, w.cachingRPC, w.hookMgr.Hooks(), dl, w.log, w.registry)
			if err != nil {
				return err
			}

			if os.Getenv("EVENT_FILTER_WATCH") == "1" && w.filterHook != nil {
				watcher, err := config.WatchEventFilters(w.filterCfgPath, func(cfg *config.EventFiltersConfig, err error) {
					if err != nil {
						w.log.Error("event filter config reload failed, keeping previous filters", zap.Error(err))
						return
					}
					if err := w.filterHook.Reload(ctx, eventFilterDefs(cfg)); err != nil {
						w.log.Error("event filter hot reload failed, keeping previous filters", zap.Error(err))
						return
					}
					w.log.Info("event filter config reloaded", zap.String("path", w.filterCfgPath))
				})
				if err != nil {
					return err
				}
				defer watcher.Close()
			}

			var filters httpapi.FilterLister
			if w.filterHook != nil {
				filters = w.filterHook
			}
			router := httpapi.NewRouter(filters, &workerHealth{kv: w.kv, rpc: w.rpc})
			httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", c.Int("http-port")), Handler: router}
			go func() {
				if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					w.log.Error("http server stopped unexpectedly", zap.Error(err))
				}
			}()

			runErr := make(chan error, 1)
			go func() { runErr <- proc.Run(ctx) }()

			select {
			case <-ctx.Done():
				w.log.Info("shutting down")
				_ = httpSrv.Close()
				return nil
			case err := <-runErr:
				return err
			}
		},
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "print a summary of the currently configured preloaders and, if --dead-letter-dsn is set, recent dead-lettered transactions",
		Action: func(c *cli.Context) error {
			preloaderCfg, err := config.LoadPreloaderConfig(c.String("preloaders"))
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Task Type", "Module", "Class"})
			for _, p := range preloaderCfg.Preloaders {
				table.Append([]string{p.TaskType, p.Module, p.ClassName})
			}
			table.Render()

			dsn := c.String("dead-letter-dsn")
			if dsn == "" {
				return nil
			}

			settings, err := config.LoadSettings(c.String("settings"))
			if err != nil {
				return err
			}
			dl, err := deadletter.OpenPostgres(dsn)
			if err != nil {
				return err
			}

			entries, err := dl.List(c.Context, settings.Namespace, 50)
			if err != nil {
				return err
			}

			fmt.Println()
			dlTable := tablewriter.NewWriter(os.Stdout)
			dlTable.SetHeader([]string{"Tx Hash", "Reason", "Attempts", "Created At"})
			for _, e := range entries {
				dlTable.Append([]string{e.TxHash, e.Reason, fmt.Sprintf("%d", e.Attempts), e.CreatedAt.Format(time.RFC3339)})
			}
			dlTable.Render()
			return nil
		},
	}
}

func templateCommand() *cli.Command {
	return &cli.Command{
		Name:  "template",
		Usage: "write a settings.json template with ${VAR} placeholders",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Value: "config/settings.template.json", Usage: "output path"},
		},
		Action: func(c *cli.Context) error {
			return os.WriteFile(c.String("out"), []byte(settingsTemplate), 0o644)
		},
	}
}

const settingsTemplate = `{
  "namespace": "${NAMESPACE}",
  "rpc": {
    "url": "${RPC_URL}",
    "retry": 3,
    "request_time_out": 10000000000
  },
  "redis": {
    "host": "${REDIS_HOST}",
    "port": 6379,
    "db": 0,
    "password": "${REDIS_PASSWORD}",
    "ssl": false,
    "cluster_mode": false,
    "data_retention": { "max_blocks": 100000, "ttl_seconds": 604800 }
  },
  "logs": {
    "debug_mode": false,
    "write_to_files": true,
    "level": "info"
  },
  "processor": {
    "redis_queue_key": "pending_transactions",
    "redis_block_timeout": 0,
    "max_concurrent_workers": 64
  }
}
`
