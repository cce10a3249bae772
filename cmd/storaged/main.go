package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aloksahay/fairbnb-sub000/build"
	"github.com/aloksahay/fairbnb-sub000/chain"
	"github.com/aloksahay/fairbnb-sub000/config"
	"github.com/aloksahay/fairbnb-sub000/gateway"
	shttp "github.com/aloksahay/fairbnb-sub000/http"
	"github.com/aloksahay/fairbnb-sub000/persist/badger"
	"github.com/aloksahay/fairbnb-sub000/staging"
	"github.com/aloksahay/fairbnb-sub000/stornet"
	"go.sia.tech/jape"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

var (
	dir = "."
	cfg = config.Config{
		Chain: config.Chain{
			RPCURL:       "http://localhost:8545",
			PricePerByte: 100,
		},
		Nodes: config.Nodes{
			Endpoints:      []string{"http://localhost:5678"},
			RequestTimeout: 30 * time.Second,
			MaxConcurrent:  16,
			CacheSize:      64,
		},
		Validation: config.Validation{
			MaxSize:    10 << 20,
			MimeTypes:  []string{"image/png", "image/jpeg", "application/pdf"},
			Extensions: []string{"png", "jpg", "jpeg", "pdf"},
		},
		Retry: config.Retry{
			Upload: config.RetryPolicy{
				MaxAttempts:    3,
				BaseBackoff:    5 * time.Second,
				AttemptTimeout: 30 * time.Second,
			},
			Download: config.RetryPolicy{
				MaxAttempts:    3,
				BaseBackoff:    3 * time.Second,
				AttemptTimeout: 30 * time.Second,
			},
		},
		API: config.API{
			Address: ":8081",
		},
		Log: config.Log{
			Level: "info",
		},
	}
)

// mustLoadConfig loads the config file.
func mustLoadConfig(dir string, log *zap.Logger) {
	configPath := filepath.Join(dir, "storaged.yml")

	// If the config file doesn't exist, don't try to load it.
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return
	}

	f, err := os.Open(configPath)
	if err != nil {
		log.Fatal("failed to open config file", zap.Error(err))
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		log.Fatal("failed to decode config file", zap.Error(err))
	}
}

func main() {
	// configure console logging note: this is configured before anything else
	// to have consistent logging. File logging will be added after the cli
	// flags and config is parsed
	consoleCfg := zap.NewProductionEncoderConfig()
	consoleCfg.TimeKey = "" // prevent duplicate timestamps
	consoleCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	consoleCfg.EncodeDuration = zapcore.StringDurationEncoder
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleCfg.StacktraceKey = ""
	consoleCfg.CallerKey = ""
	consoleEncoder := zapcore.NewConsoleEncoder(consoleCfg)

	// only log info messages to console unless stdout logging is enabled
	consoleCore := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(zap.InfoLevel))
	log := zap.New(consoleCore, zap.AddCaller())
	defer log.Sync()
	// redirect stdlib log to zap
	zap.RedirectStdLog(log.Named("stdlib"))

	flag.StringVar(&dir, "dir", dir, "directory to use for data")
	flag.Parse()

	mustLoadConfig(dir, log)

	var level zap.AtomicLevel
	switch cfg.Log.Level {
	case "debug":
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		log.Fatal("invalid log level", zap.String("level", cfg.Log.Level))
	}

	log = log.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level)
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	db, err := badger.OpenDatabase(filepath.Join(dir, "storaged.badgerdb"), log.Named("badger"))
	if err != nil {
		log.Fatal("failed to open badger database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Staging.Dir == "" {
		cfg.Staging.Dir = filepath.Join(dir, "staging")
	}
	stager, err := staging.New(cfg.Staging.Dir, log.Named("staging"))
	if err != nil {
		log.Fatal("failed to create staging directory", zap.Error(err))
	}

	ledger, err := chain.Dial(ctx, cfg.Chain, log.Named("chain"))
	if err != nil {
		log.Fatal("failed to dial settlement ledger", zap.Error(err))
	}
	defer ledger.Close()

	nodes := make([]*stornet.NodeClient, 0, len(cfg.Nodes.Endpoints))
	for _, endpoint := range cfg.Nodes.Endpoints {
		node, err := stornet.DialNode(ctx, endpoint)
		if err != nil {
			log.Fatal("failed to dial storage node", zap.String("endpoint", endpoint), zap.Error(err))
		}
		nodes = append(nodes, node)
	}

	backend, err := stornet.NewBackend(ledger, nodes, cfg.Nodes, log.Named("stornet"))
	if err != nil {
		log.Fatal("failed to create storage backend", zap.Error(err))
	}
	defer backend.Close()

	gw := gateway.New(backend, db, stager, cfg, log.Named("gateway"))

	apiListener, err := net.Listen("tcp", cfg.API.Address)
	if err != nil {
		log.Fatal("failed to listen", zap.Error(err))
	}
	defer apiListener.Close()

	apiServer := &http.Server{
		Handler: jape.BasicAuth(cfg.API.Password)(shttp.NewAPIHandler(gw, cfg, log.Named("api"))),
	}
	defer apiServer.Close()

	go func() {
		if err := apiServer.Serve(apiListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to serve api", zap.Error(err))
		}
	}()

	log.Info("storaged started",
		zap.String("identity", ledger.Address().Hex()),
		zap.String("apiAddress", apiListener.Addr().String()),
		zap.Int("storageNodes", len(nodes)),
		zap.String("version", build.Version()),
		zap.String("revision", build.Commit()),
		zap.Time("buildTime", build.Time()))

	<-ctx.Done()
}
