package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"go.pilab.hu/authflow/bus"
	"go.pilab.hu/authflow/bus/redisbus"
	"go.pilab.hu/authflow/client"
	"go.pilab.hu/authflow/config"
	"go.pilab.hu/authflow/log"
	"go.pilab.hu/authflow/refresh"
	"go.pilab.hu/authflow/session"
	"go.pilab.hu/authflow/store"
	"go.pilab.hu/authflow/store/boltstore"
	"go.pilab.hu/authflow/store/mongostore"
	"go.pilab.hu/authflow/store/redisstore"
	"go.pilab.hu/authflow/transport"
)

var (
	flagServer string

	rootCmd = &cobra.Command{
		Use:          "authctl",
		Short:        "authctl manages a persisted session against the auth API",
		SilenceUsage: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "auth server endpoint (overrides config)")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, refreshCmd)
}

// pipeline bundles everything a command needs, plus its teardown.
type pipeline struct {
	manager *session.Manager
	cleanup func()
}

func (p *pipeline) close() {
	p.manager.Close()
	if p.cleanup != nil {
		p.cleanup()
	}
}

// buildStore constructs the session store and event bus named by
// STORE_BACKEND. The redis backend pairs the store with the pub/sub
// bridged bus so sibling processes observe each other's session
// changes; the others use the in-process bus.
func buildStore(cfg *config.ClientConfig, logger log.Logger) (store.SessionStore, bus.Bus, func(), error) {
	switch cfg.StoreBackend {
	case "", "bolt":
		dbPath := cfg.BoltPath
		if dbPath == "" || strings.Contains(dbPath, "$HOME") {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, nil, nil, fmt.Errorf("failed to resolve home directory: %w", err)
			}
			if dbPath == "" {
				dbPath = filepath.Join(home, ".authflow", "session.db")
			} else {
				dbPath = strings.ReplaceAll(dbPath, "$HOME", home)
			}
		}
		st, err := boltstore.Open(dbPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, bus.NewMemoryBus(), func() { st.Close() }, nil

	case "memory":
		return store.NewMemoryStore(), bus.NewMemoryBus(), func() {}, nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		st := redisstore.NewRedisStore(rdb, cfg.RedisPrefix)
		b := redisbus.NewRedisBus(rdb, redisbus.ChannelFor(cfg.RedisPrefix), logger)
		return st, b, func() {
			b.Close()
			rdb.Close()
		}, nil

	case "mongo":
		mcli, err := mongostore.Connect(context.Background(), cfg.MongoURI)
		if err != nil {
			return nil, nil, nil, err
		}
		st := mongostore.NewMongoStore(mcli.Database(cfg.MongoDBName), "authctl")
		return st, bus.NewMemoryBus(), func() {
			_ = mcli.Disconnect(context.Background())
		}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// buildPipeline wires the stored session, coordinator, transport and
// manager from configuration.
func buildPipeline() (*pipeline, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if flagServer != "" {
		cfg.ServerEndpoint = flagServer
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.NewZerologAdapter(level, cfg.LogPretty)

	st, b, cleanup, err := buildStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	// The coordinator refreshes through a raw client; refresh is an
	// unauthenticated endpoint and must not recurse into the pipeline.
	rawAPI := client.New(cfg.ServerEndpoint)
	coord := refresh.NewCoordinator(rawAPI, st, b,
		refresh.WithExtendSession(cfg.ExtendSession),
		refresh.WithLogger(logger))

	httpClient := transport.NewHTTPClient(st, coord,
		transport.WithNearExpiryWindow(cfg.NearExpiryWindow()),
		transport.WithLogger(logger))
	httpClient.Timeout = cfg.Timeout()

	api := client.New(cfg.ServerEndpoint, client.WithHTTPClient(httpClient))

	mgr := session.NewManager(api, st, b, coord,
		session.WithNearExpiryWindow(cfg.NearExpiryWindow()),
		session.WithLogger(logger))

	return &pipeline{manager: mgr, cleanup: cleanup}, nil
}
