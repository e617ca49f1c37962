// Command solbot wires the engine against its concrete adapters and
// runs it until interrupted. It is a wiring demonstration, not a
// general-purpose configuration system: cluster endpoints come from
// environment variables, the simplest possible bootstrapping shape for
// a single-process deployment.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v7"

	"github.com/solbot/core/adapters/blockengine"
	"github.com/solbot/core/adapters/rpcclient"
	"github.com/solbot/core/adapters/wsclient"
	"github.com/solbot/core/common"
	"github.com/solbot/core/engine"
	"github.com/solbot/core/log"
)

const (
	envMainnetRPC   = "SOLBOT_MAINNET_RPC_URL"
	envMainnetWS    = "SOLBOT_MAINNET_WS_URL"
	envDevnetRPC    = "SOLBOT_DEVNET_RPC_URL"
	envDevnetWS     = "SOLBOT_DEVNET_WS_URL"
	envBlockEngine  = "SOLBOT_BLOCK_ENGINE_URL"
	envRedisAddr    = "SOLBOT_REDIS_ADDR" // optional; empty disables shared dedup
)

var logger = log.NewModuleLogger(log.Session).With("component", "cmd")

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	deps := buildClusterDeps()
	if len(deps) == 0 {
		logger.Error("no cluster RPC endpoints configured, nothing to run")
		os.Exit(1)
	}

	eng := engine.NewEngine(deps)
	eng.Run(ctx)
	logger.Info("solbot engine started", "clusters", len(deps))

	<-sigCh
	logger.Info("shutting down")
	cancel()
	eng.Shutdown()
	time.Sleep(200 * time.Millisecond) // let in-flight goroutines observe cancellation
}

func buildClusterDeps() []engine.ClusterDeps {
	blockEngineURL := os.Getenv(envBlockEngine)
	if blockEngineURL == "" {
		logger.Error("missing required env var", "var", envBlockEngine)
		return nil
	}
	be := blockengine.New(blockEngineURL)

	var shared *redis.Client
	if addr := os.Getenv(envRedisAddr); addr != "" {
		shared = redis.NewClient(&redis.Options{Addr: addr})
	}

	var deps []engine.ClusterDeps
	if d := buildOneCluster(common.Mainnet, os.Getenv(envMainnetRPC), os.Getenv(envMainnetWS), be, shared); d != nil {
		deps = append(deps, *d)
	}
	if d := buildOneCluster(common.Devnet, os.Getenv(envDevnetRPC), os.Getenv(envDevnetWS), be, shared); d != nil {
		deps = append(deps, *d)
	}
	return deps
}

func buildOneCluster(cluster common.Cluster, rpcURL, wsURL string, be *blockengine.Client, shared *redis.Client) *engine.ClusterDeps {
	if rpcURL == "" || wsURL == "" {
		return nil
	}
	rpc := rpcclient.New(rpcURL, 10*time.Second)
	return &engine.ClusterDeps{
		Cluster: cluster,
		Topics: map[engine.TopicKey]string{
			engine.TopicPumpfun: "PumpfunProgramID",
			engine.TopicRaydium: "RaydiumProgramID",
		},
		WsFactory: func(ctx context.Context) (engine.ClusterWsClient, error) {
			// EnsureSubscription registers OnMessage/OnClose/OnError and
			// calls Open itself once the handlers are wired, so the
			// factory only constructs the (unopened) client.
			return wsclient.New(wsURL), nil
		},
		Rpc:            rpc,
		BlockEngine:    be,
		RpcConcurrency: 2,
		SharedDedup:    shared,
	}
}
