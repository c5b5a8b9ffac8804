// Command party runs one federation member's long-lived validator
// process: it observes both chain legs, participates in consensus
// sessions, signs agreed withdrawals, and submits them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/certen/bridge-validator/internal/assetchain"
	"github.com/certen/bridge-validator/internal/bus"
	"github.com/certen/bridge-validator/internal/chainwatch"
	"github.com/certen/bridge-validator/internal/config"
	"github.com/certen/bridge-validator/internal/finalize"
	"github.com/certen/bridge-validator/internal/metrics"
	"github.com/certen/bridge-validator/internal/party"
	"github.com/certen/bridge-validator/internal/store"
	"github.com/certen/bridge-validator/internal/tss"
	"github.com/certen/bridge-validator/internal/tss/localtss"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the party configuration file")
		showHelp   = flag.Bool("help", false, "show help message")
	)
	flag.Parse()

	if *showHelp {
		fmt.Println("usage: party -config <path>")
		return
	}

	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.EVM.RelayKeyHex == "" {
		log.Fatal("evm.relay_key_hex must be set to run the party process")
	}

	kv, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("open state store: %v", err)
	}
	repo := store.New(kv)

	keys := tss.NewKeyManager(cfg.DataDir)
	if !keys.HasKey() {
		log.Fatal("no keyshare found; run keygen first")
	}
	if err := keys.Load(); err != nil {
		log.Fatalf("load keyshare: %v", err)
	}

	peers := make(map[int]string, len(cfg.Peers))
	for _, p := range cfg.Peers {
		peers[p.ID] = p.Host
	}
	b := bus.New(cfg.PartyID, peers, cfg.BusSecret)

	evmClient, err := ethclient.Dial(cfg.EVM.RPCURL)
	if err != nil {
		log.Fatalf("dial evm rpc: %v", err)
	}
	assetClient := assetchain.NewClient(cfg.Asset.DaemonRPCURL, cfg.Asset.WalletRPCURL)

	evmObserver := chainwatch.NewEVMObserver(evmClient, cfg, repo)
	assetObserver := chainwatch.NewAssetObserver(assetClient, cfg, repo)

	evmSubmitter, err := finalize.NewEVMSubmitter(evmClient, cfg.EVM.ChainID, cfg.EVM.BridgeContractAddress, cfg.EVM.RelayKeyHex, cfg)
	if err != nil {
		log.Fatalf("build evm submitter: %v", err)
	}
	assetSubmitter := finalize.NewAssetSubmitter(assetClient)

	reg := metrics.New(prometheus.DefaultRegisterer)

	manager := party.New(party.Deps{
		Config: cfg,
		Bus:    b,
		Repo:   repo,
		Observers: map[string]chainwatch.Observer{
			cfg.EVM.ChainTag:   evmObserver,
			cfg.Asset.ChainTag: assetObserver,
		},
		Protocol:   localtss.Protocol{},
		Keys:       keys,
		AssetChain: assetClient,
		EVM:        evmSubmitter,
		Asset:      assetSubmitter,
		Metrics:    reg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := b.ListenAndServe(ctx, fmt.Sprintf("0.0.0.0:%d", cfg.ListenPort())); err != nil {
			log.Printf("bus listener stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"party_id": cfg.PartyID, "status": "ok"})
	})
	mux.Handle("/metrics", metrics.Handler())
	healthSrv := &http.Server{Addr: cfg.HealthAddr, Handler: mux}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("health listener stopped: %v", err)
		}
	}()

	if err := manager.Start(); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}
	log.Printf("party %d running: dest chains %s,%s, session interval %s", cfg.PartyID, cfg.EVM.ChainTag, cfg.Asset.ChainTag, cfg.SessionIntervalMS.Dur())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down")
	manager.Stop()
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)
}
