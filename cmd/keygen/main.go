// Command keygen runs distributed key generation against the other
// configured parties, persists this party's keyshare, and prints the
// resulting group address.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/certen/bridge-validator/internal/bus"
	"github.com/certen/bridge-validator/internal/config"
	"github.com/certen/bridge-validator/internal/signcoord"
	"github.com/certen/bridge-validator/internal/tss"
	"github.com/certen/bridge-validator/internal/tss/localtss"
)

const dkgSessionID = "DKG_bootstrap"

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the party configuration file")
		force      = flag.Bool("force", false, "regenerate even if a keyshare already exists")
	)
	flag.Parse()

	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	keys := tss.NewKeyManager(cfg.DataDir)
	if keys.HasKey() && !*force {
		log.Fatal("a keyshare already exists; pass -force to regenerate")
	}

	peers := make(map[int]string, len(cfg.Peers))
	parties := make([]int, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		peers[p.ID] = p.Host
		parties = append(parties, p.ID)
	}
	b := bus.New(cfg.PartyID, peers, cfg.BusSecret)

	listenCtx, cancelListen := context.WithCancel(context.Background())
	defer cancelListen()
	go func() {
		if err := b.ListenAndServe(listenCtx, fmt.Sprintf("0.0.0.0:%d", cfg.ListenPort())); err != nil {
			log.Printf("bus listener stopped: %v", err)
		}
	}()
	time.Sleep(500 * time.Millisecond)

	transport := signcoord.NewBusTransport(b, dkgSessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	log.Printf("running DKG: party=%d parties=%v threshold=%d", cfg.PartyID, parties, cfg.Threshold)
	result, err := (localtss.Protocol{}).DKG(ctx, transport, cfg.PartyID, parties, cfg.Threshold)
	if err != nil {
		log.Fatalf("dkg failed: %v", err)
	}

	if err := keys.Store(result); err != nil {
		log.Fatalf("persist keyshare: %v", err)
	}

	groupAddr, err := keys.GroupEVMAddress()
	if err != nil {
		log.Fatalf("derive group address: %v", err)
	}
	log.Printf("keyshare persisted under %s", cfg.DataDir)
	fmt.Printf("group public key: %s\n", hex.EncodeToString(result.GroupPublicKey))
	fmt.Printf("group evm address: 0x%s\n", hex.EncodeToString(groupAddr[:]))
}

var _ tss.Protocol = localtss.Protocol{}
