// Command node starts a wildchain node.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/hollowdex/wildchain/config"
	"github.com/hollowdex/wildchain/consensus"
	"github.com/hollowdex/wildchain/core"
	"github.com/hollowdex/wildchain/crypto"
	"github.com/hollowdex/wildchain/crypto/certgen"
	"github.com/hollowdex/wildchain/events"
	"github.com/hollowdex/wildchain/indexer"
	"github.com/hollowdex/wildchain/network"
	"github.com/hollowdex/wildchain/oracle"
	"github.com/hollowdex/wildchain/params"
	"github.com/hollowdex/wildchain/relay"
	"github.com/hollowdex/wildchain/rewardsvc"
	"github.com/hollowdex/wildchain/rpc"
	"github.com/hollowdex/wildchain/storage"
	"github.com/hollowdex/wildchain/vm"
	"github.com/hollowdex/wildchain/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/hollowdex/wildchain/vm/modules/admin"
	_ "github.com/hollowdex/wildchain/vm/modules/hunt"
	_ "github.com/hollowdex/wildchain/vm/modules/reward"
	_ "github.com/hollowdex/wildchain/vm/modules/shop"
	_ "github.com/hollowdex/wildchain/vm/modules/token"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "validator.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit")
	flag.Parse()

	// Read keystore password from environment (not CLI flags, they leak via ps).
	password := os.Getenv("WILDCHAIN_PASSWORD")

	// ---- generate key mode ----
	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			fatal("generate key", err)
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			fatal("save key", err)
		}
		fmt.Printf("Generated key. Public key (validator address): %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	// ---- generate certs mode ----
	if *genCerts != "" {
		cfgForCerts, err := loadConfig(*cfgPath)
		if err != nil {
			fatal("config", err)
		}
		if err := certgen.GenerateAll(*genCerts, cfgForCerts.NodeID, nil); err != nil {
			fatal("gencerts", err)
		}
		fmt.Printf("Certificates generated in %s for node %q\n", *genCerts, cfgForCerts.NodeID)
		return
	}

	// ---- load config ----
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fatal("config", err)
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		fatal("logger", err)
	}
	defer log.Sync()

	if password == "" {
		log.Warn("WILDCHAIN_PASSWORD not set, keystore will use an empty password")
	}

	// ---- load validator key ----
	privKey, err := wallet.LoadKey(*keyPath, password)
	if err != nil {
		log.Fatal("load key", zap.Error(err))
	}

	// ---- game parameters ----
	gameParams := params.Default()
	if cfg.ParamsFile != "" {
		gameParams, err = params.Load(cfg.ParamsFile)
		if err != nil {
			log.Fatal("load params", zap.Error(err))
		}
	}
	if err := gameParams.Validate(); err != nil {
		log.Fatal("invalid params", zap.Error(err))
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal("mkdir data dir", zap.Error(err))
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		log.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	blockStore := storage.NewLevelBlockStore(db)
	state := storage.NewStateDB(db) // same DB, different key prefixes

	// ---- initialise blockchain ----
	bc := core.NewBlockchain(blockStore)
	if err := bc.Init(); err != nil {
		log.Fatal("blockchain init", zap.Error(err))
	}

	// ---- genesis block (if fresh chain) ----
	if bc.Tip() == nil {
		genesisBlock, err := config.CreateGenesisBlock(cfg, gameParams, state, privKey)
		if err != nil {
			log.Fatal("genesis", zap.Error(err))
		}
		if err := bc.AddBlock(genesisBlock); err != nil {
			log.Fatal("add genesis", zap.Error(err))
		}
		log.Info("genesis block committed", zap.String("hash", genesisBlock.Hash))
	}

	// ---- events / indexer / mempool ----
	emitter := events.NewEmitter(log.Named("events"))
	idx := indexer.New(db, emitter)
	mempool := core.NewMempool()

	// ---- roles and collaborators ----
	roles := vm.Roles{
		Operator: cfg.Roles.Operator,
		Oracle:   cfg.Roles.Oracle,
		Issuer:   cfg.Roles.Issuer,
	}
	if cfg.DevMode && roles.Operator == "" {
		roles.Operator = privKey.Public().Hex()
	}

	var orc oracle.Oracle
	var devOracle *oracle.Dev
	switch {
	case cfg.OracleURL != "":
		orc = oracle.NewHTTPClient(cfg.OracleURL, log.Named("oracle"))
	case cfg.DevMode:
		oracleKey, _, err := crypto.GenerateKeyPair()
		if err != nil {
			log.Fatal("dev oracle key", zap.Error(err))
		}
		devOracle = oracle.NewDev(cfg.Genesis.ChainID, oracleKey, mempool, 500*time.Millisecond, 0, log.Named("dev-oracle"))
		orc = devOracle
		roles.Oracle = devOracle.Identity()
		log.Info("dev oracle active", zap.String("identity", roles.Oracle))
	}

	var issuer rewardsvc.Issuer
	var devIssuer *rewardsvc.Dev
	switch {
	case cfg.IssuerURL != "":
		issuer = rewardsvc.NewHTTPClient(cfg.IssuerURL, log.Named("issuer"))
	case cfg.DevMode:
		issuerKey, _, err := crypto.GenerateKeyPair()
		if err != nil {
			log.Fatal("dev issuer key", zap.Error(err))
		}
		devIssuer = rewardsvc.NewDev(cfg.Genesis.ChainID, issuerKey, mempool, 500*time.Millisecond, log.Named("dev-issuer"))
		issuer = devIssuer
		roles.Issuer = devIssuer.Identity()
		log.Info("dev issuer active", zap.String("identity", roles.Issuer))
	}

	// ---- VM executor ----
	exec := vm.NewExecutor(cfg.Genesis.ChainID, state, emitter, gameParams, roles, log.Named("vm"))

	// ---- relay ----
	// Only the proposing node forwards requests to the external services.
	// Replicas execute the same blocks with no relay attached, so a request
	// is submitted exactly once no matter how many nodes replay it.
	var rly *relay.Relay
	if cfg.DevMode || isValidator(cfg.Validators, privKey.Public().Hex()) {
		rly = relay.New(emitter, orc, issuer, privKey.Public().Hex(), roles.Operator, log.Named("relay"))
		log.Info("relay active")
	}

	// ---- consensus ----
	poa := consensus.New(cfg, bc, state, mempool, exec, emitter, privKey, log.Named("consensus"))

	// ---- TLS ----
	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		log.Fatal("tls", zap.Error(err))
	}
	if tlsCfg != nil {
		log.Info("mTLS enabled for P2P")
	}

	// ---- network ----
	p2pAddr := fmt.Sprintf(":%d", cfg.P2PPort)
	node := network.NewNode(cfg.NodeID, p2pAddr, mempool, tlsCfg, log.Named("p2p"))
	syncer := network.NewSyncer(node, bc, poa, exec, state, log.Named("sync"))
	if err := node.Start(); err != nil {
		log.Fatal("p2p start", zap.Error(err))
	}
	defer node.Stop()
	log.Info("p2p listening", zap.String("addr", p2pAddr))

	// ---- connect to seed peers ("id@host:port") ----
	for _, sp := range cfg.SeedPeers {
		id, addr, ok := strings.Cut(sp, "@")
		if !ok {
			log.Warn("malformed seed peer, want id@host:port", zap.String("entry", sp))
			continue
		}
		if err := node.AddPeer(id, addr); err != nil {
			log.Warn("seed peer connect failed", zap.String("peer", sp), zap.Error(err))
			continue
		}
		if peer := node.Peer(id); peer != nil {
			syncer.SyncWithPeer(peer)
		}
		log.Info("connected to seed peer", zap.String("peer", sp))
	}

	// ---- RPC ----
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	feed := rpc.NewFeed(emitter, log.Named("ws"))
	rpcHandler := rpc.NewHandler(bc, mempool, state, idx, gameParams, cfg.Genesis.ChainID)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, feed, cfg.RPCAuthToken, log.Named("rpc"))
	if err := rpcServer.Start(); err != nil {
		log.Fatal("rpc start", zap.Error(err))
	}
	defer rpcServer.Stop()
	log.Info("rpc listening", zap.String("addr", rpcAddr))
	if cfg.RPCAuthToken != "" {
		log.Info("rpc bearer token authentication enabled")
	}

	// ---- run until signalled ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		poa.Run(2*time.Second, done)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		close(done)
		return nil
	})
	log.Info("consensus running", zap.String("validator", privKey.Public().Hex()))

	_ = g.Wait()
	log.Info("shutting down")

	if rly != nil {
		rly.Stop()
	}
	if devOracle != nil {
		devOracle.Stop()
	}
	if devIssuer != nil {
		devIssuer.Stop()
	}

	// Deferred calls run in LIFO: rpcServer.Stop → node.Stop → db.Close
	log.Info("shutdown complete")
}

func isValidator(validators []string, pubkey string) bool {
	for _, v := range validators {
		if v == pubkey {
			return true
		}
	}
	return false
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "config file not found at %s, using defaults\n", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
		lvl = parsed
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
