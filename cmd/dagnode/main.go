package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/casperlabs/dagcore/config"
	"github.com/casperlabs/dagcore/dag"
	"github.com/casperlabs/dagcore/dagtypes"
	"github.com/casperlabs/dagcore/genesis"
	"github.com/casperlabs/dagcore/genesiscrypto"
	"github.com/casperlabs/dagcore/observability/logging"
	"github.com/casperlabs/dagcore/observability/metrics"
)

const version = "v0.1.0"

func main() {
	storeConfigPath := flag.String("store-config", "", "Path to the DAG store config.yaml (required)")
	ceremonyConfigPath := flag.String("ceremony-config", "", "Path to the genesis ceremony config.yaml")
	candidateHashHex := flag.String("candidate-hash", "", "Hex-encoded 32-byte hash identifying the genesis candidate block")
	validatorKeyPath := flag.String("validator-key", "", "Path to this node's Ed25519 secret key, for signing its own genesis approval")
	validatorPubPath := flag.String("validator-pub", "", "Path to this node's Ed25519 public key")
	metricsPort := flag.Int("metrics-port", 0, "Prometheus metrics port (0 = disabled)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logging.Init(parseLevel(*logLevel))
	log.SetOutput(io.Discard)
	logger := logging.NewComponentLogger(logging.CompNode)

	if *storeConfigPath == "" {
		logger.Error("--store-config flag is required")
		os.Exit(1)
	}

	logging.Banner(version)

	storeCfg, err := config.LoadStoreConfig(*storeConfigPath)
	if err != nil {
		logger.Error("failed to load store config", "err", err)
		os.Exit(1)
	}
	logger.Info("store config loaded",
		"dir", storeCfg.Dir,
		"checkpoint_size", storeCfg.CheckpointSize,
	)

	store, err := dag.OpenPersistent(storeCfg.Dir,
		dag.WithBlockMetadataMaxSizeFactor(storeCfg.BlockMetadataMaxSizeFactor),
		dag.WithCheckpointSize(storeCfg.CheckpointSize),
		dag.WithLatestMessageMaxSizeFactor(storeCfg.LatestMessageMaxSizeFactor),
		dag.WithLogger(logging.NewComponentLogger(logging.CompDag)),
	)
	if err != nil {
		logger.Error("failed to open DAG store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	rep := store.Representation()
	logger.Info("DAG store opened", "blocks", len(rep.Metadata))

	if *metricsPort > 0 {
		metrics.Serve(*metricsPort)
		logger.Info("metrics server started", "port", *metricsPort)
	}
	metrics.NodeInfo.WithLabelValues("dagnode", version).Set(1)
	metrics.NodeStartTime.SetToCurrentTime()
	metrics.DagBlockCount.Set(float64(len(rep.Metadata)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if *ceremonyConfigPath != "" {
		runGenesisCeremony(ctx, *ceremonyConfigPath, *candidateHashHex, *validatorKeyPath, *validatorPubPath, storeCfg.Dir, store, logger)
	}

	runIdleLoop(ctx, store, logger)
}

// runGenesisCeremony loads the ceremony configuration, runs the
// approval state machine to completion (or cancellation), and, on
// success, feeds the approved block into the DAG store as its first
// insert (spec §2's data-flow note).
func runGenesisCeremony(ctx context.Context, ceremonyPath, candidateHashHex, validatorKeyPath, validatorPubPath, dataDir string, store *dag.Store, logger *slog.Logger) {
	genLogger := logging.NewComponentLogger(logging.CompGenesis)

	ceremonyCfg, err := config.LoadCeremonyConfig(ceremonyPath)
	if err != nil {
		logger.Error("failed to load ceremony config", "err", err)
		os.Exit(1)
	}

	var hash dagtypes.Hash
	if candidateHashHex != "" {
		raw, err := hex.DecodeString(strings.TrimPrefix(candidateHashHex, "0x"))
		if err != nil || len(raw) != 32 {
			logger.Error("invalid --candidate-hash", "err", err)
			os.Exit(1)
		}
		copy(hash[:], raw)
	}

	bonded := make([]dagtypes.ValidatorID, 0, len(ceremonyCfg.Trusted))
	for v := range ceremonyCfg.Trusted {
		bonded = append(bonded, v)
	}
	candidate := genesis.Candidate{
		Block:        dagtypes.BlockMetadata{Hash: hash, BondedValidators: bonded},
		RequiredSigs: ceremonyCfg.Threshold,
	}

	blocksDir := filepath.Join(dataDir, "genesis-blocks")
	collab := genesis.Collaborators{
		ClockNowMillis:   func() int64 { return time.Now().UnixMilli() },
		BroadcastToPeers: func(tag string, payload []byte) { genLogger.Debug("broadcast", "tag", tag, "bytes", len(payload)) },
		IncrementCounter: func(name string) { metrics.GenesisApprovals.Inc() },
		BlockStorePut: func(h dagtypes.Hash, payload []byte) error {
			if err := os.MkdirAll(blocksDir, 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", blocksDir, err)
			}
			return os.WriteFile(filepath.Join(blocksDir, hex.EncodeToString(h[:])), payload, 0o644)
		},
		BlockStoreGet: func(h dagtypes.Hash) ([]byte, bool) {
			data, err := os.ReadFile(filepath.Join(blocksDir, hex.EncodeToString(h[:])))
			if err != nil {
				return nil, false
			}
			return data, true
		},
	}

	slot := &genesis.ApprovedSlot{}
	approver := genesis.NewApprover(candidate, ceremonyCfg.Threshold, ceremonyCfg.Trusted, ceremonyCfg.Duration, ceremonyCfg.PollInterval, collab, slot, genLogger)

	if validatorKeyPath != "" && validatorPubPath != "" {
		kp, err := genesiscrypto.LoadKeypair(validatorPubPath, validatorKeyPath)
		if err != nil {
			logger.Error("failed to load this node's validator key", "err", err)
			os.Exit(1)
		}
		sig := kp.Sign(candidate.CanonicalBytes())
		if err := approver.AddApproval(genesis.BlockApproval{
			Candidate: candidate,
			Signature: genesis.Signature{Pubkey: kp.Public, Algorithm: genesiscrypto.AlgorithmEd25519, Sig: sig},
		}); err != nil {
			genLogger.Warn("this node's own genesis approval was rejected", "err", err)
		}
	}

	genLogger.Info("genesis ceremony starting", "threshold", ceremonyCfg.Threshold, "trusted_validators", len(ceremonyCfg.Trusted))
	if err := approver.Run(ctx); err != nil {
		genLogger.Warn("genesis ceremony aborted", "err", err)
		return
	}

	approved, ok := slot.Get()
	if !ok {
		genLogger.Error("genesis ceremony completed without populating the approved slot")
		return
	}
	metrics.GenesisApproved.Set(1)
	genLogger.Info("genesis ceremony complete", "signatures", len(approved.Signatures))

	if err := store.Insert(approved.Candidate.Block); err != nil {
		logger.Error("failed to insert approved genesis block", "err", err)
	}
}

// runIdleLoop keeps the process alive, periodically reporting DAG
// size, until ctx is cancelled. Forkchoice, sync, and peer duties are
// out of scope for this core.
func runIdleLoop(ctx context.Context, store *dag.Store, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("node shutting down")
			return
		case <-ticker.C:
			rep := store.Representation()
			metrics.DagBlockCount.Set(float64(len(rep.Metadata)))
			if n := len(rep.TopoSort); n > 0 {
				metrics.DagMaxRank.Set(float64(n - 1))
			}
			logger.Info("status", "blocks", len(rep.Metadata), "ranks", len(rep.TopoSort))
		}
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
