package interop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/alznet/niev/internal/atomic"
	"github.com/alznet/niev/internal/config"
	"github.com/alznet/niev/internal/connector"
	"github.com/alznet/niev/internal/consensus"
	"github.com/alznet/niev/internal/execution"
	"github.com/alznet/niev/internal/merkle"
	"github.com/alznet/niev/internal/metrics"
	"github.com/alznet/niev/internal/signing"
	"github.com/alznet/niev/internal/storage"
	"github.com/alznet/niev/internal/types"
	"github.com/alznet/niev/internal/zkproof"
)

var logger = logrus.StandardLogger().WithField("module", "interop")

// Service composes the execution, proof, merkle, consensus and atomic layers
type Service struct {
	config *config.Config

	router    *connector.Router
	simulated *connector.Simulated
	executor  *execution.Executor
	zk        *zkproof.Engine
	merkle    *merkle.Tunnel
	consensus *consensus.Layer
	atomic    *atomic.Orchestrator

	transfers TransferConnector
	signer    signing.Service
	registry  *prometheus.Registry
	metrics   *metrics.Metrics

	closers []func()
}

// Option configures a Service
type Option func(*Service)

// WithTransferConnector enables RealTransfer
func WithTransferConnector(t TransferConnector) Option {
	return func(s *Service) { s.transfers = t }
}

// WithSigner sets the signing service used for transfers
func WithSigner(signer signing.Service) Option {
	return func(s *Service) { s.signer = signer }
}

// WithConnector serves chain through c instead of the simulated connector
func WithConnector(chain string, c connector.Connector) Option {
	return func(s *Service) { s.router.Register(chain, c) }
}

// NewService creates a new service from cfg
func NewService(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Service{
		config:    cfg,
		simulated: connector.NewSimulated(),
		registry:  prometheus.NewRegistry(),
	}
	s.simulated.SetLatency(cfg.Connector.Latency)
	for _, chain := range cfg.Connector.FailChains {
		s.simulated.FailChain(chain, nil)
	}
	s.router = connector.NewRouter(s.simulated)

	if cfg.Metrics.Enabled {
		m, err := metrics.NewMetrics(s.registry, cfg.Metrics.Namespace)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		s.metrics = m
	}

	for _, endpoint := range cfg.Connector.EVM {
		evm, err := connector.DialEVM(ctx, endpoint.Chain, endpoint.URL, endpoint.RateLimit, endpoint.Burst)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.router.Register(endpoint.Chain, evm)
		s.closers = append(s.closers, evm.Close)
		logger.WithField("chain", endpoint.Chain).Infof("evm connector registered")
	}

	for _, opt := range opts {
		opt(s)
	}

	zkStore, consensusStore := s.registries(cfg.Registry)

	backend, err := newBackend(cfg.ZK.Backend)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.zk = zkproof.NewEngine(backend, zkStore, cfg.ZKProofType(), s.metrics)

	mapping, def, err := cfg.ConsensusTypes()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.consensus, err = consensus.NewLayer(&consensus.Config{Default: def, ChainTypes: mapping}, consensusStore, s.metrics)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.merkle = merkle.NewTunnel(merkle.DefaultDepth, s.metrics)
	s.executor = execution.NewExecutor(s.router, execution.Config{Timeout: cfg.Connector.Timeout}, s.metrics)

	records, err := storage.NewRecordStore(cfg.Atomic.RecordDir)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.atomic = atomic.NewOrchestrator(s.executor, s.zk, s.merkle, s.consensus, records, s.metrics, atomic.Options{
		SourceChain:     cfg.SourceChain,
		Parallel:        cfg.Atomic.Parallel,
		RollbackTimeout: cfg.Connector.Timeout,
	})

	logger.WithFields(logrus.Fields{
		"source":   cfg.SourceChain,
		"backend":  backend.Name(),
		"registry": cfg.Registry.Backend,
	}).Infof("interop service initialized")
	return s, nil
}

func (s *Service) registries(cfg config.RegistryConfig) (storage.Store, storage.Store) {
	if cfg.Backend != "redis" {
		return storage.NewMemoryStore(cfg.TTL), storage.NewMemoryStore(cfg.TTL)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	s.closers = append(s.closers, func() { _ = client.Close() })
	return storage.NewRedisStoreWithClient(client, cfg.Redis.Prefix+"zk:", cfg.TTL),
		storage.NewRedisStoreWithClient(client, cfg.Redis.Prefix+"consensus:", cfg.TTL)
}

func newBackend(name string) (zkproof.Backend, error) {
	switch name {
	case "", "placeholder":
		return zkproof.NewPlaceholder(), nil
	case "groth16":
		return zkproof.NewGroth16()
	}
	return nil, fmt.Errorf("unknown zk backend %q", name)
}

// Close releases connector and registry connections
func (s *Service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Simulated returns the fallback connector
func (s *Service) Simulated() *connector.Simulated { return s.simulated }

// Executor returns the execution layer
func (s *Service) Executor() *execution.Executor { return s.executor }

// ZK returns the proof layer
func (s *Service) ZK() *zkproof.Engine { return s.zk }

// Merkle returns the merkle layer
func (s *Service) Merkle() *merkle.Tunnel { return s.merkle }

// Consensus returns the consensus layer
func (s *Service) Consensus() *consensus.Layer { return s.consensus }

// Orchestrator returns the atomic orchestrator
func (s *Service) Orchestrator() *atomic.Orchestrator { return s.atomic }

// Registry returns the metrics registry
func (s *Service) Registry() *prometheus.Registry { return s.registry }

// ExecuteCrossChainWithProofs executes one call and attaches all three
// proofs. A failed execution is returned unproven along with its error.
func (s *Service) ExecuteCrossChainWithProofs(
	ctx context.Context,
	sourceChain, targetChain, function string,
	params map[string]interface{},
) (*types.ExecutionResult, error) {
	result, err := s.executor.Execute(ctx, sourceChain, targetChain, function, params, "")
	if err != nil {
		return result, err
	}

	zk, err := s.zk.Generate(ctx, result, "cross_chain_"+targetChain, "verifier_"+targetChain)
	if err != nil {
		return result, &types.ProofGenerationError{Chain: targetChain, Layer: "zk", Err: err}
	}

	now := time.Now()
	height := uint64(now.Unix() % 1000000)
	if result.BlockNumber != nil {
		height = *result.BlockNumber
	}
	blockHash := types.HashHex(targetChain, fmt.Sprintf("%d", now.UnixNano()))
	paramsHash, err := types.CanonicalHash(params)
	if err != nil {
		return result, &types.ProofGenerationError{Chain: targetChain, Layer: "merkle", Err: err}
	}
	txHash := types.HashHex(function, paramsHash)

	mp, err := s.merkle.Create(targetChain, blockHash, txHash, height)
	if err != nil {
		return result, &types.ProofGenerationError{Chain: targetChain, Layer: "merkle", Err: err}
	}

	cp, err := s.consensus.Generate(ctx, targetChain, s.consensus.TypeFor(targetChain), height, blockHash)
	if err != nil {
		return result, &types.ProofGenerationError{Chain: targetChain, Layer: "consensus", Err: err}
	}

	if err := result.AttachProofs(zk, mp, cp); err != nil {
		return result, err
	}

	logger.WithFields(logrus.Fields{
		"source":   sourceChain,
		"target":   targetChain,
		"function": function,
	}).Infof("cross-chain execution proven")
	return result, nil
}

// VerifyResult checks every proof attached to result
func (s *Service) VerifyResult(ctx context.Context, chain string, result *types.ExecutionResult) error {
	if result == nil || !result.FullyProven() {
		return fmt.Errorf("%w: result is not fully proven", types.ErrInvalidProof)
	}
	if err := s.zk.Check(ctx, result.ZKProof); err != nil {
		return &types.ProofVerificationError{Chain: chain, Layer: "zk", Err: err}
	}
	if !s.merkle.Verify(result.MerkleProof) {
		return &types.ProofVerificationError{Chain: chain, Layer: "merkle"}
	}
	v, err := s.consensus.Verify(ctx, result.ConsensusProof)
	if err != nil || !v.Valid {
		return &types.ProofVerificationError{Chain: chain, Layer: "consensus", Err: err}
	}
	return nil
}

// ExecuteAtomic runs calls as one atomic unit
func (s *Service) ExecuteAtomic(ctx context.Context, calls []types.Call) (*types.AtomicRecord, error) {
	return s.atomic.ExecuteAtomic(ctx, calls)
}

// ParseCall parses "chain:function" or "chain:function:{json params}"
func ParseCall(raw string) (types.Call, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return types.Call{}, fmt.Errorf("%w: %q, want chain:function[:params]", types.ErrInvalidCall, raw)
	}
	call := types.Call{Chain: parts[0], Function: parts[1], Params: map[string]interface{}{}}
	if len(parts) == 3 && parts[2] != "" {
		if err := decodeParams(parts[2], &call.Params); err != nil {
			return types.Call{}, fmt.Errorf("%w: params of %s: %v", types.ErrInvalidCall, parts[0], err)
		}
	}
	return call, nil
}
