package tokenmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"token-manager-dashboard/internal/domain"
	"token-manager-dashboard/internal/solana"
)

// Defaults for off-chain metadata retrieval.
const (
	DefaultMetadataConcurrency = 8
	DefaultMetadataTimeout     = 10 * time.Second
	maxMetadataBody            = 1 << 20
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "tokenmanager").Logger()
}

// SetLogger replaces the package logger.
func SetLogger(l zerolog.Logger) {
	log = l
}

// ChainSource loads token managers and their metadata over Solana RPC.
type ChainSource struct {
	rpc         solana.RPCClient
	http        *http.Client
	concurrency int
}

// Option configures ChainSource.
type Option func(*ChainSource)

// WithHTTPClient sets the client used for off-chain metadata documents.
func WithHTTPClient(c *http.Client) Option {
	return func(s *ChainSource) {
		s.http = c
	}
}

// WithConcurrency bounds parallel off-chain metadata requests.
func WithConcurrency(n int) Option {
	return func(s *ChainSource) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewChainSource creates a ChainSource over rpc.
func NewChainSource(rpc solana.RPCClient, opts ...Option) *ChainSource {
	s := &ChainSource{
		rpc:         rpc,
		http:        &http.Client{Timeout: DefaultMetadataTimeout},
		concurrency: DefaultMetadataConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchForIssuer returns every token manager issued by issuer with metadata resolved.
func (s *ChainSource) FetchForIssuer(ctx context.Context, issuer solana.PublicKey) ([]domain.TokenData, error) {
	managers, err := s.GetTokenManagersForIssuer(ctx, issuer)
	if err != nil {
		return nil, err
	}
	return s.GetTokenDatas(ctx, managers)
}

// GetTokenManagersForIssuer enumerates token manager accounts whose issuer is issuer.
// Accounts that fail to decode are skipped.
func (s *ChainSource) GetTokenManagersForIssuer(ctx context.Context, issuer solana.PublicKey) ([]domain.TokenManager, error) {
	accounts, err := s.rpc.GetProgramAccounts(ctx, solana.TokenManagerProgramID, []solana.AccountFilter{
		{Memcmp: &solana.MemcmpFilter{Offset: 0, Bytes: Discriminator[:]}},
		{Memcmp: &solana.MemcmpFilter{Offset: IssuerOffset, Bytes: issuer.Bytes()}},
	})
	if err != nil {
		return nil, fmt.Errorf("get token managers for issuer %s: %w", issuer, err)
	}

	managers := make([]domain.TokenManager, 0, len(accounts))
	for _, acc := range accounts {
		data, err := acc.Account.DecodeData()
		if err != nil {
			log.Warn().Err(err).Str("account", acc.Pubkey.String()).Msg("skipping token manager")
			continue
		}
		parsed, err := DecodeTokenManager(data)
		if err != nil {
			log.Warn().Err(err).Str("account", acc.Pubkey.String()).Msg("skipping token manager")
			continue
		}
		managers = append(managers, domain.TokenManager{Pubkey: acc.Pubkey, Parsed: parsed})
	}

	return managers, nil
}

// GetTokenDatas resolves Metaplex and off-chain metadata for each manager,
// preserving input order. Missing or malformed metadata leaves the
// corresponding field nil; only RPC failures are returned as errors.
func (s *ChainSource) GetTokenDatas(ctx context.Context, managers []domain.TokenManager) ([]domain.TokenData, error) {
	out := make([]domain.TokenData, len(managers))
	if len(managers) == 0 {
		return out, nil
	}

	addrs := make([]solana.PublicKey, len(managers))
	for i := range managers {
		tm := managers[i]
		out[i].TokenManager = &tm

		addr, err := MetadataAddress(tm.Parsed.Mint)
		if err != nil {
			return nil, err
		}
		addrs[i] = addr
	}

	infos, err := s.rpc.GetMultipleAccounts(ctx, addrs)
	if err != nil {
		return nil, fmt.Errorf("get metadata accounts: %w", err)
	}
	if len(infos) != len(addrs) {
		return nil, fmt.Errorf("get metadata accounts: expected %d, got %d", len(addrs), len(infos))
	}

	for i, info := range infos {
		if info == nil {
			continue
		}
		data, err := info.DecodeData()
		if err != nil {
			continue
		}
		md, err := DecodeMetadata(data)
		if err != nil {
			log.Debug().Err(err).Str("account", addrs[i].String()).Msg("unreadable metadata")
			continue
		}
		out[i].MetaplexData = &domain.MetaplexAccount{Pubkey: addrs[i], Data: md}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range out {
		mp := out[i].MetaplexData
		if mp == nil || mp.Data.URI == "" {
			continue
		}
		g.Go(func() error {
			doc, err := s.fetchOffchain(gctx, mp.Data.URI)
			if err != nil {
				log.Debug().Err(err).Str("uri", mp.Data.URI).Msg("off-chain metadata unavailable")
				return nil
			}
			out[i].Metadata = &domain.OffchainMetadata{Pubkey: mp.Pubkey, Data: doc}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func (s *ChainSource) fetchOffchain(ctx context.Context, uri string) (*domain.OffchainData, error) {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		return nil, fmt.Errorf("unsupported uri scheme: %q", uri)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var doc domain.OffchainData
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBody)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode metadata document: %w", err)
	}
	return &doc, nil
}
