// Package session owns the per-client state: one data hook, one project
// config loader and one modal container per session.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"token-manager-dashboard/internal/datahook"
	"token-manager-dashboard/internal/modal"
	"token-manager-dashboard/internal/observability"
	"token-manager-dashboard/internal/projectconfig"
	"token-manager-dashboard/internal/solana"
)

// ErrClosed is returned by operations on a deleted session.
var ErrClosed = errors.New("session closed")

// Session is the explicit owner of one hook, one config loader and one modal.
type Session struct {
	ID        string
	Cluster   string
	CreatedAt time.Time

	Hook   *datahook.Hook
	Config *projectconfig.Loader
	Modal  *modal.Container[json.RawMessage]

	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// SetWallet parses wallet and hands it to the hook. An empty string
// disconnects the wallet.
func (s *Session) SetWallet(wallet string) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	if wallet == "" {
		s.Hook.SetWallet(solana.PublicKey{})
		return nil
	}
	pk, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return fmt.Errorf("wallet: %w", err)
	}
	s.Hook.SetWallet(pk)
	return nil
}

// Navigate re-resolves the tenant from query and loads its config when it
// changed. Load failures are logged and counted only; the previous config
// stays and no error reaches the caller. It fails only with ErrClosed.
func (s *Session) Navigate(ctx context.Context, query url.Values) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	project := projectconfig.ResolveProject(query)
	changed := project != "" && project != s.Config.Project()

	err := s.Config.Navigate(ctx, query)
	if errors.Is(err, projectconfig.ErrStaleProject) {
		return nil
	}
	if changed {
		observability.RecordConfigLoad(err)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("project", project).Msg("project config not loaded, keeping previous")
	}
	return nil
}

// Done is closed when the session is deleted.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) close() {
	s.cancel()
	s.Hook.Close()
	s.Modal.Dismiss()
	s.log.Info().Msg("session closed")
}
