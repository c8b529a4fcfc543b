package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"token-manager-dashboard/internal/datahook"
	"token-manager-dashboard/internal/domain"
	"token-manager-dashboard/internal/environment"
	"token-manager-dashboard/internal/projectconfig"
	"token-manager-dashboard/internal/session"
	"token-manager-dashboard/internal/solana"
)

const maxBodyBytes = 1 << 20

type ctxKey struct{}

// sessionCtx resolves {id} and stores the session in the request context.
func (s *Server) sessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(ctxKey{}).(*session.Session)
}

type createSessionRequest struct {
	Wallet  string `json:"wallet"`
	Cluster string `json:"cluster"`
	// Query is a raw navigation query string, e.g. "host=dev-acme.example.com".
	Query string `json:"query"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	Cluster   string    `json:"cluster"`
	Source    string    `json:"source"`
	Wallet    string    `json:"wallet,omitempty"`
	Project   string    `json:"project,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func newSessionResponse(sess *session.Session) sessionResponse {
	resp := sessionResponse{
		ID:        sess.ID,
		Cluster:   sess.Cluster,
		Source:    sess.Hook.Source().String(),
		Project:   sess.Config.Project(),
		CreatedAt: sess.CreatedAt,
	}
	if w, ok := sess.Hook.Wallet(); ok {
		resp.Wallet = w.String()
	}
	return resp
}

type stateResponse struct {
	Cluster       string             `json:"cluster"`
	Wallet        string             `json:"wallet,omitempty"`
	Data          []domain.TokenData `json:"data"`
	HasValue      bool               `json:"hasValue"`
	Loading       bool               `json:"loading"`
	Stale         bool               `json:"stale"`
	Error         string             `json:"error,omitempty"`
	UpdatedAt     *time.Time         `json:"updatedAt,omitempty"`
	NextRefreshAt *time.Time         `json:"nextRefreshAt,omitempty"`
}

func newStateResponse(sess *session.Session, st datahook.State) stateResponse {
	resp := stateResponse{
		Cluster:  sess.Cluster,
		Data:     st.Value,
		HasValue: st.HasValue,
		Loading:  st.Loading,
		Stale:    st.Stale,
	}
	if w, ok := sess.Hook.Wallet(); ok {
		resp.Wallet = w.String()
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if !st.UpdatedAt.IsZero() {
		t := st.UpdatedAt
		resp.UpdatedAt = &t
	}
	if !st.NextRefreshAt.IsZero() {
		t := st.NextRefreshAt
		resp.NextRefreshAt = &t
	}
	return resp
}

type configResponse struct {
	Project string               `json:"project,omitempty"`
	Config  projectconfig.Config `json:"config"`
}

type modalResponse struct {
	Open    bool            `json:"open"`
	Content json.RawMessage `json:"content,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"service":  "token-manager-dashboard",
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query, err := url.ParseQuery(req.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}

	sess, err := s.sessions.Create(r.Context(), session.CreateRequest{
		Wallet:  req.Wallet,
		Cluster: req.Cluster,
		Query:   query,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSessionResponse(sessionFrom(r)))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(sessionFrom(r).ID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTokenManagers(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	writeJSON(w, http.StatusOK, newStateResponse(sess, sess.Hook.State()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	st, err := sess.Hook.RefreshAndWait(r.Context())
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(sess, st))
}

func (s *Server) handleSetWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet string `json:"wallet"`
	}
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess := sessionFrom(r)
	if err := sess.SetWallet(req.Wallet); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query, err := url.ParseQuery(req.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query: "+err.Error())
		return
	}

	sess := sessionFrom(r)
	if err := sess.Navigate(r.Context(), query); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, configResponse{Project: sess.Config.Project(), Config: sess.Config.Config()})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	writeJSON(w, http.StatusOK, configResponse{Project: sess.Config.Project(), Config: sess.Config.Config()})
}

func (s *Server) handleGetModal(w http.ResponseWriter, r *http.Request) {
	content, open := sessionFrom(r).Modal.Current()
	writeJSON(w, http.StatusOK, modalResponse{Open: open, Content: content})
}

func (s *Server) handleShowModal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "modal content must be JSON")
		return
	}
	sess := sessionFrom(r)
	sess.Modal.Show(json.RawMessage(body))
	content, open := sess.Modal.Current()
	writeJSON(w, http.StatusOK, modalResponse{Open: open, Content: content})
}

func (s *Server) handleDismissModal(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).Modal.Dismiss()
	writeJSON(w, http.StatusOK, modalResponse{})
}

func decodeBody(r *http.Request, v interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrClosed):
		return http.StatusNotFound
	case errors.Is(err, environment.ErrUnknownCluster), errors.Is(err, solana.ErrInvalidPublicKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
