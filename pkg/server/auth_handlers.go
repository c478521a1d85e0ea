package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/cedarauth/cedar/pkg/authtree"
	"github.com/cedarauth/cedar/pkg/httputil"
)

// authenticateRequest is the client's side of the callback loop: the
// first request names only the tree; follow-ups carry the session ID and
// the answered callbacks.
type authenticateRequest struct {
	AuthID    string          `json:"authId,omitempty"`
	Callbacks json.RawMessage `json:"callbacks,omitempty"`
}

type authenticateResponse struct {
	AuthID      string          `json:"authId,omitempty"`
	Callbacks   json.RawMessage `json:"callbacks,omitempty"`
	Status      string          `json:"status,omitempty"`
	TokenID     string          `json:"tokenId,omitempty"`
	UniversalID string          `json:"universalId,omitempty"`
}

// authenticate drives one round of the tree evaluation loop. A request
// without an authId starts a fresh evaluation; a request with one resumes
// the suspended session with the submitted callback answers.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) {
	treeName := httputil.ParseQueryString(r, "tree", "")
	if !httputil.RequireNonEmpty(w, treeName, "tree") {
		return
	}

	var body authenticateRequest
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	var result *authtree.Result
	var err error
	activeTree := treeName
	if body.AuthID == "" {
		tree, ok := s.trees.Get(treeName)
		if !ok {
			httputil.WriteNotFoundError(w, "unknown authentication tree")
			return
		}
		result, err = tree.Evaluate(r.Context(), authtree.NewTreeContext(treeRequest(r)))
	} else {
		sess, ok := s.sessions.Get(body.AuthID)
		if !ok {
			httputil.WriteGone(w, "authentication session expired")
			return
		}
		// Sessions are single-use; a retried answer starts over.
		s.sessions.Remove(body.AuthID)

		tree, ok := s.trees.Get(sess.tree)
		if !ok {
			httputil.WriteGone(w, "authentication tree was reloaded")
			return
		}
		activeTree = sess.tree
		answers, aerr := authtree.UnmarshalCallbacks(body.Callbacks)
		if aerr != nil {
			httputil.WriteBadRequest(w, aerr.Error())
			return
		}
		// The suspended context holds the request that suspended it; the
		// resumed node must see this request's parameters instead.
		resumed := sess.context.WithRequest(treeRequest(r))
		result, err = tree.Resume(r.Context(), resumed, sess.nodeID, answers)
	}

	if err != nil {
		s.writeEvaluationError(w, err)
		return
	}

	switch result.Status {
	case authtree.StatusCallbacks:
		authID := uuid.New().String()
		s.sessions.Add(authID, &authSession{
			tree:    activeTree,
			nodeID:  result.NodeID,
			context: result.Context,
		})
		raw, merr := authtree.MarshalCallbacks(result.Callbacks)
		if merr != nil {
			httputil.WriteInternalError(w, merr)
			return
		}
		httputil.WriteSuccess(w, authenticateResponse{AuthID: authID, Callbacks: raw})

	case authtree.StatusSuccess:
		httputil.WriteJSON(w, http.StatusOK, authenticateResponse{
			Status:      "success",
			TokenID:     uuid.New().String(),
			UniversalID: result.UniversalID,
		})

	default:
		httputil.WriteJSON(w, http.StatusUnauthorized, authenticateResponse{Status: "failure"})
	}
}

func (s *Server) writeEvaluationError(w http.ResponseWriter, err error) {
	var cfgErr *authtree.ConfigError
	if errors.As(err, &cfgErr) {
		s.logger.WithError(err).Error("tree configuration error")
		httputil.WriteInternalError(w, errors.New("authentication tree misconfigured"))
		return
	}
	s.logger.WithError(err).Warn("authentication failed")
	httputil.WriteJSON(w, http.StatusUnauthorized, authenticateResponse{Status: "failure"})
}

// treeRequest snapshots the inbound HTTP request for node consumption.
func treeRequest(r *http.Request) *authtree.Request {
	return &authtree.Request{
		Headers:    r.Header,
		Parameters: r.URL.Query(),
		ClientIP:   r.RemoteAddr,
		Hostname:   r.Host,
		Locales:    r.Header.Values("Accept-Language"),
	}
}
