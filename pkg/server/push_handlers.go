package server

import (
	"errors"
	"net/http"

	"github.com/cedarauth/cedar/pkg/httputil"
	"github.com/cedarauth/cedar/pkg/push"
)

// pushAnswerRequest is the body posted by the device vendor gateway when
// the user approves or denies a push message.
type pushAnswerRequest struct {
	MessageID string `json:"messageId"`
	Approved  bool   `json:"approved"`
}

func (s *Server) answerPush(w http.ResponseWriter, r *http.Request) {
	var body pushAnswerRequest
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	if !httputil.RequireNonEmpty(w, body.MessageID, "messageId") {
		return
	}

	if err := s.answerer.Answer(body.MessageID, body.Approved); err != nil {
		if errors.Is(err, push.ErrUnknownMessage) {
			httputil.WriteNotFoundError(w, "unknown push message")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
