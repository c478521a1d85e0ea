package server

import (
	"errors"
	"net/http"

	"github.com/cedarauth/cedar/pkg/httputil"
	"github.com/cedarauth/cedar/pkg/saml2"
	"github.com/cedarauth/cedar/pkg/saml2/binding"
	"github.com/cedarauth/cedar/pkg/saml2/proxy"
)

// proxySSO receives a service provider's AuthnRequest over the redirect
// binding, starts the proxy flow, and forwards the derived request to
// the selected upstream IDP over its preferred binding.
func (s *Server) proxySSO(w http.ResponseWriter, r *http.Request) {
	encoded := httputil.ParseQueryString(r, binding.FieldSAMLRequest, "")
	if !httputil.RequireNonEmpty(w, encoded, binding.FieldSAMLRequest) {
		return
	}
	relayState := httputil.ParseQueryString(r, binding.FieldRelayState, "")
	realm := httputil.ParseQueryString(r, "realm", "/")

	xml, err := binding.DecodeRedirect(encoded)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	original, err := saml2.ParseAuthnRequestString(xml)
	if err != nil {
		s.logger.WithError(err).Warn("rejected malformed AuthnRequest")
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	realmCfg := proxy.RealmConfig{
		ProxyEnabled: s.saml.ProxyEnabled,
		AlwaysProxy:  s.saml.AlwaysProxy,
	}
	if !s.proxy.ShouldProxy(original, realmCfg) {
		httputil.WriteBadRequest(w, "request is not eligible for proxying")
		return
	}

	flow, err := s.proxy.StartFlow(r.Context(), realm, original, relayState)
	if err != nil {
		s.logger.WithError(err).Error("failed to start proxy flow")
		httputil.WriteInternalError(w, err)
		return
	}

	if flow.Binding == saml2.BindingHTTPRedirect {
		// Sign only when the upstream's metadata asks for it.
		kp := s.keyPair
		if !flow.SignRequest {
			kp = nil
		}
		location, err := binding.EncodeRedirect(flow.Request, flow.Destination, binding.FieldSAMLRequest, relayState, kp)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		http.Redirect(w, r, location, http.StatusFound)
		return
	}

	msg, err := binding.EncodePost(flow.Request, flow.Destination, binding.FieldSAMLRequest, relayState)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	html, err := msg.HTML()
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteHTML(w, http.StatusOK, html)
}

// proxyACS receives the upstream IDP's Response over the POST binding,
// resolves it back to the original requester, and forwards a freshly
// minted Response to the original assertion consumer service.
func (s *Server) proxyACS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	encoded := r.PostFormValue(binding.FieldSAMLResponse)
	if !httputil.RequireNonEmpty(w, encoded, binding.FieldSAMLResponse) {
		return
	}

	xml, err := binding.DecodePost(encoded)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	upstream, err := saml2.ParseResponseString(xml)
	if err != nil {
		s.logger.WithError(err).Warn("rejected malformed Response")
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	corr, err := s.proxy.HandleResponse(r.Context(), upstream)
	if err != nil {
		if errors.Is(err, proxy.ErrStaleCorrelation) {
			httputil.WriteGone(w, "no pending request for this response")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	proxied, err := s.proxy.BuildProxiedResponse(corr, upstream)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	acs := corr.OriginalRequest.AssertionConsumerServiceURL()
	msg, err := binding.EncodePost(proxied, acs, binding.FieldSAMLResponse, corr.RelayState)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	html, err := msg.HTML()
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteHTML(w, http.StatusOK, html)
}
