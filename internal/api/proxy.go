package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/predikt/backend/internal/ctf"
	"github.com/predikt/backend/internal/services"
)

func (s *Server) getProxyBalance(c *gin.Context) {
	balance, err := s.svc.Relay.Balance(c.Request.Context(), c.Param("owner"))
	if err != nil {
		s.handleError(c, err, "fetch proxy balance")
		return
	}
	respond(c, http.StatusOK, balance)
}

func (s *Server) getProxyNonce(c *gin.Context) {
	owner := c.Param("owner")
	nonce, err := s.svc.Relay.Nonce(c.Request.Context(), owner)
	if err != nil {
		s.handleError(c, err, "fetch proxy nonce")
		return
	}
	respond(c, http.StatusOK, gin.H{"owner": owner, "nonce": nonce})
}

// deployProxy deploys (or returns) the caller's proxy wallet through the factory.
func (s *Server) deployProxy(c *gin.Context) {
	owner, ok := s.caller(c)
	if !ok {
		return
	}
	proxy, err := s.svc.Relay.DeployProxy(c.Request.Context(), owner)
	if err != nil {
		s.handleError(c, err, "deploy proxy")
		return
	}
	respond(c, http.StatusOK, gin.H{"owner": owner, "proxy": proxy})
}

type relayRequest struct {
	Execute   ctf.Execute `json:"execute"`
	Signature string      `json:"signature" binding:"required"`
}

func (s *Server) relay(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	var req relayRequest
	if !bind(c, &req) {
		return
	}
	result, err := s.svc.Relay.Relay(c.Request.Context(), caller, services.RelayInput{
		Execute:   req.Execute,
		Signature: req.Signature,
	})
	if err != nil {
		s.handleError(c, err, "relay transaction")
		return
	}
	s.logger.Info("meta-transaction relayed", "owner", caller, "tx_hash", result.TxHash, "nonce", result.Nonce)
	respond(c, http.StatusAccepted, result)
}
