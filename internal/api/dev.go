package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/predikt/backend/internal/signer/vault"
)

type devSignRequest struct {
	TypedData json.RawMessage `json:"typed_data"`
	Message   string          `json:"message"`
}

// devSign signs an EIP-712 payload or a personal message with the development
// key. It is only routed when APP_ENV is development.
func (s *Server) devSign(c *gin.Context) {
	var req devSignRequest
	if !bind(c, &req) {
		return
	}
	if (len(req.TypedData) == 0) == (req.Message == "") {
		fail(c, http.StatusBadRequest, "Provide exactly one of typed_data or message")
		return
	}

	ctx := c.Request.Context()
	address, err := s.devSigner.Address(ctx, vault.DevKey)
	if err != nil {
		s.handleError(c, err, "load development key")
		return
	}

	var signature string
	if len(req.TypedData) > 0 {
		signature, err = s.devSigner.SignTypedDataJSON(ctx, vault.DevKey, req.TypedData)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
	} else if signature, err = s.devSigner.SignPersonal(ctx, vault.DevKey, req.Message); err != nil {
		s.handleError(c, err, "sign message")
		return
	}
	respond(c, http.StatusOK, gin.H{"address": address.Hex(), "signature": signature})
}
