package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createKeyRequest struct {
	Label string `json:"label" binding:"max=64"`
}

// createAPIKey returns the plaintext key. It is shown exactly once.
func (s *Server) createAPIKey(c *gin.Context) {
	userID, ok := s.userID(c)
	if !ok {
		return
	}
	var req createKeyRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	created, err := s.svc.APIKeys.CreateKey(c.Request.Context(), userID, req.Label)
	if err != nil {
		s.handleError(c, err, "create api key")
		return
	}
	respond(c, http.StatusCreated, created)
}

func (s *Server) listAPIKeys(c *gin.Context) {
	userID, ok := s.userID(c)
	if !ok {
		return
	}
	keys, err := s.svc.APIKeys.ListKeys(c.Request.Context(), userID)
	if err != nil {
		s.handleError(c, err, "list api keys")
		return
	}
	respond(c, http.StatusOK, keys)
}

func (s *Server) revokeAPIKey(c *gin.Context) {
	userID, ok := s.userID(c)
	if !ok {
		return
	}
	keyID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := s.svc.APIKeys.RevokeKey(c.Request.Context(), userID, keyID); err != nil {
		s.handleError(c, err, "revoke api key")
		return
	}
	c.Status(http.StatusNoContent)
}
