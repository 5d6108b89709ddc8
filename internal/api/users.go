package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type challengeRequest struct {
	Address string `json:"address" binding:"required,ethaddr"`
}

// createChallenge issues the message a wallet signs to log in.
func (s *Server) createChallenge(c *gin.Context) {
	var req challengeRequest
	if !bind(c, &req) {
		return
	}
	challenge, err := s.svc.Users.CreateChallenge(c.Request.Context(), req.Address)
	if err != nil {
		s.handleError(c, err, "create challenge")
		return
	}
	respond(c, http.StatusOK, challenge)
}

type loginRequest struct {
	Address   string `json:"address" binding:"required,ethaddr"`
	Signature string `json:"signature" binding:"required"`
}

// login exchanges a signed challenge for a session token.
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	session, err := s.svc.Users.Login(c.Request.Context(), req.Address, req.Signature)
	if err != nil {
		s.handleError(c, err, "log in")
		return
	}
	s.logger.Info("user logged in", "user_id", session.User.ID, "wallet", session.User.WalletAddress)
	respond(c, http.StatusOK, session)
}

func (s *Server) getMe(c *gin.Context) {
	id, ok := s.userID(c)
	if !ok {
		return
	}
	user, err := s.svc.Users.GetUserByID(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err, "fetch user")
		return
	}
	respond(c, http.StatusOK, user)
}
