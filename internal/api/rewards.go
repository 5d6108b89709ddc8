package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) getMyRewards(c *gin.Context) {
	owner, ok := s.caller(c)
	if !ok {
		return
	}
	summary, err := s.svc.Rewards.Summary(c.Request.Context(), owner, limitQuery(c))
	if err != nil {
		s.handleError(c, err, "fetch rewards")
		return
	}
	respond(c, http.StatusOK, summary)
}

func (s *Server) getLeaderboard(c *gin.Context) {
	board, err := s.svc.Rewards.Leaderboard(c.Request.Context(), limitQuery(c))
	if err != nil {
		s.handleError(c, err, "fetch leaderboard")
		return
	}
	respond(c, http.StatusOK, board)
}
