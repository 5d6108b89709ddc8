package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// getLatestPrice returns the newest stored Pyth update for a feed.
func (s *Server) getLatestPrice(c *gin.Context) {
	update, err := s.svc.Prices.Latest(c.Request.Context(), c.Param("feed"))
	if err != nil {
		s.handleError(c, err, "fetch price")
		return
	}
	respond(c, http.StatusOK, update)
}

// getScoreboard proxies the ESPN scoreboard for a league through the redis cache.
func (s *Server) getScoreboard(c *gin.Context) {
	board, err := s.svc.Scoreboards.Scoreboard(c.Request.Context(), c.Param("sport"), c.Param("league"))
	if err != nil {
		s.handleError(c, err, "fetch scoreboard")
		return
	}
	respond(c, http.StatusOK, board)
}
