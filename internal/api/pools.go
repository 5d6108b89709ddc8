package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	db "github.com/predikt/backend/internal/db"
	"github.com/predikt/backend/internal/services"
	"github.com/shopspring/decimal"
)

func (s *Server) getPoolInfo(c *gin.Context) {
	info, err := s.svc.Pools.Info(c.Request.Context(), c.Param("address"))
	if err != nil {
		s.handleError(c, err, "fetch pool")
		return
	}
	respond(c, http.StatusOK, info)
}

type quoteQuery struct {
	Outcome     string          `form:"outcome" binding:"required,outcome"`
	Side        string          `form:"side" binding:"required,oneof=BUY SELL"`
	Amount      decimal.Decimal `form:"amount" binding:"decimalgt0"`
	SlippageBps int64           `form:"slippage_bps" binding:"omitempty,min=0,max=10000"`
}

// getPoolQuote prices a prospective swap against the current reserves.
func (s *Server) getPoolQuote(c *gin.Context) {
	var q quoteQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, "Invalid query: "+err.Error())
		return
	}
	quote, err := s.svc.Pools.Quote(c.Request.Context(), c.Param("address"), services.QuoteInput{
		Outcome:     db.Outcome(q.Outcome),
		Side:        db.Side(q.Side),
		Amount:      q.Amount,
		SlippageBps: q.SlippageBps,
	})
	if err != nil {
		s.handleError(c, err, "quote swap")
		return
	}
	respond(c, http.StatusOK, quote)
}

type recordSwapRequest struct {
	TxHash string          `json:"tx_hash" binding:"required"`
	MinOut decimal.Decimal `json:"min_out"`
}

// recordSwap stores a mined swap read from its receipt. Reporting the same
// transaction twice is a conflict.
func (s *Server) recordSwap(c *gin.Context) {
	trader, ok := s.caller(c)
	if !ok {
		return
	}
	var req recordSwapRequest
	if !bind(c, &req) {
		return
	}
	swap, err := s.svc.Pools.RecordSwap(c.Request.Context(), trader, c.Param("address"), services.RecordSwapInput{
		TxHash: req.TxHash,
		MinOut: req.MinOut,
	})
	if err != nil {
		s.handleError(c, err, "record swap")
		return
	}
	respond(c, http.StatusCreated, swap)
}

func (s *Server) listSwaps(c *gin.Context) {
	swaps, err := s.svc.Pools.ListSwaps(c.Request.Context(), c.Param("address"), limitQuery(c))
	if err != nil {
		s.handleError(c, err, "list swaps")
		return
	}
	respond(c, http.StatusOK, swaps)
}

type liquidityRequest struct {
	TxHash string `json:"tx_hash" binding:"required"`
}

func (s *Server) updateLiquidity(c *gin.Context) {
	provider, ok := s.caller(c)
	if !ok {
		return
	}
	var req liquidityRequest
	if !bind(c, &req) {
		return
	}
	result, err := s.svc.Pools.UpdateLiquidity(c.Request.Context(), provider, c.Param("address"), services.LiquidityInput{
		TxHash: req.TxHash,
	})
	if err != nil {
		s.handleError(c, err, "update liquidity")
		return
	}
	respond(c, http.StatusOK, result)
}

func (s *Server) getLpPosition(c *gin.Context) {
	position, err := s.svc.Pools.LpPosition(c.Request.Context(), c.Param("address"), c.Param("provider"))
	if err != nil {
		s.handleError(c, err, "fetch liquidity position")
		return
	}
	respond(c, http.StatusOK, position)
}
