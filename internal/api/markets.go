/**
 * @description
 * This file contains the HTTP handlers for market-related API endpoints.
 * It handles listing, creating and resolving markets, the CTF split/merge calldata
 * helper and the per-market comment threads.
 */

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	db "github.com/predikt/backend/internal/db"
	"github.com/predikt/backend/internal/services"
	"github.com/shopspring/decimal"
)

type listMarketsQuery struct {
	Category   string `form:"category"`
	Status     string `form:"status" binding:"omitempty,oneof=open closed resolved"`
	MarketType string `form:"market_type" binding:"omitempty,oneof=CLOB POOL"`
	Limit      int32  `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset     int32  `form:"offset" binding:"omitempty,min=0"`
}

/**
 * @function listMarkets
 * @description Returns a page of markets filtered by category, status and type.
 */
func (s *Server) listMarkets(c *gin.Context) {
	var q listMarketsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, "Invalid query: "+err.Error())
		return
	}
	markets, err := s.svc.Markets.ListMarkets(c.Request.Context(), services.ListMarketsFilter{
		Category:   q.Category,
		Status:     q.Status,
		MarketType: upper(q.MarketType),
		Limit:      q.Limit,
		Offset:     q.Offset,
	})
	if err != nil {
		s.handleError(c, err, "list markets")
		return
	}
	respond(c, http.StatusOK, markets)
}

func (s *Server) getMarket(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	market, err := s.svc.Markets.GetMarket(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err, "fetch market")
		return
	}
	respond(c, http.StatusOK, market)
}

/**
 * @function createMarket
 * @description Creates a market owned by the authenticated wallet. Field level checks
 * (future end time, pool address for POOL markets, oracle and ESPN pairs) are done by
 * the market service.
 */
func (s *Server) createMarket(c *gin.Context) {
	creator, ok := s.caller(c)
	if !ok {
		return
	}
	var req services.CreateMarketInput
	if !bind(c, &req) {
		return
	}
	req.MarketType = db.MarketType(upper(string(req.MarketType)))

	market, err := s.svc.Markets.CreateMarket(c.Request.Context(), creator, req)
	if err != nil {
		s.handleError(c, err, "create market")
		return
	}
	respond(c, http.StatusCreated, market)
}

type resolveMarketRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=YES NO INVALID"`
}

func (s *Server) resolveMarket(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req resolveMarketRequest
	if !bind(c, &req) {
		return
	}
	market, err := s.svc.Markets.ResolveMarket(c.Request.Context(), caller, id, db.Outcome(req.Outcome))
	if err != nil {
		s.handleError(c, err, "resolve market")
		return
	}
	respond(c, http.StatusOK, market)
}

// getCTFCalldata builds split or merge calldata for the market's condition.
func (s *Server) getCTFCalldata(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid amount")
		return
	}
	calldata, err := s.svc.Markets.CTFCalldata(c.Request.Context(), id, c.DefaultQuery("op", "split"), amount)
	if err != nil {
		s.handleError(c, err, "build calldata")
		return
	}
	respond(c, http.StatusOK, calldata)
}

type recordCTFRequest struct {
	TxHash string `json:"tx_hash" binding:"required"`
}

// recordCTFOperation applies a mined split or merge to the caller's positions.
func (s *Server) recordCTFOperation(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req recordCTFRequest
	if !bind(c, &req) {
		return
	}
	op, err := s.svc.Markets.RecordCTFOperation(c.Request.Context(), caller, id, req.TxHash)
	if err != nil {
		s.handleError(c, err, "record ctf operation")
		return
	}
	respond(c, http.StatusCreated, op)
}

func (s *Server) listComments(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	threads, err := s.svc.Comments.ListThreads(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err, "list comments")
		return
	}
	respond(c, http.StatusOK, threads)
}

type createCommentRequest struct {
	Body     string `json:"body" binding:"required"`
	ParentID string `json:"parent_id" binding:"omitempty,uuid"`
}

func (s *Server) createComment(c *gin.Context) {
	author, ok := s.caller(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req createCommentRequest
	if !bind(c, &req) {
		return
	}
	var parent *uuid.UUID
	if req.ParentID != "" {
		p := uuid.MustParse(req.ParentID)
		parent = &p
	}
	comment, err := s.svc.Comments.CreateComment(c.Request.Context(), author, id, parent, req.Body)
	if err != nil {
		s.handleError(c, err, "create comment")
		return
	}
	respond(c, http.StatusCreated, comment)
}
