/**
 * @description
 * This file contains the HTTP handlers for order-related API endpoints.
 * Orders arrive as signed EIP-712 exchange orders; the order service verifies the
 * signature, runs the matching engine and persists the result.
 */

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/predikt/backend/internal/ctf"
	db "github.com/predikt/backend/internal/db"
	"github.com/predikt/backend/internal/services"
)

type placeOrderRequest struct {
	Order     ctf.Order `json:"order"`
	Signature string    `json:"signature" binding:"required"`
	Outcome   string    `json:"outcome" binding:"required,outcome"`
	OrderType string    `json:"order_type" binding:"omitempty,oneof=GTC GTD FOK FAK"`
}

/**
 * @function placeOrder
 * @description Places a signed order on one outcome book of a market. The response
 * carries the stored taker order and every fill it produced.
 */
func (s *Server) placeOrder(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	marketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req placeOrderRequest
	if !bind(c, &req) {
		return
	}

	result, err := s.svc.Orders.PlaceOrder(c.Request.Context(), caller, marketID, services.PlaceOrderInput{
		Order:     req.Order,
		Signature: req.Signature,
		Outcome:   db.Outcome(req.Outcome),
		OrderType: db.OrderType(req.OrderType),
	})
	if err != nil {
		s.handleError(c, err, "place order")
		return
	}
	respond(c, http.StatusCreated, result)
}

func (s *Server) cancelOrder(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	order, err := s.svc.Orders.CancelOrder(c.Request.Context(), caller, id)
	if err != nil {
		s.handleError(c, err, "cancel order")
		return
	}
	respond(c, http.StatusOK, order)
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	order, err := s.svc.Orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err, "fetch order")
		return
	}
	respond(c, http.StatusOK, order)
}

func (s *Server) listMarketOrders(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	orders, err := s.svc.Orders.ListMarketOrders(c.Request.Context(), id, c.Query("status"), limitQuery(c))
	if err != nil {
		s.handleError(c, err, "list orders")
		return
	}
	respond(c, http.StatusOK, orders)
}

func (s *Server) listMyOrders(c *gin.Context) {
	maker, ok := s.caller(c)
	if !ok {
		return
	}
	orders, err := s.svc.Orders.ListUserOrders(c.Request.Context(), maker, limitQuery(c))
	if err != nil {
		s.handleError(c, err, "list orders")
		return
	}
	respond(c, http.StatusOK, orders)
}

// getOrderBook returns aggregated depth for both outcomes. depth defaults to
// services.BookDepth levels per side.
func (s *Server) getOrderBook(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if _, err := s.svc.Markets.GetMarket(c.Request.Context(), id); err != nil {
		s.handleError(c, err, "fetch order book")
		return
	}
	depth := services.BookDepth
	if raw := c.Query("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, "Invalid depth")
			return
		}
		depth = n
	}
	respond(c, http.StatusOK, s.svc.Orders.OrderBook(id, depth))
}

func (s *Server) listTrades(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	trades, err := s.svc.Orders.ListTrades(c.Request.Context(), id, limitQuery(c))
	if err != nil {
		s.handleError(c, err, "list trades")
		return
	}
	respond(c, http.StatusOK, trades)
}

func (s *Server) listPositions(c *gin.Context) {
	owner, ok := s.caller(c)
	if !ok {
		return
	}
	positions, err := s.svc.Orders.Positions(c.Request.Context(), owner)
	if err != nil {
		s.handleError(c, err, "list positions")
		return
	}
	respond(c, http.StatusOK, positions)
}
