/**
 * @description
 * This file contains the HTTP handler for fetching historical market data,
 * which is required by the TradingView charting library.
 *
 * Key features:
 * - Historical Data Endpoint: Exposes `GET /api/markets/:id/history` to serve OHLCV
 *   (Open, High, Low, Close, Volume) bars written by the OHLCV aggregator.
 * - TradingView Compatibility: The response is in the UDF (Unified Data Format) column
 *   layout, with parallel arrays for time, open, high, low, close and volume.
 */

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// udfHistory is the UDF response for a history request. s is "ok", "no_data" or "error".
type udfHistory struct {
	Status string    `json:"s"`
	Error  string    `json:"errmsg,omitempty"`
	Time   []int64   `json:"t,omitempty"`
	Open   []float64 `json:"o,omitempty"`
	High   []float64 `json:"h,omitempty"`
	Low    []float64 `json:"l,omitempty"`
	Close  []float64 `json:"c,omitempty"`
	Volume []float64 `json:"v,omitempty"`
}

func udfError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, udfHistory{Status: "error", Error: msg})
}

/**
 * @function getMarketHistory
 * @description A Gin handler that returns historical OHLCV data for a given market.
 * It uses query parameters `from`, `to` (unix seconds) and `resolution` (1, 5, 15, 60
 * or D; default 60) to determine the data range.
 */
func (s *Server) getMarketHistory(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	from, err := strconv.ParseInt(c.Query("from"), 10, 64)
	if err != nil || from < 0 {
		udfError(c, http.StatusBadRequest, "invalid 'from' timestamp")
		return
	}
	to, err := strconv.ParseInt(c.DefaultQuery("to", strconv.FormatInt(time.Now().Unix(), 10)), 10, 64)
	if err != nil || to <= from {
		udfError(c, http.StatusBadRequest, "invalid 'to' timestamp")
		return
	}
	resolution := c.DefaultQuery("resolution", "60")

	bars, err := s.svc.Markets.PriceHistory(c.Request.Context(), id, resolution, time.Unix(from, 0).UTC(), time.Unix(to, 0).UTC())
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("failed to query market price history", "market_id", id, "error", err)
			udfError(c, status, "failed to fetch history")
			return
		}
		udfError(c, status, err.Error())
		return
	}
	if len(bars) == 0 {
		c.JSON(http.StatusOK, udfHistory{Status: "no_data"})
		return
	}

	out := udfHistory{
		Status: "ok",
		Time:   make([]int64, 0, len(bars)),
		Open:   make([]float64, 0, len(bars)),
		High:   make([]float64, 0, len(bars)),
		Low:    make([]float64, 0, len(bars)),
		Close:  make([]float64, 0, len(bars)),
		Volume: make([]float64, 0, len(bars)),
	}
	for _, bar := range bars {
		out.Time = append(out.Time, bar.Time.Unix())
		out.Open = append(out.Open, bar.Open.InexactFloat64())
		out.High = append(out.High, bar.High.InexactFloat64())
		out.Low = append(out.Low, bar.Low.InexactFloat64())
		out.Close = append(out.Close, bar.Close.InexactFloat64())
		out.Volume = append(out.Volume, bar.Volume.InexactFloat64())
	}
	c.JSON(http.StatusOK, out)
}
