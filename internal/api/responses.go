package api

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/predikt/backend/internal/amm"
	"github.com/predikt/backend/internal/auth"
	"github.com/predikt/backend/internal/chain"
	"github.com/predikt/backend/internal/services"
	"github.com/shopspring/decimal"
)

var validatorsOnce sync.Once

// registerValidators adds the custom binding tags used by request structs:
// ethaddr, outcome and decimalgt0.
func registerValidators(logger *slog.Logger) {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			logger.Error("gin validator engine is not go-playground/validator")
			return
		}
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				return d.String()
			}
			return nil
		}, decimal.Decimal{})

		_ = v.RegisterValidation("ethaddr", func(fl validator.FieldLevel) bool {
			return common.IsHexAddress(fl.Field().String())
		})
		_ = v.RegisterValidation("outcome", func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case "YES", "NO":
				return true
			}
			return false
		})
		_ = v.RegisterValidation("decimalgt0", func(fl validator.FieldLevel) bool {
			d, err := decimal.NewFromString(fl.Field().String())
			return err == nil && d.IsPositive()
		})
	})
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"status": "success", "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"status": "error", "message": message})
}

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrNoProxy):
		return http.StatusNotFound
	case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrAutoResolved):
		return http.StatusForbidden
	case errors.Is(err, services.ErrBadSignature),
		errors.Is(err, services.ErrChallengeExpired),
		errors.Is(err, services.ErrInvalidAPIKey):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrMarketNotOpen),
		errors.Is(err, services.ErrMarketResolved),
		errors.Is(err, services.ErrOrderNotActive),
		errors.Is(err, services.ErrDuplicateSwap),
		errors.Is(err, services.ErrTxRecorded),
		errors.Is(err, services.ErrMarketStillOpen),
		errors.Is(err, amm.ErrInsufficientLiquidity):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidNonce),
		errors.Is(err, services.ErrDeadlinePassed),
		errors.Is(err, services.ErrInsufficientPosition),
		errors.Is(err, services.ErrWrongMarketType),
		errors.Is(err, amm.ErrSlippageExceeded),
		errors.Is(err, chain.ErrTxNotFound),
		errors.Is(err, chain.ErrTxFailed),
		errors.Is(err, chain.ErrEventNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, chain.ErrChainDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// handleError writes err as an error response. Unexpected errors are logged
// and hidden behind a generic message.
func (s *Server) handleError(c *gin.Context, err error, action string) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("failed to "+action, "error", err, "path", c.FullPath())
		fail(c, status, "Failed to "+action)
		return
	}
	fail(c, status, err.Error())
}

// bind decodes and validates a JSON body, answering 400 on failure.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func limitQuery(c *gin.Context) int32 {
	n, err := strconv.ParseInt(c.Query("limit"), 10, 32)
	if err != nil {
		return 0
	}
	return int32(n)
}

// caller returns the wallet of the session, which the auth middleware guarantees.
func (s *Server) caller(c *gin.Context) (string, bool) {
	wallet := auth.Wallet(c)
	if wallet == "" {
		s.logger.Error("wallet not found in context after auth middleware", "path", c.FullPath())
		fail(c, http.StatusInternalServerError, "User identifier not found in request context")
		return "", false
	}
	return wallet, true
}

func (s *Server) userID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := auth.UserID(c)
	if !ok {
		s.logger.Error("user id not found in context after auth middleware", "path", c.FullPath())
		fail(c, http.StatusInternalServerError, "User identifier not found in request context")
		return uuid.Nil, false
	}
	return id, true
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
