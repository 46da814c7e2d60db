package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"medgate/internal/domain"
	"medgate/internal/logging"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type expenseResponse struct {
	ID                   int64   `json:"id"`
	IdentificationNumber string  `json:"identification_number"`
	ProviderName         string  `json:"provider_name,omitempty"`
	ServiceDate          string  `json:"service_date,omitempty"`
	Concept              string  `json:"concept,omitempty"`
	InvoicedAmount       float64 `json:"invoiced_amount"`
	CoveredAmount        float64 `json:"covered_amount"`
	Currency             string  `json:"currency,omitempty"`
	Status               string  `json:"status,omitempty"`
}

type expensePageResponse struct {
	Items         []expenseResponse `json:"items"`
	NextSkipToken string            `json:"next_skip_token,omitempty"`
}

func (s *Server) handleListExpenses(c *gin.Context) {
	if s.authInitErr != nil || s.gate == nil {
		writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
		return
	}
	if !s.enforceRateLimit(c) {
		return
	}

	identificationNumber := c.Param("identificationNumber")
	ctx := c.Request.Context()

	decision := s.gate.Authorize(ctx, c.GetHeader("Authorization"), identificationNumber)
	if !decision.Allowed {
		s.writeDecision(c, decision)
		return
	}

	top := 0
	if raw := c.Query("top"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_TOP", "top must be a positive integer")
			return
		}
		top = parsed
	}

	page, err := s.expenses.List(ctx, decision.IdentificationNumber, c.Query("skipToken"), top)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedRequest) {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_SKIP_TOKEN", "invalid skipToken")
			return
		}
		s.logger.Error("expense query failed",
			"request_id", logging.RequestID(ctx),
			"error", err.Error())
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}

	items := make([]expenseResponse, 0, len(page.Items))
	for _, expense := range page.Items {
		items = append(items, expenseResponse{
			ID:                   expense.ID,
			IdentificationNumber: expense.IdentificationNumber,
			ProviderName:         expense.ProviderName,
			ServiceDate:          formatDate(expense.ServiceDate),
			Concept:              expense.Concept,
			InvoicedAmount:       expense.InvoicedAmount,
			CoveredAmount:        expense.CoveredAmount,
			Currency:             expense.Currency,
			Status:               expense.Status,
		})
	}
	c.JSON(http.StatusOK, expensePageResponse{
		Items:         items,
		NextSkipToken: page.NextSkipToken,
	})
}

// writeDecision maps a deny to its HTTP shape. Messages stay generic: they
// never echo token contents, the caller's registered number, or whether a
// given identification number exists.
func (s *Server) writeDecision(c *gin.Context, decision domain.Decision) {
	switch decision.Reason {
	case domain.DenyMissingToken, domain.DenyTokenInvalid, domain.DenySubjectMissing:
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid bearer token")
	case domain.DenyIdentificationMismatch:
		writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
	default:
		// profile-not-found, profile-unavailable and unexpected all
		// surface as a system failure; the reasons stay distinct in logs.
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Code: code, Message: message})
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
