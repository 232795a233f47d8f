package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	billingcycledomain "github.com/smallbiznis/portbilling/internal/billingcycle/domain"
	invoicedomain "github.com/smallbiznis/portbilling/internal/invoice/domain"
)

type billingRunRequest struct {
	AsOf string `json:"as_of"`
}

type billCustomerRequest struct {
	Date string `json:"date"`
}

type billingPeriodView struct {
	Key         string `json:"key"`
	YearMonth   string `json:"year_month"`
	CutoffLabel string `json:"cutoff_label"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	EndOfMonth  bool   `json:"end_of_month"`
}

func newBillingPeriodView(p billingcycledomain.BillingPeriod) billingPeriodView {
	return billingPeriodView{
		Key:         p.Key(),
		YearMonth:   p.YearMonth,
		CutoffLabel: p.CutoffLabel(),
		StartDate:   billingcycledomain.FormatDate(p.StartDate),
		EndDate:     billingcycledomain.FormatDate(p.EndDate),
		EndOfMonth:  p.EndOfMonth,
	}
}

// GetBillingPeriods answers ?date= with one period or ?year=&month= with the
// month partition.
func (s *Server) GetBillingPeriods(c *gin.Context) {
	ctx := c.Request.Context()

	date, err := parseOptionalDate("date", c.Query("date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if date != nil {
		period, err := s.calendars.PeriodFor(ctx, *date)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": newBillingPeriodView(period)})
		return
	}

	year, err := parseOptionalInt("year", c.Query("year"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	month, err := parseOptionalInt("month", c.Query("month"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if year == nil || month == nil || *month < 1 || *month > 12 {
		AbortWithError(c, newValidationError("date", "required", "date or year and month are required"))
		return
	}

	periods, err := s.calendars.PeriodsInMonth(ctx, *year, time.Month(*month))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	views := make([]billingPeriodView, 0, len(periods))
	for _, p := range periods {
		views = append(views, newBillingPeriodView(p))
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

func (s *Server) CreateBillingRun(c *gin.Context) {
	// an empty body runs as of now
	var req billingRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	asOf := s.clock.Now()
	if strings.TrimSpace(req.AsOf) != "" {
		parsed, err := parseInstant("as_of", req.AsOf)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		asOf = parsed
	}

	summary, err := s.scheduler.RunBilling(c.Request.Context(), asOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) BillCustomer(c *gin.Context) {
	var req billCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	date, err := parseRequiredDate("date", req.Date)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.scheduler.BillCustomer(c.Request.Context(), c.Param("code"), date)
	if errors.Is(err, invoicedomain.ErrLockedInvoiceConflict) {
		// the draft was recorded for review; report it with the untouched invoice
		c.JSON(http.StatusConflict, gin.H{"data": result})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == invoicedomain.OutcomeCreated {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": result})
}

func (s *Server) RelayOutbox(c *gin.Context) {
	result, err := s.scheduler.RelayOutbox(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"data": result, "error": errorPayload{Type: "relay_failed", Message: err.Error()}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
