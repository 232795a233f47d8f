package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	exchangeratedomain "github.com/smallbiznis/portbilling/internal/exchangerate/domain"
	tariffdomain "github.com/smallbiznis/portbilling/internal/tariff/domain"
	taxdomain "github.com/smallbiznis/portbilling/internal/tax/domain"
)

func (s *Server) ListTariffs(c *gin.Context) {
	items, err := s.tariffSvc.ListTariffs(c.Request.Context(), c.Query("service_code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateTariff(c *gin.Context) {
	var req tariffdomain.CreateTariffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.tariffSvc.CreateTariff(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) AssignTariff(c *gin.Context) {
	var req tariffdomain.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.tariffSvc.Assign(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListVatCodes(c *gin.Context) {
	items, err := s.vatSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) UpsertVatCode(c *gin.Context) {
	var req taxdomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.vatSvc.Upsert(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

// GetRate resolves a conversion the same way rating does, fallback included.
func (s *Server) GetRate(c *gin.Context) {
	date, err := parseRequiredDate("date", c.Query("date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	from := strings.TrimSpace(c.Query("from"))
	to := strings.TrimSpace(c.Query("to"))
	if from == "" || to == "" {
		AbortWithError(c, newValidationError("currency", "required", "from and to are required"))
		return
	}

	resolution, err := s.rates.RateOn(c.Request.Context(), date, from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resolution})
}

func (s *Server) ListRates(c *gin.Context) {
	to := s.clock.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if parsed, err := parseOptionalDate("from", c.Query("from")); err != nil {
		AbortWithError(c, err)
		return
	} else if parsed != nil {
		from = *parsed
	}
	if parsed, err := parseOptionalDate("to", c.Query("to")); err != nil {
		AbortWithError(c, err)
		return
	} else if parsed != nil {
		to = *parsed
	}

	items, err := s.rateSvc.List(c.Request.Context(), c.Query("base"), c.Query("quote"), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) PublishRate(c *gin.Context) {
	var req exchangeratedomain.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.rateSvc.Publish(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}
