package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/portbilling/internal/invoice/domain"
	"github.com/smallbiznis/portbilling/internal/observability"
	"github.com/smallbiznis/portbilling/internal/scheduler"
	"github.com/smallbiznis/portbilling/internal/testenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	env    *testenv.Env
	engine *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := testenv.New(t, testenv.UTCConfig(), time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC))
	sched, err := scheduler.New(scheduler.Params{
		Log:      env.Log,
		Holder:   env.Holder,
		Usage:    env.Usage,
		Rating:   env.Rating,
		Invoices: env.Invoices,
		Relay:    env.Events,
		GenID:    env.GenID,
		Clock:    env.Clock,
	})
	require.NoError(t, err)

	srv := NewServer(ServerParams{
		Gin:        NewEngine(observability.Config{}, nil),
		Clock:      env.Clock,
		Calendars:  env.Calendars,
		UsageSvc:   env.Usage,
		TariffSvc:  env.Tariffs,
		VatSvc:     env.Vat,
		Rates:      env.Rates,
		RateSvc:    env.Rates,
		InvoiceSvc: env.Invoices,
		Scheduler:  sched,
	})
	return &testServer{env: env, engine: srv.Engine()}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestGetBillingPeriods(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/billing-periods?date=2024-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	period := decodeData[billingPeriodView](t, rec)
	assert.Equal(t, "2024-03/EOM", period.Key)
	assert.Equal(t, "2024-03-29", period.StartDate)
	assert.True(t, period.EndOfMonth)

	rec = s.do(t, http.MethodGet, "/v1/billing-periods?year=2024&month=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	periods := decodeData[[]billingPeriodView](t, rec)
	require.Len(t, periods, 5)
	assert.Equal(t, "2024-02-29", periods[4].EndDate)

	rec = s.do(t, http.MethodGet, "/v1/billing-periods", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Type)
}

func TestBillCustomerIssueAndConflictReview(t *testing.T) {
	s := newTestServer(t)
	s.env.SeedPilotage(t)
	s.env.Voyage(t, "CR-001", "MV-ATLAS", time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))

	rec := s.do(t, http.MethodPost, "/v1/customers/CR-001/invoices", gin.H{"date": "2024-03-05"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeData[invoicedomain.ReconcileResult](t, rec)
	assert.Equal(t, invoicedomain.OutcomeCreated, created.Outcome)
	require.NotNil(t, created.Invoice)
	assert.Equal(t, "INV-202403-07-CR-001", created.Invoice.InvoiceNumber)
	assert.Equal(t, "1800.00", created.Invoice.GrandTotal.StringFixed(2))

	rec = s.do(t, http.MethodPost, "/v1/customers/CR-001/invoices", gin.H{"date": "2024-03-05"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, invoicedomain.OutcomeUnchanged, decodeData[invoicedomain.ReconcileResult](t, rec).Outcome)

	rec = s.do(t, http.MethodPost, "/v1/invoices/INV-202403-07-CR-001/issue", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, invoicedomain.StatusIssued, decodeData[invoicedomain.Invoice](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/v1/invoices/INV-202403-07-CR-001/issue", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	s.env.Voyage(t, "CR-001", "MV-ATLAS", time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC))
	rec = s.do(t, http.MethodPost, "/v1/customers/CR-001/invoices", gin.H{"date": "2024-03-06"})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	conflicted := decodeData[invoicedomain.ReconcileResult](t, rec)
	assert.Equal(t, invoicedomain.OutcomeConflict, conflicted.Outcome)
	require.NotNil(t, conflicted.Invoice)
	assert.Equal(t, "1800.00", conflicted.Invoice.GrandTotal.StringFixed(2))

	rec = s.do(t, http.MethodGet, "/v1/invoice-conflicts?status=open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	conflicts := decodeData[[]invoicedomain.InvoiceConflict](t, rec)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "INV-202403-07-CR-001", conflicts[0].InvoiceNumber)

	rec = s.do(t, http.MethodPost, "/v1/invoice-conflicts/"+conflicts[0].ID.String()+"/resolve",
		gin.H{"note": "credit note CN-7"}, "X-Operator-Id", "ops-42")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolved := decodeData[invoicedomain.InvoiceConflict](t, rec)
	assert.Equal(t, invoicedomain.ConflictStatusResolved, resolved.Status)
	assert.Equal(t, "ops-42", resolved.ResolvedBy)
}

func TestBillCustomerWithoutUsageIsUnprocessable(t *testing.T) {
	s := newTestServer(t)
	s.env.SeedPilotage(t)

	rec := s.do(t, http.MethodPost, "/v1/customers/CR-404/invoices", gin.H{"date": "2024-03-05"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "no_billable_usage", decodeError(t, rec).Message)

	rec = s.do(t, http.MethodPost, "/v1/customers/CR-404/invoices", gin.H{"date": "05/03/2024"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvoiceLookupAndTransitions(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/invoices/INV-209901-07-NOPE", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)

	rec = s.do(t, http.MethodPost, "/v1/invoices/INV-209901-07-NOPE/status", gin.H{"status": "REFUNDED"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	s.env.SeedPilotage(t)
	s.env.Voyage(t, "CR-002", "MV-BORA", time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC))
	rec = s.do(t, http.MethodPost, "/v1/customers/CR-002/invoices", gin.H{"date": "2024-03-12"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/invoices/INV-202403-14-CR-002/status", gin.H{"status": "paid"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/invoices?status=PENDING", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	invoices := decodeData[[]invoicedomain.Invoice](t, rec)
	require.Len(t, invoices, 1)
	assert.Equal(t, "INV-202403-14-CR-002", invoices[0].InvoiceNumber)
}

func TestVoyageLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/voyages", gin.H{
		"customer_code": "cr-001",
		"vessel_code":   "mv-atlas",
		"departure_at":  "2024-03-05T04:00:00Z",
		"unit_price":    "1500",
		"currency":      "TRY",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	departed := decodeData[struct {
		ID           snowflake.ID `json:"id"`
		CustomerCode string       `json:"customer_code"`
	}](t, rec)
	assert.Equal(t, "CR-001", departed.CustomerCode)

	path := "/v1/voyages/" + departed.ID.String() + "/return"
	rec = s.do(t, http.MethodPost, path, gin.H{"return_at": "2024-03-05T10:00:00Z"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, path, gin.H{"return_at": "2024-03-05T11:00:00Z"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/voyages/1/return", gin.H{"return_at": "bad"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRatesFallBackOverGaps(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/rates", gin.H{
		"base_currency":  "USD",
		"quote_currency": "TRY",
		"rate_date":      "2024-03-29",
		"rate":           "32.25",
		"source":         "TCMB",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/v1/rates?date=2024-03-31&from=USD&to=TRY", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolution := decodeData[struct {
		Rate         decimal.Decimal `json:"rate"`
		ResolvedDate time.Time       `json:"resolved_date"`
		IsFallback   bool            `json:"is_fallback"`
	}](t, rec)
	assert.Equal(t, "32.25", resolution.Rate.StringFixed(2))
	assert.True(t, resolution.IsFallback)
	assert.Equal(t, time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC), resolution.ResolvedDate.UTC())

	rec = s.do(t, http.MethodGet, "/v1/rates?date=2024-03-31&from=EUR&to=TRY", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/rates?date=2024-03-31", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/rates/history?base=USD&quote=TRY&from=2024-03-01&to=2024-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]json.RawMessage](t, rec), 1)
}

func TestBillingRunAndRelay(t *testing.T) {
	s := newTestServer(t)
	s.env.SeedPilotage(t)
	s.env.Voyage(t, "CR-001", "MV-ATLAS", time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))

	rec := s.do(t, http.MethodPost, "/v1/billing-runs", gin.H{"as_of": "2024-03-08"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeData[scheduler.RunSummary](t, rec)
	assert.Equal(t, scheduler.TriggerManual, summary.Trigger)
	assert.Equal(t, 1, summary.Created)
	assert.Empty(t, summary.Failures)

	rec = s.do(t, http.MethodPost, "/v1/outbox/relay", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}
