package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestGinMiddlewareCountsBillingRejections(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewHTTPMetrics(Config{}, provider)
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.POST("/v1/billing/customers/:code/bill", func(c *gin.Context) { c.Status(http.StatusUnprocessableEntity) })
	r.GET("/v1/invoices/:number", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/v1/billing/customers/CR-001/bill", nil),
		httptest.NewRequest(http.MethodPost, "/v1/billing/customers/CR-002/bill", nil),
		httptest.NewRequest(http.MethodGet, "/v1/invoices/INV-202403-07-CR-001", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var rejected int64
	classes := map[string]uint64{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			switch data := metric.Data.(type) {
			case metricdata.Sum[int64]:
				if metric.Name != "portbill_http_billing_rejections_total" {
					continue
				}
				for _, point := range data.DataPoints {
					endpoint, _ := point.Attributes.Value("endpoint")
					assert.Equal(t, "/v1/billing/customers/:code/bill", endpoint.AsString())
					rejected += point.Value
				}
			case metricdata.Histogram[float64]:
				for _, point := range data.DataPoints {
					class, _ := point.Attributes.Value("status_class")
					classes[class.AsString()] += point.Count
				}
			}
		}
	}
	assert.Equal(t, int64(2), rejected)
	assert.Equal(t, map[string]uint64{"4xx": 2, "2xx": 1}, classes)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusCreated))
	assert.Equal(t, "4xx", statusClass(http.StatusConflict))
	assert.Equal(t, "5xx", statusClass(http.StatusBadGateway))
}
