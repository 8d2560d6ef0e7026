package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceSnapshotAggregates(t *testing.T) {
	m := NewMetricsService()

	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/students", http.StatusOK, 40*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/invoices/issue", http.StatusCreated, 80*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.ObserveDBQuery("students_list", 10*time.Millisecond)
	m.ObserveDBQuery("invoices_issue", 30*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 60.0, snap.AverageRequestDurationMs, 0.01)
	assert.Equal(t, uint64(2), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.InDelta(t, 2.0/3.0, snap.CacheHitRatio, 0.0001)
	assert.Equal(t, uint64(2), snap.DBQueryCount)
	assert.InDelta(t, 20.0, snap.AverageDBQueryDurationMs, 0.01)
	assert.False(t, snap.GeneratedAt.IsZero())
}

func TestMetricsServiceHandlerExposesDomainCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordRegistrationSubmitted("course", 3)
	m.RecordRegistrationSubmitted("event", 1)
	m.RecordInvoiceIssued(2)
	m.RecordInvoicePaid()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `registrations_submitted_total{kind="course"} 3`)
	assert.Contains(t, body, `registrations_submitted_total{kind="event"} 1`)
	assert.Contains(t, body, "invoices_issued_total 2")
	assert.Contains(t, body, "invoices_paid_total 1")
}

func TestMetricsServiceNilReceiverIsSafe(t *testing.T) {
	var m *MetricsService

	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordInvoicePaid()
	assert.Equal(t, SystemMetricsSnapshot{}, m.Snapshot())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsServiceIgnoresNonPositiveCounts(t *testing.T) {
	m := NewMetricsService()
	m.RecordRegistrationSubmitted("course", 0)
	m.RecordInvoiceIssued(-1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.False(t, strings.Contains(body, `registrations_submitted_total{kind="course"}`))
	assert.Contains(t, body, "invoices_issued_total 0")
}