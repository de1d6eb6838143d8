package httpapi

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beesaferoot/buildops/internal/accounting"
	"github.com/beesaferoot/buildops/internal/apierr"
	"github.com/beesaferoot/buildops/internal/banking"
	"github.com/beesaferoot/buildops/internal/config"
	"github.com/beesaferoot/buildops/internal/construction"
	"github.com/beesaferoot/buildops/internal/disposition"
	"github.com/beesaferoot/buildops/internal/documents"
	"github.com/beesaferoot/buildops/internal/investors"
	"github.com/beesaferoot/buildops/internal/pipeline"
	"github.com/beesaferoot/buildops/internal/records"
	"github.com/beesaferoot/buildops/internal/reports"
	"github.com/beesaferoot/buildops/internal/testutil"
	"github.com/beesaferoot/buildops/internal/workflow"
)

type testServer struct {
	t *testing.T
	h http.Handler
}

func newTestServer(t *testing.T, cfg config.ServerConfig) *testServer {
	t.Helper()
	db := testutil.DB(t)
	wf := workflow.NewEngine(db, nil, nil)
	acct := accounting.NewService(db, nil, nil)
	cons := construction.NewService(db, nil, nil, wf)
	inv := investors.NewService(db, nil, nil)
	store, err := documents.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	h, err := NewRouter(db, nil, Services{
		Pipeline:     pipeline.NewService(db, nil, nil, wf),
		Construction: cons,
		Workflow:     wf,
		Accounting:   acct,
		Banking:      banking.NewService(db, nil, nil),
		Investors:    inv,
		Disposition:  disposition.NewService(db, nil, nil, wf),
		Documents:    documents.NewService(db, nil, nil, store, 1<<20, time.Hour),
		Reports:      reports.NewBuilder(db, nil, acct, cons, inv),
		Links:        records.NewLinks(db),
	}, cfg)
	require.NoError(t, err)
	return &testServer{t: t, h: h}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})
	rec := s.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestEntityCRUD(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	rec := s.do(http.MethodPost, "/api/v1/entities", map[string]any{"id": 99, "name": "Oak Ridge LLC", "state": "TX"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 1, created["id"], "client-chosen ids are ignored")

	rec = s.do(http.MethodPatch, "/api/v1/entities/1", map[string]any{"legal_name": "Oak Ridge Holdings LLC"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Oak Ridge Holdings LLC", decodeBody[map[string]any](t, rec)["legal_name"])

	rec = s.do(http.MethodGet, "/api/v1/entities?q=oak", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 1, page["total"])

	rec = s.do(http.MethodDelete, "/api/v1/entities/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/entities/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierr.ContentType, rec.Header().Get("Content-Type"))
	problem := decodeBody[apierr.Problem](t, rec)
	assert.Equal(t, apierr.CodeNotFound, problem.Code)
	assert.Equal(t, "/api/v1/entities/1", problem.Instance)
	assert.NotEmpty(t, problem.RequestID)
}

func TestCreate_ValidationProblem(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	rec := s.do(http.MethodPost, "/api/v1/entities", map[string]any{"state": "Texas"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	problem := decodeBody[struct {
		Code   string              `json:"code"`
		Errors []apierr.FieldError `json:"errors"`
	}](t, rec)
	assert.Equal(t, apierr.CodeValidation, problem.Code)

	var fields []string
	for _, fe := range problem.Errors {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"name", "state"}, fields)

	rec = s.do(http.MethodPost, "/api/v1/entities", `{"name":"x","colour":"red"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/entities", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/entities/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDealAdvance(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	rec := s.do(http.MethodPost, "/api/v1/deals", map[string]any{"name": "Lot 7 Cedar Ln", "city": "Austin"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPatch, "/api/v1/deals/1", map[string]any{"stage": "closed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "stage is only changed by advance")

	rec = s.do(http.MethodPost, "/api/v1/deals/1/advance", map[string]any{"stage": "under_review"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "under_review", decodeBody[map[string]any](t, rec)["stage"])

	rec = s.do(http.MethodPost, "/api/v1/deals/1/advance", map[string]any{"stage": "lead"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/deals/1/advance", map[string]any{"stage": "sold"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCalculateDealSheet(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	rec := s.do(http.MethodPost, "/api/v1/deal-sheets/calculate", map[string]any{
		"lot_price":           "100000",
		"house_sqft":          "2000",
		"build_cost_per_sqft": "150",
		"sale_price":          "650000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "300000", res["hard_cost"])
	assert.Contains(t, []string{"go", "caution", "no_go"}, res["verdict"])

	rec = s.do(http.MethodPost, "/api/v1/deal-sheets/calculate", map[string]any{"lot_price": "-1"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "sale_price")
}

func TestReportExportCSV(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})
	for _, name := range []string{"Maple", "Birch"} {
		rec := s.do(http.MethodPost, "/api/v1/deals", map[string]any{"name": name})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := s.do(http.MethodGet, "/api/v1/reports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), reports.ReportPipeline)

	rec = s.do(http.MethodGet, "/api/v1/reports/pipeline?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, reports.ContentType(reports.FormatCSV), rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="pipeline.csv"`)

	body := bytes.TrimPrefix(rec.Body.Bytes(), []byte{0xEF, 0xBB, 0xBF})
	rows, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 3)
	assert.Equal(t, "Stage", rows[0][0])
	assert.Equal(t, []string{"lead", "Birch"}, rows[1][:2])
	assert.Equal(t, []string{"lead", "Maple"}, rows[2][:2])

	rec = s.do(http.MethodGet, "/api/v1/reports/pipeline?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/reports/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/reports/bundle?names=pipeline", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, reports.ContentType(reports.FormatXLSX), rec.Header().Get("Content-Type"))
}

func TestDocumentUploadAndShare(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("record_type", "deal"))
	require.NoError(t, mw.WriteField("record_id", "3"))
	fw, err := mw.CreateFormFile("file", "survey.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("boundary survey"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "survey.txt", doc["filename"])

	rec = s.do(http.MethodGet, "/api/v1/documents?record_type=deal&record_id=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]map[string]any](t, rec), 1)

	rec = s.do(http.MethodGet, "/api/v1/documents/1/content", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "boundary survey", rec.Body.String())

	rec = s.do(http.MethodPost, "/api/v1/documents/1/shares", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	share := decodeBody[map[string]any](t, rec)

	rec = s.do(http.MethodGet, share["url"].(string), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "boundary survey", rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/shared/not-a-token", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/documents/1/shares", map[string]any{"ttl_seconds": int64(1) << 62})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, "/api/v1/documents/1/shares", map[string]any{"ttl_seconds": 604800})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestPostedDocumentsAreLocked(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})
	mustCreate := func(path string, body map[string]any) {
		t.Helper()
		rec := s.do(http.MethodPost, path, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	mustCreate("/api/v1/entities", map[string]any{"name": "Oak Ridge LLC"})
	mustCreate("/api/v1/entities", map[string]any{"name": "Cedar LLC"})
	mustCreate("/api/v1/accounts", map[string]any{"entity_id": 1, "code": "1000", "name": "Cash", "type": "asset"})
	mustCreate("/api/v1/accounts", map[string]any{"entity_id": 1, "code": "1200", "name": "AR", "type": "asset", "system_role": "accounts_receivable"})
	mustCreate("/api/v1/accounts", map[string]any{"entity_id": 1, "code": "2000", "name": "AP", "type": "liability", "system_role": "accounts_payable"})
	mustCreate("/api/v1/accounts", map[string]any{"entity_id": 1, "code": "4000", "name": "Sales", "type": "revenue"})
	mustCreate("/api/v1/accounts", map[string]any{"entity_id": 1, "code": "5000", "name": "Framing", "type": "expense"})
	mustCreate("/api/v1/vendors", map[string]any{"name": "Acme Framing"})
	mustCreate("/api/v1/customers", map[string]any{"name": "J. Buyer"})

	mustCreate("/api/v1/bills", map[string]any{
		"vendor_id": 1, "entity_id": 1, "number": "INV-1", "date": "2026-04-01T00:00:00Z",
		"lines": []map[string]any{{"account_id": 5, "amount": "100"}},
	})
	mustCreate("/api/v1/invoices", map[string]any{
		"customer_id": 1, "entity_id": 1, "number": "S-1", "date": "2026-04-01T00:00:00Z",
		"lines": []map[string]any{{"account_id": 4, "amount": "250"}},
	})

	rec := s.do(http.MethodPatch, "/api/v1/bills/1", map[string]any{"number": "INV-1A"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/v1/bills/1/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, "/api/v1/invoices/1/issue", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, tc := range []struct {
		path    string
		changes map[string]any
	}{
		{"/api/v1/bills/1", map[string]any{"entity_id": 2}},
		{"/api/v1/bills/1", map[string]any{"vendor_id": 1}},
		{"/api/v1/bills/1", map[string]any{"date": "2026-04-02T00:00:00Z"}},
		{"/api/v1/invoices/1", map[string]any{"entity_id": 2}},
		{"/api/v1/invoices/1", map[string]any{"customer_id": 1}},
		{"/api/v1/invoices/1", map[string]any{"due_date": "2026-07-01T00:00:00Z"}},
	} {
		rec = s.do(http.MethodPatch, tc.path, tc.changes)
		assert.Equal(t, http.StatusConflict, rec.Code, "%s %v: %s", tc.path, tc.changes, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/api/v1/bills/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bill := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 1, bill["entity_id"])
	assert.Equal(t, "approved", bill["status"])

	rec = s.do(http.MethodGet, "/api/v1/entities/1/trial-balance?as_of=2026-12-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["balanced"])

	rec = s.do(http.MethodPatch, "/api/v1/accounts/5", map[string]any{"entity_id": 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPatch, "/api/v1/accounts/5", map[string]any{"type": "asset"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPatch, "/api/v1/accounts/3", map[string]any{"system_role": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPatch, "/api/v1/accounts/5", map[string]any{"name": "Framing Labor"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodDelete, "/api/v1/accounts/5", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	rec = s.do(http.MethodGet, "/api/v1/accounts/5", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	mustCreate("/api/v1/accounts", map[string]any{"entity_id": 1, "code": "6900", "name": "Misc", "type": "expense"})
	rec = s.do(http.MethodDelete, "/api/v1/accounts/6", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{RateLimit: config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1}})

	rec := s.do(http.MethodGet, "/api/v1/entities", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/entities", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = s.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health checks are not limited")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})
	rec := s.do(http.MethodGet, "/api/v1/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierr.ContentType, rec.Header().Get("Content-Type"))
}
