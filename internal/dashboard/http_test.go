package dashboard

import (
	"archive/zip"
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"letterpulse/internal/config"
	"letterpulse/internal/export/profile"
	"letterpulse/internal/store/sessionstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const testProfiles = `
profiles:
  substack:
    default: true
    subscribers:
      members: ["subscribers", "email_list"]
      created_at: created_at
      paid_flag: active_subscription
      email: email
    posts:
      members: ["posts.csv"]
      date: post_date
      title: title
      published_flag: is_published
      type: type
`

const testSubscribersCSV = "email,created_at,active_subscription\n" +
	"a@x.io,2024-01-01T08:00:00Z,true\n" +
	"b@x.io,2024-01-02T09:00:00Z,false\n" +
	"c@x.io,2024-01-03T10:00:00Z,false\n" +
	"d@x.io,2024-01-04T11:00:00Z,false\n" +
	"e@x.io,2024-01-04T12:00:00Z,true\n" +
	"f@x.io,2024-01-04T13:00:00Z,false\n"

const testPostsCSV = "post_date,title,is_published,type\n" +
	"2024-01-03T12:00:00Z,What Went Viral,true,newsletter\n" +
	"2024-01-10T12:00:00Z,Unpublished Draft,false,newsletter\n"

func newTestServer(t *testing.T, snapshotEnabled bool) *HTTPServer {
	t.Helper()
	profilesPath := filepath.Join(t.TempDir(), "export_profiles.yaml")
	require.NoError(t, os.WriteFile(profilesPath, []byte(testProfiles), 0o644))
	registry, err := profile.NewRegistry(profilesPath)
	require.NoError(t, err)

	store, err := sessionstore.New(10)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		Export: config.ExportConfig{
			ProfilesPath:  profilesPath,
			ActiveProfile: "substack",
			MaxUploadMB:   4,
		},
		Dashboard: config.DashboardConfig{
			Retention:            10,
			SpikeWindowDays:      3,
			CatalystLookbackDays: 2,
			MomentumWindowDays:   7,
		},
		Billing: config.BillingConfig{MonthlyPrice: "5.00", Currency: "USD"},
		Snapshot: config.SnapshotConfig{
			Enabled:        snapshotEnabled,
			TimeoutSeconds: 5,
			WidthPx:        1280,
		},
	}
	svc, err := NewService(cfg, registry, store)
	require.NoError(t, err)

	srv, err := NewHTTPServer(HTTPConfig{
		Addr:        ":0",
		Svc:         svc,
		MaxUploadMB: cfg.Export.MaxUploadMB,
		Snapshot:    cfg.Snapshot,
	})
	require.NoError(t, err)
	return srv
}

func buildExportZip(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range members {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func uploadRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("export", "export.zip")
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/dashboard/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func doUpload(t *testing.T, srv *HTTPServer, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, uploadRequest(t, payload))
	return rec
}

func TestUploadAndReport(t *testing.T) {
	srv := newTestServer(t, false)
	payload := buildExportZip(t, map[string]string{
		"subscribers.csv": testSubscribersCSV,
		"posts.csv":       testPostsCSV,
	})
	rec := doUpload(t, srv, payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := rec.Body.String()
	assert.Equal(t, int64(6), gjson.Get(body, "report.total_subscribers").Int())
	assert.Equal(t, int64(2), gjson.Get(body, "report.conversion.paid").Int())
	rate := gjson.Get(body, "report.conversion.rate").Float()
	assert.InDelta(t, 2.0/6.0, rate, 1e-9)
	assert.GreaterOrEqual(t, rate, 0.0)
	assert.LessOrEqual(t, rate, 1.0)
	assert.Equal(t, "10.00", gjson.Get(body, "report.mrr").String())
	assert.Equal(t, int64(4), gjson.Get(body, "report.series.#").Int())
	// 1/1 → 1/4 的窗口：1 → 6
	assert.Equal(t, "2024-01-01", gjson.Get(body, "report.spike.window_start").String()[:10])
	assert.Equal(t, "2024-01-04", gjson.Get(body, "report.spike.window_end").String()[:10])
	assert.Equal(t, "What Went Viral", gjson.Get(body, "report.spike.catalysts.0.title").String())

	id := gjson.Get(body, "report.id").String()
	require.NotEmpty(t, id)

	t.Run("report by id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/uploads/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(6), gjson.Get(rec.Body.String(), "report.total_subscribers").Int())
	})

	t.Run("series", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/uploads/"+id+"/series", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(6), gjson.Get(rec.Body.String(), "series.3.total").Int())
	})

	t.Run("charts html", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/uploads/"+id+"/charts", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		html := rec.Body.String()
		assert.Contains(t, html, "echarts")
		assert.Contains(t, html, "Total Subscribers")
		assert.Contains(t, html, "Daily New Subscribers")
	})

	t.Run("upload list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/uploads", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "uploads.#").Int())
	})
}

func TestUploadErrors(t *testing.T) {
	srv := newTestServer(t, false)

	t.Run("malformed zip", func(t *testing.T) {
		rec := doUpload(t, srv, []byte("this is not a zip archive"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, gjson.Get(rec.Body.String(), "error").String(), "zip")
	})

	t.Run("missing posts table", func(t *testing.T) {
		rec := doUpload(t, srv, buildExportZip(t, map[string]string{
			"subscribers.csv": testSubscribersCSV,
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing form field", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/dashboard/uploads", bytes.NewBufferString("plain"))
		req.Header.Set("Content-Type", "text/plain")
		srv.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("upload over size cap", func(t *testing.T) {
		// MaxUploadMB 为 4，构造 5MB 的表单触发 MaxBytesReader
		rec := doUpload(t, srv, bytes.Repeat([]byte{0}, 5<<20))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Contains(t, gjson.Get(rec.Body.String(), "error").String(), "大小限制")
	})

	t.Run("unknown upload id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/uploads/unknown-id", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSnapshotDisabled(t *testing.T) {
	srv := newTestServer(t, false)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/uploads/any/snapshot.png", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, false)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
}

func TestIndexPage(t *testing.T) {
	srv := newTestServer(t, false)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Newsletter Growth Dashboard")
}
