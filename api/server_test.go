package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/websocket"

	"github.com/seenimoa/stockdash/internal/config"
	"github.com/seenimoa/stockdash/internal/dashboard"
	"github.com/seenimoa/stockdash/internal/logging"
	"github.com/seenimoa/stockdash/internal/metrics"
	"github.com/seenimoa/stockdash/internal/stockapi"
)

const tcsBody = `{
	"symbol": "TCS",
	"company": "Tata Consultancy Services",
	"price": "3500",
	"change": 12.5,
	"changePercent": "0.36",
	"open": 3490, "high": 3510, "low": 3480, "prevClose": 3487.5,
	"volume": 1500000, "avgVolume": 1200000,
	"marketCap": 12800000000000, "peRatio": 29.4,
	"dividendYield": null, "eps": 118.9,
	"week52High": 4250, "week52Low": 3300,
	"history": [{"day": "Mon", "price": 3480}, {"day": "Tue", "price": 3500}]
}`

// upstream is a fake data service. TCS and BRK/A resolve, BOOM fails with
// 500 and everything else is 404.
type upstream struct {
	*httptest.Server
	hits     atomic.Int32
	lastPath atomic.Value
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	up := &upstream{}
	up.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up.hits.Add(1)
		up.lastPath.Store(r.URL.EscapedPath())
		switch r.URL.EscapedPath() {
		case "/api/stocks/TCS", "/api/stocks/BRK%2FA":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, tcsBody)
		case "/api/stocks/BOOM":
			http.Error(w, "internal error", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(up.Close)
	return up
}

func testConfig(upstreamURL string) *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{BaseURL: upstreamURL, TimeoutSec: 5, UserAgent: "stockdash-test"},
		API: config.APIConfig{
			Host:              "127.0.0.1",
			Port:              3000,
			CORSOrigins:       []string{"http://localhost:3000"},
			RequestTimeoutSec: 10,
		},
		Session: config.SessionConfig{CookieName: "stockdash_session", IdleTimeoutSec: 1800},
		Logging: config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// newServer builds a server whose hub is not running.
func newServer(t *testing.T, upstreamURL string, log *slog.Logger) *Server {
	t.Helper()
	m := metrics.New()
	client := stockapi.NewClient(upstreamURL,
		stockapi.WithTimeout(5*time.Second),
		stockapi.WithLogger(log),
		stockapi.WithMetrics(m),
	)
	srv, err := NewServer(testConfig(upstreamURL), client,
		WithLogger(log), WithMetrics(m), WithVersion("test"))
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	return srv
}

// testServer creates a server with a running hub and a fake upstream.
func testServer(t *testing.T) (*Server, *upstream) {
	t.Helper()
	up := newUpstream(t)
	srv := newServer(t, up.URL, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	go srv.wsHub.Run(ctx) //nolint:errcheck
	t.Cleanup(func() {
		cancel()
		srv.bgStop()
	})
	return srv, up
}

// browser serves srv over a real listener and returns a cookie-keeping client.
func browser(t *testing.T, srv *Server) (*httptest.Server, *http.Client) {
	t.Helper()
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return ts, &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

type rawResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeResponse(t *testing.T, body io.Reader, data any) rawResponse {
	t.Helper()
	var resp rawResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if data != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, data); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return resp
}

func parseHTML(t *testing.T, body io.Reader) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		t.Fatalf("parse HTML: %v", err)
	}
	return doc
}

func postSearch(t *testing.T, h http.Handler, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sessionCookieOf(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "stockdash_session" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

// ═══════════════════════════════════════════════════════════════
// Health & config
// ═══════════════════════════════════════════════════════════════

func TestHandleHealth(t *testing.T) {
	srv, up := testServer(t)

	for _, path := range []string{"/health", "/api/v1/health"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var h HealthStatus
			resp := decodeResponse(t, rec.Body, &h)
			if !resp.Success {
				t.Error("expected success=true")
			}
			if h.Status != "ok" || h.Version != "test" {
				t.Errorf("health = %+v", h)
			}
			if h.Upstream != up.URL {
				t.Errorf("upstream = %q, want %q", h.Upstream, up.URL)
			}
			if h.MarketStatus == "" || h.TimeIST == "" {
				t.Error("market status and time should be set")
			}
		})
	}
	if n := up.hits.Load(); n != 0 {
		t.Errorf("health must not call the data service, got %d hits", n)
	}
}

func TestHandleGetConfig(t *testing.T) {
	srv, up := testServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got ConfigResponse
	decodeResponse(t, rec.Body, &got)
	if got.Config.Upstream.BaseURL != up.URL {
		t.Errorf("base_url = %q", got.Config.Upstream.BaseURL)
	}
	if got.UpstreamTimeout != "5s" || got.SessionIdle != "30m0s" {
		t.Errorf("durations = %q, %q", got.UpstreamTimeout, got.SessionIdle)
	}
}

func TestDurationString(t *testing.T) {
	if got := durationString(0); got != "none" {
		t.Errorf("durationString(0) = %q", got)
	}
	if got := durationString(90 * time.Second); got != "1m30s" {
		t.Errorf("durationString(90s) = %q", got)
	}
}

// ═══════════════════════════════════════════════════════════════
// Dashboard page
// ═══════════════════════════════════════════════════════════════

func TestIndexInitialPage(t *testing.T) {
	srv, up := testServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	cookie := sessionCookieOf(t, rec)
	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}

	doc := parseHTML(t, rec.Body)
	if got := doc.Find("h1#title").Text(); !strings.Contains(got, dashboard.Title) {
		t.Errorf("title = %q", got)
	}
	if got := strings.TrimSpace(doc.Find("#subtitle").Text()); got != dashboard.Subtitle {
		t.Errorf("subtitle = %q", got)
	}
	input := doc.Find("input#q")
	if ph, _ := input.Attr("placeholder"); ph != dashboard.Placeholder {
		t.Errorf("placeholder = %q", ph)
	}
	if v, _ := input.Attr("value"); v != "" {
		t.Errorf("initial query = %q, want empty", v)
	}
	btn := doc.Find("#search-btn")
	if strings.TrimSpace(btn.Text()) != "Search" {
		t.Errorf("button = %q", btn.Text())
	}
	if _, disabled := btn.Attr("disabled"); disabled {
		t.Error("button should be enabled initially")
	}
	for _, sel := range []string{"#error", "#summary", "#chart", ".section"} {
		if doc.Find(sel).Length() != 0 {
			t.Errorf("initial page should not render %s", sel)
		}
	}
	if n := up.hits.Load(); n != 0 {
		t.Errorf("page load made %d upstream requests", n)
	}
}

func TestIndexReusesSessionCookie(t *testing.T) {
	srv, _ := testServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookie := sessionCookieOf(t, rec)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if len(rec.Result().Cookies()) != 0 {
		t.Error("known session should not get a new cookie")
	}
	if srv.sessions.Len() != 1 {
		t.Errorf("sessions = %d, want 1", srv.sessions.Len())
	}
}

func TestSearchFormShowsStock(t *testing.T) {
	srv, up := testServer(t)
	ts, client := browser(t, srv)

	resp, err := client.PostForm(ts.URL+"/search", url.Values{"q": {"TCS"}})
	if err != nil {
		t.Fatalf("POST /search: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || resp.Request.URL.Path != "/" {
		t.Fatalf("want redirect to / with 200, got %d at %s", resp.StatusCode, resp.Request.URL.Path)
	}
	if up.hits.Load() != 1 {
		t.Errorf("upstream hits = %d, want 1", up.hits.Load())
	}

	doc := parseHTML(t, resp.Body)
	if v, _ := doc.Find("input#q").Attr("value"); v != "TCS" {
		t.Errorf("query box = %q, want TCS", v)
	}
	if doc.Find("#error").Length() != 0 {
		t.Errorf("unexpected error banner: %q", doc.Find("#error").Text())
	}
	if n := doc.Find("#summary .card").Length(); n != 4 {
		t.Errorf("summary cards = %d, want 4", n)
	}

	card := func(title string) *goquery.Selection {
		return doc.Find(fmt.Sprintf(`.card[data-title=%q]`, title))
	}
	if got := strings.TrimSpace(card("Current Price").Find(".card-value").Text()); got != "₹3,500.00" {
		t.Errorf("Current Price = %q", got)
	}
	if got := strings.TrimSpace(card("Change").Find(".card-value").Text()); got != "+12.50 (+0.36%)" {
		t.Errorf("Change = %q", got)
	}
	if !card("Change").HasClass("tone-green") {
		t.Error("non-negative change should be green")
	}
	if got := strings.TrimSpace(card("Dividend Yield").Find(".card-value").Text()); got != "N/A" {
		t.Errorf("Dividend Yield = %q, want N/A", got)
	}

	var names []string
	doc.Find(".section").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("data-name")
		names = append(names, name)
	})
	want := []string{"Trading Info", "Fundamental Info", "Financial Metrics", "52 Week Low"}
	if strings.Join(names, "|") != strings.Join(want, "|") {
		t.Errorf("sections = %v, want %v", names, want)
	}

	var days []string
	doc.Find("#chart [data-day]").Each(func(_ int, s *goquery.Selection) {
		d, _ := s.Attr("data-day")
		days = append(days, d)
	})
	if strings.Join(days, ",") != "Mon,Tue" {
		t.Errorf("chart points = %v, want [Mon Tue]", days)
	}
}

func TestSearchFormShowsNotFound(t *testing.T) {
	srv, _ := testServer(t)
	ts, client := browser(t, srv)

	resp, err := client.PostForm(ts.URL+"/search", url.Values{"q": {"ZZZZ"}})
	if err != nil {
		t.Fatalf("POST /search: %v", err)
	}
	defer resp.Body.Close()

	doc := parseHTML(t, resp.Body)
	banner := doc.Find("#error")
	if !strings.Contains(banner.Text(), "stock not found") {
		t.Errorf("error banner = %q", banner.Text())
	}
	if doc.Find("#summary").Length() != 0 {
		t.Error("no stock blocks expected after a failed first search")
	}
	if _, disabled := doc.Find("#search-btn").Attr("disabled"); disabled {
		t.Error("button should be enabled after failure")
	}
}

func TestSearchFormEmptyQueryIsNoop(t *testing.T) {
	srv, up := testServer(t)
	ts, client := browser(t, srv)

	resp, err := client.PostForm(ts.URL+"/search", url.Values{"q": {""}})
	if err != nil {
		t.Fatalf("POST /search: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if up.hits.Load() != 0 {
		t.Errorf("empty query made %d upstream requests", up.hits.Load())
	}
}

func TestSearchFormFailureKeepsPreviousStock(t *testing.T) {
	srv, _ := testServer(t)
	ts, client := browser(t, srv)

	for _, q := range []string{"TCS", "ZZZZ"} {
		resp, err := client.PostForm(ts.URL+"/search", url.Values{"q": {q}})
		if err != nil {
			t.Fatalf("POST /search %s: %v", q, err)
		}
		resp.Body.Close()
	}

	resp, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	doc := parseHTML(t, resp.Body)

	if doc.Find("#error").Length() != 1 {
		t.Error("failure should be visible")
	}
	if got := strings.TrimSpace(doc.Find(`.card[data-title="Symbol"] .card-value`).Text()); got != "TCS" {
		t.Errorf("previous stock should stay, symbol = %q", got)
	}
}

// ═══════════════════════════════════════════════════════════════
// JSON API
// ═══════════════════════════════════════════════════════════════

func TestAPISearchSuccess(t *testing.T) {
	srv, _ := testServer(t)

	rec := postSearch(t, srv.Router(), `{"query":"TCS"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	cookie := sessionCookieOf(t, rec)

	var view dashboard.View
	decodeResponse(t, rec.Body, &view)
	if !view.HasStock || view.Loading || view.Seq != 1 {
		t.Errorf("view = hasStock:%v loading:%v seq:%d", view.HasStock, view.Loading, view.Seq)
	}
	if view.Summary[1].Value != "TCS" {
		t.Errorf("symbol card = %q", view.Summary[1].Value)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var again dashboard.View
	decodeResponse(t, rec.Body, &again)
	if again.Seq != 1 || !again.HasStock || again.Search.Query != "TCS" {
		t.Errorf("dashboard state = %+v", again.Search)
	}
}

func TestAPISearchErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantErr    string
	}{
		{"invalid JSON", `{bad`, http.StatusBadRequest, "invalid JSON"},
		{"empty query", `{"query":""}`, http.StatusBadRequest, "query is required"},
		{"not found", `{"query":"ZZZZ"}`, http.StatusNotFound, "stock not found: ZZZZ (HTTP 404)"},
		{"upstream error", `{"query":"BOOM"}`, http.StatusBadGateway, "stock not found: BOOM (HTTP 500)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t)
			rec := postSearch(t, srv.Router(), tt.body)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			resp := decodeResponse(t, rec.Body, nil)
			if resp.Success {
				t.Error("expected success=false")
			}
			if !strings.Contains(resp.Error, tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", resp.Error, tt.wantErr)
			}
		})
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	srv, _ := testServer(t)

	rec := postSearch(t, srv.Router(), `{"query":"TCS"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	other := httptest.NewRecorder()
	srv.Router().ServeHTTP(other, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil))

	var view dashboard.View
	decodeResponse(t, other.Body, &view)
	if view.HasStock || view.Search.Query != "" {
		t.Error("a new session must start empty")
	}
	if srv.sessions.Len() != 2 {
		t.Errorf("sessions = %d, want 2", srv.sessions.Len())
	}
}

func TestHandleStock(t *testing.T) {
	srv, up := testServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantUp     string
	}{
		{"plain", "/api/v1/stocks/TCS", http.StatusOK, "/api/stocks/TCS"},
		{"escaped slash", "/api/v1/stocks/BRK%2FA", http.StatusOK, "/api/stocks/BRK%2FA"},
		{"escaped percent", "/api/v1/stocks/50%25", http.StatusNotFound, "/api/stocks/50%25"},
		{"escaped space", "/api/v1/stocks/A%20B", http.StatusNotFound, "/api/stocks/A%20B"},
		{"unknown", "/api/v1/stocks/NOPE", http.StatusNotFound, "/api/stocks/NOPE"},
		{"upstream failure", "/api/v1/stocks/BOOM", http.StatusBadGateway, "/api/stocks/BOOM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got, _ := up.lastPath.Load().(string); got != tt.wantUp {
				t.Errorf("upstream path = %q, want %q", got, tt.wantUp)
			}
			if tt.wantStatus == http.StatusOK {
				var snap struct {
					Symbol string `json:"symbol"`
				}
				decodeResponse(t, rec.Body, &snap)
				if snap.Symbol != "TCS" {
					t.Errorf("symbol = %q", snap.Symbol)
				}
			}
		})
	}

	if srv.sessions.Len() != 0 {
		t.Error("stock passthrough should not create sessions")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"superseded", dashboard.ErrSuperseded, http.StatusConflict},
		{"empty symbol", stockapi.ErrEmptySymbol, http.StatusBadRequest},
		{"404", &stockapi.StatusError{Symbol: "X", StatusCode: 404}, http.StatusNotFound},
		{"500", &stockapi.StatusError{Symbol: "X", StatusCode: 500}, http.StatusBadGateway},
		{"transport", &stockapi.TransportError{URL: "u", Err: errors.New("refused")}, http.StatusBadGateway},
		{"malformed", fmt.Errorf("%w: TCS", stockapi.ErrMalformedResponse), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// ═══════════════════════════════════════════════════════════════
// WebSocket
// ═══════════════════════════════════════════════════════════════

type wsEnvelope struct {
	Type string         `json:"type"`
	Data dashboard.View `json:"data"`
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
}

func readWS(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m wsEnvelope
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	return m
}

func TestWebSocketPushesStateChanges(t *testing.T) {
	srv, _ := testServer(t)
	ts, client := browser(t, srv)

	// Establish the session cookie first.
	resp, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	dialer := websocket.Dialer{Jar: client.Jar, HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	initial := readWS(t, conn)
	if initial.Type != "state" || initial.Data.HasStock || initial.Data.Seq != 0 {
		t.Fatalf("initial = %+v", initial)
	}

	body := strings.NewReader(`{"query":"TCS"}`)
	resp, err = client.Post(ts.URL+"/api/v1/search", "application/json", body)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	resp.Body.Close()

	loading := readWS(t, conn)
	if !loading.Data.Loading || loading.Data.Search.Label != "Loading..." || !loading.Data.Search.Disabled {
		t.Errorf("second message should be the loading state, got %+v", loading.Data.Search)
	}
	settled := readWS(t, conn)
	if settled.Data.Loading || !settled.Data.HasStock || settled.Data.Seq != 1 {
		t.Errorf("settled = loading:%v hasStock:%v seq:%d",
			settled.Data.Loading, settled.Data.HasStock, settled.Data.Seq)
	}
	if settled.Data.Chart == nil || !strings.Contains(settled.Data.Chart.SVG, `data-day="Mon"`) {
		t.Error("settled state should carry the chart")
	}
}

func TestWebSocketPingAndRefresh(t *testing.T) {
	srv, _ := testServer(t)
	ts, client := browser(t, srv)

	dialer := websocket.Dialer{Jar: client.Jar, HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var hasCookie bool
	for _, c := range resp.Cookies() {
		hasCookie = hasCookie || c.Name == "stockdash_session"
	}
	if !hasCookie {
		t.Error("handshake for a new session should set the cookie")
	}

	readWS(t, conn) // initial state

	if err := conn.WriteJSON(WSMessage{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	if m := readWS(t, conn); m.Type != "pong" {
		t.Errorf("ping reply = %q, want pong", m.Type)
	}

	if err := conn.WriteJSON(WSMessage{Type: "refresh"}); err != nil {
		t.Fatal(err)
	}
	if m := readWS(t, conn); m.Type != "state" || m.Data.Title != dashboard.Title {
		t.Errorf("refresh reply = %+v", m)
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	srv, _ := testServer(t)
	ts, _ := browser(t, srv)

	header := http.Header{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("want 403, got %v", resp)
	}
}

func TestCheckOrigin(t *testing.T) {
	srv, _ := testServer(t)
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://example.com", true}, // same host as the request
		{"http://localhost:3000", true},
		{"http://evil.example", false},
		{"://bad", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := srv.checkOrigin(req); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

// ═══════════════════════════════════════════════════════════════
// Static, metrics, logging, lifecycle
// ═══════════════════════════════════════════════════════════════

func TestStaticAssets(t *testing.T) {
	srv, _ := testServer(t)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/static/dashboard.js", http.StatusOK},
		{"/static/dashboard.css", http.StatusOK},
		{"/static/", http.StatusNotFound},
		{"/static/missing.js", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.wantStatus {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantStatus)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	postSearch(t, srv.Router(), `{"query":"TCS"}`)
	postSearch(t, srv.Router(), `{"query":"ZZZZ"}`)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`stockdash_upstream_fetch_total{outcome="ok"} 1`,
		`stockdash_upstream_fetch_total{outcome="not_found"} 1`,
		`stockdash_dashboard_searches_total 2`,
		`stockdash_dashboard_sessions 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	up := newUpstream(t)
	srv := newServer(t, up.URL, logging.NewWithWriter(&buf, "info", "text"))
	t.Cleanup(srv.bgStop)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	out := buf.String()
	for _, want := range []string{`msg="http request"`, "method=GET", "path=/health", "status=200", "request_id="} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	up := newUpstream(t)
	srv := newServer(t, up.URL, logging.Discard())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		cancel()
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
