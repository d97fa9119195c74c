package host

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Techcyte/context-sync/sdk/contracts/syncmsg"
)

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestControlAPI(t *testing.T) {
	m, _ := newTestManager(false)
	h := NewRouter(m, RouterConfig{})

	if rr := doRequest(t, h, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rr.Code)
	}
	if rr := doRequest(t, h, http.MethodPost, "/api/context", `{"case":"X1"}`); rr.Code != http.StatusConflict {
		t.Fatalf("propose without subscriber = %d", rr.Code)
	}

	a, _ := subscribe(t, m, "A", false)
	if rr := doRequest(t, h, http.MethodPost, "/api/context", `{"case":"X1"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("propose = %d %s", rr.Code, rr.Body)
	}
	if req, ok := recv(t, a).(syncmsg.ContextChangeRequest); !ok || req.Context.CaseNumber() != "X1" {
		t.Fatalf("client got %#v", req)
	}
	if rr := doRequest(t, h, http.MethodPost, "/api/context", `{}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("empty proposal = %d", rr.Code)
	}
	if rr := doRequest(t, h, http.MethodPost, "/api/context", `{bad`); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json = %d", rr.Code)
	}

	if rr := doRequest(t, h, http.MethodPost, "/api/vote/accept", ""); rr.Code != http.StatusConflict {
		t.Fatalf("accept without vote = %d", rr.Code)
	}
	send(t, m, a, syncmsg.ContextChangeRequest{Context: syncmsg.CaseContext("V1")})
	if rr := doRequest(t, h, http.MethodPost, "/api/vote/reject", `{"reason":"no","status":409}`); rr.Code != http.StatusNoContent {
		t.Fatalf("reject = %d %s", rr.Code, rr.Body)
	}
	rej, ok := recv(t, a).(syncmsg.ContextChangeReject)
	if !ok || rej.Rejection.Reason != "no" || rej.Rejection.Status != syncmsg.Conflict {
		t.Fatalf("client got %#v", rej)
	}

	send(t, m, a, syncmsg.ContextChangeRequest{Context: syncmsg.CaseContext("V2")})
	if rr := doRequest(t, h, http.MethodPost, "/api/vote/accept", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("accept = %d", rr.Code)
	}
	recv(t, a)

	rr := doRequest(t, h, http.MethodGet, "/api/state", "")
	var st State
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.Context.CaseNumber() != "V2" || st.Subscriber == nil || st.Subscriber.Application != "A" {
		t.Fatalf("state = %+v", st)
	}
}

func TestMetricsRoute(t *testing.T) {
	m, _ := newTestManager(false)
	if rr := doRequest(t, NewRouter(m, RouterConfig{}), http.MethodGet, "/metrics", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("metrics without gatherer = %d", rr.Code)
	}
	reg := prometheus.NewRegistry()
	RegisterMetrics(reg)
	subscribe(t, m, "A", false)
	rr := doRequest(t, NewRouter(m, RouterConfig{Gatherer: reg}), http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "ctxsync_host_subscriptions_total") {
		t.Fatalf("metrics = %d\n%s", rr.Code, rr.Body)
	}
}
