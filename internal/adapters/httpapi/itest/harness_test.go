//go:build integration

package itest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mitoc/membership-api/internal/adapters/httpapi"
	memclock "github.com/mitoc/membership-api/internal/adapters/memory/clock"
	memevents "github.com/mitoc/membership-api/internal/adapters/memory/events"
	memidempotency "github.com/mitoc/membership-api/internal/adapters/memory/idempotency"
	memmemberships "github.com/mitoc/membership-api/internal/adapters/memory/membershiprepo"
	memparticipants "github.com/mitoc/membership-api/internal/adapters/memory/participantrepo"
	pgidempotency "github.com/mitoc/membership-api/internal/adapters/postgres/idempotency"
	pgmemberships "github.com/mitoc/membership-api/internal/adapters/postgres/membershiprepo"
	pgparticipants "github.com/mitoc/membership-api/internal/adapters/postgres/participantrepo"
	postgres_testutil "github.com/mitoc/membership-api/internal/adapters/postgres/testutil"
	"github.com/mitoc/membership-api/internal/app/dues"
	"github.com/mitoc/membership-api/internal/app/eligibility"
	"github.com/mitoc/membership-api/internal/app/participants"
	idempotencyport "github.com/mitoc/membership-api/internal/ports/out/idempotency"
	membershipport "github.com/mitoc/membership-api/internal/ports/out/membershiprepo"
	participantport "github.com/mitoc/membership-api/internal/ports/out/participantrepo"
)

type backend string

const (
	backendMemory   backend = "memory"
	backendPostgres backend = "postgres"
)

const adminToken = "itest-admin"

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "postgres":
		return []backend{backendPostgres}
	case "all":
		return []backend{backendMemory, backendPostgres}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|postgres|all)")
		return nil
	}
}

type testServer struct {
	baseURL  string
	client   *http.Client
	clk      *memclock.ManualClock
	recorder *memevents.Recorder
}

func newTestServer(t *testing.T, b backend) *testServer {
	t.Helper()

	const issuer = "itest-issuer"
	clk := memclock.NewManualClock(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	var (
		participantRepo participantport.Repository
		membershipRepo  membershipport.Repository
		idemStore       idempotencyport.Store
	)

	switch b {
	case backendPostgres:
		pool := postgres_testutil.OpenMigratedPool(t)
		participantRepo = pgparticipants.NewRepo(pool, issuer)
		membershipRepo = pgmemberships.NewRepo(pool)
		idemStore = pgidempotency.NewStore(pool, issuer)
	case backendMemory:
		repo := memparticipants.NewRepo()
		participantRepo = repo
		membershipRepo = memmemberships.NewRepo(repo)
		idemStore = memidempotency.NewStore()
	default:
		t.Fatalf("unknown backend: %s", b)
	}

	engine := eligibility.NewEngine(eligibility.DefaultCatalog(), eligibility.Config{})
	recorder := memevents.NewRecorder()
	partSvc := participants.NewService(participantRepo, membershipRepo, engine, clk,
		participants.WithConfirmationSender(recorder),
	)
	duesSvc := dues.NewService(participantRepo, membershipRepo, engine, recorder, clk, dues.PaymentConfig{
		MerchantID:  "mit_sao_mitoc",
		PaymentType: "membership",
		GatewayURL:  "https://pay.example.test/checkout",
	})
	api := httpapi.NewServer(partSvc, duesSvc, idemStore, clk, nil)

	// Integration tests use dev auth to stay fully local and deterministic. An empty default
	// subject means requests MUST provide X-Debug-Subject.
	handler := httpapi.NewRouter(api, httpapi.RouterOptions{
		Auth:       httpapi.DevAuthenticator(""),
		AdminToken: adminToken,
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL:  srv.URL,
		client:   srv.Client(),
		clk:      clk,
		recorder: recorder,
	}
}

func (s *testServer) url(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.baseURL + path
	}
	return s.baseURL + "/" + path
}

func (s *testServer) doJSON(t *testing.T, method string, path string, subject string, body any, headers map[string]string) (int, []byte, http.Header) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.url(path), r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if subject != "" {
		req.Header.Set(httpapi.DebugSubjectHeader, subject)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, resp.Header
}

func mustUnmarshal[T any](t *testing.T, b []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v\nbody=%s", err, string(b))
	}
	return out
}

func requireStatus(t *testing.T, status int, body []byte, want int) {
	t.Helper()
	if status != want {
		t.Fatalf("status=%d want=%d body=%s", status, want, string(body))
	}
}

func requireErrorCode(t *testing.T, status int, body []byte, wantStatus int, wantCode string) {
	t.Helper()
	requireStatus(t, status, body, wantStatus)
	got := mustUnmarshal[httpapi.ErrorResponse](t, body)
	if got.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", got.Error.Code, wantCode, string(body))
	}
}
