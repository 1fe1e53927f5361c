package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ehrchain/core/access"
	"ehrchain/core/audit"
	"ehrchain/core/auth"
	"ehrchain/core/ehr"
	"ehrchain/core/genesis"
	"ehrchain/core/ledger"
	"ehrchain/core/record"
	"ehrchain/core/storage"
	"ehrchain/core/verify"
	"ehrchain/core/wallet"
)

type testNode struct {
	srv *httptest.Server
	svc *ehr.Service
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()
	backend := storage.NewMemory()
	g, err := genesis.Block(genesis.Config{})
	require.NoError(t, err)
	l, err := ledger.Open(backend, ledger.Options{Genesis: g, CacheSize: 16, Logger: zerolog.Nop()})
	require.NoError(t, err)
	tokens := auth.NewTokens([]byte("api-test-secret"), time.Hour)
	svc, err := ehr.New(ehr.Options{
		Ledger:      l,
		Keystore:    wallet.NewKeystore(backend, nil),
		Codec:       record.NewCodec(nil),
		Tokens:      tokens,
		Logger:      zerolog.Nop(),
		GenesisHash: g.BlockHash,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, svc.BootstrapAdmin(ctx, "root", "root-pass"))
	for _, req := range []ehr.RegisterRequest{
		{ID: "alice", Role: "patient", Name: "Alice", Password: "pw"},
		{ID: "bob", Role: "patient", Name: "Bob", Password: "pw"},
		{ID: "dr-house", Role: "doctor", Name: "Gregory House", Password: "pw"},
	} {
		_, err := svc.RegisterActor(ctx, "", req)
		require.NoError(t, err)
	}
	_, err = svc.GrantAccess(ctx, "alice", "dr-house", "write")
	require.NoError(t, err)

	authn := &auth.Authenticator{Tokens: tokens, AuditLogger: audit.Nop{}}
	s := NewServer(svc, authn, Options{DataDir: t.TempDir(), Logger: zerolog.Nop()})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &testNode{srv: ts, svc: svc}
}

func (n *testNode) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, n.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (n *testNode) login(t *testing.T, id, password string) string {
	t.Helper()
	resp := n.do(t, http.MethodPost, "/api/v1/login", "", LoginRequest{ID: id, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sess ehr.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	require.NotEmpty(t, sess.Token)
	return sess.Token
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthEndpoints(t *testing.T) {
	n := newTestNode(t)

	var live LivenessResponse
	decode(t, n.do(t, http.MethodGet, "/health/liveness", "", nil), &live)
	assert.True(t, live.Alive)

	resp := n.do(t, http.MethodGet, "/health/readiness", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var ready ReadinessResponse
	decode(t, resp, &ready)
	assert.True(t, ready.Ready)

	var status StatusResponse
	decode(t, n.do(t, http.MethodGet, "/status", "", nil), &status)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, n.svc.Height(), status.BlockHeight)
	assert.Equal(t, NodeVersion(), status.Version)
	assert.Equal(t, "v1", status.APIVersion)

	var health NodeHealthResponse
	decode(t, n.do(t, http.MethodGet, "/nodehealth", "", nil), &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, n.svc.Tail().BlockHash, health.Metrics.LastBlockHash)
}

func TestRegisterAndLogin(t *testing.T) {
	n := newTestNode(t)

	resp := n.do(t, http.MethodPost, "/api/v1/actors", "", ehr.RegisterRequest{ID: "carol", Role: "patient", Name: "Carol", Password: "pw"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = n.do(t, http.MethodPost, "/api/v1/actors", "", ehr.RegisterRequest{ID: "carol", Role: "patient", Name: "Carol", Password: "pw"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = n.do(t, http.MethodPost, "/api/v1/actors", "", ehr.RegisterRequest{ID: "mallory", Role: "admin", Name: "Mallory", Password: "pw"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	root := n.login(t, "root", "root-pass")
	resp = n.do(t, http.MethodPost, "/api/v1/actors", root, ehr.RegisterRequest{ID: "ops", Role: "admin", Name: "Ops", Password: "pw"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = n.do(t, http.MethodPost, "/api/v1/login", "", LoginRequest{ID: "carol", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	carol := n.login(t, "carol", "pw")
	resp = n.do(t, http.MethodGet, "/api/v1/actors/carol", carol, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var actor map[string]interface{}
	decode(t, resp, &actor)
	assert.Equal(t, "carol", actor["id"])
	assert.NotContains(t, actor, "passwordHash")

	resp = n.do(t, http.MethodGet, "/api/v1/actors/alice", carol, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRecordLifecycle(t *testing.T) {
	n := newTestNode(t)
	doctor := n.login(t, "dr-house", "pw")
	alice := n.login(t, "alice", "pw")
	bob := n.login(t, "bob", "pw")

	rec := record.Record{PatientID: "alice", RecordType: record.TypeDiagnosis, Diagnosis: "Lupus", Treatment: "steroids"}
	resp := n.do(t, http.MethodPost, "/api/v1/records", doctor, rec)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var rcpt ehr.Receipt
	decode(t, resp, &rcpt)
	require.NotEmpty(t, rcpt.RecordID)

	resp = n.do(t, http.MethodGet, "/api/v1/records/"+rcpt.RecordID, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got record.Record
	decode(t, resp, &got)
	assert.Equal(t, "Lupus", got.Diagnosis)
	assert.Equal(t, "dr-house", got.AuthorID)

	resp = n.do(t, http.MethodGet, "/api/v1/records/"+rcpt.RecordID, bob, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = n.do(t, http.MethodGet, "/api/v1/records/"+rcpt.RecordID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = n.do(t, http.MethodGet, "/api/v1/records/"+rcpt.RecordID, "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	fixed := rec
	fixed.Diagnosis = "Sarcoidosis"
	resp = n.do(t, http.MethodPost, "/api/v1/records/"+rcpt.RecordID+"/amend", doctor, AmendRequest{Record: fixed, Reason: "biopsy"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = n.do(t, http.MethodGet, "/api/v1/records/"+rcpt.RecordID+"/lineage", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lineage []record.Record
	decode(t, resp, &lineage)
	require.Len(t, lineage, 2)
	assert.Equal(t, "Sarcoidosis", lineage[1].Diagnosis)

	resp = n.do(t, http.MethodPost, "/api/v1/records/"+rcpt.RecordID+"/verify-hash", alice, VerifyHashRequest{Hash: rcpt.Fingerprint})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var match VerifyHashResponse
	decode(t, resp, &match)
	assert.True(t, match.Match)

	resp = n.do(t, http.MethodGet, "/api/v1/patients/alice/records", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recs []record.Record
	decode(t, resp, &recs)
	assert.Len(t, recs, 2)

	resp = n.do(t, http.MethodGet, "/api/v1/patients/alice/records", bob, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestBadRequests(t *testing.T) {
	n := newTestNode(t)
	doctor := n.login(t, "dr-house", "pw")

	resp := n.do(t, http.MethodPost, "/api/v1/records", doctor, map[string]string{"bogus": "field"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = n.do(t, http.MethodPost, "/api/v1/records", doctor, record.Record{PatientID: "alice", RecordType: "horoscope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = n.do(t, http.MethodGet, "/api/v1/ledger/blocks?from=abc", doctor, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGrantEndpoints(t *testing.T) {
	n := newTestNode(t)
	alice := n.login(t, "alice", "pw")
	doctor := n.login(t, "dr-house", "pw")

	resp := n.do(t, http.MethodGet, "/api/v1/grants", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var grants []map[string]interface{}
	decode(t, resp, &grants)
	require.Len(t, grants, 1)
	assert.Equal(t, "dr-house", grants[0]["doctorId"])

	resp = n.do(t, http.MethodDelete, "/api/v1/grants?doctorId=dr-house", alice, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = n.do(t, http.MethodPost, "/api/v1/records", doctor, record.Record{PatientID: "alice", RecordType: record.TypeNote, Notes: "follow-up"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = n.do(t, http.MethodPost, "/api/v1/grants", alice, GrantRequest{DoctorID: "dr-house", Scope: "write"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = n.do(t, http.MethodPost, "/api/v1/records", doctor, record.Record{PatientID: "alice", RecordType: record.TypeNote, Notes: "follow-up"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestProfileAndPasswordEndpoints(t *testing.T) {
	n := newTestNode(t)
	alice := n.login(t, "alice", "pw")

	resp := n.do(t, http.MethodPut, "/api/v1/actors/alice/profile", alice, ehr.ProfileUpdate{Name: "Alice Smith", Profile: &access.Profile{Age: 41}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var a access.Actor
	decode(t, resp, &a)
	assert.Equal(t, "Alice Smith", a.Name)
	assert.Equal(t, 41, a.Profile.Age)

	resp = n.do(t, http.MethodPut, "/api/v1/actors/bob/profile", alice, ehr.ProfileUpdate{Name: "Mallory"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = n.do(t, http.MethodPut, "/api/v1/actors/alice/password", alice, PasswordRequest{Current: "nope", New: "pw2"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = n.do(t, http.MethodPut, "/api/v1/actors/alice/password", alice, PasswordRequest{Current: "pw", New: "pw2"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	n.login(t, "alice", "pw2")
}

func TestDoctorPatientsEndpoint(t *testing.T) {
	n := newTestNode(t)
	doctor := n.login(t, "dr-house", "pw")
	alice := n.login(t, "alice", "pw")

	resp := n.do(t, http.MethodGet, "/api/v1/patients", doctor, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var patients []access.Actor
	decode(t, resp, &patients)
	require.Len(t, patients, 1)
	assert.Equal(t, "alice", patients[0].ID)
	assert.Empty(t, patients[0].PasswordHash)

	resp = n.do(t, http.MethodGet, "/api/v1/patients", alice, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLedgerEndpoints(t *testing.T) {
	n := newTestNode(t)
	root := n.login(t, "root", "root-pass")
	alice := n.login(t, "alice", "pw")

	resp := n.do(t, http.MethodGet, "/api/v1/ledger/verify", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res verify.Result
	decode(t, resp, &res)
	assert.True(t, res.Valid)
	assert.Nil(t, res.FirstInvalidIndex)
	assert.Equal(t, int(n.svc.Height()), res.Checked)

	resp = n.do(t, http.MethodGet, "/api/v1/ledger/blocks?from=0&to=2", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var headers []map[string]interface{}
	decode(t, resp, &headers)
	require.Len(t, headers, 2)
	assert.NotContains(t, headers[0], "payload")

	tail := n.svc.Tail()
	resp = n.do(t, http.MethodGet, "/api/v1/ledger/blocks/"+tail.BlockHash, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var byHash map[string]interface{}
	decode(t, resp, &byHash)
	assert.Equal(t, float64(tail.Index), byHash["index"])
	resp = n.do(t, http.MethodGet, "/api/v1/ledger/blocks/"+strings.Repeat("ab", 32), alice, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = n.do(t, http.MethodGet, "/api/v1/ledger/checkpoint", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cp verify.Checkpoint
	decode(t, resp, &cp)
	assert.Equal(t, n.svc.Height(), cp.To)
	assert.Equal(t, n.svc.Tail().BlockHash, cp.LastHash)

	resp = n.do(t, http.MethodGet, "/api/v1/ledger/checkpoint?from=99", alice, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = n.do(t, http.MethodGet, "/api/v1/analytics", alice, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = n.do(t, http.MethodGet, "/api/v1/analytics", root, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = n.do(t, http.MethodGet, "/api/v1/audit", root, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []audit.Entry
	decode(t, resp, &entries)
	assert.NotEmpty(t, entries)
}

func TestRateLimiterBansProgressively(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(2, time.Minute)
	l.now = func() time.Time { return clock }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))

	clock = clock.Add(30 * time.Second)
	assert.False(t, l.Allow("10.0.0.1"))

	clock = clock.Add(31 * time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	clock = clock.Add(2 * time.Minute)
	assert.False(t, l.Allow("10.0.0.1"), "second ban lasts longer")
}

func TestRateLimiterForgetsIdleClients(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(5, time.Minute)
	l.now = func() time.Time { return clock }

	for _, addr := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		assert.True(t, l.Allow(addr))
	}
	assert.Len(t, l.requests, 3)

	clock = clock.Add(2 * time.Minute)
	assert.True(t, l.Allow("10.0.0.4"))
	assert.Len(t, l.requests, 1)
	assert.Contains(t, l.requests, "10.0.0.4")
}

func TestRateLimitMiddleware(t *testing.T) {
	n := newTestNode(t)
	s := NewServer(n.svc, &auth.Authenticator{Tokens: auth.NewTokens([]byte("x"), time.Hour), AuditLogger: audit.Nop{}},
		Options{RateLimitPerMin: 1, Logger: zerolog.Nop()})
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health/liveness", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
