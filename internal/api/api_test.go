package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/kataster/internal/apperr"
	"github.com/erazemk/kataster/internal/db"
	"github.com/erazemk/kataster/internal/docstore"
	"github.com/erazemk/kataster/internal/metrics"
	"github.com/erazemk/kataster/internal/model"
	"github.com/erazemk/kataster/internal/registry"
	"github.com/erazemk/kataster/internal/store"
	"github.com/erazemk/kataster/internal/workflow"
)

const (
	testJWTSecret = "test-secret"
	testPassword  = "password"
)

type testServer struct {
	*httptest.Server
	db   *sql.DB
	docs *docstore.Memory
}

func setupTestServer(t *testing.T) (*testServer, string) {
	t.Helper()
	database := db.NewTestDB(t)
	docs := docstore.NewMemory()
	m := metrics.New()
	cfg := workflow.DefaultConfig()

	router := NewRouter(Deps{
		DB:            database,
		JWTSecret:     testJWTSecret,
		Registry:      registry.New(database, docs, m),
		Transfers:     workflow.NewTransfers(database, docs, m, cfg.RequiredApprovals),
		Verifications: workflow.NewVerifications(database, docs, m, cfg.InitialVerificationStatus),
		Metrics:       m,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	ts := &testServer{Server: server, db: database, docs: docs}
	ts.createUser(t, "admin", model.RoleAdmin)
	return ts, ts.login(t, "admin")
}

func (s *testServer) createUser(t *testing.T, username, role string) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	u, err := store.CreateUser(context.Background(), s.db, username, string(hash), role)
	require.NoError(t, err)
	return u
}

func (s *testServer) login(t *testing.T, username string) string {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Token string `json:"token"`
	}
	decode(t, resp, &body)
	require.NotEmpty(t, body.Token)
	return body.Token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	req, err := authRequest(method, s.URL+path, token, body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	decode(t, resp, &body)
	return body["error"]
}

func propertyBody() map[string]any {
	return map[string]any{
		"title": "Plot 7, Hill Road",
		"type":  model.PropertyTypeResidential,
		"size":  450.5,
		"price": 120000,
		"location": map[string]any{
			"address": "7 Hill Road",
			"area":    "Kololo",
			"city":    "Kampala",
		},
	}
}

func (s *testServer) createProperty(t *testing.T, token string) *model.Property {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/properties", token, propertyBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var p model.Property
	decode(t, resp, &p)
	return &p
}

func TestLoginEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	resp := server.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = server.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	resp := server.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body tokenResponse
	decode(t, resp, &body)
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, model.RoleUser, body.User.Role)

	resp = server.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice",
		"password": "correct-horse",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = server.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "bob",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnauthenticatedAccess(t *testing.T) {
	server, _ := setupTestServer(t)

	for _, path := range []string{"/api/properties", "/api/transfers", "/api/users"} {
		resp := server.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	resp := server.do(t, http.MethodGet, "/api/properties", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoleBasedAccess(t *testing.T) {
	server, _ := setupTestServer(t)
	server.createUser(t, "user", model.RoleUser)
	userToken := server.login(t, "user")

	resp := server.do(t, http.MethodPost, "/api/users", userToken, map[string]string{
		"username": "intruder",
		"password": "password123",
		"role":     model.RoleAdmin,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = server.do(t, http.MethodPut, "/api/verifications/anything/approve", userToken, map[string]string{
		"status": "approved",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Listing users is open so owners can pick a verifier.
	server.createUser(t, "vera", model.RoleVerifier)
	resp = server.do(t, http.MethodGet, "/api/users?role=verifier", userToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users []model.User
	decode(t, resp, &users)
	require.Len(t, users, 1)
	assert.Equal(t, "vera", users[0].Username)
}

func TestRoleChangeAppliesToExistingToken(t *testing.T) {
	server, adminToken := setupTestServer(t)
	u := server.createUser(t, "promoted", model.RoleUser)
	token := server.login(t, "promoted")

	resp := server.do(t, http.MethodGet, "/api/users/1", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = server.do(t, http.MethodPut, fmt.Sprintf("/api/users/%d", u.ID), adminToken, map[string]string{
		"role": model.RoleAdmin,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = server.do(t, http.MethodGet, "/api/users/1", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUserAdmin(t *testing.T) {
	server, token := setupTestServer(t)

	resp := server.do(t, http.MethodPost, "/api/users", token, map[string]string{
		"username": "vera",
		"password": "password123",
		"role":     "superuser",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "role is invalid", errorMessage(t, resp))

	resp = server.do(t, http.MethodPost, "/api/users", token, map[string]string{
		"username": "vera",
		"password": testPassword,
		"role":     model.RoleVerifier,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var u model.User
	decode(t, resp, &u)

	resp = server.do(t, http.MethodPost, "/api/users", token, map[string]string{
		"username": "vera",
		"password": "password123",
		"role":     model.RoleUser,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = server.do(t, http.MethodDelete, "/api/users/1", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	veraToken := server.login(t, "vera")
	resp = server.do(t, http.MethodDelete, fmt.Sprintf("/api/users/%d", u.ID), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Deleted accounts lose access with their existing tokens.
	resp = server.do(t, http.MethodGet, "/api/properties", veraToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutRevokesToken(t *testing.T) {
	server, token := setupTestServer(t)

	resp := server.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = server.do(t, http.MethodGet, "/api/properties", token, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "token has been revoked", errorMessage(t, resp))
}

func TestPropertyValidation(t *testing.T) {
	server, token := setupTestServer(t)

	body := propertyBody()
	body["type"] = "castle"
	resp := server.do(t, http.MethodPost, "/api/properties", token, body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, errorMessage(t, resp), "type must be one of")

	body = propertyBody()
	delete(body, "location")
	resp = server.do(t, http.MethodPost, "/api/properties", token, body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = server.do(t, http.MethodGet, "/api/properties/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPropertyMultipartUpload(t *testing.T) {
	server, token := setupTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	data, err := json.Marshal(propertyBody())
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("data", string(data)))
	fw, err := mw.CreateFormFile("documents", "deed.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("document_types", model.DocTypeDeed))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/properties", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var p model.Property
	decode(t, resp, &p)
	require.Len(t, p.Documents, 1)
	assert.Equal(t, model.DocTypeDeed, p.Documents[0].Type)
	assert.Equal(t, 1, server.docs.Len())

	resp = server.do(t, http.MethodDelete, "/api/properties/"+p.ID+"/documents/"+p.Documents[0].ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &p)
	assert.Empty(t, p.Documents)
	assert.Equal(t, 0, server.docs.Len())
}

func TestPropertyUpdateAndHistory(t *testing.T) {
	server, _ := setupTestServer(t)
	server.createUser(t, "owner", model.RoleUser)
	server.createUser(t, "other", model.RoleUser)
	owner := server.login(t, "owner")
	other := server.login(t, "other")

	p := server.createProperty(t, owner)

	resp := server.do(t, http.MethodPut, "/api/properties/"+p.ID, other, map[string]any{"price": 1})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = server.do(t, http.MethodPut, "/api/properties/"+p.ID, owner, map[string]any{"price": 150000})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = server.do(t, http.MethodGet, "/api/properties/"+p.ID+"/history?limit=1&offset=1", owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page historyResponse
	decode(t, resp, &page)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.History, 1)
	assert.Equal(t, model.ActionUpdated, page.History[0].Action)

	resp = server.do(t, http.MethodGet, "/api/properties/"+p.ID+"/history?limit=x", owner, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Users only list their own properties.
	resp = server.do(t, http.MethodGet, "/api/properties", other, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var props []model.Property
	decode(t, resp, &props)
	assert.Empty(t, props)
}

func TestTransferAPIFlow(t *testing.T) {
	server, _ := setupTestServer(t)
	server.createUser(t, "seller", model.RoleUser)
	buyer := server.createUser(t, "buyer", model.RoleUser)
	server.createUser(t, "vera", model.RoleVerifier)
	sellerToken := server.login(t, "seller")
	buyerToken := server.login(t, "buyer")
	verifierToken := server.login(t, "vera")

	p := server.createProperty(t, sellerToken)

	resp := server.do(t, http.MethodPost, "/api/transfers", sellerToken, map[string]any{
		"property_id": p.ID,
		"to_owner_id": buyer.ID,
		"to_owner_details": map[string]string{
			"name":           "Buyer Person",
			"identification": "CM900",
			"contact":        "+256700000000",
		},
		"transfer_reason": "sale",
		"agreement_date":  time.Now().UTC().Format(time.RFC3339),
		"transfer_amount": 250000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var tr model.Transfer
	decode(t, resp, &tr)
	assert.Equal(t, model.TransferStatusPending, tr.Status)
	assert.True(t, tr.Approvals[model.ApprovalSeller].Approved)

	// A second transfer for the same property conflicts.
	resp = server.do(t, http.MethodPost, "/api/transfers", sellerToken, map[string]any{
		"property_id":      p.ID,
		"to_owner_id":      buyer.ID,
		"to_owner_details": map[string]string{"name": "B", "identification": "X", "contact": "Y"},
		"transfer_reason":  "sale",
		"agreement_date":   time.Now().UTC().Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The seller cannot approve on behalf of the buyer.
	resp = server.do(t, http.MethodPut, "/api/transfers/"+tr.ID+"/approve", sellerToken, map[string]string{"role": "buyer"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = server.do(t, http.MethodPut, "/api/transfers/"+tr.ID+"/approve", buyerToken, map[string]string{"role": "buyer"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = server.do(t, http.MethodPut, "/api/transfers/"+tr.ID+"/approve", verifierToken, map[string]string{"role": "verifier"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &tr)
	assert.Equal(t, model.TransferStatusCompleted, tr.Status)
	assert.NotNil(t, tr.TransferDate)

	resp = server.do(t, http.MethodGet, "/api/properties/"+p.ID, buyerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, p)
	assert.Equal(t, buyer.ID, p.OwnerID)
	assert.Equal(t, model.PropertyStatusRegistered, p.Status)

	// Completed transfers cannot be rejected.
	resp = server.do(t, http.MethodPost, "/api/transfers/"+tr.ID+"/reject", sellerToken, map[string]string{"reason": "changed my mind"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = server.do(t, http.MethodGet, "/api/transfers?status=completed", buyerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []model.Transfer
	decode(t, resp, &list)
	assert.Len(t, list, 1)
}

func TestTransferRejectValidation(t *testing.T) {
	server, _ := setupTestServer(t)
	server.createUser(t, "seller", model.RoleUser)
	token := server.login(t, "seller")

	resp := server.do(t, http.MethodPost, "/api/transfers/unknown/reject", token, map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "reason is required", errorMessage(t, resp))

	resp = server.do(t, http.MethodPost, "/api/transfers/unknown/reject", token, map[string]string{"reason": "no"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = server.do(t, http.MethodPut, "/api/transfers/unknown", token, map[string]any{
		"payment_details": map[string]string{"method": "barter"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerificationAPIFlow(t *testing.T) {
	server, _ := setupTestServer(t)
	server.createUser(t, "owner", model.RoleUser)
	verifier := server.createUser(t, "vera", model.RoleVerifier)
	ownerToken := server.login(t, "owner")
	verifierToken := server.login(t, "vera")

	p := server.createProperty(t, ownerToken)

	resp := server.do(t, http.MethodPost, "/api/verifications", ownerToken, map[string]any{
		"property_id":   p.ID,
		"verifier_id":   verifier.ID,
		"ls_number":     "LS12/2024",
		"page_number":   "4",
		"volume_number": "2",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "ls_number must look like LS1234/2024", errorMessage(t, resp))

	resp = server.do(t, http.MethodPost, "/api/verifications", ownerToken, map[string]any{
		"property_id":   p.ID,
		"verifier_id":   verifier.ID,
		"ls_number":     "LS1234/2024",
		"page_number":   "4",
		"volume_number": "2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var v model.Verification
	decode(t, resp, &v)
	assert.Equal(t, model.VerificationPending, v.Status)

	check := map[string]any{"status": true}
	resp = server.do(t, http.MethodPut, "/api/verifications/"+v.ID+"/approve", verifierToken, map[string]any{
		"status":        "approved",
		"survey_valid":  check,
		"title_valid":   check,
		"tax_clearance": check,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &v)
	assert.Equal(t, model.VerificationVerified, v.Status)
	assert.True(t, v.Checks.Complete())

	resp = server.do(t, http.MethodGet, "/api/verifications/property/"+p.ID, ownerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status workflow.Status
	decode(t, resp, &status)
	assert.Equal(t, model.VerificationStatusVerified, status.VerificationStatus)
	require.NotNil(t, status.Verification)
	assert.Equal(t, v.ID, status.Verification.ID)

	// A different decision on a decided verification is refused.
	resp = server.do(t, http.MethodPut, "/api/verifications/"+v.ID+"/approve", verifierToken, map[string]any{
		"status": "rejected",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)
	server.createUser(t, "owner", model.RoleUser)
	token := server.login(t, "owner")
	server.createProperty(t, token)

	resp := server.do(t, http.MethodGet, "/api/stats", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats registry.Stats
	decode(t, resp, &stats)
	require.NotNil(t, stats.Properties)
	assert.Equal(t, 1, stats.Properties.Total)
}

func TestMetricsEndpoint(t *testing.T) {
	server, token := setupTestServer(t)
	server.createProperty(t, token)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "kataster_")
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
		msg  string
	}{
		{apperr.NotFound("transfer not found"), http.StatusNotFound, "transfer not found"},
		{apperr.Forbidden("no"), http.StatusForbidden, "no"},
		{apperr.Conflict("busy"), http.StatusConflict, "busy"},
		{apperr.InvalidState("done"), http.StatusConflict, "done"},
		{apperr.Validation("bad"), http.StatusBadRequest, "bad"},
		{apperr.Inconsistent(errors.New("row gone"), "cascade failed"), http.StatusInternalServerError, ""},
		{errors.New("disk on fire"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		writeError(rec, req, tt.err)

		assert.Equal(t, tt.code, rec.Code, tt.err.Error())
		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		if tt.msg != "" {
			assert.Equal(t, tt.msg, body["error"])
		} else {
			assert.NotContains(t, body["error"], "row gone")
			assert.NotContains(t, body["error"], "disk on fire")
		}
	}
}
