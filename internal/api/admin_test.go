package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// adminRequest builds a request with an admin bearer token attached.
func adminRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "admin"))
	return req
}

// ─── Admin Auth Tests ──────────────────────────────────────────────

func TestAdminAuth_MissingToken(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orgs", nil)
	w, resp := doJSON(t, env.router, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if resp["code"] != ErrCodeUnauthorized {
		t.Errorf("code = %v, want %v", resp["code"], ErrCodeUnauthorized)
	}
}

func TestAdminAuth_GarbageToken(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orgs", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w, _ := doJSON(t, env.router, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAdminAuth_WrongRole(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orgs", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "viewer"))
	w, _ := doJSON(t, env.router, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestAdminAuth_OrgKeyDoesNotOpenAdminRoutes(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orgs", nil)
	req.Header.Set("x-org-key", env.orgKey)
	w, _ := doJSON(t, env.router, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// ─── Org Management Tests ──────────────────────────────────────────

func TestAdminCreateOrg(t *testing.T) {
	env := testServer(t)

	req := adminRequest(t, http.MethodPost, "/api/v1/admin/orgs", `{"name": "New Tenant", "plan": "starter"}`)
	w, resp := doJSON(t, env.router, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	key, _ := resp["org_key"].(string)
	if !strings.HasPrefix(key, "org_") {
		t.Errorf("org_key = %q, want org_ prefix", key)
	}

	created := resp["org"].(map[string]any)
	if !strings.HasPrefix(created["id"].(string), "org-") {
		t.Errorf("org id = %v, want org- prefix", created["id"])
	}
	if created["plan"] != "starter" {
		t.Errorf("plan = %v, want starter", created["plan"])
	}
	if created["device_limit"] != float64(25) {
		t.Errorf("device_limit = %v, want 25 (starter default)", created["device_limit"])
	}

	// The returned key must work for admission immediately.
	w2, body := postDevice(t, env.router, "/api/v1/devices/register", key, "worker-01")
	if w2.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("register with fresh key = %d/%v, want 200/ok", w2.Code, body["status"])
	}
}

func TestAdminCreateOrg_DefaultsToFreePlan(t *testing.T) {
	env := testServer(t)

	req := adminRequest(t, http.MethodPost, "/api/v1/admin/orgs", `{"name": "Plan-less"}`)
	w, resp := doJSON(t, env.router, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	created := resp["org"].(map[string]any)
	if created["plan"] != "free" {
		t.Errorf("plan = %v, want free", created["plan"])
	}
	if created["device_limit"] != float64(3) {
		t.Errorf("device_limit = %v, want 3", created["device_limit"])
	}
}

func TestAdminCreateOrg_ExplicitLimitOverridesPlanDefault(t *testing.T) {
	env := testServer(t)

	req := adminRequest(t, http.MethodPost, "/api/v1/admin/orgs", `{"name": "Custom", "plan": "free", "device_limit": 10}`)
	w, resp := doJSON(t, env.router, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	created := resp["org"].(map[string]any)
	if created["device_limit"] != float64(10) {
		t.Errorf("device_limit = %v, want 10", created["device_limit"])
	}
}

func TestAdminCreateOrg_UnlimitedPlan(t *testing.T) {
	env := testServer(t)

	req := adminRequest(t, http.MethodPost, "/api/v1/admin/orgs", `{"name": "Big Fish", "plan": "enterprise"}`)
	w, resp := doJSON(t, env.router, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	created := resp["org"].(map[string]any)
	if created["device_limit"] != float64(-1) {
		t.Errorf("device_limit = %v, want -1 (unlimited)", created["device_limit"])
	}
}

func TestAdminCreateOrg_UnknownPlan(t *testing.T) {
	env := testServer(t)

	req := adminRequest(t, http.MethodPost, "/api/v1/admin/orgs", `{"name": "X", "plan": "platinum"}`)
	w, resp := doJSON(t, env.router, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if resp["code"] != ErrCodeValidation {
		t.Errorf("code = %v, want %v", resp["code"], ErrCodeValidation)
	}
}

func TestAdminCreateOrg_MissingName(t *testing.T) {
	env := testServer(t)

	req := adminRequest(t, http.MethodPost, "/api/v1/admin/orgs", `{"plan": "free"}`)
	w, _ := doJSON(t, env.router, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAdminListOrgs(t *testing.T) {
	env := testServer(t)

	req := adminRequest(t, http.MethodGet, "/api/v1/admin/orgs", "")
	w, resp := doJSON(t, env.router, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if int(resp["count"].(float64)) != 1 {
		t.Errorf("count = %v, want 1 (seeded org)", resp["count"])
	}
}

func TestAdminGetOrg(t *testing.T) {
	env := testServer(t)

	req := adminRequest(t, http.MethodGet, "/api/v1/admin/orgs/"+env.org.ID, "")
	w, resp := doJSON(t, env.router, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["id"] != env.org.ID {
		t.Errorf("id = %v, want %v", resp["id"], env.org.ID)
	}
	if _, leaked := resp["key_hash"]; leaked {
		t.Error("key_hash must never appear in responses")
	}
}

func TestAdminGetOrg_NotFound(t *testing.T) {
	env := testServer(t)

	req := adminRequest(t, http.MethodGet, "/api/v1/admin/orgs/org-missing", "")
	w, resp := doJSON(t, env.router, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if resp["code"] != ErrCodeOrgNotFound {
		t.Errorf("code = %v, want %v", resp["code"], ErrCodeOrgNotFound)
	}
}

// ─── Org Update Tests ──────────────────────────────────────────────

func TestAdminUpdateOrg_PlanChangeResetsLimit(t *testing.T) {
	env := testServer(t)

	req := adminRequest(t, http.MethodPatch, "/api/v1/admin/orgs/"+env.org.ID, `{"plan": "pro"}`)
	w, resp := doJSON(t, env.router, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	if resp["plan"] != "pro" {
		t.Errorf("plan = %v, want pro", resp["plan"])
	}
	if resp["device_limit"] != float64(250) {
		t.Errorf("device_limit = %v, want 250 (pro default)", resp["device_limit"])
	}
}

func TestAdminUpdateOrg_ExplicitLimitSurvivesPlanChange(t *testing.T) {
	env := testServer(t)

	req := adminRequest(t, http.MethodPatch, "/api/v1/admin/orgs/"+env.org.ID, `{"plan": "pro", "device_limit": 7}`)
	w, resp := doJSON(t, env.router, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["device_limit"] != float64(7) {
		t.Errorf("device_limit = %v, want 7", resp["device_limit"])
	}
}

func TestAdminUpdateOrg_LimitChangeTakesEffectNextDecision(t *testing.T) {
	env := testServer(t)

	register(t, env, "worker-01")
	register(t, env, "worker-02")
	register(t, env, "worker-03")

	if resp := register(t, env, "worker-04"); resp["status"] != "limit_reached" {
		t.Fatalf("pre-raise status = %v, want limit_reached", resp["status"])
	}

	req := adminRequest(t, http.MethodPatch, "/api/v1/admin/orgs/"+env.org.ID, `{"device_limit": 5}`)
	w, _ := doJSON(t, env.router, req)
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d", w.Code)
	}

	if resp := register(t, env, "worker-04"); resp["status"] != "ok" {
		t.Errorf("post-raise status = %v, want ok", resp["status"])
	}
}

func TestAdminUpdateOrg_SuspendLocksOutImmediately(t *testing.T) {
	env := testServer(t)

	register(t, env, "worker-01")

	req := adminRequest(t, http.MethodPatch, "/api/v1/admin/orgs/"+env.org.ID, `{"status": "suspended"}`)
	w, _ := doJSON(t, env.router, req)
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d", w.Code)
	}

	w2, resp := postDevice(t, env.router, "/api/v1/devices/validate", env.orgKey, "worker-01")
	if w2.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w2.Code, http.StatusForbidden)
	}
	if resp["code"] != ErrCodeOrgSuspended {
		t.Errorf("code = %v, want %v", resp["code"], ErrCodeOrgSuspended)
	}
}

func TestAdminUpdateOrg_InvalidStatus(t *testing.T) {
	env := testServer(t)

	req := adminRequest(t, http.MethodPatch, "/api/v1/admin/orgs/"+env.org.ID, `{"status": "dormant"}`)
	w, resp := doJSON(t, env.router, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if resp["code"] != ErrCodeValidation {
		t.Errorf("code = %v, want %v", resp["code"], ErrCodeValidation)
	}
}

// ─── Key Rotation Tests ────────────────────────────────────────────

func TestAdminRotateKey(t *testing.T) {
	env := testServer(t)

	req := adminRequest(t, http.MethodPost, "/api/v1/admin/orgs/"+env.org.ID+"/key", "")
	w, resp := doJSON(t, env.router, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	newKey, _ := resp["org_key"].(string)
	if !strings.HasPrefix(newKey, "org_") {
		t.Fatalf("org_key = %q, want org_ prefix", newKey)
	}
	if newKey == env.orgKey {
		t.Fatal("rotation returned the old key")
	}

	// The old key stops working the moment rotation commits.
	w2, body := postDevice(t, env.router, "/api/v1/devices/register", env.orgKey, "worker-01")
	if w2.Code != http.StatusUnauthorized {
		t.Errorf("old key status = %d, want %d", w2.Code, http.StatusUnauthorized)
	}
	if body["code"] != ErrCodeInvalidOrgKey {
		t.Errorf("old key code = %v, want %v", body["code"], ErrCodeInvalidOrgKey)
	}

	// The new key works.
	w3, body3 := postDevice(t, env.router, "/api/v1/devices/register", newKey, "worker-01")
	if w3.Code != http.StatusOK || body3["status"] != "ok" {
		t.Errorf("new key = %d/%v, want 200/ok", w3.Code, body3["status"])
	}
}

func TestAdminRotateKey_NotFound(t *testing.T) {
	env := testServer(t)

	req := adminRequest(t, http.MethodPost, "/api/v1/admin/orgs/org-missing/key", "")
	w, resp := doJSON(t, env.router, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if resp["code"] != ErrCodeOrgNotFound {
		t.Errorf("code = %v, want %v", resp["code"], ErrCodeOrgNotFound)
	}
}
