package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                "/",
		"/metrics":                        "/metrics",
		"/v1/projects/01H/access":         "/v1/projects/:id/access",
		"/v1/projects/01H/members/01J":    "/v1/projects/:id/members/:identity_id",
		"/v1/projects/01H/lead?x=1":       "/v1/projects/:id/lead",
		"/v1/company/members":             "/v1/company/members",
		"/v1/company/members/01J":         "/v1/company/members/:identity_id",
		"/v1/admin/identities/01K/status": "/v1/admin/identities/:id/status",
		"/v1/auth/login":                  "/v1/auth/login",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestSetLevel(t *testing.T) {
	orig := Logger().GetLevel()
	defer Logger().SetLevel(orig)

	if !SetLevel("debug") {
		t.Fatal("expected debug to be accepted")
	}
	if Logger().GetLevel().String() != "debug" {
		t.Fatalf("unexpected level %s", Logger().GetLevel())
	}
	if SetLevel("loud") {
		t.Fatal("expected unknown level to be rejected")
	}
}

func TestSetReady(t *testing.T) {
	SetReady(true)
	if got := testutil.ToFloat64(storeReady); got != 1 {
		t.Fatalf("store_ready = %v after a good ping, want 1", got)
	}
	SetReady(false)
	if got := testutil.ToFloat64(storeReady); got != 0 {
		t.Fatalf("store_ready = %v after a failed ping, want 0", got)
	}
}
