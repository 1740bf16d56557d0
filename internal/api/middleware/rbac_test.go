package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequireRole(t *testing.T) {
	t.Parallel()

	gin.SetMode(gin.TestMode)

	run := func(roles interface{}, required string) (int, bool) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		if roles != nil {
			c.Set("roles", roles)
		}

		RequireRole(required)(c)
		return w.Code, !c.IsAborted()
	}

	t.Run("operator admin bypasses required role", func(t *testing.T) {
		t.Parallel()
		status, called := run([]string{"operator:admin"}, "approver")
		if status != http.StatusOK {
			t.Fatalf("status = %d, want %d", status, http.StatusOK)
		}
		if !called {
			t.Fatal("middleware unexpectedly aborted for operator:admin")
		}
	})

	t.Run("specific role allowed", func(t *testing.T) {
		t.Parallel()
		status, called := run([]string{"approver"}, "approver")
		if status != http.StatusOK {
			t.Fatalf("status = %d, want %d", status, http.StatusOK)
		}
		if !called {
			t.Fatal("middleware unexpectedly aborted with matching role")
		}
	})

	t.Run("missing role forbidden", func(t *testing.T) {
		t.Parallel()
		status, called := run([]string{"viewer"}, "approver")
		if status != http.StatusForbidden {
			t.Fatalf("status = %d, want %d", status, http.StatusForbidden)
		}
		if called {
			t.Fatal("middleware should abort when role missing")
		}
	})

	t.Run("no roles in context forbidden", func(t *testing.T) {
		t.Parallel()
		status, called := run(nil, "approver")
		if status != http.StatusForbidden {
			t.Fatalf("status = %d, want %d", status, http.StatusForbidden)
		}
		if called {
			t.Fatal("middleware should abort when roles absent")
		}
	})
}

func TestRequireAnyRole(t *testing.T) {
	t.Parallel()

	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("roles", []string{"viewer"})

	RequireAnyRole("approver", "viewer")(c)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if c.IsAborted() {
		t.Fatal("middleware unexpectedly aborted when one of the roles matches")
	}
}
