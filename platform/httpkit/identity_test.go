package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func testContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

func TestGetIdentityAuthenticated(t *testing.T) {
	c, _ := testContext()
	uid := uuid.New()
	c.Set(ContextUserIDKey, uid)
	c.Set(ContextRolesKey, []string{"admin"})

	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		t.Fatal("expected authenticated identity")
	}
	if id.UserID() != uid {
		t.Errorf("UserID = %s, want %s", id.UserID(), uid)
	}
	if !id.HasRole("admin") {
		t.Error("expected admin role")
	}
	if id.HasRole("viewer") {
		t.Error("unexpected viewer role")
	}
}

func TestGetIdentityAnonymous(t *testing.T) {
	c, _ := testContext()

	id := GetIdentity(c)
	if id.IsAuthenticated() {
		t.Error("expected unauthenticated identity without context keys")
	}
	if id.UserID() != uuid.Nil {
		t.Errorf("UserID = %s, want zero", id.UserID())
	}
}

func TestMustGetIdentityAbortsUnauthenticated(t *testing.T) {
	c, w := testContext()

	if id := MustGetIdentity(c); id != nil {
		t.Errorf("identity = %v, want nil", id)
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
