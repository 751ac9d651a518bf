package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

// boardEcho mounts a few bed-board routes behind the same role guards the
// domain handlers use. Roles come from a comma-separated X-Roles header.
func boardEcho() *echo.Echo {
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var roles []string
			if h := c.Request().Header.Get("X-Roles"); h != "" {
				roles = strings.Split(h, ",")
			}
			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), "u-1", roles)))
			return next(c)
		}
	})
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	e.POST("/beds/:id/discharge", ok, RequireRole(RoleBedManager, RoleNurse, RolePhysician))
	e.POST("/beds/:id/start-cleaning", ok, RequireRole(RoleBedManager, RoleHousekeeping))
	e.POST("/beds/:id/maintenance", ok, RequireRole(RoleBedManager))
	e.GET("/ledger/:patientId", ok, RequireRole(RolePhysician, RoleNurse, RoleBilling))
	return e
}

func TestRequireRole_BedBoardRoutes(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		roles  string
		want   int
	}{
		{"nurse discharges", http.MethodPost, "/beds/b1/discharge", RoleNurse, http.StatusNoContent},
		{"housekeeping cannot discharge", http.MethodPost, "/beds/b1/discharge", RoleHousekeeping, http.StatusForbidden},
		{"housekeeping starts cleaning", http.MethodPost, "/beds/b1/start-cleaning", RoleHousekeeping, http.StatusNoContent},
		{"physician cannot start cleaning", http.MethodPost, "/beds/b1/start-cleaning", RolePhysician, http.StatusForbidden},
		{"only bed manager marks maintenance", http.MethodPost, "/beds/b1/maintenance", RoleNurse, http.StatusForbidden},
		{"any listed role suffices", http.MethodPost, "/beds/b1/maintenance", RoleBilling + "," + RoleBedManager, http.StatusNoContent},
		{"billing reads the ledger", http.MethodGet, "/ledger/p1", RoleBilling, http.StatusNoContent},
		{"admin passes every guard", http.MethodPost, "/beds/b1/maintenance", RoleAdmin, http.StatusNoContent},
		{"no roles", http.MethodPost, "/beds/b1/discharge", "", http.StatusForbidden},
	}
	e := boardEcho()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("X-Roles", tt.roles)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRequireRole_ForbiddenNamesRoles(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/beds/b1/start-cleaning", nil), httptest.NewRecorder())
	c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), "u-2", []string{RoleBilling})))

	err := RequireRole(RoleBedManager, RoleHousekeeping)(func(echo.Context) error { return nil })(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
	if msg, _ := httpErr.Message.(string); msg != "required role: bed_manager or housekeeping" {
		t.Errorf("unexpected message %q", httpErr.Message)
	}
}

func TestIdentityRoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), "charge-nurse-4", []string{RoleNurse, RoleBedManager})
	if got := UserIDFromContext(ctx); got != "charge-nurse-4" {
		t.Errorf("user id: got %q", got)
	}
	if roles := RolesFromContext(ctx); len(roles) != 2 || roles[1] != RoleBedManager {
		t.Errorf("roles: got %v", roles)
	}
	if UserIDFromContext(context.Background()) != "" || RolesFromContext(context.Background()) != nil {
		t.Error("empty context carries no identity")
	}
}
