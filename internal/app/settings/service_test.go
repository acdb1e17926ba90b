package settings

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	memclock "github.com/dma-portal/association-api/internal/adapters/memory/clock"
	memadminlogrepo "github.com/dma-portal/association-api/internal/adapters/memory/adminlogrepo"
	memsettingsrepo "github.com/dma-portal/association-api/internal/adapters/memory/settingsrepo"
	"github.com/dma-portal/association-api/internal/app/apperr"
	"github.com/dma-portal/association-api/internal/app/auditlog"
	"github.com/dma-portal/association-api/internal/app/optional"
	"github.com/dma-portal/association-api/internal/domain"
)

var admin = domain.Identity{MemberID: "admin", DisplayName: "House System", Role: domain.RoleAdmin}

func newService(t *testing.T) (*Service, *auditlog.Service) {
	t.Helper()
	clk := memclock.NewManualClock(time.Unix(100, 0))
	audit := auditlog.NewService(memadminlogrepo.NewRepo(), clk, nil)
	return NewService(memsettingsrepo.NewRepo(), clk, audit, nil), audit
}

func TestService_Get_DefaultsWhenUnsaved(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	st, err := svc.Get(context.Background())
	if err != nil {
		t.Fatalf("Get err=%v", err)
	}
	if st.ContactEmail != "contact@dma.org" || st.SiteName != "Digital Media Association" {
		t.Fatalf("unexpected defaults: %+v", st)
	}
}

func TestService_Update_AppliesPatchAndAudits(t *testing.T) {
	t.Parallel()

	svc, audit := newService(t)
	ctx := context.Background()

	st, err := svc.Update(ctx, admin, Patch{
		ContactEmail:  optional.Some(" board@dma.org "),
		MembershipFee: optional.Some(decimal.RequireFromString("175.555")),
	})
	if err != nil {
		t.Fatalf("Update err=%v", err)
	}
	if st.ContactEmail != "board@dma.org" || !st.MembershipFee.Equal(decimal.RequireFromString("175.56")) {
		t.Fatalf("unexpected settings: %+v", st)
	}
	if st.SiteName != "Digital Media Association" {
		t.Fatalf("unspecified field changed: %q", st.SiteName)
	}

	email, err := svc.ContactEmail(ctx)
	if err != nil || email != "board@dma.org" {
		t.Fatalf("ContactEmail=%q err=%v", email, err)
	}

	logs, err := audit.ListRecent(ctx, admin, 0)
	if err != nil || len(logs) != 1 || logs[0].Action != "Updated site settings" {
		t.Fatalf("audit logs=%+v err=%v", logs, err)
	}
}

func TestService_Update_Validation(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	cases := map[string]Patch{
		"bad email":    {ContactEmail: optional.Some("not-an-email")},
		"null email":   {ContactEmail: optional.Null[string]()},
		"negative fee": {MembershipFee: optional.Some(decimal.NewFromInt(-1))},
		"blank name":   {SiteName: optional.Some("  ")},
	}
	for name, p := range cases {
		if _, err := svc.Update(ctx, admin, p); !apperr.HasCode(err, apperr.CodeValidation) {
			t.Fatalf("%s: err=%v, want VALIDATION_ERROR", name, err)
		}
	}
}

func TestService_Update_RequiresAdmin(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	_, err := svc.Update(context.Background(), domain.Identity{MemberID: "mem1", Role: domain.RoleMember}, Patch{})
	if !apperr.HasCode(err, apperr.CodeUnauthorized) {
		t.Fatalf("err=%v, want UNAUTHORIZED", err)
	}
}

func TestService_EnsureDefaults_OnlyOnce(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	wrote, err := svc.EnsureDefaults(ctx)
	if err != nil || !wrote {
		t.Fatalf("first EnsureDefaults wrote=%v err=%v", wrote, err)
	}
	if _, err := svc.Update(ctx, admin, Patch{SiteName: optional.Some("DMA")}); err != nil {
		t.Fatalf("Update err=%v", err)
	}
	wrote, err = svc.EnsureDefaults(ctx)
	if err != nil || wrote {
		t.Fatalf("second EnsureDefaults wrote=%v err=%v", wrote, err)
	}
	st, _ := svc.Get(ctx)
	if st.SiteName != "DMA" {
		t.Fatalf("EnsureDefaults overwrote settings: %+v", st)
	}
}
