package access

import (
	"errors"
	"testing"
	"time"

	"github.com/retailpulse/pipeline/internal/config"
)

func testPolicy() *Policy {
	return NewPolicy(config.AccessConfig{
		AnalystWindowDays:  90,
		BusinessHoursStart: 8,
		BusinessHoursEnd:   20,
	})
}

// businessHours is a weekday instant inside the 8-20 window.
var businessHours = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func TestAdminSeesEverything(t *testing.T) {
	p := testPolicy()
	caller := CallerContext{Role: RoleAdmin, UserID: "root", Now: businessHours}

	pred, err := p.StorePredicate(caller, "store_id", "sales_date", 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pred.SQL != "TRUE" {
		t.Errorf("Expected TRUE predicate for admin, got %q", pred.SQL)
	}
	if len(pred.Args) != 0 {
		t.Errorf("Expected no args, got %v", pred.Args)
	}
}

func TestAdminIgnoresBusinessHours(t *testing.T) {
	p := testPolicy()
	midnight := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	caller := CallerContext{Role: RoleAdmin, UserID: "root", Now: midnight}

	if _, err := p.StorePredicate(caller, "store_id", "sales_date", 1); err != nil {
		t.Errorf("Admin should not be subject to business hours: %v", err)
	}
}

func TestAnalystTimeWindow(t *testing.T) {
	p := testPolicy()
	caller := CallerContext{Role: RoleAnalyst, UserID: "ana", Now: businessHours}

	pred, err := p.StorePredicate(caller, "store_id", "sales_date", 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pred.SQL != "sales_date >= $3" {
		t.Errorf("Unexpected predicate SQL: %q", pred.SQL)
	}
	if len(pred.Args) != 1 {
		t.Fatalf("Expected 1 arg, got %d", len(pred.Args))
	}
	cutoff, ok := pred.Args[0].(time.Time)
	if !ok {
		t.Fatalf("Expected time.Time arg, got %T", pred.Args[0])
	}
	want := businessHours.AddDate(0, 0, -90)
	if !cutoff.Equal(want) {
		t.Errorf("Cutoff = %v, want %v", cutoff, want)
	}
}

func TestAnalystCutoffConsistentAcrossPredicates(t *testing.T) {
	p := testPolicy()
	caller := CallerContext{Role: RoleAnalyst, UserID: "ana", Now: businessHours}
	want := p.AnalystCutoff(businessHours)

	store, err := p.StorePredicate(caller, "store_id", "sales_date", 1)
	if err != nil {
		t.Fatalf("StorePredicate: %v", err)
	}
	global, err := p.GlobalPredicate(caller, "computed_at", 1)
	if err != nil {
		t.Fatalf("GlobalPredicate: %v", err)
	}
	subject, err := p.SubjectPredicate(caller, "subject", "detected_at", 1)
	if err != nil {
		t.Fatalf("SubjectPredicate: %v", err)
	}

	for name, pred := range map[string]Predicate{
		"store": store, "global": global, "subject": subject,
	} {
		got, ok := pred.Args[0].(time.Time)
		if !ok || !got.Equal(want) {
			t.Errorf("%s predicate cutoff = %v, want %v", name, pred.Args[0], want)
		}
	}
}

func TestBusinessHoursRestriction(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name   string
		hour   int
		denied bool
	}{
		{"before opening", 7, true},
		{"at opening", 8, false},
		{"midday", 12, false},
		{"last business hour", 19, false},
		{"at closing", 20, true},
		{"late night", 23, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2026, 3, 10, tt.hour, 30, 0, 0, time.UTC)
			caller := CallerContext{Role: RoleAnalyst, UserID: "ana", Now: now}
			_, err := p.StorePredicate(caller, "store_id", "sales_date", 1)
			if tt.denied && !errors.Is(err, ErrOutsideBusinessHours) {
				t.Errorf("Expected ErrOutsideBusinessHours, got %v", err)
			}
			if !tt.denied && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestManagerStoreScope(t *testing.T) {
	p := testPolicy()
	caller := CallerContext{
		Role:   RoleManager,
		UserID: "mgr",
		Now:    businessHours,
		Grants: []Grant{
			{StoreID: 7, Active: true},
			{StoreID: 9, Active: true},
		},
	}

	pred, err := p.StorePredicate(caller, "store_id", "sales_date", 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pred.SQL != "store_id = ANY($2)" {
		t.Errorf("Unexpected predicate SQL: %q", pred.SQL)
	}
	ids, ok := pred.Args[0].([]int)
	if !ok {
		t.Fatalf("Expected []int arg, got %T", pred.Args[0])
	}
	if len(ids) != 2 || ids[0] != 7 || ids[1] != 9 {
		t.Errorf("Unexpected store ids: %v", ids)
	}
}

func TestManagerWithoutGrantsDenied(t *testing.T) {
	p := testPolicy()
	caller := CallerContext{Role: RoleManager, UserID: "mgr", Now: businessHours}

	_, err := p.StorePredicate(caller, "store_id", "sales_date", 1)
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Expected ErrAccessDenied, got %v", err)
	}
}

// A grant whose expiry is in the past must behave as if it were never
// granted, even while the row still has is_active = true.
func TestExpiredGrantDeniedAtReadTime(t *testing.T) {
	p := testPolicy()
	expired := businessHours.Add(-time.Hour)
	caller := CallerContext{
		Role:   RoleManager,
		UserID: "mgr",
		Now:    businessHours,
		Grants: []Grant{
			{StoreID: 7, Active: true, ExpiresAt: &expired},
		},
	}

	_, err := p.StorePredicate(caller, "store_id", "sales_date", 1)
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Expected ErrAccessDenied for expired grant, got %v", err)
	}
}

func TestExpiryBoundary(t *testing.T) {
	now := businessHours

	atNow := now
	g := Grant{StoreID: 1, Active: true, ExpiresAt: &atNow}
	if g.Usable(now) {
		t.Error("Grant expiring exactly now should not be usable")
	}

	future := now.Add(time.Minute)
	g = Grant{StoreID: 1, Active: true, ExpiresAt: &future}
	if !g.Usable(now) {
		t.Error("Grant expiring in the future should be usable")
	}

	g = Grant{StoreID: 1, Active: true}
	if !g.Usable(now) {
		t.Error("Grant without expiry should be usable")
	}

	g = Grant{StoreID: 1, Active: false}
	if g.Usable(now) {
		t.Error("Revoked grant should not be usable")
	}
}

func TestManagerDeniedGlobalAggregates(t *testing.T) {
	p := testPolicy()
	caller := CallerContext{
		Role:   RoleManager,
		UserID: "mgr",
		Now:    businessHours,
		Grants: []Grant{{StoreID: 7, Active: true}},
	}

	_, err := p.GlobalPredicate(caller, "computed_at", 1)
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Expected ErrAccessDenied for manager on global view, got %v", err)
	}
}

func TestUnknownRole(t *testing.T) {
	p := testPolicy()
	caller := CallerContext{Role: "viewer", UserID: "x", Now: businessHours}

	_, err := p.StorePredicate(caller, "store_id", "sales_date", 1)
	if !errors.Is(err, ErrUnknownRole) {
		t.Errorf("Expected ErrUnknownRole, got %v", err)
	}
}
