//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package query

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/retailpulse/pipeline/internal/access"
	"github.com/retailpulse/pipeline/internal/config"
)

var noon = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testPolicy() *access.Policy {
	return access.NewPolicy(config.AccessConfig{
		AnalystWindowDays:  90,
		BusinessHoursStart: 8,
		BusinessHoursEnd:   20,
	})
}

func admin() access.CallerContext {
	return access.CallerContext{Role: access.RoleAdmin, UserID: "root", Now: noon}
}

func TestPageNormalize(t *testing.T) {
	tests := []struct {
		name       string
		in         Page
		wantLimit  int
		wantOffset int
	}{
		{"defaults", Page{}, DefaultPageSize, 0},
		{"capped", Page{Limit: 10000}, MaxPageSize, 0},
		{"negative offset", Page{Limit: 50, Offset: -3}, 50, 0},
		{"passthrough", Page{Limit: 25, Offset: 75}, 25, 75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.normalize()
			if got.Limit != tt.wantLimit || got.Offset != tt.wantOffset {
				t.Errorf("normalize() = %+v, want limit %d offset %d", got, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestDailySalesQueryAdmin(t *testing.T) {
	sql, args, err := dailySalesQuery(testPolicy(), admin(), Filter{}, Page{})
	if err != nil {
		t.Fatalf("dailySalesQuery: %v", err)
	}
	if !strings.Contains(sql, "WHERE TRUE") {
		t.Errorf("admin query should filter nothing, got:\n%s", sql)
	}
	// Only the pagination binds.
	if len(args) != 2 {
		t.Errorf("expected 2 args, got %d: %v", len(args), args)
	}
	if args[0] != DefaultPageSize {
		t.Errorf("limit = %v, want %d", args[0], DefaultPageSize)
	}
}

func TestDailySalesQueryFiltersNumberSequentially(t *testing.T) {
	from := noon.AddDate(0, 0, -7)
	to := noon
	sql, args, err := dailySalesQuery(testPolicy(), admin(), Filter{
		From:     &from,
		To:       &to,
		StoreID:  12,
		RegionID: 3,
	}, Page{Limit: 10})
	if err != nil {
		t.Fatalf("dailySalesQuery: %v", err)
	}
	for _, bind := range []string{"$1", "$2", "$3", "$4", "$5", "$6"} {
		if !strings.Contains(sql, bind) {
			t.Errorf("missing bind %s in:\n%s", bind, sql)
		}
	}
	if len(args) != 6 {
		t.Fatalf("expected 6 args, got %d: %v", len(args), args)
	}
	if args[2] != 12 || args[3] != 3 {
		t.Errorf("store/region args = %v, %v", args[2], args[3])
	}
}

func TestDailySalesQueryManagerScope(t *testing.T) {
	caller := access.CallerContext{
		Role:   access.RoleManager,
		UserID: "mgr-1",
		Now:    noon,
		Grants: []access.Grant{
			{StoreID: 4, Active: true},
			{StoreID: 9, Active: true},
		},
	}
	sql, args, err := dailySalesQuery(testPolicy(), caller, Filter{}, Page{})
	if err != nil {
		t.Fatalf("dailySalesQuery: %v", err)
	}
	if !strings.Contains(sql, "d.store_id = ANY($1)") {
		t.Errorf("manager query should scope by store, got:\n%s", sql)
	}
	ids, ok := args[0].([]int)
	if !ok || len(ids) != 2 {
		t.Fatalf("first arg should be the granted store ids, got %v", args[0])
	}
}

func TestDailySalesQueryManagerWithoutGrants(t *testing.T) {
	caller := access.CallerContext{Role: access.RoleManager, UserID: "mgr-2", Now: noon}
	_, _, err := dailySalesQuery(testPolicy(), caller, Filter{}, Page{})
	if !errors.Is(err, access.ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}
}

func TestGlobalViewsDenyManagers(t *testing.T) {
	caller := access.CallerContext{
		Role:   access.RoleManager,
		UserID: "mgr-3",
		Now:    noon,
		Grants: []access.Grant{{StoreID: 4, Active: true}},
	}
	p := testPolicy()

	if _, _, err := productPerformanceQuery(p, caller, Filter{}, Page{}); !errors.Is(err, access.ErrAccessDenied) {
		t.Errorf("product performance: expected ErrAccessDenied, got %v", err)
	}
	if _, _, err := regionalPerformanceQuery(p, caller, Filter{}, Page{}); !errors.Is(err, access.ErrAccessDenied) {
		t.Errorf("regional performance: expected ErrAccessDenied, got %v", err)
	}
	if _, _, err := brandCompetitionQuery(p, caller, Filter{}, Page{}); !errors.Is(err, access.ErrAccessDenied) {
		t.Errorf("brand competition: expected ErrAccessDenied, got %v", err)
	}
	if _, _, err := customerSegmentsQuery(p, caller, "", Page{}); !errors.Is(err, access.ErrAccessDenied) {
		t.Errorf("customer segments: expected ErrAccessDenied, got %v", err)
	}
}

func TestAnomaliesQueryManagerSubjectScope(t *testing.T) {
	caller := access.CallerContext{
		Role:   access.RoleManager,
		UserID: "mgr-4",
		Now:    noon,
		Grants: []access.Grant{{StoreID: 7, Active: true}},
	}
	sql, args, err := anomaliesQuery(testPolicy(), caller, Filter{}, "active", Page{})
	if err != nil {
		t.Fatalf("anomaliesQuery: %v", err)
	}
	if !strings.Contains(sql, "a.subject = ANY($1)") {
		t.Errorf("manager anomaly query should scope by subject, got:\n%s", sql)
	}
	subjects, ok := args[0].([]string)
	if !ok || len(subjects) != 1 || subjects[0] != "store:7" {
		t.Errorf("subject arg = %v, want [store:7]", args[0])
	}
	if args[1] != "active" {
		t.Errorf("status arg = %v, want active", args[1])
	}
}

func TestAnalystQueriesCarryWindowCutoff(t *testing.T) {
	caller := access.CallerContext{Role: access.RoleAnalyst, UserID: "ana-1", Now: noon}
	p := testPolicy()

	sql, args, err := productPerformanceQuery(p, caller, Filter{}, Page{})
	if err != nil {
		t.Fatalf("productPerformanceQuery: %v", err)
	}
	if !strings.Contains(sql, "pp.computed_at >= $1") {
		t.Errorf("analyst query should carry a time cutoff, got:\n%s", sql)
	}
	cutoff, ok := args[0].(time.Time)
	if !ok {
		t.Fatalf("first arg should be the cutoff, got %T", args[0])
	}
	if want := noon.AddDate(0, 0, -90); !cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", cutoff, want)
	}
}

func TestOutsideBusinessHoursDenied(t *testing.T) {
	late := access.CallerContext{
		Role:   access.RoleAnalyst,
		UserID: "ana-2",
		Now:    time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC),
	}
	_, _, err := dailySalesQuery(testPolicy(), late, Filter{}, Page{})
	if !errors.Is(err, access.ErrOutsideBusinessHours) {
		t.Errorf("expected ErrOutsideBusinessHours, got %v", err)
	}
}
