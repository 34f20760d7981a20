package views

import "testing"

func TestRegistry(t *testing.T) {
	known := []string{
		"agg_daily_sales",
		"agg_product_performance",
		"agg_regional_performance",
		"agg_brand_competition",
		"agg_customer_segments",
	}

	for _, name := range known {
		t.Run(name, func(t *testing.T) {
			v, err := Get(name)
			if err != nil {
				t.Fatalf("Failed to get view '%s': %v", name, err)
			}
			if v.Name != name {
				t.Errorf("View name mismatch: expected '%s', got '%s'", name, v.Name)
			}
			if v.Description == "" {
				t.Error("View description should not be empty")
			}
			if v.Build == nil {
				t.Error("View has no build function")
			}
			if v.LookbackDays < 1 {
				t.Errorf("View lookback must be positive, got %d", v.LookbackDays)
			}
		})
	}
}

func TestGetInvalidView(t *testing.T) {
	if _, err := Get("nonexistent"); err == nil {
		t.Error("Expected error for unknown view")
	}
}

func TestOrderedRespectsDependencies(t *testing.T) {
	ordered := Ordered()
	if len(ordered) != len(List()) {
		t.Fatalf("Ordered returned %d views, registry has %d", len(ordered), len(List()))
	}

	position := make(map[string]int, len(ordered))
	for i, v := range ordered {
		position[v.Name] = i
	}

	for _, v := range ordered {
		for _, dep := range v.Deps {
			depPos, ok := position[dep]
			if !ok {
				t.Errorf("View %s depends on unregistered view %s", v.Name, dep)
				continue
			}
			if depPos >= position[v.Name] {
				t.Errorf("View %s scheduled before its dependency %s", v.Name, dep)
			}
		}
	}

	// Base rollup must come first.
	if ordered[0].Name != "agg_daily_sales" {
		t.Errorf("Expected agg_daily_sales first, got %s", ordered[0].Name)
	}
}

func TestCadences(t *testing.T) {
	daily, err := Get("agg_daily_sales")
	if err != nil {
		t.Fatal(err)
	}
	if daily.Cadence != CadenceHourly {
		t.Errorf("agg_daily_sales should be hourly, got %s", daily.Cadence)
	}

	for _, name := range []string{
		"agg_product_performance",
		"agg_regional_performance",
		"agg_brand_competition",
		"agg_customer_segments",
	} {
		v, err := Get(name)
		if err != nil {
			t.Fatal(err)
		}
		if v.Cadence != CadenceNightly {
			t.Errorf("%s should be nightly, got %s", name, v.Cadence)
		}
	}
}

func TestSegmentsLookbackIsOneYear(t *testing.T) {
	v, err := Get("agg_customer_segments")
	if err != nil {
		t.Fatal(err)
	}
	if v.LookbackDays != 365 {
		t.Errorf("Expected 365 day lookback, got %d", v.LookbackDays)
	}
}
