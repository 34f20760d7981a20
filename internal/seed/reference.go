//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package seed

// Static reference data. Region weights skew store placement and traffic
// toward the economically heavier regions, the same way real chains cluster.

type regionDef struct {
	name       string
	macro      string
	weight     float64
	population int64
}

var regionDefs = []regionDef{
	{"Northgate", "North", 1.45, 8200000},
	{"Lakeshore", "North", 1.20, 5400000},
	{"Ironhills", "North", 0.95, 3100000},
	{"Midland Plains", "Central", 1.10, 4700000},
	{"Capital District", "Central", 1.60, 9800000},
	{"Riverbend", "Central", 0.85, 2600000},
	{"Eastport", "East", 1.05, 4100000},
	{"Highcoast", "East", 0.90, 2900000},
	{"Southvale", "South", 0.80, 3500000},
	{"Sunbelt Coast", "South", 1.00, 4400000},
	{"Westmoor", "West", 0.75, 2200000},
	{"Pacific Rim", "West", 1.15, 5100000},
}

var categories = []string{
	"Beverages",
	"Snacks",
	"Dairy",
	"Household",
	"Personal Care",
}

type brandDef struct {
	name     string
	category string
	client   bool
}

// The client sells under one house brand per category; the rest are the
// competitive field whose share the brand competition view tracks.
var brandDefs = []brandDef{
	{"Pulse Beverages", "Beverages", true},
	{"Cascade Spring", "Beverages", false},
	{"Vigor Cola", "Beverages", false},
	{"Morning Ridge", "Beverages", false},

	{"Pulse Snacks", "Snacks", true},
	{"Crispwell", "Snacks", false},
	{"Golden Kernel", "Snacks", false},
	{"Sierra Bites", "Snacks", false},

	{"Pulse Dairy", "Dairy", true},
	{"Meadowbrook", "Dairy", false},
	{"Alpine Creamery", "Dairy", false},

	{"Pulse Home", "Household", true},
	{"BrightNest", "Household", false},
	{"Sturdy & Son", "Household", false},

	{"Pulse Care", "Personal Care", true},
	{"Velvetleaf", "Personal Care", false},
	{"PureForm Labs", "Personal Care", false},
}

// productsPerBrand is how many SKUs each brand carries.
const productsPerBrand = 12

// priceRanges bounds unit prices per category.
var priceRanges = map[string][2]float64{
	"Beverages":     {0.80, 6.50},
	"Snacks":        {0.50, 5.00},
	"Dairy":         {0.90, 8.00},
	"Household":     {1.50, 25.00},
	"Personal Care": {2.00, 30.00},
}

var storeTypes = []string{"hypermarket", "supermarket", "convenience", "kiosk"}
var storeTypeWeights = []int{10, 40, 35, 15}

var sizeTiers = []string{"large", "medium", "small"}
var sizeTierWeights = []int{20, 50, 30}

var emotions = []string{"neutral", "happy", "surprised", "focused", "rushed"}
var emotionWeights = []int{45, 25, 10, 12, 8}

var genders = []string{"female", "male", "unknown"}
var genderWeights = []int{44, 42, 14}

var deviceStatuses = []string{"active", "maintenance", "offline"}
var deviceStatusWeights = []int{85, 8, 7}
