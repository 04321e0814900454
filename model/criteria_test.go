package model

import "testing"

func TestBBoxContains(t *testing.T) {
	box := BBox{MinLat: -10, MaxLat: 10, MinLon: 20, MaxLon: 40}

	if !box.Contains(0, 30) {
		t.Fatalf("point inside the box rejected")
	}
	if box.Contains(15, 30) {
		t.Fatalf("latitude outside the box accepted")
	}
	if box.Contains(0, 50) {
		t.Fatalf("longitude outside the box accepted")
	}
}

func TestBBoxContainsAntimeridianWrap(t *testing.T) {
	// 170E to 170W crosses the antimeridian.
	box := BBox{MinLat: -10, MaxLat: 10, MinLon: 170, MaxLon: -170}

	if !box.Contains(0, 175) {
		t.Fatalf("point east of the antimeridian rejected")
	}
	if !box.Contains(0, -175) {
		t.Fatalf("point west of the antimeridian rejected")
	}
	if box.Contains(0, 0) {
		t.Fatalf("point on the far side of the globe accepted")
	}
}

func TestSelectionCriteriaCloneIsDeep(t *testing.T) {
	orig := SelectionCriteria{
		MaxCount:         10,
		AlwaysIncludeIDs: map[string]struct{}{"25544": {}},
		CategoryQuotas:   map[Category]int{"gps": 5},
		Region:           &BBox{MinLat: -10, MaxLat: 10},
	}

	clone := orig.Clone()
	clone.AlwaysIncludeIDs["99999"] = struct{}{}
	clone.CategoryQuotas["gps"] = 99
	clone.Region.MaxLat = 50

	if _, ok := orig.AlwaysIncludeIDs["99999"]; ok {
		t.Fatalf("clone shares the always-include map")
	}
	if orig.CategoryQuotas["gps"] != 5 {
		t.Fatalf("clone shares the quota map")
	}
	if orig.Region.MaxLat != 10 {
		t.Fatalf("clone shares the region pointer")
	}
}
