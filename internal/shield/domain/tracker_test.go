package domain

import (
	"strings"
	"testing"
)

func TestParseDefaultAction(t *testing.T) {
	cases := []struct {
		in      string
		want    DefaultAction
		wantErr bool
	}{
		{"block", ActionBlock, false},
		{" BLOCK ", ActionBlock, false},
		{"ignore", ActionIgnore, false},
		{"Ignore", ActionIgnore, false},
		{"", 0, true},
		{"allow", 0, true},
	}

	for _, tc := range cases {
		got, err := ParseDefaultAction(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseDefaultAction(%q) expected error, got nil", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDefaultAction(%q) unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseDefaultAction(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDefaultAction_String(t *testing.T) {
	if ActionBlock.String() != "block" || ActionIgnore.String() != "ignore" {
		t.Fatalf("unexpected names: %s %s", ActionBlock, ActionIgnore)
	}
	if got := DefaultAction(9).String(); !strings.Contains(got, "9") {
		t.Errorf("unknown action string = %q", got)
	}
}

func TestTracker_Category(t *testing.T) {
	tr := Tracker{Domain: "tracker.com", Categories: []string{"Analytics", "Advertising"}}
	if tr.Category() != "Analytics" {
		t.Errorf("Category() = %q, want Analytics", tr.Category())
	}
	if !tr.HasCategory("advertising") {
		t.Errorf("HasCategory(advertising) = false, want true")
	}
	if tr.HasCategory("Social") {
		t.Errorf("HasCategory(Social) = true, want false")
	}
	if (Tracker{}).Category() != "" {
		t.Errorf("empty tracker should have no category")
	}
}

func TestTrackerDataSet_Validate(t *testing.T) {
	valid := func() *TrackerDataSet {
		ds := EmptyTrackerDataSet()
		ds.Entities["Tracker Inc"] = Entity{DisplayName: "Tracker Inc", Domains: []string{"tracker.com"}, Prevalence: 0.1}
		ds.Domains["tracker.com"] = "Tracker Inc"
		return ds
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid dataset: unexpected error: %v", err)
	}

	cases := map[string]func(ds *TrackerDataSet){
		"empty display name": func(ds *TrackerDataSet) {
			ds.Entities["Tracker Inc"] = Entity{Prevalence: 0.1}
		},
		"prevalence above one": func(ds *TrackerDataSet) {
			ds.Entities["Tracker Inc"] = Entity{DisplayName: "Tracker Inc", Prevalence: 1.5}
		},
		"negative prevalence": func(ds *TrackerDataSet) {
			ds.Entities["Tracker Inc"] = Entity{DisplayName: "Tracker Inc", Prevalence: -0.1}
		},
		"empty entity name": func(ds *TrackerDataSet) {
			ds.Entities[""] = Entity{DisplayName: "x"}
		},
		"dangling domain": func(ds *TrackerDataSet) {
			ds.Domains["other.com"] = "Other Inc"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			ds := valid()
			mutate(ds)
			if err := ds.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	var nilDS *TrackerDataSet
	if err := nilDS.Validate(); err == nil {
		t.Errorf("nil dataset should not validate")
	}
}

func TestTrackerDataSet_Counts(t *testing.T) {
	ds := EmptyTrackerDataSet()
	ds.Trackers["a.com"] = Tracker{Domain: "a.com"}
	ds.CNAMEs["x.a.com"] = "a.com"
	tr, en, do, cn := ds.Counts()
	if tr != 1 || en != 0 || do != 0 || cn != 1 {
		t.Fatalf("Counts() = %d %d %d %d", tr, en, do, cn)
	}
	var nilDS *TrackerDataSet
	if tr, _, _, _ := nilDS.Counts(); tr != 0 {
		t.Fatalf("nil Counts() trackers = %d", tr)
	}
}
