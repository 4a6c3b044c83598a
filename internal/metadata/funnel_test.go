package metadata

import "testing"

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseTimeOfDay(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseTimeOfDay(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseTimeOfDay(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestTriggerTypeValid(t *testing.T) {
	for _, tt := range []TriggerType{TriggerTypeEvent, TriggerTypeTime, TriggerTypeTimeout} {
		if !tt.Valid() {
			t.Fatalf("expected %s to be valid", tt)
		}
	}
	if TriggerType("CRON").Valid() {
		t.Fatal("expected CRON to be invalid")
	}
}
