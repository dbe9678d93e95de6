package validation

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+1 (415) 555-0100", "14155550100", false},
		{"256783991705", "256783991705", false},
		{"12345", "", true},
		{"   ", "", true},
		{"abc", "", true},
		{"1234567890123456", "", true},
		{"+44 20-7946-0958", "442079460958", false},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in, DefaultMinPhoneDigits)
		if tc.wantErr {
			if err == nil {
				t.Errorf("NormalizePhone(%q): expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizePhone(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePhoneCustomMinimum(t *testing.T) {
	if _, err := NormalizePhone("1234567", 8); err == nil {
		t.Error("expected error below custom minimum")
	}
	if got, err := NormalizePhone("12345678", 8); err != nil || got != "12345678" {
		t.Errorf("unexpected result %q, %v", got, err)
	}
}
