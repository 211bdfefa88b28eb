package partialdate

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "year only", raw: "2001", want: "2001-01-01"},
		{name: "year and month", raw: "2001-06", want: "2001-06-01"},
		{name: "full date", raw: "2001-06-15", want: "2001-06-15"},
		{name: "empty", raw: "", want: ""},
		{name: "garbage", raw: "not-a-date", wantErr: true},
		{name: "bad month", raw: "2001-13", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestPrecision(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"2001", PrecisionYear},
		{"2001-06", PrecisionMonth},
		{"2001-06-15", PrecisionDay},
		{"", -1},
	}
	for _, tt := range tests {
		if got := Precision(tt.raw); got != tt.want {
			t.Errorf("Precision(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestCompatible(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "identical", a: "2001", b: "2001", want: true},
		{name: "prefix refinement", a: "2001", b: "2001-06-15", want: true},
		{name: "reverse prefix", a: "2001-06-15", b: "2001", want: true},
		{name: "empty left", a: "", b: "2001", want: true},
		{name: "empty right", a: "2001", b: "", want: true},
		{name: "different years", a: "2001", b: "2002", want: false},
		{name: "different days", a: "2001-06-15", b: "2001-06-16", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compatible(tt.a, tt.b); got != tt.want {
				t.Errorf("Compatible(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestRefines(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		existing  string
		want      bool
	}{
		{name: "more precise wins", candidate: "2001-06-15", existing: "2001", want: true},
		{name: "month over year", candidate: "2001-06", existing: "2001", want: true},
		{name: "equal precision", candidate: "2001", existing: "2001", want: false},
		{name: "less precise", candidate: "2001", existing: "2001-06", want: false},
		{name: "incompatible", candidate: "2002-06", existing: "2001", want: false},
		{name: "anything refines empty", candidate: "2001", existing: "", want: true},
		{name: "empty refines nothing", candidate: "", existing: "2001", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Refines(tt.candidate, tt.existing); got != tt.want {
				t.Errorf("Refines(%q, %q) = %v, want %v", tt.candidate, tt.existing, got, tt.want)
			}
		})
	}
}
