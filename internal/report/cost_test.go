package report

import "testing"

func TestPricing_Cost(t *testing.T) {
	t.Parallel()

	p, err := ParsePricing("3.00", "15.00")
	if err != nil {
		t.Fatalf("ParsePricing: %v", err)
	}

	tests := []struct {
		in, out int
		want    string
	}{
		{0, 0, "0.000000"},
		{1_000_000, 0, "3.000000"},
		{1200, 300, "0.008100"},
		{1, 1, "0.000018"},
	}
	for _, tt := range tests {
		if got := FormatCost(p.Cost(NewTokenUsage(tt.in, tt.out))); got != tt.want {
			t.Errorf("Cost(%d, %d) = %s, want %s", tt.in, tt.out, got, tt.want)
		}
	}
}

func TestParsePricing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in, out string
		wantErr bool
	}{
		{name: "empty is free", in: "", out: ""},
		{name: "decimal", in: "0.25", out: "1.25"},
		{name: "not a number", in: "três", out: "1", wantErr: true},
		{name: "bad output", in: "1", out: "x", wantErr: true},
		{name: "negative", in: "-1", out: "1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := ParsePricing(tt.in, tt.out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tt.in == "" && !p.InputPerMTok.IsZero() {
				t.Errorf("empty input price = %s", p.InputPerMTok)
			}
		})
	}
}
