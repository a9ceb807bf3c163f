package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParsePair(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Pair
		wantErr bool
	}{
		{"simple", "BTC-ETH", Pair{Base: "BTC", Quote: "ETH"}, false},
		{"fiat", "GBP-USD", Pair{Base: "GBP", Quote: "USD"}, false},
		{"missing dash", "BTCETH", Pair{}, true},
		{"empty base", "-ETH", Pair{}, true},
		{"empty quote", "BTC-", Pair{}, true},
		{"three tokens", "A-B-C", Pair{}, true},
		{"same token", "BTC-BTC", Pair{}, true},
		{"empty", "", Pair{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePair(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPair) {
					t.Fatalf("ParsePair(%q) error = %v, want ErrInvalidPair", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePair(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParsePair(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPair_ReverseIsDistinct(t *testing.T) {
	p := Pair{Base: "GBP", Quote: "USD"}
	r := p.Reverse()

	if r.String() != "USD-GBP" {
		t.Errorf("Expected USD-GBP, got %s", r.String())
	}
	if p == r {
		t.Error("A-B and B-A must be distinct keys")
	}
	if r.Reverse() != p {
		t.Error("Reverse should be an involution")
	}
}

func TestPair_JSONMapKey(t *testing.T) {
	in := map[Pair]int{{Base: "BTC", Quote: "ETH"}: 1}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"BTC-ETH":1}` {
		t.Errorf("Unexpected JSON %s", data)
	}

	var out map[Pair]int
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out[Pair{Base: "BTC", Quote: "ETH"}] != 1 {
		t.Errorf("Round trip lost key: %v", out)
	}
}
