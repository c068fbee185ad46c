package main

import (
	"reflect"
	"testing"
)

func TestParseUserDefined(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    []uint32
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"single", "100", []uint32{100}, false},
		{"ascending", "10,200,3000", []uint32{10, 200, 3000}, false},
		{"not_ascending", "200,10", nil, true},
		{"duplicate", "10,10", nil, true},
		{"not_a_number", "10,abc", nil, true},
		{"negative", "-5", nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseUserDefined(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an error for %q", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseUserDefined(%q): %v", tc.raw, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("parseUserDefined(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestWithBounds(t *testing.T) {
	cases := []struct {
		name   string
		blocks []uint32
		n      uint32
		want   []uint32
	}{
		{"already_bounded", []uint32{0, 10, 20}, 20, []uint32{0, 10, 20}},
		{"missing_start", []uint32{10, 20}, 20, []uint32{0, 10, 20}},
		{"missing_end", []uint32{0, 10}, 20, []uint32{0, 10, 20}},
		{"drops_out_of_range", []uint32{0, 10, 25}, 20, []uint32{0, 10, 20}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := withBounds(tc.blocks, tc.n)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("withBounds(%v, %d) = %v, want %v", tc.blocks, tc.n, got, tc.want)
			}
		})
	}
}
