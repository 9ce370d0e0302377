package domain

import (
	"math"
	"testing"
)

func TestVectorValueScan(t *testing.T) {
	testCases := []struct {
		name string
		in   Vector
	}{
		{name: "empty", in: Vector{}},
		{name: "unit", in: Vector{1, 0, 0}},
		{name: "mixed", in: Vector{-0.25, 3.5, float32(math.Pi), 1e-7}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := tc.in.Value()
			if err != nil {
				t.Fatalf("Value() error = %v", err)
			}

			var out Vector
			if err := out.Scan(raw); err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if len(out) != len(tc.in) {
				t.Fatalf("len = %d, want %d", len(out), len(tc.in))
			}
			for i := range out {
				if out[i] != tc.in[i] {
					t.Errorf("component %d = %v, want %v", i, out[i], tc.in[i])
				}
			}
		})
	}
}

func TestVectorScanRejectsTruncatedBlob(t *testing.T) {
	var v Vector
	if err := v.Scan([]byte{1, 2, 3}); err == nil {
		t.Error("Scan() should reject a blob that is not a multiple of 4 bytes")
	}
	if err := v.Scan(42); err == nil {
		t.Error("Scan() should reject non-byte values")
	}
}

func TestReferenceIndexLabelsKeepFirstAppearance(t *testing.T) {
	idx := &ReferenceIndex{Entries: []ReferenceEntry{
		{Label: "AK-47"}, {Label: "F-1"}, {Label: "AK-47"}, {Label: "RGD-5"},
	}}
	got := idx.Labels()
	want := []string{"AK-47", "F-1", "RGD-5"}
	if len(got) != len(want) {
		t.Fatalf("Labels() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Labels()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLooseStringUnmarshal(t *testing.T) {
	testCases := []struct {
		in   string
		want LooseString
	}{
		{`"1949-"`, "1949-"},
		{`1947`, "1947"},
		{`7.62`, "7.62"},
		{`true`, "true"},
		{`null`, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			var s LooseString
			if err := s.UnmarshalJSON([]byte(tc.in)); err != nil {
				t.Fatalf("UnmarshalJSON(%s) error = %v", tc.in, err)
			}
			if s != tc.want {
				t.Errorf("UnmarshalJSON(%s) = %q, want %q", tc.in, s, tc.want)
			}
		})
	}
}
