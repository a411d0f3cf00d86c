package model

import (
	"strings"
	"testing"
	"time"
)

func TestSetDefaultsAssignsIdentity(t *testing.T) {
	p := &Product{Name: "Widget", Category: "Tools"}
	p.SetDefaults()

	if p.UID == "" {
		t.Error("expected UID to be generated")
	}
	if p.ScanCode == "" {
		t.Error("expected scan code to be generated")
	}
	if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be stamped")
	}
}

func TestSetDefaultsPreservesExisting(t *testing.T) {
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &Product{
		Name: "Widget", Category: "Tools",
		UID: "fixed-uid", ScanCode: "SP-1-ABC",
		CreatedAt: stamp, UpdatedAt: stamp,
	}
	p.SetDefaults()

	if p.UID != "fixed-uid" || p.ScanCode != "SP-1-ABC" {
		t.Errorf("identity fields changed: uid=%s code=%s", p.UID, p.ScanCode)
	}
	if !p.CreatedAt.Equal(stamp) || !p.UpdatedAt.Equal(stamp) {
		t.Error("timestamps changed")
	}
}

func TestNewScanCodeShape(t *testing.T) {
	code := NewScanCode()
	parts := strings.SplitN(code, "-", 3)
	if len(parts) != 3 || parts[0] != "SP" {
		t.Fatalf("unexpected scan code %q", code)
	}
	if len(parts[2]) != 9 {
		t.Errorf("token %q should be 9 chars", parts[2])
	}
	if parts[2] != strings.ToUpper(parts[2]) {
		t.Errorf("token %q should be uppercase", parts[2])
	}
	if NewScanCode() == code && NewScanCode() == code {
		t.Error("scan codes should not repeat")
	}
}

func TestNaturalKeyNormalization(t *testing.T) {
	a := NaturalKey("  Widget ", "Tools", 9.99)
	b := NaturalKey("widget", "Tools", 9.99)
	if a != b {
		t.Errorf("case and whitespace should not matter: %q vs %q", a, b)
	}

	// Price matching is in cents, so float noise below a cent is ignored.
	c := NaturalKey("widget", "Tools", 9.990000001)
	if b != c {
		t.Errorf("sub-cent noise should not matter: %q vs %q", b, c)
	}

	d := NaturalKey("widget", "Tools", 10.00)
	if b == d {
		t.Error("different prices should produce different keys")
	}
	e := NaturalKey("widget", "Food", 9.99)
	if b == e {
		t.Error("different categories should produce different keys")
	}
}

func TestProductValidate(t *testing.T) {
	cases := []struct {
		name    string
		product Product
		wantErr bool
	}{
		{"valid", Product{Name: "Widget", Category: "Tools", Price: 1, Quantity: 1}, false},
		{"missing name", Product{Category: "Tools"}, true},
		{"missing category", Product{Name: "Widget"}, true},
		{"negative price", Product{Name: "Widget", Category: "Tools", Price: -1}, true},
		{"negative quantity", Product{Name: "Widget", Category: "Tools", Quantity: -5}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.product.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestMovementValidate(t *testing.T) {
	m := Movement{ProductID: 1, Direction: DirectionIn, Quantity: 5}
	if err := m.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := Movement{ProductID: 1, Direction: "sideways", Quantity: 5}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown direction")
	}

	zero := Movement{ProductID: 1, Direction: DirectionOut, Quantity: 0}
	if err := zero.Validate(); err == nil {
		t.Error("expected error for zero quantity")
	}
}

func TestPatchEmpty(t *testing.T) {
	if !(ProductPatch{}).Empty() {
		t.Error("zero patch should be empty")
	}
	name := "x"
	if (ProductPatch{Name: &name}).Empty() {
		t.Error("patch with a field should not be empty")
	}
}
