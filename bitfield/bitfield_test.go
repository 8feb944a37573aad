package bitfield

import "testing"

type pteAttrsFixture struct {
	Valid   bool   `bitfield:"1"`
	Table   bool   `bitfield:"1"`
	AttrIdx uint8  `bitfield:"3"`
	AP      uint8  `bitfield:"2"`
	SH      uint8  `bitfield:"2"`
	AF      bool   `bitfield:"1"`
	Rest    uint32 `bitfield:"22"`
}

func TestPackUnpackRoundTrip(t *testing.T) {
	in := pteAttrsFixture{
		Valid:   true,
		Table:   true,
		AttrIdx: 5,
		AP:      2,
		SH:      3,
		AF:      true,
		Rest:    0x155,
	}

	packed, err := Pack(&in, &Config{NumBits: 32})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	var out pteAttrsFixture
	if err := Unpack(&out, packed); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	if out != in {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
}

func TestPackFieldOrderIsLSBFirst(t *testing.T) {
	type twoBools struct {
		A bool `bitfield:"1"`
		B bool `bitfield:"1"`
	}

	packed, err := Pack(&twoBools{A: true, B: false}, nil)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if packed != 0b01 {
		t.Fatalf("expected bit 0 set for A, got 0x%x", packed)
	}

	packed, err = Pack(&twoBools{A: false, B: true}, nil)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if packed != 0b10 {
		t.Fatalf("expected bit 1 set for B, got 0x%x", packed)
	}
}

func TestPackRejectsOverflow(t *testing.T) {
	type oneField struct {
		V uint8 `bitfield:"2"`
	}
	if _, err := Pack(&oneField{V: 7}, nil); err == nil {
		t.Fatal("expected overflow error for value exceeding declared bit width")
	}
}

func TestPackRejectsTooWide(t *testing.T) {
	type oneField struct {
		V uint8 `bitfield:"9"`
	}
	if _, err := Pack(&oneField{V: 1}, &Config{NumBits: 8}); err == nil {
		t.Fatal("expected error when declared bits exceed NumBits")
	}
}

func TestUnpackRequiresPointerToStruct(t *testing.T) {
	var notAPointer int
	if err := Unpack(notAPointer, 0); err == nil {
		t.Fatal("expected error for non-pointer dst")
	}
}
