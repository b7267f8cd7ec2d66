package command

import (
	"bytes"
	"testing"
)

func TestDeriveIDDeterministic(t *testing.T) {
	sealed := []byte("the same sealed bytes")

	a := DeriveID(sealed)
	b := DeriveID(sealed)
	if a != b {
		t.Error("Same bytes must derive the same ID")
	}

	c := DeriveID([]byte("different bytes"))
	if a == c {
		t.Error("Different bytes must derive different IDs")
	}
}

func TestSentinel(t *testing.T) {
	var zero ID
	if !zero.IsSentinel() {
		t.Error("Zero ID should be the sentinel")
	}
	if DeriveID([]byte("x")).IsSentinel() {
		t.Error("Derived ID should not be the sentinel")
	}
}

func TestIDStringRoundTrip(t *testing.T) {
	id := DeriveID([]byte("round trip"))

	parsed, err := ParseID(id.String())
	if err != nil {
		t.Fatalf("ParseID failed: %v", err)
	}
	if parsed != id {
		t.Errorf("Round trip mismatch: %s != %s", parsed, id)
	}
}

func TestParseIDRejectsMalformed(t *testing.T) {
	if _, err := ParseID("not-hex"); err == nil {
		t.Error("Expected error for non-hex input")
	}
	if _, err := ParseID("abcd"); err == nil {
		t.Error("Expected error for short input")
	}
}

func TestLessMatchesStringOrder(t *testing.T) {
	a := DeriveID([]byte("a"))
	b := DeriveID([]byte("b"))

	wantLess := a.String() < b.String()
	if a.Less(b) != wantLess {
		t.Errorf("Less disagrees with hex string order for %s vs %s", a, b)
	}
	if a.Less(a) {
		t.Error("ID should not be less than itself")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	cases := []Fields{
		InitFields{Nonce: "n-1"},
		AddAuthorFields{Author: "abcd", Name: "peer"},
		SetAmbientColorFields{Color: "Red"},
		PostMessageFields{Text: "hello mesh"},
	}

	for _, fields := range cases {
		payload, err := EncodePayload(fields)
		if err != nil {
			t.Fatalf("EncodePayload(%s) failed: %v", fields.Kind(), err)
		}

		decoded, err := DecodePayload(payload)
		if err != nil {
			t.Fatalf("DecodePayload(%s) failed: %v", fields.Kind(), err)
		}
		if decoded != fields {
			t.Errorf("Round trip mismatch for %s: got %#v, want %#v", fields.Kind(), decoded, fields)
		}
	}
}

func TestEncodePayloadCanonical(t *testing.T) {
	a, err := EncodePayload(SetAmbientColorFields{Color: "Red"})
	if err != nil {
		t.Fatalf("EncodePayload failed: %v", err)
	}
	b, err := EncodePayload(SetAmbientColorFields{Color: "Red"})
	if err != nil {
		t.Fatalf("EncodePayload failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("Same fields must encode to identical bytes")
	}
}

func TestDecodePayloadRejectsUnknownKind(t *testing.T) {
	if _, err := DecodePayload([]byte(`{"kind":"Reboot","fields":{}}`)); err == nil {
		t.Error("Expected error for unknown kind")
	}
	if _, err := DecodePayload([]byte(`not json`)); err == nil {
		t.Error("Expected error for malformed payload")
	}
}
