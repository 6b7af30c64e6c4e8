package j1939

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestIdentifierRoundTripS1(t *testing.T) {
	id := Identifier(0x18F00400)

	assert.Equal(t, uint8(6), id.Priority())
	assert.Equal(t, uint8(0), id.Reserved())
	assert.Equal(t, uint8(0), id.DataPage())
	assert.Equal(t, uint8(0xF0), id.PDUFormat())
	assert.Equal(t, uint8(0x04), id.PDUSpecific())
	assert.Equal(t, uint8(0x00), id.SourceAddress())
	assert.Equal(t, uint32(0xF004), id.PGN())

	id2 := id.WithPGN(0xE000)
	assert.Equal(t, Identifier(0x18E00400), id2)
	assert.Equal(t, uint32(0xE000), id2.PGN())
}

func TestIdentifierPDU1DestinationNotInPGN(t *testing.T) {
	// PDU1: PDUSpecific is a destination address, excluded from the PGN.
	id := NewIdentifier(6, 0, 0, 0xE0, 0x23, 0x05)
	require.False(t, id.IsPDU2())
	assert.Equal(t, uint32(0xE000), id.PGN())
	assert.Equal(t, uint8(0x23), id.Destination())
}

func TestIdentifierPDU2GroupExtensionInPGN(t *testing.T) {
	id := NewIdentifier(6, 0, 0, 0xF0, 0x04, 0x05)
	require.True(t, id.IsPDU2())
	assert.Equal(t, uint32(0xF004), id.PGN())
	assert.Equal(t, uint8(AddressGlobal), id.Destination())
}

// TestIdentifierPGNRoundTripProperty checks that PGN extraction
// composed with PGN assignment is the identity on PGNs consistent with
// the resulting PDU1/PDU2 form.
func TestIdentifierPGNRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		base := Identifier(rapid.Uint32Range(0, 0x1FFFFFFF).Draw(rt, "base"))
		pduFormat := rapid.Uint32Range(0, 0xFF).Draw(rt, "pduFormat")
		var pgn uint32
		if pduFormat < PDU2Threshold {
			pgn = pduFormat << 8
		} else {
			groupExt := rapid.Uint32Range(0, 0xFF).Draw(rt, "groupExt")
			pgn = pduFormat<<8 | groupExt
		}
		reservedDataPage := rapid.Uint32Range(0, 3).Draw(rt, "reservedDataPage")
		pgn |= reservedDataPage << 16

		got := base.WithPGN(pgn).PGN()
		if got != pgn {
			rt.Fatalf("round trip: set_pgn(%#x) then get_pgn = %#x, want %#x", pgn, got, pgn)
		}
	})
}

func TestIdentifierWithSourceAddress(t *testing.T) {
	id := Identifier(0x18F00400)
	id2 := id.WithSourceAddress(0x2A)
	assert.Equal(t, uint8(0x2A), id2.SourceAddress())
	assert.Equal(t, id.PGN(), id2.PGN())
}
