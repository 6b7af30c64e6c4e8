package j1939

// Well-known PGNs this engine cares about directly. Request,
// Acknowledgement, Address Claimed and the Proprietary groups are
// listed for completeness but their application-layer semantics are
// out of scope; only TPCM and TPDT are interpreted by the
// transport-protocol session.
const (
	PGNAcknowledgement = 0x00E800
	PGNRequest         = 0x00EA00
	PGNTPDT            = 0x00EB00
	PGNTPCM            = 0x00EC00
	PGNAddressClaimed  = 0x00EE00
	PGNProprietaryA    = 0x00EF00
	PGNProprietaryA1   = 0x01EF00
)

// IsTransportProtocolPGN reports whether pgn is one the transport
// protocol session must see (TP.CM or TP.DT).
func IsTransportProtocolPGN(pgn uint32) bool {
	return pgn == PGNTPCM || pgn == PGNTPDT
}
