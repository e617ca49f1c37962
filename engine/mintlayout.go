package engine

import (
	"encoding/binary"
	"fmt"
)

// Known SPL token program ids: classic and the Token-2022 extended
// program.
const (
	TokenProgramClassic  = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	TokenProgramExtended = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb" // Token-2022
)

const mintLayoutSize = 82

// MintLayout is the parsed fixed 82-byte SPL mint account.
type MintLayout struct {
	MintAuthorityOption   uint32
	Supply                uint64
	Decimals              uint8
	IsInitialized         bool
	FreezeAuthorityOption uint32
}

// parseMintLayout parses the fixed mint account layout:
//
//	[0:4)   mintAuthorityOption (u32 LE)
//	[4:36)  mintAuthority (ignored)
//	[36:44) supply (u64 LE)
//	[44:45) decimals (u8)
//	[45:46) isInitialized (u8, 0/1)
//	[46:50) freezeAuthorityOption (u32 LE)
//	[50:82) freezeAuthority (ignored)
func parseMintLayout(data []byte) (*MintLayout, error) {
	if len(data) < mintLayoutSize {
		return nil, fmt.Errorf("mint account data too short: %d bytes", len(data))
	}
	return &MintLayout{
		MintAuthorityOption:   binary.LittleEndian.Uint32(data[0:4]),
		Supply:                binary.LittleEndian.Uint64(data[36:44]),
		Decimals:              data[44],
		IsInitialized:         data[45] != 0,
		FreezeAuthorityOption: binary.LittleEndian.Uint32(data[46:50]),
	}, nil
}

// Token-2022 extension TLV types blocked by the safety check: transfer
// fee, confidential transfer, interest bearing, permanent delegate,
// transfer hook, confidential transfer fee.
var blockedExtensionTypes = map[uint16]string{
	1:  "transfer fee",
	4:  "confidential transfer",
	10: "interest bearing",
	12: "permanent delegate",
	14: "transfer hook",
	16: "confidential transfer fee",
}

// parseExtensionTLV parses the TLV suffix after offset 82:
// [u16 type][u16 length][length bytes]..., repeated until the buffer
// is exhausted. A truncated or malformed TLV returns an empty list
// rather than a partial one, so callers never act on a half-read
// extension.
func parseExtensionTLV(data []byte) []uint16 {
	if len(data) <= mintLayoutSize {
		return nil
	}
	suffix := data[mintLayoutSize:]

	var types []uint16
	off := 0
	for off < len(suffix) {
		if off+4 > len(suffix) {
			return nil // truncated header
		}
		typ := binary.LittleEndian.Uint16(suffix[off : off+2])
		length := binary.LittleEndian.Uint16(suffix[off+2 : off+4])
		off += 4
		if off+int(length) > len(suffix) {
			return nil // truncated body
		}
		types = append(types, typ)
		off += int(length)
	}
	return types
}

func isExtendedTokenProgram(owner string) bool {
	return owner == TokenProgramExtended
}

func isKnownTokenProgram(owner string) bool {
	return owner == TokenProgramClassic || owner == TokenProgramExtended
}
