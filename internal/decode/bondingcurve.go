// Package decode turns raw account and log bytes from the firehose
// into domain.BondingCurveState, domain.PoolState, and domain.Trade
// values. Every layout here is a fixed-offset little-endian struct with
// an 8-byte leading discriminator, decoded by hand the way
// k256-xyz-k256-sdks/go/decoder.go and
// nick199910-SolRoute/pkg/pool/pump/amm.go decode their own account
// layouts: explicit offset bookkeeping and a length check before every
// read, rather than a reflective struct-tag decoder.
package decode

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"

	"github.com/pumpfeed/ingest-core/internal/domain"
	"github.com/pumpfeed/ingest-core/internal/errs"
)

// Bonding-curve account layout, fixed offsets (spec.md §4.4): creator
// pubkey at 32, mint pubkey at 64, complete flag at 221. The five u64
// reserve/supply fields are interleaved around the two pubkey fields
// rather than packed contiguously after the discriminator, since the
// creator/mint offsets leave no contiguous run long enough to hold
// them first. Offsets here match the FilterFactory's memcmp offsets in
// internal/stream/filters.go so a subscription and its decoder never
// drift apart.
const (
	bcDiscriminatorLen = 8

	bcVirtualTokenReservesOffset = 8
	bcVirtualSOLReservesOffset   = 16
	bcRealTokenReservesOffset    = 24

	bcCreatorOffset = 32
	bcMintOffset    = 64

	bcRealSOLReservesOffset  = 96
	bcTokenTotalSupplyOffset = 104

	bcCompleteOffset = 221
	bcMinLen         = bcCompleteOffset + 1
)

// BondingCurveDiscriminator is the anchor account discriminator for
// the pump-style bonding curve account.
var BondingCurveDiscriminator = [8]byte{0x17, 0xb7, 0xf8, 0x37, 0x60, 0xd8, 0xac, 0x60}

// DecodeBondingCurve parses a bonding-curve account's raw data into a
// BondingCurveState. Returns errs.KindDecodeShort if data is shorter
// than the minimum required to read the complete flag, and
// errs.KindDecodeDiscriminatorUnknown if the leading 8 bytes don't
// match BondingCurveDiscriminator.
func DecodeBondingCurve(data []byte, slot uint64) (*domain.BondingCurveState, error) {
	if len(data) < bcMinLen {
		return nil, errs.NewDecodeShort("bonding_curve", len(data), bcMinLen)
	}

	var disc [8]byte
	copy(disc[:], data[:bcDiscriminatorLen])
	if disc != BondingCurveDiscriminator {
		return nil, errs.NewUnknownDiscriminator(disc)
	}

	state := &domain.BondingCurveState{
		Mint:                 solana.PublicKeyFromBytes(data[bcMintOffset : bcMintOffset+32]),
		Creator:              solana.PublicKeyFromBytes(data[bcCreatorOffset : bcCreatorOffset+32]),
		VirtualTokenReserves: binary.LittleEndian.Uint64(data[bcVirtualTokenReservesOffset:]),
		VirtualSOLReserves:   binary.LittleEndian.Uint64(data[bcVirtualSOLReservesOffset:]),
		RealTokenReserves:    binary.LittleEndian.Uint64(data[bcRealTokenReservesOffset:]),
		RealSOLReserves:      binary.LittleEndian.Uint64(data[bcRealSOLReservesOffset:]),
		TokenTotalSupply:     binary.LittleEndian.Uint64(data[bcTokenTotalSupplyOffset:]),
		Complete:             data[bcCompleteOffset] != 0,
		Slot:                 slot,
	}

	return state, nil
}
