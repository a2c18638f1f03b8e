package decode

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"

	"github.com/pumpfeed/ingest-core/internal/domain"
	"github.com/pumpfeed/ingest-core/internal/errs"
)

// AMM pool account layout (spec.md §4.4): 8-byte discriminator, five
// 32-byte pubkeys (base_mint, quote_mint, pool_authority, base_vault,
// quote_vault), base/quote reserves as u64 LE, two fee u64 pairs, then
// a one-byte disable-flag mask. Mirrors the fixed pubkey-block-then-
// scalars shape of nick199910-SolRoute's PumpAMMPool layout
// (pkg/pool/pump/amm.go), generalized to this package's own offsets.
const (
	poolDiscriminatorLen = 8

	poolBaseMintOffset      = 8
	poolQuoteMintOffset     = 40
	poolAuthorityOffset     = 72
	poolBaseVaultOffset     = 104
	poolQuoteVaultOffset    = 136
	poolBaseReservesOffset  = 168
	poolQuoteReservesOffset = 176
	poolFeePair1Offset      = 184 // lp_fee_bp, lp_fee
	poolFeePair2Offset      = 200 // protocol_fee_bp, protocol_fee
	poolDisableFlagOffset   = 216
	poolMinLen              = poolDisableFlagOffset + 1
)

// Discriminators distinguishing the two AMM account kinds that share
// this package's subscription channel (spec.md §4.4).
var (
	PoolDiscriminator         = [8]byte{0xf1, 0x9a, 0x6d, 0x04, 0x11, 0xb1, 0x6d, 0xbc}
	GlobalConfigDiscriminator = [8]byte{0x95, 0x08, 0x9c, 0xca, 0xa0, 0xfc, 0xb0, 0xd9}
)

// Fees are the two u64 fee pairs carried on a pool account: the LP fee
// basis-points/absolute pair and the protocol fee basis-points/
// absolute pair.
type Fees struct {
	LPFeeBP        uint64
	LPFee          uint64
	ProtocolFeeBP  uint64
	ProtocolFee    uint64
}

// PoolAccount is a decoded AMM pool account, keyed by its own address
// (supplied by the caller, since the account address is not part of
// its own payload).
type PoolAccount struct {
	Pool          solana.PublicKey
	BaseMint      solana.PublicKey
	QuoteMint     solana.PublicKey
	PoolAuthority solana.PublicKey
	BaseVault     solana.PublicKey
	QuoteVault    solana.PublicKey
	BaseReserves  uint64
	QuoteReserves uint64
	Fees          Fees
	Disabled      bool
	Slot          uint64
}

// DecodeDiscriminator reads only the leading 8 bytes to tell a pool
// account from a global-config account without committing to a full
// decode — used by the demultiplexer to route before allocating.
func DecodeDiscriminator(data []byte) ([8]byte, error) {
	if len(data) < poolDiscriminatorLen {
		return [8]byte{}, errs.NewDecodeShort("amm_discriminator", len(data), poolDiscriminatorLen)
	}
	var disc [8]byte
	copy(disc[:], data[:poolDiscriminatorLen])
	return disc, nil
}

// DecodePool parses an AMM pool account's raw data. Larger-than-
// expected payloads are tolerated (trailing bytes ignored); a payload
// shorter than poolMinLen fails with errs.KindDecodeShort.
func DecodePool(pool solana.PublicKey, data []byte, slot uint64) (*PoolAccount, error) {
	if len(data) < poolMinLen {
		return nil, errs.NewDecodeShort("amm_pool", len(data), poolMinLen)
	}

	disc, err := DecodeDiscriminator(data)
	if err != nil {
		return nil, err
	}
	if disc != PoolDiscriminator {
		return nil, errs.NewUnknownDiscriminator(disc)
	}

	return &PoolAccount{
		Pool:          pool,
		BaseMint:      solana.PublicKeyFromBytes(data[poolBaseMintOffset : poolBaseMintOffset+32]),
		QuoteMint:     solana.PublicKeyFromBytes(data[poolQuoteMintOffset : poolQuoteMintOffset+32]),
		PoolAuthority: solana.PublicKeyFromBytes(data[poolAuthorityOffset : poolAuthorityOffset+32]),
		BaseVault:     solana.PublicKeyFromBytes(data[poolBaseVaultOffset : poolBaseVaultOffset+32]),
		QuoteVault:    solana.PublicKeyFromBytes(data[poolQuoteVaultOffset : poolQuoteVaultOffset+32]),
		BaseReserves:  binary.LittleEndian.Uint64(data[poolBaseReservesOffset:]),
		QuoteReserves: binary.LittleEndian.Uint64(data[poolQuoteReservesOffset:]),
		Fees: Fees{
			LPFeeBP:       binary.LittleEndian.Uint64(data[poolFeePair1Offset:]),
			LPFee:         binary.LittleEndian.Uint64(data[poolFeePair1Offset+8:]),
			ProtocolFeeBP: binary.LittleEndian.Uint64(data[poolFeePair2Offset:]),
			ProtocolFee:   binary.LittleEndian.Uint64(data[poolFeePair2Offset+8:]),
		},
		Disabled: data[poolDisableFlagOffset] != 0,
		Slot:     slot,
	}, nil
}

// ToDomain projects the decode-layer PoolAccount onto the
// domain.PoolState the rest of the core operates on.
func (p *PoolAccount) ToDomain() *domain.PoolState {
	return &domain.PoolState{
		Pool:          p.Pool,
		BaseMint:      p.BaseMint,
		QuoteMint:     p.QuoteMint,
		BaseReserves:  p.BaseReserves,
		QuoteReserves: p.QuoteReserves,
		Slot:          p.Slot,
	}
}
