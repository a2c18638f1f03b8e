// Package demux routes one decoded wire update to the right decoder
// and, for account updates, to the right venue. Account routing keys
// off the account's owning program — the AccountChannel owners set up
// in internal/stream/filters.go — mirroring the teacher laserstream.go
// handleStream's type-switch over resp.UpdateOneof, generalized from
// "is this a ping/slot/data frame" to "which venue owns this account".
//
// Transaction-side account-index conventions (pool at instruction
// account 0, trader at 1, base mint at 3) are grounded on the
// account-ordering nick199910-SolRoute's pump/amm.go builds its own
// swap instructions with (pkg/pool/pump/amm.go's buyInAMMPool);
// bonding-curve buy/sell instructions follow the analogous
// global/fee-recipient/mint/bonding-curve ordering.
package demux

import (
	"github.com/gagliardetto/solana-go"

	"github.com/pumpfeed/ingest-core/internal/decode"
	"github.com/pumpfeed/ingest-core/internal/domain"
	"github.com/pumpfeed/ingest-core/internal/stream"
)

// Real pump.fun-style program IDs (spec.md §3's two venues).
var (
	BondingCurveProgramID = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	AMMProgramID          = solana.MustPublicKeyFromBase58("pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA")
)

// pump-style instruction account indices for buy/sell (grounded on
// amm.go's BuySwapInstruction/SellSwapInstruction account layout).
const (
	ammInstPoolIdx     = 0
	ammInstTraderIdx   = 1
	ammInstBaseMintIdx = 3

	bcInstMintIdx   = 2
	bcInstTraderIdx = 6
)

// AccountUpdate is a demultiplexed account change, already narrowed to
// one of the two known venues.
type AccountUpdate struct {
	Pubkey solana.PublicKey
	Owner  solana.PublicKey
	Data   []byte
	Slot   uint64
}

// Handlers is the set of callbacks a Demultiplexer dispatches decoded
// updates to. Any nil handler is simply skipped.
type Handlers struct {
	OnBondingCurve func(*domain.BondingCurveState)
	OnPool         func(*decode.PoolAccount)
	OnTrade        func(signature string, index int, venue domain.Venue, mint, trader solana.PublicKey, slot uint64, ev *decode.TradeEvent)
	OnDecodeError  func(err error)
}

// Demultiplexer dispatches stream.SubscribeUpdate values to the decode
// package and then to Handlers, by owning-program membership.
type Demultiplexer struct {
	handlers Handlers
}

// New returns a Demultiplexer bound to handlers.
func New(handlers Handlers) *Demultiplexer {
	return &Demultiplexer{handlers: handlers}
}

// Dispatch routes a single wire update. Account updates are decoded by
// owning program; transaction updates are scanned for Program-data
// trade events. Any other update variant (ping handling, slot
// tracking) is the stream client's concern, not this package's, and is
// ignored here.
func (d *Demultiplexer) Dispatch(update *stream.SubscribeUpdate) {
	switch u := update.UpdateOneof.(type) {
	case *stream.SubscribeUpdate_Account:
		d.dispatchAccount(u)
	case *stream.SubscribeUpdate_Transaction:
		d.dispatchTransaction(u)
	}
}

func (d *Demultiplexer) dispatchAccount(u *stream.SubscribeUpdate_Account) {
	if u.Account == nil || u.Account.Account == nil {
		return
	}
	info := u.Account.Account
	owner := solana.PublicKeyFromBytes(info.Owner)
	pubkey := solana.PublicKeyFromBytes(info.Pubkey)
	slot := u.Account.Slot

	switch owner {
	case BondingCurveProgramID:
		state, err := decode.DecodeBondingCurve(info.Data, slot)
		if err != nil {
			d.reportError(err)
			return
		}
		if d.handlers.OnBondingCurve != nil {
			d.handlers.OnBondingCurve(state)
		}
	case AMMProgramID:
		disc, err := decode.DecodeDiscriminator(info.Data)
		if err != nil {
			d.reportError(err)
			return
		}
		if disc != decode.PoolDiscriminator {
			// Global-config accounts are subscribed to (spec.md §4.4
			// distinguishes the two discriminators) but carry no
			// per-token state this core persists.
			return
		}
		pool, err := decode.DecodePool(pubkey, info.Data, slot)
		if err != nil {
			d.reportError(err)
			return
		}
		if d.handlers.OnPool != nil {
			d.handlers.OnPool(pool)
		}
	}
}

func (d *Demultiplexer) dispatchTransaction(u *stream.SubscribeUpdate_Transaction) {
	if u.Transaction == nil || u.Transaction.Transaction == nil {
		return
	}
	txInfo := u.Transaction.Transaction
	if txInfo.Meta == nil || txInfo.Transaction == nil || txInfo.Transaction.Message == nil {
		return
	}

	signature := solana.SignatureFromBytes(txInfo.Signature).String()
	accountKeys := txInfo.Transaction.Message.AccountKeys
	venue, ok := VenueFromAccountKeys(accountKeys)
	if !ok {
		return
	}
	slot := u.Transaction.Slot

	payloads := decode.ExtractProgramDataLines(txInfo.Meta.LogMessages)
	for i, payload := range payloads {
		ev, err := decode.DecodeTradeEvent(payload)
		if err != nil {
			d.reportError(err)
			continue
		}
		mint, trader := AccountsForVenue(venue, accountKeys)
		if d.handlers.OnTrade != nil {
			d.handlers.OnTrade(signature, i, venue, mint, trader, slot, ev)
		}
	}
}

// VenueFromAccountKeys inspects a transaction's account keys for
// membership in one of the two known venue programs. Exported so
// internal/gaprecovery can classify historical transactions fetched
// over RPC the same way live transactions are classified here.
func VenueFromAccountKeys(keys [][]byte) (domain.Venue, bool) {
	for _, k := range keys {
		key := solana.PublicKeyFromBytes(k)
		switch key {
		case BondingCurveProgramID:
			return domain.VenueBondingCurve, true
		case AMMProgramID:
			return domain.VenueAMM, true
		}
	}
	return domain.VenueUnknown, false
}

// AccountsForVenue extracts the mint and trader pubkeys from a
// transaction's account keys, using the venue-specific instruction
// account ordering documented on the instruction-index constants
// above.
func AccountsForVenue(venue domain.Venue, keys [][]byte) (mint, trader solana.PublicKey) {
	mintIdx, traderIdx := bcInstMintIdx, bcInstTraderIdx
	if venue == domain.VenueAMM {
		mintIdx, traderIdx = ammInstBaseMintIdx, ammInstTraderIdx
	}
	if mintIdx < len(keys) {
		mint = solana.PublicKeyFromBytes(keys[mintIdx])
	}
	if traderIdx < len(keys) {
		trader = solana.PublicKeyFromBytes(keys[traderIdx])
	}
	return mint, trader
}

func (d *Demultiplexer) reportError(err error) {
	if d.handlers.OnDecodeError != nil {
		d.handlers.OnDecodeError(err)
	}
}
