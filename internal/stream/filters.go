package stream

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/pumpfeed/ingest-core/internal/errs"
)

// Account layout offsets that FilterFactory compiles memcmp filters
// against. These mirror the decode package's own offsets (spec.md
// §4.4) so a subscription and its decoder never drift apart.
const (
	bondingCurveCompleteOffset = 221
	bondingCurveCreatorOffset  = 32
	bondingCurveMintOffset     = 64
)

// AccountFilter is one compiled memcmp/dataSize constraint plus the
// byte offset it slots into bookkeeping for FilterFactory's
// no-two-memcmp-at-the-same-offset invariant (spec.md §4.1).
type AccountFilter struct {
	offset   uint64
	pb       *SubscribeRequestFilterAccountsFilter
	isMemcmp bool
	isSize   bool
}

// FilterFactory builds individual AccountFilter values. Grounded on
// the teacher's re-exported SubscribeRequestFilterAccountsFilter*
// types (laserstream.go's re-export block); the concrete offsets come
// from spec.md §3's bonding-curve layout.
type FilterFactory struct{}

// NewFilterFactory returns a FilterFactory. Stateless; a value, not a
// singleton, per the teacher's config-as-a-value idiom.
func NewFilterFactory() FilterFactory { return FilterFactory{} }

func memcmpBytes(offset uint64, data []byte) *SubscribeRequestFilterAccountsFilter {
	return &SubscribeRequestFilterAccountsFilter{
		Filter: &SubscribeRequestFilterAccountsFilter_Memcmp{
			Memcmp: &SubscribeRequestFilterAccountsFilterMemcmp{
				Offset: offset,
				Data: &SubscribeRequestFilterAccountsFilterMemcmp_Bytes{
					Bytes: data,
				},
			},
		},
	}
}

// MintFilter matches accounts whose mint field equals mint, at the
// bonding-curve account's mint offset.
func (FilterFactory) MintFilter(mint solana.PublicKey) AccountFilter {
	return AccountFilter{
		offset:   bondingCurveMintOffset,
		pb:       memcmpBytes(bondingCurveMintOffset, mint.Bytes()),
		isMemcmp: true,
	}
}

// CreatorFilter matches accounts whose creator field equals creator.
func (FilterFactory) CreatorFilter(creator solana.PublicKey) AccountFilter {
	return AccountFilter{
		offset:   bondingCurveCreatorOffset,
		pb:       memcmpBytes(bondingCurveCreatorOffset, creator.Bytes()),
		isMemcmp: true,
	}
}

// BondingCurveCompleteFilter matches accounts whose complete flag byte
// equals the given value (0x00/0x01).
func (FilterFactory) BondingCurveCompleteFilter(complete bool) AccountFilter {
	b := byte(0)
	if complete {
		b = 1
	}
	return AccountFilter{
		offset:   bondingCurveCompleteOffset,
		pb:       memcmpBytes(bondingCurveCompleteOffset, []byte{b}),
		isMemcmp: true,
	}
}

// DataSizeFilter matches accounts whose data length equals exactly n
// bytes. At most one DataSizeFilter may be used per channel
// (spec.md §4.1).
func (FilterFactory) DataSizeFilter(n uint64) AccountFilter {
	return AccountFilter{
		pb:     &SubscribeRequestFilterAccountsFilter{Filter: &SubscribeRequestFilterAccountsFilter_Datasize{Datasize: n}},
		isSize: true,
	}
}

// channelSpec accumulates the filters and owner-program membership for
// a single named subscription channel (one entry in the request's
// Accounts/Transactions map) before Build assembles the wire request.
type channelSpec struct {
	name      string
	owners    []string
	accounts  []string
	filters   []AccountFilter
	dataSlice []*SubscribeRequestAccountsDataSlice

	// transaction-channel only
	accountInclude []string
	voteFilter     *bool
	failedFilter   *bool
}

// SubscriptionBuilder assembles a single SubscribeRequest from named
// account/transaction channels, a commitment level, and an optional
// replay-from slot. Adapted from laserstream.go's Client.originalRequest
// construction, pulled out of the streaming client itself so a
// subscription can be composed, validated, and unit tested without a
// live connection.
type SubscriptionBuilder struct {
	commitment  CommitmentLevel
	fromSlot    *uint64
	accountChs  map[string]*channelSpec
	txChs       map[string]*channelSpec
	slotChs     map[string]bool
}

// NewSubscriptionBuilder starts an empty builder at the given
// commitment level (spec.md §4.1 default is confirmed; the composition
// root maps config.Commitment onto a stream.CommitmentLevel explicitly).
func NewSubscriptionBuilder(commitment CommitmentLevel) *SubscriptionBuilder {
	return &SubscriptionBuilder{
		commitment: commitment,
		accountChs: make(map[string]*channelSpec),
		txChs:      make(map[string]*channelSpec),
		slotChs:    make(map[string]bool),
	}
}

// FromSlot requests replay starting at the given slot (spec.md §4.1).
func (b *SubscriptionBuilder) FromSlot(slot uint64) *SubscriptionBuilder {
	b.fromSlot = &slot
	return b
}

// AccountChannel declares the named channel that watches accounts
// owned by any of owners, refined by filters, replacing any channel
// already declared under that name.
// Validates the no-two-memcmp-at-the-same-offset and
// at-most-one-dataSize invariants of spec.md §4.1.
func (b *SubscriptionBuilder) AccountChannel(name string, owners []string, filters ...AccountFilter) error {
	spec, err := compileChannel(name, owners, filters)
	if err != nil {
		return err
	}
	b.accountChs[name] = spec
	return nil
}

// TransactionChannel declares a named channel watching transactions
// that touch any account in accountInclude (typically a program ID).
// voteFilter/failedFilter are nil-able tri-state matches: nil means
// "don't care".
func (b *SubscriptionBuilder) TransactionChannel(name string, accountInclude []string, voteFilter, failedFilter *bool) {
	b.txChs[name] = &channelSpec{
		name:           name,
		accountInclude: accountInclude,
		voteFilter:     voteFilter,
		failedFilter:   failedFilter,
	}
}

// SlotChannel declares a named channel watching slot progression,
// independent of the client's own internal slot tracker.
func (b *SubscriptionBuilder) SlotChannel(name string) {
	b.slotChs[name] = true
}

// WithAccountDataSlice restricts the returned account bytes for name
// to [offset, offset+length) — spec.md §4.1's data-slice control,
// used to avoid pulling full account payloads over the wire when only
// the reserve fields are needed.
func (b *SubscriptionBuilder) WithAccountDataSlice(name string, offset, length uint64) error {
	spec, ok := b.accountChs[name]
	if !ok {
		return errs.NewValidationError("channel", fmt.Sprintf("unknown account channel %q", name))
	}
	spec.dataSlice = append(spec.dataSlice, &SubscribeRequestAccountsDataSlice{Offset: offset, Length: length})
	return nil
}

func compileChannel(name string, owners []string, filters []AccountFilter) (*channelSpec, error) {
	spec := &channelSpec{name: name, owners: owners}

	seenOffsets := make(map[uint64]bool)
	sawDataSize := false
	for _, f := range filters {
		if f.isMemcmp {
			if seenOffsets[f.offset] {
				return nil, errs.NewValidationError("filters", fmt.Sprintf("channel %q has two memcmp filters at offset %d", name, f.offset))
			}
			seenOffsets[f.offset] = true
		}
		if f.isSize {
			if sawDataSize {
				return nil, errs.NewValidationError("filters", fmt.Sprintf("channel %q has more than one dataSize filter", name))
			}
			sawDataSize = true
		}
		spec.filters = append(spec.filters, f)
	}
	return spec, nil
}

// Build assembles the accumulated channels into a wire SubscribeRequest.
func (b *SubscriptionBuilder) Build() *SubscribeRequest {
	req := &SubscribeRequest{
		Commitment: commitmentPtr(b.commitment),
	}

	if b.fromSlot != nil {
		slot := *b.fromSlot
		req.FromSlot = &slot
	}

	if len(b.accountChs) > 0 {
		req.Accounts = make(map[string]*SubscribeRequestFilterAccounts)
		for name, spec := range b.accountChs {
			filter := &SubscribeRequestFilterAccounts{
				Owner:   append([]string(nil), spec.owners...),
				Account: append([]string(nil), spec.accounts...),
			}
			for _, f := range spec.filters {
				filter.Filters = append(filter.Filters, f.pb)
			}
			req.Accounts[name] = filter
		}
	}

	if len(b.txChs) > 0 {
		req.Transactions = make(map[string]*SubscribeRequestFilterTransactions)
		for name, spec := range b.txChs {
			req.Transactions[name] = &SubscribeRequestFilterTransactions{
				AccountInclude: append([]string(nil), spec.accountInclude...),
				Vote:           spec.voteFilter,
				Failed:         spec.failedFilter,
			}
		}
	}

	if len(b.slotChs) > 0 {
		req.Slots = make(map[string]*SubscribeRequestFilterSlots)
		for name := range b.slotChs {
			req.Slots[name] = &SubscribeRequestFilterSlots{}
		}
	}

	for _, spec := range b.accountChs {
		req.AccountsDataSlice = append(req.AccountsDataSlice, spec.dataSlice...)
	}

	return req
}

func commitmentPtr(c CommitmentLevel) *CommitmentLevel {
	v := c
	return &v
}
