// Package stream owns the gRPC subscription to the Yellowstone-style
// firehose: composing the typed subscription frame (SubscriptionBuilder
// + FilterFactory, spec.md §4.1) and maintaining the long-lived,
// auto-reconnecting stream (StreamClient, spec.md §4.2).
//
// Adapted directly from the teacher SDK's laserstream.go: the Client
// struct, its connect/connectAndStream/handleStream/streamLoop
// reconnect skeleton, slot tracking, and channel options are kept
// nearly verbatim in shape, generalized to accept a subscription built
// by this package's own FilterFactory instead of an arbitrary
// caller-supplied request, and to use the spec's exponential-backoff
// policy instead of the teacher's fixed 5s retry interval.
package stream

import (
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
)

// Re-export the wire types so callers of this package never import the
// yellowstone proto package directly — same re-export idiom as the
// teacher's laserstream.go bottom section.
type (
	SubscribeRequest = pb.SubscribeRequest
	SubscribeUpdate  = pb.SubscribeUpdate

	SubscribeRequestFilterTransactions = pb.SubscribeRequestFilterTransactions
	SubscribeRequestFilterSlots        = pb.SubscribeRequestFilterSlots
	SubscribeRequestFilterAccounts     = pb.SubscribeRequestFilterAccounts

	SubscribeRequestAccountsDataSlice = pb.SubscribeRequestAccountsDataSlice

	SubscribeRequestFilterAccountsFilter          = pb.SubscribeRequestFilterAccountsFilter
	SubscribeRequestFilterAccountsFilterMemcmp    = pb.SubscribeRequestFilterAccountsFilterMemcmp
	SubscribeRequestFilterAccountsFilter_Datasize = pb.SubscribeRequestFilterAccountsFilter_Datasize
	SubscribeRequestFilterAccountsFilter_Memcmp   = pb.SubscribeRequestFilterAccountsFilter_Memcmp
	SubscribeRequestFilterAccountsFilterMemcmp_Bytes = pb.SubscribeRequestFilterAccountsFilterMemcmp_Bytes

	SubscribeUpdate_Account     = pb.SubscribeUpdate_Account
	SubscribeUpdate_Slot        = pb.SubscribeUpdate_Slot
	SubscribeUpdate_Transaction = pb.SubscribeUpdate_Transaction

	SubscribeUpdateAccount     = pb.SubscribeUpdateAccount
	SubscribeUpdateSlot        = pb.SubscribeUpdateSlot
	SubscribeUpdateTransaction = pb.SubscribeUpdateTransaction
)

// CommitmentLevel is a type alias that re-exports pb.CommitmentLevel,
// so callers can name a commitment level without importing the proto
// package.
type CommitmentLevel = pb.CommitmentLevel

const (
	CommitmentLevelProcessed = pb.CommitmentLevel_PROCESSED
	CommitmentLevelConfirmed = pb.CommitmentLevel_CONFIRMED
	CommitmentLevelFinalized = pb.CommitmentLevel_FINALIZED
)
