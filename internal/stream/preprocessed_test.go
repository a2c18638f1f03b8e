package stream

import (
	"context"
	"testing"
)

func TestFastClientRejectsDoubleSubscribe(t *testing.T) {
	c := NewFastClient(NewConfig("localhost:1", ""), nil)
	req := NewSubscriptionBuilder(CommitmentLevelConfirmed).Build()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Subscribe(ctx, req, func(*SubscribeUpdate) {}, func(error) {}); err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}
	defer c.Close()

	if err := c.Subscribe(ctx, req, func(*SubscribeUpdate) {}, func(error) {}); err == nil {
		t.Fatal("expected second Subscribe to fail while already running")
	}
}
