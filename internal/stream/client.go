package stream

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/pumpfeed/ingest-core/internal/domain"
	"github.com/pumpfeed/ingest-core/internal/errs"
	"github.com/pumpfeed/ingest-core/internal/logging"
)

// SDK identity sent on every stream, same idiom as laserstream.go's
// SDKName/SDKVersion metadata headers.
const (
	clientName    = "ingest-core-stream"
	clientVersion = "0.1.0"
)

// forkDepthSafetyMargin bounds how far a processed-commitment resume
// rewinds to absorb fork reorgs, carried over from laserstream.go's
// ForkDepthSafetyMargin.
const forkDepthSafetyMargin = 31

// DataCallback receives one decoded wire update at a time, in arrival
// order, from the stream's delivery goroutine.
type DataCallback func(update *SubscribeUpdate)

// GapCallback fires once per detected slot discontinuity on
// reconnect (spec.md §4.8); EndSlot is the slot the stream resumed at.
type GapCallback func(gap domain.DowntimeGap)

// ErrorCallback fires when the client gives up reconnecting, which it
// does only on an authentication failure (codes.Unauthenticated or
// codes.PermissionDenied); the error then carries errs.KindTransportAuth.
type ErrorCallback func(err error)

// ChannelOptions configures the underlying gRPC channel. Carried over
// from laserstream.go's ChannelOptions nearly field-for-field; this is
// ambient transport tuning, not domain behavior, so there is no reason
// to diverge from the teacher's defaults.
type ChannelOptions struct {
	ConnectTimeoutSecs    int
	MinConnectTimeoutSecs int

	MaxRecvMsgSize int
	MaxSendMsgSize int

	KeepaliveTimeSecs    int
	KeepaliveTimeoutSecs int
	PermitWithoutStream  bool

	InitialWindowSize     int32
	InitialConnWindowSize int32

	WriteBufferSize int
	ReadBufferSize  int

	UseCompression bool
}

// Config is the immutable configuration for one StreamClient.
type Config struct {
	Endpoint       string
	APIKey         string
	ChannelOptions *ChannelOptions
	Backoff        BackoffPolicy
	// HighWaterMark bounds the internal delivery buffer; once full the
	// oldest buffered update is dropped to make room for the newest
	// (spec.md §4.2's backpressure policy). Zero uses the default of
	// 10,000.
	HighWaterMark int
}

// NewConfig returns a Config with spec.md §4.2's documented defaults.
func NewConfig(endpoint, apiKey string) Config {
	return Config{
		Endpoint:      endpoint,
		APIKey:        apiKey,
		Backoff:       DefaultBackoffPolicy(),
		HighWaterMark: 10000,
	}
}

// Client manages one long-lived, auto-reconnecting subscription.
// Adapted from laserstream.go's Client: same connect/streamLoop/
// handleStream skeleton, generalized to accept a request built by
// SubscriptionBuilder and to report gaps/drops instead of silently
// absorbing them.
type Client struct {
	config Config
	log    *logging.Logger

	conn   *grpc.ClientConn
	stream pb.Geyser_SubscribeClient
	mu     sync.RWMutex
	cancel context.CancelFunc
	running bool

	dataCallback  DataCallback
	gapCallback   GapCallback
	errorCallback ErrorCallback

	trackedSlot  uint64
	madeProgress uint64 // atomic bool

	originalRequest   *SubscribeRequest
	internalSlotSubID string
	commitmentLevel   CommitmentLevel

	queue *deliveryQueue

	delivered uint64
	dropped   uint64
	malformed uint64
}

// NewClient builds a Client around cfg. Pass a *logging.Logger scoped
// to "stream" (or nil to discard log output).
func NewClient(cfg Config, log *logging.Logger) *Client {
	if log == nil {
		log = logging.NewWithWriter("stream", io.Discard)
	}
	return &Client{config: cfg, log: log}
}

// Stats is a snapshot of delivery counters for internal/observability.
type Stats struct {
	Delivered uint64
	Dropped   uint64
	Malformed uint64
}

// Stats returns the current delivery counters.
func (c *Client) Stats() Stats {
	return Stats{
		Delivered: atomic.LoadUint64(&c.delivered),
		Dropped:   atomic.LoadUint64(&c.dropped),
		Malformed: atomic.LoadUint64(&c.malformed),
	}
}

// Subscribe starts streaming req, calling dataCallback for each update,
// gapCallback whenever a reconnect skips slots, and errorCallback if
// the client stops reconnecting after an authentication failure; every
// other error is retried with backoff. Runs until ctx is cancelled,
// Close is called, or authentication fails.
func (c *Client) Subscribe(ctx context.Context, req *SubscribeRequest, dataCallback DataCallback, gapCallback GapCallback, errorCallback ErrorCallback) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("stream client already subscribed")
	}

	c.originalRequest = proto.Clone(req).(*SubscribeRequest)
	c.dataCallback = dataCallback
	c.gapCallback = gapCallback
	c.errorCallback = errorCallback

	c.commitmentLevel = CommitmentLevelConfirmed
	if req.Commitment != nil {
		c.commitmentLevel = *req.Commitment
	}

	c.internalSlotSubID = fmt.Sprintf("__internal_slot_tracker_%s", strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	if c.originalRequest.Slots == nil {
		c.originalRequest.Slots = make(map[string]*SubscribeRequestFilterSlots)
	}
	c.originalRequest.Slots[c.internalSlotSubID] = &SubscribeRequestFilterSlots{}

	highWaterMark := c.config.HighWaterMark
	if highWaterMark <= 0 {
		highWaterMark = 10000
	}
	c.queue = newDeliveryQueue(highWaterMark)

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	go c.deliverLoop()
	go c.streamLoop(ctx)
	return nil
}

// Close terminates the subscription and releases the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.cleanupLocked()
	if c.queue != nil {
		c.queue.close()
	}
	c.running = false
}

func (c *Client) streamLoop(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.cleanupLocked()
		c.running = false
		q := c.queue
		c.mu.Unlock()
		if q != nil {
			q.close()
		}
	}()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		atomic.StoreUint64(&c.madeProgress, 0)
		preAttemptSlot := atomic.LoadUint64(&c.trackedSlot)

		err := c.connectAndStream(ctx, preAttemptSlot)
		if err == nil {
			attempt = 0
			continue
		}
		if st, ok := status.FromError(err); ok && (st.Code() == codes.Unauthenticated || st.Code() == codes.PermissionDenied) {
			c.log.Errorf("authentication failed, not reconnecting: %v", err)
			if c.errorCallback != nil {
				c.errorCallback(errs.Wrap(errs.KindTransportAuth, "stream authentication", err))
			}
			return
		}

		attempt++
		if atomic.LoadUint64(&c.madeProgress) != 0 {
			attempt = 1
		}
		c.log.Warnf("reconnect attempt %d after error: %v", attempt, err)

		c.updateRequestForReconnection()

		delay := c.config.Backoff.Next(attempt)
		select {
		case <-time.After(delay):
			continue
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) connectAndStream(ctx context.Context, preAttemptSlot uint64) error {
	if err := c.connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	geyserClient := pb.NewGeyserClient(c.conn)

	md := metadata.New(map[string]string{
		"x-sdk-name":    clientName,
		"x-sdk-version": clientVersion,
	})
	if c.config.APIKey != "" {
		md.Set("x-token", c.config.APIKey)
	}
	streamCtx := metadata.NewOutgoingContext(ctx, md)

	stream, err := geyserClient.Subscribe(streamCtx)
	if err != nil {
		c.cleanupLocked()
		return fmt.Errorf("open stream: %w", err)
	}

	c.mu.RLock()
	req := c.originalRequest
	c.mu.RUnlock()

	if err := stream.Send(req); err != nil {
		stream.CloseSend()
		c.cleanupLocked()
		return fmt.Errorf("send subscribe request: %w", err)
	}

	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()

	return c.handleStream(ctx, stream, preAttemptSlot)
}

func (c *Client) handleStream(ctx context.Context, stream pb.Geyser_SubscribeClient, preAttemptSlot uint64) error {
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				_ = stream.Send(&SubscribeRequest{Ping: &pb.SubscribeRequestPing{Id: int32(attemptPingID())}})
			}
		}
	}()

	firstSlotSeen := false

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("stream closed by server")
			}
			if st, ok := status.FromError(err); ok && (st.Code() == codes.Unavailable || st.Code() == codes.DeadlineExceeded) {
				return fmt.Errorf("stream unavailable: %w", err)
			}
			return fmt.Errorf("stream recv: %w", err)
		}

		if resp.UpdateOneof == nil {
			// Malformed frame: no update variant set. Counted and
			// dropped, never treated as a transport error (spec.md
			// §4.2: "malformed frames are counted and dropped; they
			// never abort the stream").
			atomic.AddUint64(&c.malformed, 1)
			continue
		}

		switch u := resp.UpdateOneof.(type) {
		case *pb.SubscribeUpdate_Ping:
			_ = stream.Send(&SubscribeRequest{Ping: &pb.SubscribeRequestPing{Id: 1}})
			continue
		case *pb.SubscribeUpdate_Pong:
			continue
		case *pb.SubscribeUpdate_Slot:
			if u.Slot != nil {
				slot := u.Slot.Slot
				atomic.StoreUint64(&c.trackedSlot, slot)
				if !firstSlotSeen {
					firstSlotSeen = true
					c.reportGapIfAny(preAttemptSlot, slot)
				}
			}
			if len(resp.Filters) == 1 && resp.Filters[0] == c.internalSlotSubID {
				continue
			}
		}

		resp.Filters = stripInternalFilter(resp.Filters, c.internalSlotSubID)

		atomic.StoreUint64(&c.madeProgress, 1)
		atomic.AddUint64(&c.delivered, 1)

		if c.queue.push(resp) {
			atomic.AddUint64(&c.dropped, 1)
		}
	}
}

// deliverLoop drains the delivery queue and invokes dataCallback on a
// goroutine separate from the recv loop, so a slow callback never
// blocks Recv() from reading the transport (spec.md §4.2, §5
// Backpressure). Exits once the queue is closed and drained.
func (c *Client) deliverLoop() {
	for {
		update, ok := c.queue.pop()
		if !ok {
			return
		}
		if c.dataCallback != nil {
			c.dataCallback(update)
		}
	}
}

func (c *Client) reportGapIfAny(preAttemptSlot, resumedAtSlot uint64) {
	if preAttemptSlot == 0 || c.gapCallback == nil {
		return
	}
	if resumedAtSlot <= preAttemptSlot+1 {
		return
	}
	c.gapCallback(domain.DowntimeGap{
		StartSlot:         preAttemptSlot,
		EndSlot:           resumedAtSlot,
		EstimatedMissed:   resumedAtSlot - preAttemptSlot - 1,
		RecoveryAttempted: false,
	})
}

func stripInternalFilter(filters []string, internalID string) []string {
	if internalID == "" {
		return filters
	}
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		if f != internalID {
			out = append(out, f)
		}
	}
	return out
}

func (c *Client) updateRequestForReconnection() {
	last := atomic.LoadUint64(&c.trackedSlot)
	if last == 0 {
		c.originalRequest.FromSlot = nil
		return
	}

	var fromSlot uint64
	switch c.commitmentLevel {
	case CommitmentLevelProcessed:
		if last > forkDepthSafetyMargin {
			fromSlot = last - forkDepthSafetyMargin
		}
	default:
		fromSlot = last
	}
	c.originalRequest.FromSlot = &fromSlot
}

func (c *Client) connect(ctx context.Context) error {
	c.cleanupLocked()

	target, err := dialTarget(c.config.Endpoint)
	if err != nil {
		return err
	}

	var opts []grpc.DialOption
	opts = append(opts, grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, "")))

	co := c.config.ChannelOptions
	if co == nil {
		co = &ChannelOptions{}
	}

	keepaliveTime := 30 * time.Second
	if co.KeepaliveTimeSecs > 0 {
		keepaliveTime = time.Duration(co.KeepaliveTimeSecs) * time.Second
	}
	keepaliveTimeout := 5 * time.Second
	if co.KeepaliveTimeoutSecs > 0 {
		keepaliveTimeout = time.Duration(co.KeepaliveTimeoutSecs) * time.Second
	}
	opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
		Time:                keepaliveTime,
		Timeout:             keepaliveTimeout,
		PermitWithoutStream: co.PermitWithoutStream,
	}))

	maxRecv := 1024 * 1024 * 1024
	if co.MaxRecvMsgSize > 0 {
		maxRecv = co.MaxRecvMsgSize
	}
	maxSend := 32 * 1024 * 1024
	if co.MaxSendMsgSize > 0 {
		maxSend = co.MaxSendMsgSize
	}
	callOpts := []grpc.CallOption{grpc.MaxCallRecvMsgSize(maxRecv), grpc.MaxCallSendMsgSize(maxSend)}
	if co.UseCompression {
		callOpts = append(callOpts, grpc.UseCompressor(gzip.Name))
	}
	opts = append(opts, grpc.WithDefaultCallOptions(callOpts...))

	minConnectTimeout := 10 * time.Second
	if co.MinConnectTimeoutSecs > 0 {
		minConnectTimeout = time.Duration(co.MinConnectTimeoutSecs) * time.Second
	}
	opts = append(opts, grpc.WithConnectParams(grpc.ConnectParams{
		Backoff:           backoff.DefaultConfig,
		MinConnectTimeout: minConnectTimeout,
	}))

	if co.InitialWindowSize > 0 {
		opts = append(opts, grpc.WithInitialWindowSize(co.InitialWindowSize))
	} else {
		opts = append(opts, grpc.WithInitialWindowSize(4*1024*1024))
	}
	if co.InitialConnWindowSize > 0 {
		opts = append(opts, grpc.WithInitialConnWindowSize(co.InitialConnWindowSize))
	} else {
		opts = append(opts, grpc.WithInitialConnWindowSize(8*1024*1024))
	}
	if co.WriteBufferSize > 0 {
		opts = append(opts, grpc.WithWriteBufferSize(co.WriteBufferSize))
	} else {
		opts = append(opts, grpc.WithWriteBufferSize(64*1024))
	}
	if co.ReadBufferSize > 0 {
		opts = append(opts, grpc.WithReadBufferSize(co.ReadBufferSize))
	}

	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.conn = conn
	return nil
}

func dialTarget(endpoint string) (string, error) {
	if strings.HasPrefix(endpoint, "https://") || strings.HasPrefix(endpoint, "http://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", fmt.Errorf("parse endpoint: %w", err)
		}
		if u.Port() != "" {
			return u.Host, nil
		}
		return u.Hostname() + ":443", nil
	}
	if strings.Contains(endpoint, ":") {
		return endpoint, nil
	}
	return endpoint + ":443", nil
}

func (c *Client) cleanupLocked() {
	if c.stream != nil {
		c.stream.CloseSend()
		c.stream = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func attemptPingID() int64 {
	return time.Now().UnixMilli()
}

// deliveryQueue is the bounded buffer standing between the recv
// goroutine and dataCallback (spec.md §4.2, §5 Backpressure: "slow
// consumers must not block the transport... drops the oldest buffered
// update when the downstream queue exceeds a configured high-water
// mark"). A plain buffered channel can only drop the newest item
// (select-default on a full channel, the idiom eventbus.Bus.Publish
// uses for its own slow-subscriber case); this queue needs the
// opposite discipline, so it is a mutex/cond-guarded ring of pointers
// instead.
type deliveryQueue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	items     []*SubscribeUpdate
	highWater int
	closed    bool
}

func newDeliveryQueue(highWater int) *deliveryQueue {
	q := &deliveryQueue{
		items:     make([]*SubscribeUpdate, 0, highWater),
		highWater: highWater,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues update, evicting the oldest queued update if the queue
// is already at highWater. Reports whether an eviction happened so the
// caller can count the drop.
func (q *deliveryQueue) push(update *SubscribeUpdate) (droppedOldest bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if len(q.items) >= q.highWater {
		q.items = q.items[1:]
		droppedOldest = true
	}
	q.items = append(q.items, update)
	q.cond.Signal()
	return droppedOldest
}

// pop blocks until an item is available or the queue is closed and
// drained, in which case ok is false.
func (q *deliveryQueue) pop() (update *SubscribeUpdate, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	update = q.items[0]
	q.items = q.items[1:]
	return update, true
}

// close marks the queue closed and wakes any blocked pop, which then
// drains whatever remains before returning false.
func (q *deliveryQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}
