package engine

import (
	"context"
	"errors"
	"time"

	"github.com/plgd-dev/go-coap/v2/message/codes"
	udpmessage "github.com/plgd-dev/go-coap/v2/udp/message"
	"github.com/plgd-dev/go-coap/v2/udp/message/pool"

	"github.com/edgefleet/coap-sdk/internal/coapwire"
	"github.com/edgefleet/coap-sdk/internal/pending"
	"github.com/edgefleet/coap-sdk/internal/transport"
	"github.com/edgefleet/coap-sdk/status"
)

// errStopRequested unwinds mainLoop when Stop/Destroy fired, distinguishing
// a deliberate shutdown from a transient socket failure that should
// reconnect.
var errStopRequested = errors.New("engine: stop requested")

// run is the worker goroutine's top-level loop: Idle -> Connecting ->
// Running -> (Draining | back to Idle on transient disconnect), per
// spec.md §4.F's state table.
func (c *Client) run() {
	defer c.workerWG.Done()
	defer c.running.Store(false)
	defer c.state.Store(int32(StateIdle))

	for {
		select {
		case <-c.stopReq:
			return
		case <-c.runGate:
		}

		c.state.Store(int32(StateConnecting))
		sock, err := c.dialer.Dial(context.Background(), c.cfg.ServerAddress)
		if err != nil {
			c.logger.Printf("engine: dial %s failed: %s", c.cfg.ServerAddress, err)
			if c.drainStopDuring(time.Second) {
				return
			}
			c.requeueRunGate()
			continue
		}

		c.sock = sock
		c.connected.Store(true)
		c.state.Store(int32(StateRunning))
		c.lastTraffic = time.Now()
		c.emit(EventConnected)
		c.reregisterObservations()

		loopErr := c.mainLoop(sock)

		c.connected.Store(false)
		c.emit(EventDisconnected)
		c.state.Store(int32(StateDraining))
		_ = sock.Close()
		c.sock = nil
		c.failAllPending(status.New(status.Io, ""))

		if errors.Is(loopErr, errStopRequested) {
			return
		}

		c.logger.Printf("engine: disconnected: %s", loopErr)
		if c.drainStopDuring(time.Second) {
			return
		}
		c.state.Store(int32(StateIdle))
		c.requeueRunGate()
	}
}

// drainStopDuring sleeps for d, returning true early if a stop request
// arrives during the sleep.
func (c *Client) drainStopDuring(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.stopReq:
		return true
	case <-t.C:
		return false
	}
}

func (c *Client) requeueRunGate() {
	select {
	case c.runGate <- struct{}{}:
	default:
	}
}

func (c *Client) emit(kind EventKind) {
	if c.onEvent != nil {
		c.onEvent(Event{Kind: kind})
	}
}

// reregisterObservations re-issues every stored observation with a fresh
// token after a reconnect, per spec.md §4.D: "observations persist across a
// disconnect; the engine re-issues every stored observation with a fresh
// token immediately after reconnecting."
func (c *Client) reregisterObservations() {
	for _, slot := range c.obs.Snapshot() {
		slot.Request.Token = c.tokens.Next()
		slot.Request.Deadline = time.Now().Add(c.cfg.ResponseTimeout)
		if err := c.mbox.Push(slot.Request); err != nil {
			c.logger.Printf("engine: re-register observe %s%s failed: %s",
				slot.Request.PathPrefix, slot.Request.Path, err)
		}
	}
}

// failAllPending resolves every in-flight pending entry with err, used when
// the socket drops out from under them.
func (c *Client) failAllPending(err error) {
	for _, e := range c.pending.Drain() {
		c.resolve(e.Request, nil, err)
	}
}

// mainLoop implements spec.md §4.F's six-step body: compute the next
// wake-up, wait on the union of mailbox/socket/timers, send, receive, sweep
// retransmits, and probe keepalive.
func (c *Client) mainLoop(sock transport.Socket) error {
	readCtx, cancelRead := context.WithCancel(context.Background())
	defer cancelRead()

	readCh := make(chan []byte, 8)
	readErrCh := make(chan error, 1)
	go readPump(readCtx, sock, readCh, readErrCh)

	keepalive := time.NewTimer(c.cfg.KeepaliveInterval)
	defer keepalive.Stop()
	var keepaliveC <-chan time.Time
	if c.cfg.KeepaliveInterval > 0 {
		keepaliveC = keepalive.C
	}

	for {
		wake := c.nextWake()
		wait := time.Until(wake)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)

		select {
		case <-c.stopReq:
			timer.Stop()
			return errStopRequested

		case req, ok := <-c.mbox.Chan():
			timer.Stop()
			if !ok {
				return errStopRequested
			}
			c.sendRequest(sock, req, time.Now())

		case data, ok := <-readCh:
			timer.Stop()
			if !ok {
				continue
			}
			c.handleInbound(data)
			c.lastTraffic = time.Now()

		case err := <-readErrCh:
			timer.Stop()
			return err

		case <-keepaliveC:
			if c.pending.Len() == 0 && time.Since(c.lastTraffic) >= c.cfg.KeepaliveInterval {
				c.sendKeepalive(sock)
			}
			keepalive.Reset(c.cfg.KeepaliveInterval)

		case <-timer.C:
			c.sweepRetransmits(sock, time.Now())
		}
	}
}

// nextWake is step 1 of the main loop: the earliest instant the worker must
// act again even with no mailbox or socket activity, i.e. the next
// retransmit deadline, capped by the keepalive interval so the loop never
// sleeps past a silent-link threshold.
func (c *Client) nextWake() time.Time {
	ceiling := time.Now().Add(c.cfg.KeepaliveInterval)
	if d, ok := c.pending.NextDeadline(); ok && d.Before(ceiling) {
		return d
	}
	return ceiling
}

// readPump is the only goroutine allowed to block on ReadPacket; it exists
// so mainLoop's select can multiplex socket readiness against the mailbox
// without a dedicated poller, per spec.md §4.F step 2.
func readPump(ctx context.Context, sock transport.Socket, out chan<- []byte, errOut chan<- error) {
	for {
		data, err := sock.ReadPacket(ctx)
		if err != nil {
			select {
			case errOut <- err:
			case <-ctx.Done():
			}
			return
		}
		select {
		case out <- data:
		case <-ctx.Done():
			return
		}
	}
}

// sendRequest is step 3: drop requests past their deadline without hitting
// the wire, otherwise build, assign a message id, register it for
// retransmission if confirmable, and write it.
func (c *Client) sendRequest(sock transport.Socket, r *coapwire.Request, now time.Time) {
	if !r.Deadline.IsZero() && now.After(r.Deadline) {
		c.resolve(r, nil, status.New(status.Timeout, r.FullPath()))
		return
	}

	msg, err := coapwire.BuildPacket(context.Background(), r)
	if err != nil {
		c.resolve(r, nil, status.Wrap(status.Fail, r.FullPath(), err))
		return
	}
	defer pool.ReleaseMessage(msg)

	c.nextMsgID++
	msg.SetMessageID(c.nextMsgID)

	data, err := coapwire.EncodePacket(msg)
	if err != nil {
		c.resolve(r, nil, status.Wrap(status.Serialize, r.FullPath(), err))
		return
	}

	if err := sock.WritePacket(data); err != nil {
		c.resolve(r, nil, status.Wrap(status.Io, r.FullPath(), err))
		return
	}

	if r.Confirmable() {
		c.pending.Add(r, c.nextMsgID, now)
	}
}

// sendKeepalive emits an empty confirmable DELETE, the idle-link probe of
// spec.md §4.F: any ACK (or outright failure) confirms liveness.
func (c *Client) sendKeepalive(sock transport.Socket) {
	msg := pool.AcquireMessage(context.Background())
	defer pool.ReleaseMessage(msg)
	msg.SetType(udpmessage.Confirmable)
	msg.SetCode(codes.DELETE)
	c.nextMsgID++
	msg.SetMessageID(c.nextMsgID)

	data, err := coapwire.EncodePacket(msg)
	if err != nil {
		c.logger.Printf("engine: keepalive encode failed: %s", err)
		return
	}
	if err := sock.WritePacket(data); err != nil {
		c.logger.Printf("engine: keepalive write failed: %s", err)
	}
}

// handleInbound is step 4: decode a datagram and dispatch it either as a
// response/ack to a pending request or as an observe notification.
func (c *Client) handleInbound(data []byte) {
	msg, err := coapwire.DecodePacket(context.Background(), data)
	if err != nil {
		c.logger.Printf("engine: decode failed: %s", err)
		return
	}
	defer pool.ReleaseMessage(msg)

	token := msg.Token()

	if len(token) == 0 {
		if e, ok := c.pending.ByMessageID(msg.MessageID()); ok {
			if msg.Code() == codes.Empty {
				// bare ACK to a confirmable request awaiting a separate
				// response; leave the entry pending for the eventual
				// response carrying the token.
				return
			}
			c.pending.Remove(e)
			c.dispatch(e.Request, msg)
		}
		return
	}

	if e, ok := c.pending.ByToken(token); ok {
		c.pending.Remove(e)
		c.dispatch(e.Request, msg)
		return
	}

	if slot, ok := c.obs.ByToken(token); ok {
		c.dispatch(slot.Request, msg)
	}
}

// isSuccess reports whether a CoAP response code is in class 2 (2.xx), the
// top three bits of the code byte per RFC 7252 §3.
func isSuccess(c codes.Code) bool {
	return (byte(c) >> 5) == 2
}

// dispatch converts msg into a Response (or a status error for non-2.xx
// codes) and delivers it to the originating request's callback, per
// spec.md §4.E/§4.D.
func (c *Client) dispatch(r *coapwire.Request, msg *pool.Message) {
	if !isSuccess(msg.Code()) {
		c.resolve(r, nil, status.FromCoAPCode(r.FullPath(), msg.Code()))
		return
	}
	resp := coapwire.DecodeResponse(msg)

	if r.OnBlockWrite != nil {
		szx := r.BlockSZX
		if resp.HasBlockOption {
			szx = resp.SZX
		}
		if err := r.OnBlockWrite(r.BlockIndex, szx, resp.Payload, !resp.More); err != nil {
			c.resolve(r, nil, status.Wrap(status.Io, r.FullPath(), err))
			return
		}
	}

	c.resolve(r, resp, nil)
}

// resolve delivers the final outcome of r to whichever caller is waiting,
// synchronous or async, per spec.md §9's completion handshake.
func (c *Client) resolve(r *coapwire.Request, resp *coapwire.Response, err error) {
	if r.OnResponse != nil {
		r.OnResponse(resp, err)
	}
	r.Signal(resp, err)
	r.AckWait(context.Background())
}

// sweepRetransmits is step 5: resend any entry whose deadline has passed,
// or resolve it with a Timeout error once its retry budget is exhausted.
func (c *Client) sweepRetransmits(sock transport.Socket, now time.Time) {
	for _, e := range c.pending.TimedOut(now) {
		if !c.pending.Retransmit(e, now) {
			c.pending.Remove(e)
			c.resolve(e.Request, nil, status.New(status.Timeout, e.Request.FullPath()))
			continue
		}
		c.retransmit(sock, e)
	}
}

// retransmit rebuilds and resends e's packet, reusing its original message
// ID: RFC 7252 §4.5 requires retransmissions of a confirmable message to
// carry the same message ID so the receiver's deduplication cache matches
// them against the first attempt.
func (c *Client) retransmit(sock transport.Socket, e *pending.Entry) {
	msg, err := coapwire.BuildPacket(context.Background(), e.Request)
	if err != nil {
		return
	}
	defer pool.ReleaseMessage(msg)
	msg.SetMessageID(e.MessageID())
	data, err := coapwire.EncodePacket(msg)
	if err != nil {
		c.logger.Printf("engine: retransmit encode failed: %s", err)
		return
	}
	if err := sock.WritePacket(data); err != nil {
		c.logger.Printf("engine: retransmit write failed: %s", err)
	}
}
