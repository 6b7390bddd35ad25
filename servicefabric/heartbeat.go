package servicefabric

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
	"github.com/navin772/appium-ios-remotexpc/plist"
)

// HeartbeatState is a Heartbeat's lifecycle state.
type HeartbeatState int

const (
	HeartbeatIdle HeartbeatState = iota
	HeartbeatRunning
	HeartbeatStopping
	HeartbeatStopped
)

// Heartbeat drives the com.apple.mobile.heartbeat recv->Polo loop over
// a service fabric Conn: the device sends periodic pings, and this
// side answers each one with {Command:"Polo"}.
type Heartbeat struct {
	conn *Conn

	mu    sync.Mutex
	state HeartbeatState

	cancel context.CancelFunc
	runCtx context.Context
	done   chan struct{}
}

// NewHeartbeat wraps an already-checked-in Conn.
func NewHeartbeat(conn *Conn) *Heartbeat {
	return &Heartbeat{conn: conn, state: HeartbeatIdle}
}

// State returns the current lifecycle state.
func (h *Heartbeat) State() HeartbeatState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Start runs the recv->Polo loop inline, blocking until ctx is
// canceled, the connection closes, or intervalSeconds (when > 0) has
// elapsed since Start was called.
func (h *Heartbeat) Start(ctx context.Context, intervalSeconds int) error {
	if err := h.begin(ctx, intervalSeconds); err != nil {
		return err
	}
	return h.run()
}

// StartAsync establishes the loop the same way as Start but returns
// immediately; the loop runs on an internal goroutine until Stop is
// called, ctx is canceled, or the interval elapses.
func (h *Heartbeat) StartAsync(ctx context.Context, intervalSeconds int) error {
	if err := h.begin(ctx, intervalSeconds); err != nil {
		return err
	}
	go func() {
		if err := h.run(); err != nil {
			log.WithError(err).Debug("heartbeat loop ended")
		}
	}()
	return nil
}

func (h *Heartbeat) begin(ctx context.Context, intervalSeconds int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != HeartbeatIdle && h.state != HeartbeatStopped {
		return &ioserr.StateError{Msg: "heartbeat already started"}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if intervalSeconds > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(intervalSeconds)*time.Second)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	h.cancel = cancel
	h.done = make(chan struct{})
	h.state = HeartbeatRunning
	h.runCtx = runCtx
	return nil
}

func (h *Heartbeat) run() error {
	defer close(h.done)
	ctx := h.runCtx

	// receive has no deadline of its own, so a canceled ctx only stops
	// the loop if something unblocks the in-flight read: close the
	// connection once ctx ends, same as Stop already does.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			_ = h.conn.Close()
		case <-stopWatch:
		}
	}()

	for {
		v, err := h.conn.receive()
		if err != nil {
			h.setState(HeartbeatStopped)
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if dict, ok := v.Dict(); ok {
			if cmd, ok := dict.Get("Command"); ok && cmd.String() == "Marco" {
				if err := h.SendPolo(); err != nil {
					h.setState(HeartbeatStopped)
					return err
				}
			}
		}
	}
}

// SendPolo sends {Command:"Polo"} directly, independent of the recv
// loop.
func (h *Heartbeat) SendPolo() error {
	req := plist.DictValue(plist.NewDict().Set("Command", plist.String("Polo")))
	return h.conn.send(req)
}

// Stop closes the connection and clears running state. It is
// idempotent.
func (h *Heartbeat) Stop() error {
	h.mu.Lock()
	if h.state == HeartbeatIdle || h.state == HeartbeatStopped {
		h.mu.Unlock()
		return nil
	}
	h.state = HeartbeatStopping
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := h.conn.Close()

	h.mu.Lock()
	h.state = HeartbeatStopped
	h.mu.Unlock()
	return err
}

func (h *Heartbeat) setState(s HeartbeatState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == HeartbeatStopping {
		return
	}
	h.state = s
}
