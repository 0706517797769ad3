// Copyright 2026 The Gozo Authors.

// Package gateway is the Bus Gateway: it subscribes to the request subject,
// turns inbound NATS messages into scheduler.Request values, and publishes
// fired schedules back out. It holds no schedule state of its own.
package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jacobsa/reqtrace"
	"github.com/jacobsa/timeutil"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/gozoproject/gozo/scheduler"
)

// Control headers, verbatim as transmitted.
const (
	headerWhen   = "Gozo-When"
	headerID     = "Gozo-Id"
	headerDelID  = "Gozo-Del-Id"
	headerReply  = "Gozo-Reply"
	headerReplyY = "Yes"
)

// Admitter is the subset of *scheduler.Scheduler the Gateway depends on.
// Kept as an interface so gateway tests don't need a real Scheduler.
type Admitter interface {
	Admit(ctx context.Context, req scheduler.Request) error
}

// Gateway owns the NATS connection and subscription. It never blocks on
// Scheduler work from the subscription callback.
type Gateway struct {
	nc      *nats.Conn
	subject string
	admit   Admitter
	clock   timeutil.Clock
	log     zerolog.Logger

	sub *nats.Subscription
}

// New wraps an already-connected *nats.Conn. Connection bootstrap and auth
// live in cmd/gozod/main.go.
//
// The Gateway and the Scheduler depend on each other (the Gateway admits
// into the Scheduler; the Scheduler emits through the Gateway), so admit is
// supplied after construction via SetAdmitter rather than here.
func New(nc *nats.Conn, subject string, clock timeutil.Clock, log zerolog.Logger) *Gateway {
	return &Gateway{nc: nc, subject: subject, clock: clock, log: log}
}

// SetAdmitter wires the Gateway to the Scheduler it feeds. Must be called
// before Subscribe.
func (g *Gateway) SetAdmitter(admit Admitter) {
	g.admit = admit
}

// Subscribe starts receiving requests: a plain async subscription, no
// queue group, single consumer per process.
func (g *Gateway) Subscribe() error {
	sub, err := g.nc.Subscribe(g.subject, g.onMessage)
	if err != nil {
		return fmt.Errorf("%w: subscribe %q: %v", scheduler.ErrFatal, g.subject, err)
	}
	g.sub = sub
	return nil
}

// Unsubscribe stops new admissions without affecting in-flight emits
// during shutdown.
func (g *Gateway) Unsubscribe() error {
	if g.sub == nil {
		return nil
	}
	return g.sub.Unsubscribe()
}

func (g *Gateway) onMessage(msg *nats.Msg) {
	var err error
	ctx, report := reqtrace.Trace(context.Background(), "gozo.gateway.onMessage")
	defer func() { report(&err) }()

	var req scheduler.Request
	req, err = g.parse(msg)
	if err != nil {
		g.log.Warn().Err(err).Msg("dropping malformed request")
		return
	}

	if err = g.admit.Admit(ctx, req); err != nil {
		g.log.Error().Err(err).Msg("admission failed; no reply will be sent")
	}
}

// parse turns an inbound NATS message into a scheduler.Request.
func (g *Gateway) parse(msg *nats.Msg) (scheduler.Request, error) {
	if delID := msg.Header.Get(headerDelID); delID != "" {
		return scheduler.Cancellation{ID: delID}, nil
	}

	when := msg.Header.Get(headerWhen)
	if when == "" {
		return nil, fmt.Errorf("%w: missing %s header", scheduler.ErrParse, headerWhen)
	}

	fireAt, err := g.resolveFireAt(when)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q: %v", scheduler.ErrParse, headerWhen, when, err)
	}

	if msg.Reply == "" {
		return nil, fmt.Errorf("%w: empty reply subject", scheduler.ErrParse)
	}

	headers := passthroughHeaders(msg.Header)

	return scheduler.Schedule{
		ID:           msg.Header.Get(headerID),
		FireAt:       fireAt,
		ReplySubject: msg.Reply,
		Payload:      append([]byte(nil), msg.Data...),
		Headers:      headers,
	}, nil
}

// resolveFireAt resolves a Gozo-When value: an absolute epoch-second
// integer, or a "+N" relative offset added to now, read once so a single
// admission is internally consistent.
func (g *Gateway) resolveFireAt(when string) (time.Time, error) {
	if strings.HasPrefix(when, "+") {
		n, err := strconv.ParseInt(when[1:], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad relative offset: %v", err)
		}
		now := g.clock.Now()
		return now.Add(time.Duration(n) * time.Second), nil
	}

	n, err := strconv.ParseInt(when, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad absolute epoch seconds: %v", err)
	}
	return time.Unix(n, 0).UTC(), nil
}

// passthroughHeaders copies every header except the control headers that
// the Gateway itself manages.
func passthroughHeaders(h nats.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		switch k {
		case headerWhen, headerID, headerDelID, headerReply:
			continue
		}
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

// Publish implements scheduler.Emitter: it builds the outbound message per
// the outbound message (control headers stripped/added) and publishes it.
func (g *Gateway) Publish(ctx context.Context, id string, replySubject string, payload []byte, headers map[string]string) (err error) {
	_, report := reqtrace.Trace(ctx, "gozo.gateway.Publish")
	defer func() { report(&err) }()

	out := &nats.Msg{
		Subject: replySubject,
		Data:    payload,
		Header:  nats.Header{},
	}
	for k, v := range headers {
		out.Header.Set(k, v)
	}
	out.Header.Set(headerReply, headerReplyY)
	if id != "" {
		out.Header.Set(headerID, id)
	}

	if pubErr := g.nc.PublishMsg(out); pubErr != nil {
		err = fmt.Errorf("%w: publish %q: %v", scheduler.ErrEmit, replySubject, pubErr)
	}
	return err
}
