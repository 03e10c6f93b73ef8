// Command chatpeer is a headless call participant. It logs in, then either
// calls a user by display name or waits for an incoming call and answers it,
// negotiating a real pion peer connection through the server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Wyydra/pairchat/internal/adapter/driven/media/pion"
	"github.com/Wyydra/pairchat/internal/callpeer"
	"github.com/Wyydra/pairchat/internal/client"
	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type options struct {
	server   string
	email    string
	password string
	name     string
	register bool
	call     string
	hangup   time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.server, "server", "http://localhost:8080", "pairchat server base URL")
	flag.StringVar(&opts.email, "email", "", "account email")
	flag.StringVar(&opts.password, "password", "", "account password")
	flag.StringVar(&opts.name, "name", "", "display name, used with -register")
	flag.BoolVar(&opts.register, "register", false, "create the account first")
	flag.StringVar(&opts.call, "call", "", "display name of the user to call; empty waits for a call")
	flag.DurationVar(&opts.hangup, "hangup-after", 0, "end the call this long after it connects (0 keeps it open)")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("chatpeer failed")
	}
}

type peer struct {
	opts   options
	api    *webrtc.API
	client *client.Client
	events *client.Events

	call       domain.Call
	negotiator *callpeer.Negotiator

	connected     chan struct{}
	connectedOnce sync.Once
}

func run(ctx context.Context, opts options) error {
	if opts.email == "" || opts.password == "" {
		return errors.New("-email and -password are required")
	}

	c := client.New(opts.server)
	var err error
	if opts.register {
		_, err = c.Register(ctx, opts.email, opts.password, opts.name)
	} else {
		_, err = c.Login(ctx, opts.email, opts.password)
	}
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	log.Info().Str("user_id", c.Self().String()).Msg("Signed in")

	api, err := pion.NewAPI()
	if err != nil {
		return err
	}
	events, err := c.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer events.Close()

	p := &peer{opts: opts, api: api, client: c, events: events, connected: make(chan struct{})}
	defer p.hangup()

	if opts.call != "" {
		if err := p.dial(ctx, opts.call); err != nil {
			return err
		}
	} else if err := p.answerWaiting(ctx); err != nil {
		return err
	}
	return p.loop(ctx)
}

func (p *peer) dial(ctx context.Context, name string) error {
	found, err := p.client.SearchUsers(ctx, name)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("no user named %q", name)
	}
	if _, err := p.client.OpenChat(ctx, found[0].ID); err != nil {
		return err
	}
	if presence, err := p.client.Presence(ctx, found[0].ID); err != nil {
		log.Warn().Err(err).Msg("Presence lookup failed")
	} else if !presence.Online {
		log.Info().Str("callee", found[0].DisplayName).Msg("Callee is offline, the call rings until it is picked up or missed")
	}
	call, err := p.client.StartCall(ctx, found[0].ID)
	if err != nil {
		return err
	}
	log.Info().Str("call_id", call.ID.String()).Str("callee", found[0].DisplayName).Msg("Calling")

	if err := p.attach(ctx, call, callpeer.RoleCaller); err != nil {
		return err
	}
	return p.negotiator.Start(ctx)
}

// answerWaiting picks up a call that was already ringing before we connected.
func (p *peer) answerWaiting(ctx context.Context) error {
	incoming, err := p.client.IncomingCalls(ctx)
	if err != nil {
		return err
	}
	if len(incoming) == 0 {
		log.Info().Msg("Waiting for a call")
		return nil
	}
	return p.accept(ctx, incoming[0])
}

func (p *peer) accept(ctx context.Context, call domain.Call) error {
	call, err := p.client.AcceptCall(ctx, call.ID)
	if err != nil {
		return err
	}
	log.Info().Str("call_id", call.ID.String()).Msg("Call accepted")
	if err := p.attach(ctx, call, callpeer.RoleCallee); err != nil {
		return err
	}

	// Candidates written before we subscribed.
	earlier, err := p.client.ListCandidates(ctx, call.ID, 0)
	if err != nil {
		return err
	}
	for _, c := range earlier {
		if err := p.negotiator.HandleCandidate(c); err != nil {
			log.Warn().Err(err).Msg("Failed to add candidate")
		}
	}
	return p.negotiator.HandleCall(ctx, call)
}

func (p *peer) attach(ctx context.Context, call domain.Call, role callpeer.Role) error {
	cfg, err := p.client.PeerConnectionConfig(ctx)
	if err != nil {
		return err
	}
	pc, err := pion.NewPeerConnection(p.api, cfg)
	if err != nil {
		return err
	}

	p.call = call
	p.negotiator = callpeer.New(role, call.ID, p.client.Self(), pc, p.client,
		callpeer.WithStatusHandler(func(s callpeer.Status) {
			log.Info().Str("status", string(s)).Msg("Call status")
		}),
	)
	n := p.negotiator

	n.Attach(ctx, pc)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug().Str("state", state.String()).Msg("Peer connection state")
		n.HandleConnectionState(state)
		if state == webrtc.PeerConnectionStateConnected {
			p.connectedOnce.Do(func() { close(p.connected) })
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			log.Info().Str("label", dc.Label()).Str("text", string(msg.Data)).Msg("Data channel message")
		})
	})

	if role == callpeer.RoleCaller {
		dc, err := pc.CreateDataChannel("chat", nil)
		if err != nil {
			return err
		}
		dc.OnOpen(func() {
			if err := dc.SendText("hello from " + p.client.Self().String()); err != nil {
				log.Warn().Err(err).Msg("Failed to send on data channel")
			}
		})
	}
	return nil
}

func (p *peer) loop(ctx context.Context) error {
	var hangup <-chan time.Time
	connected := p.connected
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-connected:
			connected = nil
			if p.opts.hangup > 0 {
				hangup = time.After(p.opts.hangup)
			}

		case <-hangup:
			log.Info().Msg("Hanging up")
			return nil

		case ev, ok := <-p.events.C:
			if !ok {
				return errors.New("event socket closed")
			}
			done, err := p.handle(ctx, ev)
			if err != nil {
				log.Warn().Err(err).Str("event", string(ev.Type)).Msg("Failed to handle event")
			}
			if done {
				return nil
			}
		}
	}
}

func (p *peer) handle(ctx context.Context, ev client.Event) (bool, error) {
	switch ev.Type {
	case domain.EventCallUpdated:
		call, err := ev.Call()
		if err != nil {
			return false, err
		}
		if p.negotiator == nil {
			if call.CalleeID == p.client.Self() && call.Status == domain.CallPending {
				return false, p.accept(ctx, call)
			}
			return false, nil
		}
		if call.ID != p.call.ID {
			return false, nil
		}
		p.call = call
		if err := p.negotiator.HandleCall(ctx, call); err != nil {
			return false, err
		}
		return call.Status.Terminal(), nil

	case domain.EventCallCandidate:
		if p.negotiator == nil {
			return false, nil
		}
		c, err := ev.Candidate()
		if err != nil {
			return false, err
		}
		return false, p.negotiator.HandleCandidate(c)

	case domain.EventMessageAdded:
		msg, err := ev.Message()
		if err != nil {
			return false, err
		}
		log.Info().Str("from", msg.SenderID.String()).Str("text", msg.Text).Msg("Message")
	}
	return false, nil
}

func (p *peer) hangup() {
	if p.negotiator == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !p.call.Status.Terminal() {
		if _, err := p.client.EndCall(ctx, p.call.ID); err != nil {
			log.Warn().Err(err).Msg("Failed to end call")
		}
	}
	_ = p.negotiator.Close()
}
