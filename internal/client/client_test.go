package client

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Wyydra/pairchat/internal/adapter/driven/auth"
	"github.com/Wyydra/pairchat/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/pairchat/internal/adapter/driven/media/pion"
	"github.com/Wyydra/pairchat/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/pairchat/internal/adapter/driven/storage/filesystem"
	httpadapter "github.com/Wyydra/pairchat/internal/adapter/driving/http"
	"github.com/Wyydra/pairchat/internal/callpeer"
	"github.com/Wyydra/pairchat/internal/config"
	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/Wyydra/pairchat/internal/core/service"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var _ callpeer.Signaler = (*Client)(nil)

const testSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=application 9 UDP/DTLS/SCTP webrtc-datachannel\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n"

func newServer(t *testing.T) (*httptest.Server, *ws.Hub) {
	t.Helper()
	cfg, err := config.Load(nil)
	require.NoError(t, err)
	cfg.StaticDir = ""
	cfg.MediaDir = t.TempDir()

	storage, err := filesystem.New(cfg.MediaDir, "http://media.test")
	require.NoError(t, err)
	tokens, err := auth.NewTokenIssuer("test-secret", time.Hour, clock.New())
	require.NoError(t, err)

	users, chats := memory.NewUserRepository(), memory.NewChatRepository()
	hub := ws.NewHub()
	go hub.Run()

	authSvc := service.NewAuthService(users, auth.NewBcryptHasher(bcrypt.MinCost), tokens, nil)
	chatSvc := service.NewChatService(users, chats, memory.NewMessageRepository(), storage, hub, nil)
	callSvc := service.NewCallService(users, chats, memory.NewCallRepository(), pion.NewSDPValidator(), hub, service.WithRingTimeout(0))

	srv := httptest.NewServer(httpadapter.NewHandler(authSvc, chatSvc, callSvc, hub, cfg).NewRouter())
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return srv, hub
}

func next(t *testing.T, ev *Events, typ domain.EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-ev.C:
			require.True(t, ok, "event socket closed")
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
		}
	}
}

func TestChatAndCallThroughClient(t *testing.T) {
	srv, hub := newServer(t)
	ctx := context.Background()

	alice, bob := New(srv.URL), New(srv.URL)
	_, err := alice.Register(ctx, "alice@example.com", "secret1", "Alice")
	require.NoError(t, err)
	_, err = bob.Register(ctx, "bob@example.com", "secret1", "Bob")
	require.NoError(t, err)

	_, err = New(srv.URL).Login(ctx, "alice@example.com", "nope-nope")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	bobEvents, err := bob.Subscribe(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { bobEvents.Close() })
	require.Eventually(t, func() bool { return hub.Connections(bob.Self()) == 1 }, 2*time.Second, 10*time.Millisecond)

	found, err := alice.SearchUsers(ctx, "Bob")
	require.NoError(t, err)
	require.Len(t, found, 1)

	presence, err := alice.Presence(ctx, found[0].ID)
	require.NoError(t, err)
	assert.True(t, presence.Online)

	chat, err := alice.OpenChat(ctx, found[0].ID)
	require.NoError(t, err)
	_, err = alice.SendText(ctx, chat.ChatID, "hello")
	require.NoError(t, err)

	msg, err := next(t, bobEvents, domain.EventMessageAdded).Message()
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)

	img, err := alice.SendImage(ctx, chat.ChatID, "look", "p.png", bytes.NewReader([]byte("\x89PNG\r\n\x1a\n0000")))
	require.NoError(t, err)
	assert.NotEmpty(t, img.Image)
	require.NoError(t, alice.DeleteMessage(ctx, chat.ChatID, img.ID))

	messages, err := bob.ListMessages(ctx, chat.ChatID)
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	call, err := alice.StartCall(ctx, bob.Self())
	require.NoError(t, err)
	pushed, err := next(t, bobEvents, domain.EventCallUpdated).Call()
	require.NoError(t, err)
	assert.Equal(t, call.ID, pushed.ID)

	_, err = alice.PublishOffer(ctx, call.ID, domain.SessionDescription{Type: domain.SDPOffer, SDP: testSDP})
	require.NoError(t, err)
	_, err = bob.AcceptCall(ctx, call.ID)
	require.NoError(t, err)

	_, err = bob.PublishAnswer(ctx, call.ID, domain.SessionDescription{Type: domain.SDPAnswer, SDP: testSDP}, 5)
	assert.ErrorIs(t, err, domain.ErrStaleOffer)
	call, err = bob.PublishAnswer(ctx, call.ID, domain.SessionDescription{Type: domain.SDPAnswer, SDP: testSDP}, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.CallActive, call.Status)

	_, err = alice.AddCandidate(ctx, call.ID, domain.Candidate{Candidate: "candidate:1 1 udp 1 192.0.2.1 1 typ host"})
	require.NoError(t, err)
	cands, err := bob.ListCandidates(ctx, call.ID, 0)
	require.NoError(t, err)
	assert.Len(t, cands, 1)

	cfg, err := bob.PeerConnectionConfig(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.ICEServers)

	call, err = alice.EndCall(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallEnded, call.Status)
}

func TestSubscribeRequiresLogin(t *testing.T) {
	_, err := New("http://127.0.0.1:1").Subscribe(context.Background())
	assert.ErrorIs(t, err, errNotLoggedIn)
}
