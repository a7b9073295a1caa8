package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"wabridge/internal/errors"
	"wabridge/internal/models"
	watypes "wabridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSupervisor(t *testing.T, opts SupervisorOptions) (*Supervisor, *fakeFactory, *captureDispatcher) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	resolver, err := NewIdentityResolver(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resolver.Close() })

	factory := &fakeFactory{}
	dispatcher := &captureDispatcher{}
	sup := NewSupervisor(factory, resolver, NewRetransmissionStore(100), dispatcher, logger, opts)
	t.Cleanup(sup.Shutdown)

	return sup, factory, dispatcher
}

func connect(t *testing.T, sup *Supervisor, factory *fakeFactory, phone string) watypes.Handlers {
	t.Helper()

	require.NoError(t, sup.Start(context.Background()))
	handlers := factory.lastHandlers()
	handlers.OnConnected(phone + ":3@s.whatsapp.net")
	return handlers
}

func TestSupervisorPairingFlow(t *testing.T) {
	sup, factory, _ := newTestSupervisor(t, SupervisorOptions{})

	require.NoError(t, sup.Start(context.Background()))
	assert.Equal(t, models.ConnectionStateDisconnected, sup.Snapshot().State)

	handlers := factory.lastHandlers()
	handlers.OnPairingCode("2@pairing-blob")

	info := sup.Snapshot()
	assert.Equal(t, models.ConnectionStatePairingReady, info.State)
	assert.Equal(t, "2@pairing-blob", info.PairingCode)

	handlers.OnConnected("15551234567:5@s.whatsapp.net")

	info = sup.Snapshot()
	assert.Equal(t, models.ConnectionStateConnected, info.State)
	assert.Equal(t, "15551234567", info.ConnectedPhone)
	assert.Empty(t, info.PairingCode)
	assert.Empty(t, info.LastError)
}

func TestSupervisorStartWhileActive(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, SupervisorOptions{})

	require.NoError(t, sup.Start(context.Background()))
	assert.Error(t, sup.Start(context.Background()))
}

func TestSupervisorTransientDisconnectReconnectsOnce(t *testing.T) {
	sup, factory, _ := newTestSupervisor(t, SupervisorOptions{ReconnectDelay: 20 * time.Millisecond})
	handlers := connect(t, sup, factory, "15551234567")

	handlers.OnDisconnected(watypes.Disconnect{Reason: "stream replaced"})
	// A second close event for the same drop must not stack another timer.
	handlers.OnDisconnected(watypes.Disconnect{Reason: "stream replaced"})

	info := sup.Snapshot()
	assert.Equal(t, models.ConnectionStateDisconnected, info.State)
	assert.Contains(t, info.LastError, "stream replaced")

	require.Eventually(t, func() bool {
		return factory.startCount() == 2
	}, time.Second, 5*time.Millisecond)

	// Give any extra timer a chance to fire; the count must stay at two.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 2, factory.startCount())
	assert.False(t, factory.sessions[0].wasWiped())
}

func TestSupervisorTerminalDisconnect(t *testing.T) {
	sup, factory, _ := newTestSupervisor(t, SupervisorOptions{ReconnectDelay: 20 * time.Millisecond})
	handlers := connect(t, sup, factory, "15551234567")
	sess := factory.lastSession()

	handlers.OnDisconnected(watypes.Disconnect{Terminal: true, Reason: "logged out"})

	require.Eventually(t, sess.wasWiped, time.Second, 5*time.Millisecond)
	assert.True(t, sess.wasDisconnected())

	info := sup.Snapshot()
	assert.Equal(t, models.ConnectionStateDisconnected, info.State)
	assert.Contains(t, info.LastError, "Re-pairing required")

	// No reconnect after sign-out.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, factory.startCount())
}

func TestSupervisorSendRequiresConnection(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, SupervisorOptions{})

	_, err := sup.SendText(context.Background(), "15551234567", "hello")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotConnected, errors.GetCode(err))
	assert.Equal(t, "Not connected to WhatsApp", errors.UserMessage(err))
}

func TestSupervisorSendRecordsContent(t *testing.T) {
	sup, factory, _ := newTestSupervisor(t, SupervisorOptions{})
	connect(t, sup, factory, "15551234567")

	id, err := sup.SendText(context.Background(), "15557654321", "hello")
	require.NoError(t, err)
	assert.Equal(t, "MSG1", id)

	payload, ok := sup.content.Content("15557654321@s.whatsapp.net", "MSG1")
	require.True(t, ok)
	assert.Equal(t, []byte("payload:hello"), payload)
}

func TestSupervisorSendFailure(t *testing.T) {
	sup, factory, _ := newTestSupervisor(t, SupervisorOptions{})
	connect(t, sup, factory, "15551234567")
	factory.lastSession().sendErr = fmt.Errorf("server closed stream")

	_, err := sup.SendText(context.Background(), "15557654321", "hello")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSendFailed, errors.GetCode(err))
	assert.Contains(t, errors.UserMessage(err), "server closed stream")
}

func TestSupervisorInboundDispatch(t *testing.T) {
	sup, factory, dispatcher := newTestSupervisor(t, SupervisorOptions{})
	handlers := connect(t, sup, factory, "15551234567")

	handlers.OnMessage(&watypes.InboundMessage{
		MessageID: "IN1",
		ChatJID:   "15557654321@s.whatsapp.net",
		SenderJID: "15557654321@s.whatsapp.net",
		PushName:  "Ada",
		Content:   watypes.MessageContent{Conversation: "hi there"},
		Payload:   []byte("blob"),
	})

	events := dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, "15557654321", events[0].From)
	assert.Empty(t, events[0].FromLID)
	assert.Equal(t, "15557654321@s.whatsapp.net", events[0].ChatID)
	assert.Equal(t, "Ada", events[0].FromName)
	assert.Equal(t, "hi there", events[0].Message)
	assert.Equal(t, "IN1", events[0].MessageID)

	// Content recorded for retransmission regardless of dispatch.
	_, ok := sup.content.Content("15557654321@s.whatsapp.net", "IN1")
	assert.True(t, ok)
}

func TestSupervisorInboundLIDResolution(t *testing.T) {
	sup, factory, dispatcher := newTestSupervisor(t, SupervisorOptions{})
	handlers := connect(t, sup, factory, "15551234567")
	factory.lastSession().lidToPhone["200300400"] = "15559990000"

	handlers.OnMessage(&watypes.InboundMessage{
		MessageID: "IN2",
		ChatJID:   "200300400@lid",
		SenderJID: "200300400@lid",
		Content:   watypes.MessageContent{ExtendedText: "reply text"},
		Payload:   []byte("blob"),
	})

	events := dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, "15559990000", events[0].From)
	assert.Equal(t, "200300400", events[0].FromLID)

	// The directory hit is now cached in the resolver table.
	phone, ok := sup.resolver.PhoneForLID("200300400")
	require.True(t, ok)
	assert.Equal(t, "15559990000", phone)
}

func TestSupervisorInboundLIDFallback(t *testing.T) {
	sup, factory, dispatcher := newTestSupervisor(t, SupervisorOptions{})
	handlers := connect(t, sup, factory, "15551234567")

	handlers.OnMessage(&watypes.InboundMessage{
		MessageID: "IN3",
		ChatJID:   "999@lid",
		SenderJID: "999@lid",
		Content:   watypes.MessageContent{Conversation: "who dis"},
		Payload:   []byte("blob"),
	})

	events := dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, "999", events[0].From)
	assert.Equal(t, "999", events[0].FromLID)
}

func TestSupervisorLearnsSenderAltMapping(t *testing.T) {
	sup, factory, dispatcher := newTestSupervisor(t, SupervisorOptions{})
	handlers := connect(t, sup, factory, "15551234567")

	handlers.OnMessage(&watypes.InboundMessage{
		MessageID:    "IN4",
		ChatJID:      "200300400@lid",
		SenderJID:    "200300400@lid",
		SenderAltJID: "15559990000@s.whatsapp.net",
		Content:      watypes.MessageContent{Conversation: "hello"},
		Payload:      []byte("blob"),
	})

	events := dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, "15559990000", events[0].From)
	assert.Equal(t, "200300400", events[0].FromLID)
}

func TestSupervisorGroupMessageUsesSenderIdentity(t *testing.T) {
	sup, factory, dispatcher := newTestSupervisor(t, SupervisorOptions{})
	handlers := connect(t, sup, factory, "15551234567")

	handlers.OnMessage(&watypes.InboundMessage{
		MessageID: "IN5",
		ChatJID:   "12036304@g.us",
		SenderJID: "15557654321@s.whatsapp.net",
		IsGroup:   true,
		Content:   watypes.MessageContent{Conversation: "group hello"},
		Payload:   []byte("blob"),
	})

	events := dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, "15557654321", events[0].From)
	assert.Equal(t, "12036304@g.us", events[0].ChatID)
}

func TestSupervisorNonTextSuppressed(t *testing.T) {
	sup, factory, dispatcher := newTestSupervisor(t, SupervisorOptions{})
	handlers := connect(t, sup, factory, "15551234567")

	handlers.OnMessage(&watypes.InboundMessage{
		MessageID: "IN6",
		ChatJID:   "15557654321@s.whatsapp.net",
		SenderJID: "15557654321@s.whatsapp.net",
		Payload:   []byte("sticker-blob"),
	})

	assert.Empty(t, dispatcher.all())
	// Still recorded for retransmission.
	_, ok := sup.content.Content("15557654321@s.whatsapp.net", "IN6")
	assert.True(t, ok)
}

func TestSupervisorSelfChat(t *testing.T) {
	sup, factory, dispatcher := newTestSupervisor(t, SupervisorOptions{})
	handlers := connect(t, sup, factory, "15551234567")

	// Own note-to-self chat is surfaced.
	handlers.OnMessage(&watypes.InboundMessage{
		MessageID: "SELF1",
		ChatJID:   "15551234567@s.whatsapp.net",
		SenderJID: "15551234567@s.whatsapp.net",
		FromMe:    true,
		Content:   watypes.MessageContent{Conversation: "note to self"},
		Payload:   []byte("blob"),
	})

	// An echo of a message sent to someone else is not.
	handlers.OnMessage(&watypes.InboundMessage{
		MessageID: "SELF2",
		ChatJID:   "15557654321@s.whatsapp.net",
		SenderJID: "15551234567@s.whatsapp.net",
		FromMe:    true,
		Content:   watypes.MessageContent{Conversation: "sent elsewhere"},
		Payload:   []byte("blob"),
	})

	events := dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, "note to self", events[0].Message)
}

func TestSupervisorSelfChatThroughLID(t *testing.T) {
	sup, factory, dispatcher := newTestSupervisor(t, SupervisorOptions{})
	handlers := connect(t, sup, factory, "15551234567")
	sup.resolver.Record("777888999", "15551234567")

	handlers.OnMessage(&watypes.InboundMessage{
		MessageID: "SELF3",
		ChatJID:   "777888999@lid",
		SenderJID: "777888999@lid",
		FromMe:    true,
		Content:   watypes.MessageContent{Conversation: "lid self note"},
		Payload:   []byte("blob"),
	})

	events := dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, "lid self note", events[0].Message)
}

func TestSupervisorContactSync(t *testing.T) {
	sup, factory, dispatcher := newTestSupervisor(t, SupervisorOptions{})
	handlers := connect(t, sup, factory, "15551234567")

	handlers.OnContact(watypes.ContactUpdate{
		JID:      "15559990000@s.whatsapp.net",
		LID:      "200300400@lid",
		FullName: "Grace Hopper",
	})

	phone, ok := sup.resolver.PhoneForLID("200300400")
	require.True(t, ok)
	assert.Equal(t, "15559990000", phone)

	// Later message without a push name picks up the synced display name.
	handlers.OnMessage(&watypes.InboundMessage{
		MessageID: "IN7",
		ChatJID:   "15559990000@s.whatsapp.net",
		SenderJID: "15559990000@s.whatsapp.net",
		Content:   watypes.MessageContent{Conversation: "hello"},
		Payload:   []byte("blob"),
	})

	events := dispatcher.all()
	require.Len(t, events, 1)
	assert.Equal(t, "Grace Hopper", events[0].FromName)
}

func TestSupervisorResolveNumbers(t *testing.T) {
	sup, factory, _ := newTestSupervisor(t, SupervisorOptions{})

	_, _, err := sup.ResolveNumbers(context.Background(), []string{"15557654321"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotConnected, errors.GetCode(err))

	connect(t, sup, factory, "15551234567")
	factory.lastSession().lookup = []watypes.LookupEntry{
		{Query: "15557654321", JID: "200300400@lid", IsLID: true, Registered: true},
		{Query: "15550000001", Registered: false},
	}

	results, total, err := sup.ResolveNumbers(context.Background(), []string{"15557654321", "15550000001"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "200300400@lid", results["15557654321"].JID)
	assert.True(t, results["15557654321"].IsLID)
	assert.NotEmpty(t, results["15550000001"].Error)
}

func TestSupervisorShutdownStopsReconnect(t *testing.T) {
	sup, factory, _ := newTestSupervisor(t, SupervisorOptions{ReconnectDelay: 20 * time.Millisecond})
	handlers := connect(t, sup, factory, "15551234567")

	handlers.OnDisconnected(watypes.Disconnect{Reason: "connection reset"})
	sup.Shutdown()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, factory.startCount())
}
