package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wabridge/internal/constants"
	"wabridge/internal/errors"
	"wabridge/internal/models"
	"wabridge/internal/privacy"
	"wabridge/internal/tracing"
	watypes "wabridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Dispatcher consumes the supervisor's normalized inbound-message stream.
type Dispatcher interface {
	Dispatch(event *models.WebhookEvent)
}

// SupervisorOptions tunes the connection lifecycle. Zero values fall back to
// the process defaults.
type SupervisorOptions struct {
	ReconnectDelay time.Duration
	NameCacheSize  int
}

// Supervisor owns the single protocol session and its lifecycle. It
// translates raw protocol events into the SessionInfo snapshot and a stream
// of webhook events, records all observed content in the retransmission
// store, and decides between reconnecting and terminating on disconnect.
//
// At most one connection attempt is in flight at a time: a new session is
// never started while one is active or a reconnect timer is pending.
type Supervisor struct {
	factory    watypes.SessionFactory
	resolver   *IdentityResolver
	content    *RetransmissionStore
	dispatcher Dispatcher
	logger     *logrus.Logger

	reconnectDelay time.Duration
	nameCacheSize  int

	mu               sync.Mutex
	session          watypes.Session
	info             models.SessionInfo
	reconnectTimer   *time.Timer
	reconnectPending bool
	closed           bool
	names            map[string]string
}

// NewSupervisor wires the supervisor to its collaborators. Call Start to
// open the first session.
func NewSupervisor(factory watypes.SessionFactory, resolver *IdentityResolver, content *RetransmissionStore, dispatcher Dispatcher, logger *logrus.Logger, opts SupervisorOptions) *Supervisor {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Duration(constants.DefaultReconnectDelayMs) * time.Millisecond
	}
	if opts.NameCacheSize <= 0 {
		opts.NameCacheSize = constants.DefaultPushNameCacheSize
	}

	return &Supervisor{
		factory:        factory,
		resolver:       resolver,
		content:        content,
		dispatcher:     dispatcher,
		logger:         logger,
		reconnectDelay: opts.ReconnectDelay,
		nameCacheSize:  opts.NameCacheSize,
		info:           models.SessionInfo{State: models.ConnectionStateDisconnected},
		names:          make(map[string]string),
	}
}

// Start opens the initial session. A failure is recorded in the session
// snapshot and returned; it is not fatal to the process.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("supervisor is closed")
	}
	if s.session != nil || s.reconnectPending {
		s.mu.Unlock()
		return fmt.Errorf("session already active")
	}
	s.mu.Unlock()

	return s.startSession(ctx)
}

func (s *Supervisor) startSession(ctx context.Context) error {
	handlers := watypes.Handlers{
		OnPairingCode:  s.handlePairingCode,
		OnConnected:    s.handleConnected,
		OnDisconnected: s.handleDisconnected,
		OnMessage:      s.handleMessage,
		OnContact:      s.handleContact,
	}

	sess, err := s.factory.StartSession(ctx, handlers, s.content)
	if err != nil {
		s.recordStartupError(err)
		return err
	}

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	if err := sess.Connect(ctx); err != nil {
		s.mu.Lock()
		s.session = nil
		s.mu.Unlock()
		sess.Disconnect()
		s.recordStartupError(err)
		return err
	}

	s.logger.Info("Session started")
	return nil
}

func (s *Supervisor) recordStartupError(err error) {
	s.mu.Lock()
	s.info.State = models.ConnectionStateDisconnected
	s.info.LastError = err.Error()
	s.mu.Unlock()

	s.logger.WithError(err).Error("Session startup failed")
}

// Snapshot returns a copy of the current session state.
func (s *Supervisor) Snapshot() models.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// SendText sends a text message and records its content for possible
// retransmission.
func (s *Supervisor) SendText(ctx context.Context, to, text string) (string, error) {
	sess, err := s.connectedSession()
	if err != nil {
		return "", err
	}

	ctx, span := tracing.StartSpan(ctx, "send.text",
		attribute.String("to", privacy.MaskPhoneNumber(to)),
	)
	defer span.End()

	resp, err := sess.SendText(ctx, to, text)
	if err != nil {
		tracing.RecordError(ctx, err)
		return "", errors.Wrap(err, errors.ErrCodeSendFailed, "Failed to send message")
	}

	s.content.Put(resp.ChatJID, resp.MessageID, resp.Payload)
	return resp.MessageID, nil
}

// SendMedia sends a media message and records its content for possible
// retransmission.
func (s *Supervisor) SendMedia(ctx context.Context, to string, media *watypes.MediaAttachment) (string, error) {
	sess, err := s.connectedSession()
	if err != nil {
		return "", err
	}

	ctx, span := tracing.StartSpan(ctx, "send.media",
		attribute.String("to", privacy.MaskPhoneNumber(to)),
		attribute.String("kind", string(media.Kind)),
	)
	defer span.End()

	resp, err := sess.SendMedia(ctx, to, media)
	if err != nil {
		tracing.RecordError(ctx, err)
		return "", errors.Wrap(err, errors.ErrCodeSendFailed, "Failed to send media")
	}

	s.content.Put(resp.ChatJID, resp.MessageID, resp.Payload)
	return resp.MessageID, nil
}

// ResolveNumbers performs forward directory resolution for a batch of phone
// numbers. Requires a connected session.
func (s *Supervisor) ResolveNumbers(ctx context.Context, phones []string) (map[string]models.LookupResult, int, error) {
	sess, err := s.connectedSession()
	if err != nil {
		return nil, 0, err
	}

	results, err := s.resolver.ResolveNumbers(ctx, sess, phones)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeLookupFailed, "Failed to resolve numbers")
	}
	return results, s.resolver.Size(), nil
}

func (s *Supervisor) connectedSession() (watypes.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil || s.info.State != models.ConnectionStateConnected {
		return nil, errors.New(errors.ErrCodeNotConnected, "Not connected to WhatsApp")
	}
	return s.session, nil
}

// Shutdown closes the active session handle and cancels any pending
// reconnect. Debounced mapping writes are flushed by the resolver's own
// Close.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	s.closed = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.reconnectPending = false
	sess := s.session
	s.session = nil
	s.info.State = models.ConnectionStateDisconnected
	s.mu.Unlock()

	if sess != nil {
		sess.Disconnect()
	}
}

func (s *Supervisor) handlePairingCode(code string) {
	s.mu.Lock()
	if s.info.State == models.ConnectionStateConnected {
		s.mu.Unlock()
		return
	}
	s.info.State = models.ConnectionStatePairingReady
	s.info.PairingCode = code
	s.mu.Unlock()

	s.logger.Info("Pairing code ready, scan to link the session")
}

func (s *Supervisor) handleConnected(selfJID string) {
	phone := phoneFromSelfJID(selfJID)

	s.mu.Lock()
	s.info.State = models.ConnectionStateConnected
	s.info.ConnectedPhone = phone
	s.info.PairingCode = ""
	s.info.LastError = ""
	s.mu.Unlock()

	s.logger.WithField("phone", privacy.MaskPhoneNumber(phone)).Info("Connected to WhatsApp")
}

func (s *Supervisor) handleDisconnected(d watypes.Disconnect) {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.info.State = models.ConnectionStateDisconnected
	s.info.PairingCode = ""
	if d.Terminal {
		s.info.LastError = fmt.Sprintf("Session terminated: %s. Re-pairing required.", d.Reason)
	} else {
		s.info.LastError = fmt.Sprintf("Connection lost: %s", d.Reason)
	}
	schedule := !d.Terminal && !s.closed && !s.reconnectPending
	if schedule {
		s.reconnectPending = true
	}
	s.mu.Unlock()

	if d.Terminal {
		s.logger.WithField("reason", d.Reason).Error("Session signed out, wiping credentials")
		// Teardown runs off the event goroutine so the protocol library can
		// finish dispatching.
		go s.terminate(sess)
		return
	}

	s.logger.WithField("reason", d.Reason).Warn("Connection lost")
	if sess != nil {
		go sess.Disconnect()
	}

	if schedule {
		s.mu.Lock()
		s.reconnectTimer = time.AfterFunc(s.reconnectDelay, s.reconnect)
		s.mu.Unlock()
		s.logger.WithField("delay", s.reconnectDelay).Info("Reconnect scheduled")
	}
}

func (s *Supervisor) terminate(sess watypes.Session) {
	if sess == nil {
		return
	}
	sess.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sess.WipeCredentials(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to wipe credentials")
	}
}

func (s *Supervisor) reconnect() {
	s.mu.Lock()
	s.reconnectPending = false
	s.reconnectTimer = nil
	if s.closed || s.session != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.logger.Info("Reconnecting")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.startSession(ctx); err != nil {
		s.logger.WithError(err).Error("Reconnect failed")
	}
}

// handleMessage implements the inbound pipeline: record content, apply the
// self-chat gate, extract text, resolve the sender identity, dispatch.
func (s *Supervisor) handleMessage(m *watypes.InboundMessage) {
	// Both self-sent and received content may be requested for
	// retransmission later.
	s.content.Put(m.ChatJID, m.MessageID, m.Payload)

	s.learnAltIdentity(m)

	senderUser, _ := splitJID(m.SenderJID)
	if m.PushName != "" && !m.FromMe {
		s.rememberName(senderUser, m.PushName)
	}

	s.mu.Lock()
	connectedPhone := s.info.ConnectedPhone
	sess := s.session
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var dir watypes.Directory
	if sess != nil {
		dir = sess
	}

	chatUser, _ := splitJID(m.ChatJID)
	chatIsLID := isLIDJID(m.ChatJID)

	if m.FromMe {
		// A self-sent message is surfaced only for the self-chat: the chat
		// is the connected identity, directly or through a LID mapping.
		chatPhone := chatUser
		if chatIsLID {
			chatPhone = s.resolver.Resolve(ctx, dir, chatUser)
		}
		if chatPhone != connectedPhone {
			return
		}
	}

	text, ok := extractText(m.Content)
	if !ok {
		return
	}

	// Group messages carry the sender's identity; direct chats use the chat
	// identifier itself.
	identityJID := m.ChatJID
	if m.IsGroup {
		identityJID = m.SenderJID
	}
	identityUser, _ := splitJID(identityJID)

	from := identityUser
	fromLID := ""
	if isLIDJID(identityJID) {
		fromLID = identityUser
		from = s.resolver.Resolve(ctx, dir, identityUser)
	}

	name := m.PushName
	if name == "" {
		name = s.nameFor(senderUser, from)
	}

	event := &models.WebhookEvent{
		From:      from,
		FromLID:   fromLID,
		FromJID:   m.SenderJID,
		ChatID:    m.ChatJID,
		FromName:  name,
		Message:   text,
		MessageID: m.MessageID,
	}

	s.logger.WithFields(logrus.Fields{
		"from":       privacy.MaskPhoneNumber(from),
		"chat":       privacy.MaskJID(m.ChatJID),
		"message_id": privacy.MaskMessageID(m.MessageID),
	}).Debug("Forwarding inbound message")

	s.dispatcher.Dispatch(event)
}

func (s *Supervisor) handleContact(u watypes.ContactUpdate) {
	jidUser, _ := splitJID(u.JID)

	if u.LID != "" && u.JID != "" {
		lidUser, _ := splitJID(u.LID)
		if s.resolver.Record(lidUser, jidUser) {
			s.logger.WithFields(logrus.Fields{
				"lid":   privacy.MaskPhoneNumber(lidUser),
				"phone": privacy.MaskPhoneNumber(jidUser),
			}).Debug("Learned identity mapping from contact sync")
		}
	}

	if u.FullName != "" {
		s.rememberName(jidUser, u.FullName)
	}
}

// learnAltIdentity records a lid→phone correlation when a message carries
// both identifier forms for its sender.
func (s *Supervisor) learnAltIdentity(m *watypes.InboundMessage) {
	if m.SenderAltJID == "" {
		return
	}

	senderUser, senderServer := splitJID(m.SenderJID)
	altUser, altServer := splitJID(m.SenderAltJID)

	switch {
	case senderServer == lidServer && altServer == phoneServer:
		s.resolver.Record(senderUser, altUser)
	case altServer == lidServer && senderServer == phoneServer:
		s.resolver.Record(altUser, senderUser)
	}
}

func (s *Supervisor) rememberName(user, name string) {
	if user == "" || name == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.names[user]; !exists && len(s.names) >= s.nameCacheSize {
		// Cheap bound: start over rather than tracking recency.
		s.names = make(map[string]string)
	}
	s.names[user] = name
}

func (s *Supervisor) nameFor(user, fallback string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name, ok := s.names[user]; ok {
		return name
	}
	return fallback
}

// extractText pulls the plain-text body out of whichever content variant
// carries it. Messages with no text variant are not surfaced.
func extractText(c watypes.MessageContent) (string, bool) {
	if c.Conversation != "" {
		return c.Conversation, true
	}
	if c.ExtendedText != "" {
		return c.ExtendedText, true
	}
	return "", false
}
