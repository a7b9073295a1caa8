package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wabridge/internal/constants"
	watypes "wabridge/pkg/whatsapp/types"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	wmtypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

// Config configures the whatsmeow-backed session factory.
type Config struct {
	// SessionDir is the storage root; credential material lives in a
	// library-managed sqlite database under SessionDir/creds.
	SessionDir string
	// MaxMessageRetries caps how often a single message may be re-sent in
	// response to peer retry receipts.
	MaxMessageRetries int
	Logger            *logrus.Logger
}

type sessionFactory struct {
	container  *sqlstore.Container
	maxRetries int
	logger     *logrus.Logger
}

// NewSessionFactory opens the durable credential container and returns a
// factory producing one session handle per call.
func NewSessionFactory(ctx context.Context, cfg Config) (watypes.SessionFactory, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.MaxMessageRetries <= 0 {
		cfg.MaxMessageRetries = constants.DefaultMaxMessageRetries
	}

	credDir := filepath.Join(cfg.SessionDir, "creds")
	if err := os.MkdirAll(credDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(credDir, "wabridge.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, newWALogger(cfg.Logger, "credstore"))
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	return &sessionFactory{
		container:  container,
		maxRetries: cfg.MaxMessageRetries,
		logger:     cfg.Logger,
	}, nil
}

func (f *sessionFactory) StartSession(ctx context.Context, handlers watypes.Handlers, content watypes.ContentSource) (watypes.Session, error) {
	device, err := f.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	client := whatsmeow.NewClient(device, newWALogger(f.logger, "protocol"))
	// The supervisor owns the reconnect policy.
	client.EnableAutoReconnect = false

	s := &session{
		client:      client,
		handlers:    handlers,
		logger:      f.logger,
		retryCounts: make(map[wmtypes.MessageID]int),
		maxRetries:  f.maxRetries,
	}

	if content != nil {
		client.GetMessageForRetry = func(requester, to wmtypes.JID, id wmtypes.MessageID) *waE2E.Message {
			payload, ok := content.Content(to.ToNonAD().String(), string(id))
			if !ok {
				return nil
			}
			var msg waE2E.Message
			if err := proto.Unmarshal(payload, &msg); err != nil {
				f.logger.WithError(err).Warn("Failed to decode stored content for retransmission")
				return nil
			}
			return &msg
		}
	}

	client.PreRetryCallback = func(receipt *events.Receipt, id wmtypes.MessageID, retryCount int, msg *waE2E.Message) bool {
		s.retryMu.Lock()
		defer s.retryMu.Unlock()
		s.retryCounts[id]++
		return s.retryCounts[id] <= s.maxRetries
	}

	s.handlerID = client.AddEventHandler(s.handleEvent)
	return s, nil
}

type session struct {
	client   *whatsmeow.Client
	handlers watypes.Handlers
	logger   *logrus.Logger

	handlerID   uint32
	closeOnce   sync.Once
	retryMu     sync.Mutex
	retryCounts map[wmtypes.MessageID]int
	maxRetries  int
}

func (s *session) Connect(ctx context.Context) error {
	if s.client.Store.ID == nil {
		qrChan, err := s.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to open pairing channel: %w", err)
		}
		go s.pumpPairingCodes(qrChan)
	}

	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (s *session) pumpPairingCodes(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			if h := s.handlers.OnPairingCode; h != nil {
				h(item.Code)
			}
		case whatsmeow.QRChannelEventError:
			s.logger.WithError(item.Error).Warn("Pairing channel error")
		}
	}
}

func (s *session) Disconnect() {
	s.closeOnce.Do(func() {
		s.client.RemoveEventHandler(s.handlerID)
		s.client.Disconnect()
	})
}

func (s *session) WipeCredentials(ctx context.Context) error {
	if s.client.Store.ID == nil {
		return nil
	}
	if err := s.client.Store.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete credential store: %w", err)
	}
	return nil
}

func (s *session) Connected() bool {
	return s.client.IsConnected() && s.client.IsLoggedIn()
}

func (s *session) SendText(ctx context.Context, to, text string) (*watypes.SendResponse, error) {
	jid, err := ParseRecipient(to)
	if err != nil {
		return nil, err
	}

	msg := &waE2E.Message{Conversation: proto.String(text)}
	return s.send(ctx, jid, msg)
}

func (s *session) SendMedia(ctx context.Context, to string, media *watypes.MediaAttachment) (*watypes.SendResponse, error) {
	jid, err := ParseRecipient(to)
	if err != nil {
		return nil, err
	}

	upload, err := s.client.Upload(ctx, media.Data, uploadType(media.Kind))
	if err != nil {
		return nil, fmt.Errorf("failed to upload media: %w", err)
	}

	msg := mediaMessage(media, upload)
	return s.send(ctx, jid, msg)
}

func (s *session) send(ctx context.Context, to wmtypes.JID, msg *waE2E.Message) (*watypes.SendResponse, error) {
	resp, err := s.client.SendMessage(ctx, to, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	payload, err := proto.Marshal(msg)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to encode sent content for the retransmission store")
		payload = nil
	}

	return &watypes.SendResponse{
		MessageID: string(resp.ID),
		ChatJID:   to.ToNonAD().String(),
		Timestamp: resp.Timestamp,
		Payload:   payload,
	}, nil
}

func (s *session) CachedPhoneForLID(ctx context.Context, lid string) (string, bool) {
	jid, err := ParseLID(lid)
	if err != nil {
		return "", false
	}

	pn, err := s.client.Store.LIDs.GetPNForLID(ctx, jid)
	if err != nil || pn.IsEmpty() {
		return "", false
	}
	return pn.User, true
}

func (s *session) LookupPhones(ctx context.Context, phones []string) ([]watypes.LookupEntry, error) {
	queries := make([]string, len(phones))
	for i, phone := range phones {
		queries[i] = normalizePhoneQuery(phone)
	}

	results, err := s.client.IsOnWhatsApp(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("directory lookup failed: %w", err)
	}

	entries := make([]watypes.LookupEntry, 0, len(results))
	for _, r := range results {
		jid := r.JID.ToNonAD()
		entries = append(entries, watypes.LookupEntry{
			Query:      trimPhoneQuery(r.Query),
			JID:        jid.String(),
			IsLID:      jid.Server == wmtypes.HiddenUserServer,
			Registered: r.IsIn,
		})
	}
	return entries, nil
}

func (s *session) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		if h := s.handlers.OnConnected; h != nil {
			self := ""
			if id := s.client.Store.ID; id != nil {
				self = id.String()
			}
			h(self)
		}

	case *events.LoggedOut:
		if h := s.handlers.OnDisconnected; h != nil {
			h(watypes.Disconnect{Terminal: true, Reason: fmt.Sprintf("signed out (%v)", e.Reason)})
		}

	case *events.StreamReplaced:
		if h := s.handlers.OnDisconnected; h != nil {
			h(watypes.Disconnect{Reason: "stream replaced by another session"})
		}

	case *events.ConnectFailure:
		if h := s.handlers.OnDisconnected; h != nil {
			h(watypes.Disconnect{Reason: fmt.Sprintf("connect failure (%v): %s", e.Reason, e.Message)})
		}

	case *events.Disconnected:
		if h := s.handlers.OnDisconnected; h != nil {
			h(watypes.Disconnect{Reason: "connection closed"})
		}

	case *events.Message:
		s.handleMessage(e)

	case *events.Contact:
		if h := s.handlers.OnContact; h != nil {
			update := watypes.ContactUpdate{
				JID:      e.JID.ToNonAD().String(),
				FullName: e.Action.GetFullName(),
				LID:      e.Action.GetLidJID(),
			}
			h(update)
		}

	case *events.PushName:
		if h := s.handlers.OnContact; h != nil {
			h(watypes.ContactUpdate{
				JID:      e.JID.ToNonAD().String(),
				FullName: e.NewPushName,
			})
		}
	}
}

func (s *session) handleMessage(e *events.Message) {
	h := s.handlers.OnMessage
	if h == nil || e.Message == nil {
		return
	}

	payload, err := proto.Marshal(e.Message)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to encode inbound content for the retransmission store")
		payload = nil
	}

	msg := &watypes.InboundMessage{
		MessageID: string(e.Info.ID),
		ChatJID:   e.Info.Chat.ToNonAD().String(),
		SenderJID: e.Info.Sender.ToNonAD().String(),
		PushName:  e.Info.PushName,
		FromMe:    e.Info.IsFromMe,
		IsGroup:   e.Info.IsGroup,
		Timestamp: e.Info.Timestamp,
		Payload:   payload,
		Content: watypes.MessageContent{
			Conversation: e.Message.GetConversation(),
			ExtendedText: e.Message.GetExtendedTextMessage().GetText(),
		},
	}
	if !e.Info.SenderAlt.IsEmpty() {
		msg.SenderAltJID = e.Info.SenderAlt.ToNonAD().String()
	}

	h(msg)
}

func uploadType(kind watypes.MediaKind) whatsmeow.MediaType {
	switch kind {
	case watypes.MediaKindVideo:
		return whatsmeow.MediaVideo
	case watypes.MediaKindAudio:
		return whatsmeow.MediaAudio
	case watypes.MediaKindDocument:
		return whatsmeow.MediaDocument
	default:
		return whatsmeow.MediaImage
	}
}

func mediaMessage(media *watypes.MediaAttachment, upload whatsmeow.UploadResponse) *waE2E.Message {
	switch media.Kind {
	case watypes.MediaKindVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			URL:           proto.String(upload.URL),
			DirectPath:    proto.String(upload.DirectPath),
			MediaKey:      upload.MediaKey,
			Mimetype:      proto.String(media.MimeType),
			FileEncSHA256: upload.FileEncSHA256,
			FileSHA256:    upload.FileSHA256,
			FileLength:    proto.Uint64(upload.FileLength),
			Caption:       proto.String(media.Caption),
		}}
	case watypes.MediaKindAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(upload.URL),
			DirectPath:    proto.String(upload.DirectPath),
			MediaKey:      upload.MediaKey,
			Mimetype:      proto.String(media.MimeType),
			FileEncSHA256: upload.FileEncSHA256,
			FileSHA256:    upload.FileSHA256,
			FileLength:    proto.Uint64(upload.FileLength),
		}}
	case watypes.MediaKindDocument:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(upload.URL),
			DirectPath:    proto.String(upload.DirectPath),
			MediaKey:      upload.MediaKey,
			Mimetype:      proto.String(media.MimeType),
			FileEncSHA256: upload.FileEncSHA256,
			FileSHA256:    upload.FileSHA256,
			FileLength:    proto.Uint64(upload.FileLength),
			FileName:      proto.String(media.FileName),
			Caption:       proto.String(media.Caption),
		}}
	default:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(upload.URL),
			DirectPath:    proto.String(upload.DirectPath),
			MediaKey:      upload.MediaKey,
			Mimetype:      proto.String(media.MimeType),
			FileEncSHA256: upload.FileEncSHA256,
			FileSHA256:    upload.FileSHA256,
			FileLength:    proto.Uint64(upload.FileLength),
			Caption:       proto.String(media.Caption),
		}}
	}
}
