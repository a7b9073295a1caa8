package service

import (
	"context"
	"sync"

	"wabridge/internal/models"
	watypes "wabridge/pkg/whatsapp/types"
)

type fakeSession struct {
	mu sync.Mutex

	connectErr   error
	connected    bool
	disconnected bool
	wiped        bool

	sendErr   error
	sentTexts []string

	lidToPhone map[string]string
	lookup     []watypes.LookupEntry
	lookupErr  error
}

func (f *fakeSession) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeSession) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

func (f *fakeSession) WipeCredentials(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wiped = true
	return nil
}

func (f *fakeSession) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSession) SendText(ctx context.Context, to, text string) (*watypes.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sentTexts = append(f.sentTexts, text)
	return &watypes.SendResponse{
		MessageID: "MSG1",
		ChatJID:   to + "@s.whatsapp.net",
		Payload:   []byte("payload:" + text),
	}, nil
}

func (f *fakeSession) SendMedia(ctx context.Context, to string, media *watypes.MediaAttachment) (*watypes.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &watypes.SendResponse{
		MessageID: "MEDIA1",
		ChatJID:   to + "@s.whatsapp.net",
		Payload:   media.Data,
	}, nil
}

func (f *fakeSession) CachedPhoneForLID(ctx context.Context, lid string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	phone, ok := f.lidToPhone[lid]
	return phone, ok
}

func (f *fakeSession) LookupPhones(ctx context.Context, phones []string) ([]watypes.LookupEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.lookup, nil
}

func (f *fakeSession) wasWiped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wiped
}

func (f *fakeSession) wasDisconnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnected
}

type fakeFactory struct {
	mu       sync.Mutex
	sessions []*fakeSession
	handlers []watypes.Handlers
	startErr error
}

func (f *fakeFactory) StartSession(ctx context.Context, handlers watypes.Handlers, content watypes.ContentSource) (watypes.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	sess := &fakeSession{lidToPhone: map[string]string{}}
	f.sessions = append(f.sessions, sess)
	f.handlers = append(f.handlers, handlers)
	return sess, nil
}

func (f *fakeFactory) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeFactory) lastSession() *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}

func (f *fakeFactory) lastHandlers() watypes.Handlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[len(f.handlers)-1]
}

type captureDispatcher struct {
	mu     sync.Mutex
	events []*models.WebhookEvent
}

func (d *captureDispatcher) Dispatch(event *models.WebhookEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *captureDispatcher) all() []*models.WebhookEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*models.WebhookEvent, len(d.events))
	copy(out, d.events)
	return out
}
