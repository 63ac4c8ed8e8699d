package wa

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// Options configures an Adapter.
type Options struct {
	AuthDBPath string
	DeviceName string
	Logger     *zap.Logger
	WALogger   waLog.Logger
}

// SendResult identifies a message accepted by the server.
type SendResult struct {
	ID        string
	Timestamp time.Time
}

// Adapter wraps one whatsmeow client and its credential store.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	authDir   string
	logger    *zap.Logger

	mu       sync.Mutex
	handlers []func(any)
	qrCancel context.CancelFunc
}

var setOSInfo sync.Once

// NewAdapter opens (or creates) the credential store at opts.AuthDBPath.
func NewAdapter(ctx context.Context, opts Options) (*Adapter, error) {
	if opts.DeviceName != "" {
		setOSInfo.Do(func() {
			wastore.SetOSInfo(opts.DeviceName, [3]uint32{0, 1, 0})
		})
	}
	if err := os.MkdirAll(filepath.Dir(opts.AuthDBPath), 0700); err != nil {
		return nil, fmt.Errorf("create auth dir: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", opts.AuthDBPath),
		opts.WALogger,
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("get device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, opts.WALogger)
	// Reconnects are driven by the owning session's backoff.
	client.EnableAutoReconnect = false

	a := &Adapter{
		client:    client,
		container: container,
		authDir:   filepath.Dir(opts.AuthDBPath),
		logger:    opts.Logger,
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	client.AddEventHandler(a.dispatch)
	return a, nil
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// AddEventHandler registers a handler for whatsmeow events and the adapter's QR events.
func (a *Adapter) AddEventHandler(h func(any)) {
	a.mu.Lock()
	a.handlers = append(a.handlers, h)
	a.mu.Unlock()
}

func (a *Adapter) dispatch(evt any) {
	a.mu.Lock()
	handlers := slices.Clone(a.handlers)
	a.mu.Unlock()
	for _, h := range handlers {
		h(evt)
	}
}

// Connect opens the socket. Without credentials it first subscribes to the
// pairing QR channel, whose items are dispatched as QRCode, QRTimeout and QRError.
func (a *Adapter) Connect() error {
	a.stopQR()
	if !a.IsLoggedIn() {
		ctx, cancel := context.WithCancel(context.Background())
		qrChan, err := a.client.GetQRChannel(ctx)
		if err != nil {
			cancel()
			return fmt.Errorf("get QR channel: %w", err)
		}
		a.mu.Lock()
		a.qrCancel = cancel
		a.mu.Unlock()
		go a.forwardQR(qrChan)
	}
	a.logger.Info("connecting to WhatsApp", zap.Bool("logged_in", a.IsLoggedIn()))
	if err := a.client.Connect(); err != nil {
		a.stopQR()
		return err
	}
	return nil
}

func (a *Adapter) stopQR() {
	a.mu.Lock()
	cancel := a.qrCancel
	a.qrCancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Disconnect terminates the WhatsApp connection.
func (a *Adapter) Disconnect() {
	a.stopQR()
	a.client.Disconnect()
}

// Logout invalidates the credentials on the server and in the local store.
func (a *Adapter) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// Close disconnects and releases the credential store, keeping it on disk.
func (a *Adapter) Close() error {
	a.Disconnect()
	return a.container.Close()
}

// Wipe closes the adapter and deletes its credential directory.
func (a *Adapter) Wipe(_ context.Context) error {
	if err := a.Close(); err != nil {
		a.logger.Warn("close session store", zap.Error(err))
	}
	if err := os.RemoveAll(a.authDir); err != nil {
		return fmt.Errorf("remove auth dir: %w", err)
	}
	return nil
}

// PhoneNumber returns the phone number from the device store, or empty string.
func (a *Adapter) PhoneNumber() string {
	if a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.User
}

// SendText sends a plain text message.
func (a *Adapter) SendText(ctx context.Context, to types.JID, text string) (SendResult, error) {
	resp, err := a.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("send message: %w", err)
	}
	return SendResult{ID: resp.ID, Timestamp: resp.Timestamp}, nil
}

// SendMedia uploads att and sends it as an image or a document, depending on its MIME type.
func (a *Adapter) SendMedia(ctx context.Context, to types.JID, att Attachment, caption string) (SendResult, error) {
	mediaType := whatsmeow.MediaDocument
	if att.IsImage() {
		mediaType = whatsmeow.MediaImage
	}
	up, err := a.client.Upload(ctx, att.Data, mediaType)
	if err != nil {
		return SendResult{}, fmt.Errorf("upload media: %w", err)
	}
	resp, err := a.client.SendMessage(ctx, to, BuildMediaMessage(att, caption, up))
	if err != nil {
		return SendResult{}, fmt.Errorf("send media: %w", err)
	}
	return SendResult{ID: resp.ID, Timestamp: resp.Timestamp}, nil
}

// BuildMediaMessage builds the image or document payload for an uploaded attachment.
func BuildMediaMessage(att Attachment, caption string, up whatsmeow.UploadResponse) *waE2E.Message {
	mimeType := att.ContentType()
	if att.IsImage() {
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	}
	title := att.Name
	if title == "" {
		title = "document"
	}
	doc := &waE2E.DocumentMessage{
		Title:         proto.String(title),
		FileName:      proto.String(title),
		Mimetype:      proto.String(mimeType),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}
	if strings.TrimSpace(caption) != "" {
		doc.Caption = proto.String(caption)
	}
	return &waE2E.Message{DocumentMessage: doc}
}

// ResolveLID looks jid up in the device's LID map. Phone-number JIDs and
// unmapped LIDs come back unchanged.
func (a *Adapter) ResolveLID(ctx context.Context, jid types.JID) types.JID {
	if !IsLID(jid) || a.client.Store.LIDs == nil {
		return jid
	}
	pn, err := a.client.Store.LIDs.GetPNForLID(ctx, jid)
	switch {
	case err != nil:
		a.logger.Debug("lid lookup failed", zap.String("lid", jid.String()), zap.Error(err))
		return jid
	case pn.IsEmpty():
		return jid
	}
	return pn
}
