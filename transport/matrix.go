// Matrix transport built on mautrix.
//
// Information Hiding:
// - Password and token login hidden
// - Room alias resolution hidden
// - Display name caching hidden

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// DefaultDeviceName labels devices created by password login.
const DefaultDeviceName = "parley"

// displayNameTTL bounds how long a resolved display name is reused.
const displayNameTTL = 10 * time.Minute

// MatrixConfig holds homeserver credentials and rooms to join.
type MatrixConfig struct {
	Server      string
	Username    string
	Password    string
	AccessToken string
	DeviceID    string

	// Rooms lists room IDs or aliases to join at startup.
	Rooms []string
}

type cachedName struct {
	name    string
	expires time.Time
}

// Matrix implements Transport for a Matrix homeserver.
type Matrix struct {
	cfg    MatrixConfig
	client *mautrix.Client
	events chan Event
	logger *slog.Logger

	mu    sync.Mutex
	names map[string]cachedName
}

// NewMatrix creates an unconnected Matrix transport.
func NewMatrix(cfg MatrixConfig, logger *slog.Logger) (*Matrix, error) {
	if cfg.Server == "" || cfg.Username == "" {
		return nil, errors.New("matrix server and username are required")
	}
	if cfg.Password == "" && cfg.AccessToken == "" {
		return nil, errors.New("matrix password or access token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := mautrix.NewClient(cfg.Server, id.UserID(cfg.Username), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create matrix client: %w", err)
	}
	if cfg.DeviceID != "" {
		client.DeviceID = id.DeviceID(cfg.DeviceID)
	}

	m := &Matrix{
		cfg:    cfg,
		client: client,
		events: make(chan Event, 64),
		logger: logger,
		names:  make(map[string]cachedName),
	}
	client.Syncer.(mautrix.ExtensibleSyncer).OnEventType(event.EventMessage, m.onMessage)
	return m, nil
}

// Connect logs in when no access token is configured and joins rooms.
// Rooms that cannot be joined are logged and skipped.
func (m *Matrix) Connect(ctx context.Context) error {
	if m.cfg.AccessToken == "" {
		resp, err := m.client.Login(ctx, &mautrix.ReqLogin{
			Type:                     mautrix.AuthTypePassword,
			Identifier:               mautrix.UserIdentifier{Type: mautrix.IdentifierTypeUser, User: m.cfg.Username},
			Password:                 m.cfg.Password,
			DeviceID:                 id.DeviceID(m.cfg.DeviceID),
			InitialDeviceDisplayName: DefaultDeviceName,
			StoreCredentials:         true,
		})
		if err != nil {
			return fmt.Errorf("matrix login failed: %w", err)
		}
		m.logger.Info("logged in", "user", resp.UserID, "device", resp.DeviceID)
	}

	for _, room := range m.cfg.Rooms {
		roomID, err := m.resolveRoom(ctx, room)
		if err == nil {
			_, err = m.client.JoinRoomByID(ctx, roomID)
		}
		if err != nil {
			m.logger.Error("couldn't join room", "room", room, "error", err)
			continue
		}
		m.logger.Info("joined room", "room", room)
	}
	return nil
}

func (m *Matrix) resolveRoom(ctx context.Context, room string) (id.RoomID, error) {
	if !strings.HasPrefix(room, "#") {
		return id.RoomID(room), nil
	}
	resp, err := m.client.ResolveAlias(ctx, id.RoomAlias(room))
	if err != nil {
		return "", fmt.Errorf("failed to resolve alias: %w", err)
	}
	return resp.RoomID, nil
}

// DeviceID returns the device ID assigned at login.
func (m *Matrix) DeviceID() string {
	return string(m.client.DeviceID)
}

// UserID returns the bot's user ID.
func (m *Matrix) UserID() string {
	return string(m.client.UserID)
}

// Events returns the inbound message stream.
func (m *Matrix) Events() <-chan Event {
	return m.events
}

// Run syncs until ctx is cancelled. The event channel is closed on return.
func (m *Matrix) Run(ctx context.Context) error {
	defer close(m.events)
	err := m.client.SyncWithContext(ctx)
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Matrix) onMessage(ctx context.Context, evt *event.Event) {
	msg := evt.Content.AsMessage()
	if msg == nil || msg.MsgType != event.MsgText {
		return
	}
	e := Event{
		Room:      evt.RoomID.String(),
		Sender:    evt.Sender.String(),
		Text:      msg.Body,
		Timestamp: time.UnixMilli(evt.Timestamp),
	}
	select {
	case m.events <- e:
	case <-ctx.Done():
	}
}

// SendText posts a text message, formatted when html is non-empty.
func (m *Matrix) SendText(ctx context.Context, room, body, html string) error {
	content := &event.MessageEventContent{MsgType: event.MsgText, Body: body}
	if html != "" {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}
	if _, err := m.client.SendMessageEvent(ctx, id.RoomID(room), event.EventMessage, content); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendImage uploads a local image and posts it. A missing file is
// reported to the room as well as returned.
func (m *Matrix) SendImage(ctx context.Context, room, path, filename string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		_ = m.SendText(ctx, room, fmt.Sprintf("Error: Could not find image file at %s", path), "")
		return fmt.Errorf("failed to read image: %w", err)
	}
	if filename == "" {
		filename = filepath.Base(path)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	upload, err := m.client.UploadBytesWithName(ctx, data, mimeType, filename)
	if err != nil {
		_ = m.SendText(ctx, room, fmt.Sprintf("Failed to upload image '%s'.", filename), "")
		return fmt.Errorf("failed to upload image: %w", err)
	}

	content := &event.MessageEventContent{
		MsgType: event.MsgImage,
		Body:    filename,
		URL:     upload.ContentURI.CUString(),
		Info:    &event.FileInfo{MimeType: mimeType, Size: len(data)},
	}
	if _, err := m.client.SendMessageEvent(ctx, id.RoomID(room), event.EventMessage, content); err != nil {
		return fmt.Errorf("failed to send image: %w", err)
	}
	return nil
}

// DisplayName returns a user's display name, cached for a few minutes.
func (m *Matrix) DisplayName(ctx context.Context, user string) (string, error) {
	m.mu.Lock()
	cached, ok := m.names[user]
	m.mu.Unlock()
	if ok && time.Now().Before(cached.expires) {
		return cached.name, nil
	}

	resp, err := m.client.GetDisplayName(ctx, id.UserID(user))
	if err != nil {
		return "", fmt.Errorf("failed to get display name: %w", err)
	}
	name := resp.DisplayName
	if name == "" {
		name = user
	}

	m.mu.Lock()
	m.names[user] = cachedName{name: name, expires: time.Now().Add(displayNameTTL)}
	m.mu.Unlock()
	return name, nil
}

var _ Transport = (*Matrix)(nil)
