package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/mafia-suspicion/config"
	"github.com/user/mafia-suspicion/internal/interfaces"
	"github.com/user/mafia-suspicion/internal/types"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// ErrNoClient is returned when no linked WhatsApp account can send
var ErrNoClient = errors.New("no WhatsApp client available")

// ClientManager handles WhatsApp client connections. It is the chat front end
// of the game: it turns messages into commands and publishes game state.
type ClientManager struct {
	clients     map[string]*ClientInfo
	gameManager interfaces.GameManager
	formatter   *MessageFormatter
	config      config.Config
	logger      *zap.Logger
	mutex       sync.RWMutex
}

var (
	_ interfaces.Publisher     = (*ClientManager)(nil)
	_ interfaces.MessageSender = (*ClientManager)(nil)
)

// ClientInfo holds information about a WhatsApp client connection
type ClientInfo struct {
	UUID        string
	PhoneNumber string
	Client      *whatsmeow.Client
	Store       *store.Device
}

// NewClientManager creates a new WhatsApp client manager and restores any
// accounts linked in a previous run
func NewClientManager(gameManager interfaces.GameManager, cfg config.Config, logger *zap.Logger) *ClientManager {
	cm := &ClientManager{
		clients:     make(map[string]*ClientInfo),
		gameManager: gameManager,
		formatter:   NewMessageFormatter(),
		config:      cfg,
		logger:      logger,
	}

	cm.restoreExistingSessions()

	return cm
}

// storeFile is one device database in the store directory
type storeFile struct {
	path        string
	phoneNumber string
	sessionID   string
	modTime     time.Time
}

// parseStoreFile extracts the account and session from store_<phone>_<session>.db
func parseStoreFile(name string) (phoneNumber, sessionID string, ok bool) {
	base := strings.TrimSuffix(filepath.Base(name), ".db")
	if !strings.HasPrefix(base, "store_") {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(base, "store_"), "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// latestStoreFiles keeps the newest database per account and returns the
// stale ones separately
func latestStoreFiles(files []storeFile) (latest map[string]storeFile, stale []storeFile) {
	latest = make(map[string]storeFile)
	for _, f := range files {
		current, exists := latest[f.phoneNumber]
		if !exists || f.modTime.After(current.modTime) {
			if exists {
				stale = append(stale, current)
			}
			latest[f.phoneNumber] = f
			continue
		}
		stale = append(stale, f)
	}
	return latest, stale
}

// restoreExistingSessions reconnects every account that already has a device
// database, pruning older databases of the same account
func (cm *ClientManager) restoreExistingSessions() {
	if err := os.MkdirAll(cm.config.WhatsApp.StoreDir, 0755); err != nil {
		cm.logger.Error("Failed to create store directory", zap.Error(err))
		return
	}

	matches, err := filepath.Glob(filepath.Join(cm.config.WhatsApp.StoreDir, "store_*.db"))
	if err != nil {
		cm.logger.Error("Failed to scan for existing sessions", zap.Error(err))
		return
	}

	var files []storeFile
	for _, match := range matches {
		phoneNumber, sessionID, ok := parseStoreFile(match)
		if !ok {
			continue
		}
		info, err := os.Stat(match)
		if err != nil {
			cm.logger.Error("Failed to get file info", zap.String("file", match), zap.Error(err))
			continue
		}
		files = append(files, storeFile{path: match, phoneNumber: phoneNumber, sessionID: sessionID, modTime: info.ModTime()})
	}

	latest, stale := latestStoreFiles(files)
	for _, f := range stale {
		if err := os.Remove(f.path); err != nil {
			cm.logger.Error("Failed to remove old session file", zap.String("file", f.path), zap.Error(err))
			continue
		}
		cm.logger.Info("Removed old session file", zap.String("file", f.path))
	}

	for phoneNumber, f := range latest {
		client, err := cm.SetupClient(f.sessionID, phoneNumber)
		if err != nil {
			cm.logger.Error("Failed to restore client",
				zap.String("phoneNumber", phoneNumber),
				zap.Error(err))
			continue
		}

		if client.Store.ID == nil {
			cm.logger.Info("Session requires QR code login", zap.String("phoneNumber", phoneNumber))
			continue
		}
		go func(phone string, cli *whatsmeow.Client) {
			if err := cli.Connect(); err != nil {
				cm.logger.Error("Failed to connect restored client",
					zap.String("phoneNumber", phone),
					zap.Error(err))
				return
			}
			cm.logger.Info("Successfully connected restored client", zap.String("phoneNumber", phone))
		}(phoneNumber, client)
	}
}

// SetupClient initializes a WhatsApp client backed by its own device database
func (cm *ClientManager) SetupClient(sessionID, phoneNumber string) (*whatsmeow.Client, error) {
	if err := os.MkdirAll(cm.config.WhatsApp.StoreDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dbPath := fmt.Sprintf("file:%s/store_%s_%s.db?_foreign_keys=on", cm.config.WhatsApp.StoreDir, phoneNumber, sessionID)
	dbLog := waLog.Stdout("Database", "INFO", true)
	container, err := sqlstore.New("sqlite3", dbPath, dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice()
	if err != nil {
		deviceStore = container.NewDevice()
	}

	store.DeviceProps.Os = proto.String(cm.config.WhatsApp.ClientName)

	clientLog := waLog.Stdout("Client", "INFO", true)
	client := whatsmeow.NewClient(deviceStore, clientLog)
	client.AddEventHandler(cm.handleWhatsAppEvent)

	cm.mutex.Lock()
	if previous, exists := cm.clients[phoneNumber]; exists {
		previous.Client.Disconnect()
	}
	cm.clients[phoneNumber] = &ClientInfo{
		UUID:        sessionID,
		PhoneNumber: phoneNumber,
		Client:      client,
		Store:       deviceStore,
	}
	cm.mutex.Unlock()

	return client, nil
}

// GetClient retrieves a WhatsApp client by phone number, reconnecting it if
// it has a linked device
func (cm *ClientManager) GetClient(phoneNumber string) (*whatsmeow.Client, bool) {
	cm.mutex.RLock()
	clientInfo, exists := cm.clients[phoneNumber]
	cm.mutex.RUnlock()

	if !exists {
		return nil, false
	}

	if !clientInfo.Client.IsConnected() && clientInfo.Store.ID != nil {
		if err := clientInfo.Client.Connect(); err != nil {
			cm.logger.Error("Failed to connect client",
				zap.String("phoneNumber", phoneNumber),
				zap.Error(err))
			return nil, false
		}
		cm.logger.Info("Successfully reconnected client", zap.String("phoneNumber", phoneNumber))
	}

	return clientInfo.Client, true
}

// firstClient returns the client of the first linked account by phone number
func (cm *ClientManager) firstClient() (*whatsmeow.Client, bool) {
	cm.mutex.RLock()
	phones := make([]string, 0, len(cm.clients))
	for phone := range cm.clients {
		phones = append(phones, phone)
	}
	cm.mutex.RUnlock()

	sort.Strings(phones)
	for _, phone := range phones {
		if client, ok := cm.GetClient(phone); ok {
			return client, true
		}
	}
	return nil, false
}

// Disconnect closes a specific WhatsApp connection
func (cm *ClientManager) Disconnect(phoneNumber string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	clientInfo, exists := cm.clients[phoneNumber]
	if !exists {
		return fmt.Errorf("client not found for phone number: %s", phoneNumber)
	}

	clientInfo.Client.Disconnect()
	delete(cm.clients, phoneNumber)
	return nil
}

// DisconnectAll closes all WhatsApp connections
func (cm *ClientManager) DisconnectAll() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	for phoneNumber, clientInfo := range cm.clients {
		if clientInfo.Client != nil {
			clientInfo.Client.Disconnect()
			cm.logger.Info("Disconnected client", zap.String("phoneNumber", phoneNumber))
		}
	}

	cm.clients = make(map[string]*ClientInfo)
}

// SendTextMessage sends a text message from an account. An empty phone
// number uses the first linked account.
func (cm *ClientManager) SendTextMessage(phoneNumber, recipient, message string) (string, error) {
	recipientJID, err := parseJID(recipient)
	if err != nil {
		return "", err
	}
	return cm.sendText(context.Background(), phoneNumber, recipientJID, message)
}

// SendMessage implements the interfaces.MessageSender interface
func (cm *ClientManager) SendMessage(phoneNumber, recipient, message string) (string, error) {
	return cm.SendTextMessage(phoneNumber, recipient, message)
}

// Publish renders an update and posts it to the group the game lives in
func (cm *ClientManager) Publish(ctx context.Context, update types.Update) error {
	// Games opened over HTTP are not bound to a chat
	if !strings.HasSuffix(update.SessionID, "@g.us") {
		cm.logger.Debug("Skipping update for non-group session", zap.String("session_id", update.SessionID))
		return nil
	}

	chatJID, err := parseJID(update.SessionID)
	if err != nil {
		return err
	}
	_, err = cm.sendText(ctx, "", chatJID, cm.formatter.FormatUpdate(update))
	return err
}

func (cm *ClientManager) sendText(ctx context.Context, phoneNumber string, target waTypes.JID, message string) (string, error) {
	var (
		client *whatsmeow.Client
		ok     bool
	)
	if phoneNumber == "" {
		client, ok = cm.firstClient()
	} else {
		client, ok = cm.GetClient(phoneNumber)
	}
	if !ok {
		return "", ErrNoClient
	}

	msg := &waProto.Message{
		Conversation: proto.String(message),
	}

	response, err := client.SendMessage(ctx, target, msg)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	return response.ID, nil
}

// handleWhatsAppEvent processes incoming WhatsApp events
func (cm *ClientManager) handleWhatsAppEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		cm.handleIncomingMessage(v)
	case *events.Connected:
		cm.logger.Info("WhatsApp client connected")
	case *events.Disconnected:
		cm.logger.Info("WhatsApp client disconnected")
	case *events.LoggedOut:
		cm.logger.Info("WhatsApp client logged out")
	}
}

// handleIncomingMessage turns a prefixed chat message into a game command
// and answers in the chat, or privately to the sender
func (cm *ClientManager) handleIncomingMessage(message *events.Message) {
	if message.Info.MessageSource.IsFromMe {
		return
	}

	content := message.Message.GetConversation()
	if content == "" && message.Message.GetExtendedTextMessage() != nil {
		content = message.Message.GetExtendedTextMessage().GetText()
	}

	text, ok := stripPrefix(content, cm.config.WhatsApp.CommandPrefix)
	if !ok {
		return
	}

	in := inbound{
		ChatID:  message.Info.Chat.String(),
		IsGroup: message.Info.Chat.Server == "g.us",
		Sender: types.Identity{
			ID:      message.Info.Sender.User,
			Name:    message.Info.PushName,
			Mention: "@" + message.Info.Sender.User,
		},
		Text: text,
	}

	cm.logger.Debug("Received message",
		zap.String("content", content),
		zap.String("sender", in.Sender.ID),
		zap.String("chat", in.ChatID))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r := cm.processGameCommand(ctx, in)
	if r.Text == "" {
		return
	}

	target := message.Info.Chat
	if r.Private && in.IsGroup {
		senderJID, err := parseJID(in.Sender.ID)
		if err != nil {
			cm.logger.Error("Invalid sender", zap.String("sender", in.Sender.ID), zap.Error(err))
			return
		}
		target = senderJID
	}

	if _, err := cm.sendText(ctx, "", target, r.Text); err != nil {
		cm.logger.Error("Failed to send response",
			zap.String("sender", in.Sender.ID),
			zap.Error(err))
	}
}

// stripPrefix returns the command text after prefix, if present
func stripPrefix(content, prefix string) (string, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", false
	}
	text := strings.TrimSpace(strings.TrimPrefix(content, prefix))
	return text, text != ""
}

// parseJID converts a string to a WhatsApp JID
func parseJID(jidString string) (waTypes.JID, error) {
	if !strings.ContainsRune(jidString, '@') {
		// Assume this is a phone number, add WhatsApp suffix
		jidString = jidString + "@s.whatsapp.net"
	}

	return waTypes.ParseJID(jidString)
}
