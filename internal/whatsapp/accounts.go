package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/user/mafia-suspicion/config"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

// ErrAlreadyLinked is returned when a QR code is requested for an account
// that is already logged in
var ErrAlreadyLinked = errors.New("client already logged in")

// QRCodeManager handles QR code generation and authentication
type QRCodeManager struct {
	clientManager *ClientManager
	config        config.Config
	logger        *zap.Logger
	timeout       time.Duration
}

// NewQRCodeManager creates a new QR code manager
func NewQRCodeManager(clientManager *ClientManager, cfg config.Config, logger *zap.Logger) *QRCodeManager {
	return &QRCodeManager{
		clientManager: clientManager,
		config:        cfg,
		logger:        logger,
		timeout:       60 * time.Second,
	}
}

// QRDir is where generated QR code images are written
func (qm *QRCodeManager) QRDir() string {
	return filepath.Join(qm.config.WhatsApp.StoreDir, "qrcodes")
}

// GenerateQRCode links a bot account. It returns the pairing code and writes
// a PNG of it under QRDir.
func (qm *QRCodeManager) GenerateQRCode(sessionID, phoneNumber string) (string, error) {
	client, exists := qm.clientManager.GetClient(phoneNumber)
	if !exists {
		var err error
		client, err = qm.clientManager.SetupClient(sessionID, phoneNumber)
		if err != nil {
			return "", fmt.Errorf("failed to set up client: %w", err)
		}
	}

	if client.IsLoggedIn() {
		return "", ErrAlreadyLinked
	}

	qrChan, err := client.GetQRChannel(context.Background())
	if err != nil {
		return "", fmt.Errorf("failed to get QR channel: %w", err)
	}

	if err := client.Connect(); err != nil {
		return "", fmt.Errorf("failed to connect: %w", err)
	}

	if err := os.MkdirAll(qm.QRDir(), 0755); err != nil {
		return "", fmt.Errorf("failed to create QR code directory: %w", err)
	}

	select {
	case evt := <-qrChan:
		if evt.Event != "code" {
			return "", fmt.Errorf("unexpected QR event: %s", evt.Event)
		}
		qrPath := qrImagePath(qm.QRDir(), phoneNumber, sessionID)
		if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 256, qrPath); err != nil {
			return "", fmt.Errorf("failed to generate QR code image: %w", err)
		}

		qm.logger.Info("QR code generated",
			zap.String("phone_number", phoneNumber),
			zap.String("session_id", sessionID),
			zap.String("path", qrPath))

		return evt.Code, nil
	case <-time.After(qm.timeout):
		return "", fmt.Errorf("timeout waiting for QR code")
	}
}

func qrImagePath(dir, phoneNumber, sessionID string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.png", phoneNumber, sessionID))
}

// LinkedAccount describes a device database on disk
type LinkedAccount struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	JID         string    `json:"jid,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AccountManager lists and removes linked WhatsApp accounts
type AccountManager struct {
	storeDir      string
	clientManager *ClientManager
	logger        *zap.Logger
}

// NewAccountManager creates a new account manager. clientManager may be nil,
// in which case deleted accounts are not disconnected first.
func NewAccountManager(storeDir string, clientManager *ClientManager, logger *zap.Logger) *AccountManager {
	return &AccountManager{
		storeDir:      storeDir,
		clientManager: clientManager,
		logger:        logger,
	}
}

// ListAccounts returns every account with a device database, newest first
func (am *AccountManager) ListAccounts() ([]LinkedAccount, error) {
	if err := os.MkdirAll(am.storeDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(am.storeDir, "store_*.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to list session files: %w", err)
	}

	accounts := make([]LinkedAccount, 0, len(matches))
	for _, match := range matches {
		phoneNumber, sessionID, ok := parseStoreFile(match)
		if !ok {
			am.logger.Warn("Failed to parse session filename", zap.String("filename", filepath.Base(match)))
			continue
		}
		info, err := os.Stat(match)
		if err != nil {
			continue
		}

		account := LinkedAccount{
			ID:          sessionID,
			PhoneNumber: phoneNumber,
			UpdatedAt:   info.ModTime(),
		}
		if jid, ok := am.deviceJID(match); ok {
			account.JID = jid
		}
		accounts = append(accounts, account)
	}

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].UpdatedAt.After(accounts[j].UpdatedAt) })
	return accounts, nil
}

// deviceJID reads the paired device id, if the account finished pairing
func (am *AccountManager) deviceJID(path string) (string, bool) {
	dbLog := waLog.Stdout("Database", "ERROR", true)
	container, err := sqlstore.New("sqlite3", "file:"+path+"?_foreign_keys=on", dbLog)
	if err != nil {
		am.logger.Warn("Failed to open session database", zap.String("path", path))
		return "", false
	}

	deviceStore, err := container.GetFirstDevice()
	if err != nil || deviceStore.ID == nil {
		return "", false
	}
	return deviceStore.ID.String(), true
}

// DeleteAccount disconnects an account and removes its device database and
// QR image
func (am *AccountManager) DeleteAccount(phoneNumber, sessionID string) error {
	if am.clientManager != nil {
		if err := am.clientManager.Disconnect(phoneNumber); err == nil {
			am.logger.Info("Disconnected client before delete", zap.String("phone_number", phoneNumber))
		}
	}

	dbPath := filepath.Join(am.storeDir, fmt.Sprintf("store_%s_%s.db", phoneNumber, sessionID))
	if err := os.Remove(dbPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("account %s not found: %w", phoneNumber, err)
		}
		return fmt.Errorf("failed to delete session database: %w", err)
	}

	qrPath := qrImagePath(filepath.Join(am.storeDir, "qrcodes"), phoneNumber, sessionID)
	if err := os.Remove(qrPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete QR code: %w", err)
	}

	am.logger.Info("Deleted linked account", zap.String("phone_number", phoneNumber))
	return nil
}
