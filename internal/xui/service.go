package xui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vpnbot/internal/pkg/utils"
)

const defaultFlow = "xtls-rprx-vision"

// Options carries provisioning defaults applied to new clients.
type Options struct {
	InboundID      int
	DeviceLimit    int
	TrafficLimitGB int64
	// ServerAddress is the public address written into vless links.
	// Falls back to the panel host when empty.
	ServerAddress string
}

// Service manages the client collection of one inbound. The panel has no
// per-client reads or writes: every lookup fetches the whole inbound and
// every mutation resends a complete client object, so all operations here
// are read-modify-write over that single JSON document.
type Service struct {
	transport *Transport
	opts      Options
	logger    *zap.Logger
	creating  keyedMutex
}

func NewService(transport *Transport, opts Options, logger *zap.Logger) *Service {
	if opts.InboundID <= 0 {
		opts.InboundID = 1
	}
	return &Service{
		transport: transport,
		opts:      opts,
		logger:    logger,
	}
}

// settingsPayload is the write-call body: the inbound id plus a JSON
// string (not object) holding the client list.
type settingsPayload struct {
	ID       int    `json:"id"`
	Settings string `json:"settings"`
}

type inboundObject struct {
	ID             int    `json:"id"`
	Port           int    `json:"port"`
	Protocol       string `json:"protocol"`
	Settings       string `json:"settings"`
	StreamSettings string `json:"streamSettings"`
}

// AllClients fetches the inbound's full client list. Panel failures
// degrade to an empty slice: the caller cannot tell an outage from an
// empty inbound, only the logs can. Every call is a fresh remote fetch.
func (s *Service) AllClients(ctx context.Context) []Client {
	inbound, err := s.fetchInbound(ctx)
	if err != nil {
		s.logger.Error("xui: failed to list clients", zap.Error(err))
		return nil
	}
	return parseClients(inbound.Settings)
}

func (s *Service) fetchInbound(ctx context.Context) (*inboundObject, error) {
	endpoint := fmt.Sprintf("panel/api/inbounds/get/%d", s.opts.InboundID)
	resp, err := s.transport.request(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &APIError{Op: "get inbound", Msg: resp.Msg}
	}
	var inbound inboundObject
	if err := json.Unmarshal(resp.Obj, &inbound); err != nil {
		return nil, fmt.Errorf("decode inbound: %w", err)
	}
	return &inbound, nil
}

func parseClients(settings string) []Client {
	var parsed struct {
		Clients []json.RawMessage `json:"clients"`
	}
	if err := json.Unmarshal([]byte(settings), &parsed); err != nil {
		return nil
	}
	clients := make([]Client, 0, len(parsed.Clients))
	for _, raw := range parsed.Clients {
		var wc wireClient
		if err := json.Unmarshal(raw, &wc); err != nil {
			continue
		}
		clients = append(clients, wc.toClient(raw))
	}
	return clients
}

// FindByTelegramID returns the client owned by a Telegram user, or nil.
// Linear scan over the fresh list; inbounds hold hundreds of clients at
// most.
func (s *Service) FindByTelegramID(ctx context.Context, telegramID int64) *Client {
	for _, c := range s.AllClients(ctx) {
		if c.TelegramID == telegramID {
			return &c
		}
	}
	return nil
}

// GetOrCreate returns the user's existing client or provisions a new one.
// A per-user lock closes the find/create race between near-simultaneous
// first-contact requests from the same user.
func (s *Service) GetOrCreate(ctx context.Context, telegramID int64, firstName, lastName string) (*Client, error) {
	unlock := s.creating.lock(telegramID)
	defer unlock()

	if c := s.FindByTelegramID(ctx, telegramID); c != nil {
		return c, nil
	}
	return s.Create(ctx, telegramID, firstName, lastName)
}

// Create provisions a new client with the configured defaults and no
// expiry. The subscription id is generated once here and never changes.
func (s *Service) Create(ctx context.Context, telegramID int64, firstName, lastName string) (*Client, error) {
	id := uuid.NewString()
	subID := utils.RandomCode(16)
	email := ClientEmail(id, firstName, lastName)

	settings := struct {
		Clients []wireClient `json:"clients"`
	}{
		Clients: []wireClient{{
			ID:         id,
			Flow:       defaultFlow,
			Email:      email,
			TgID:       tgID(telegramID),
			LimitIP:    s.opts.DeviceLimit,
			TotalGB:    s.opts.TrafficLimitGB,
			ExpiryTime: 0,
			Enable:     true,
			SubID:      subID,
			Reset:      0,
		}},
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("encode client settings: %w", err)
	}

	resp, err := s.transport.request(ctx, http.MethodPost, "panel/api/inbounds/addClient", settingsPayload{
		ID:       s.opts.InboundID,
		Settings: string(settingsJSON),
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		s.logger.Error("xui: failed to create client",
			zap.Int64("telegram_id", telegramID),
			zap.String("msg", resp.Msg))
		return nil, &ClientCreationError{Msg: resp.Msg}
	}

	s.logger.Info("xui: created client",
		zap.Int64("telegram_id", telegramID),
		zap.String("email", email))

	return &Client{
		UUID:       id,
		Email:      email,
		TelegramID: telegramID,
		SubID:      subID,
		Flow:       defaultFlow,
		Enabled:    true,
		ExpiryTime: 0,
		TotalGB:    s.opts.TrafficLimitGB,
	}, nil
}

// Rename changes a client's email label and nothing else. The client is
// re-fetched first and resent from its raw panel representation, so
// fields this code does not model (and any the panel added out-of-band)
// round-trip untouched.
func (s *Service) Rename(ctx context.Context, currentEmail, newEmail string) error {
	var target *Client
	for _, c := range s.AllClients(ctx) {
		if c.Email == currentEmail {
			target = &c
			break
		}
	}
	if target == nil {
		s.logger.Warn("xui: client not found for rename", zap.String("email", currentEmail))
		return fmt.Errorf("rename %q: %w", currentEmail, ErrClientNotFound)
	}

	obj, err := decodeClientObject(target.raw)
	if err != nil {
		return fmt.Errorf("decode client %q: %w", currentEmail, err)
	}
	obj["email"] = newEmail

	settingsJSON, err := json.Marshal(map[string]any{
		"clients": []map[string]any{obj},
	})
	if err != nil {
		return fmt.Errorf("encode client settings: %w", err)
	}

	endpoint := "panel/api/inbounds/updateClient/" + target.UUID
	resp, err := s.transport.request(ctx, http.MethodPost, endpoint, settingsPayload{
		ID:       s.opts.InboundID,
		Settings: string(settingsJSON),
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		s.logger.Error("xui: failed to update client",
			zap.String("current_email", currentEmail),
			zap.String("new_email", newEmail),
			zap.String("msg", resp.Msg))
		return &APIError{Op: "updateClient", Msg: resp.Msg}
	}

	s.logger.Info("xui: renamed client",
		zap.String("from", currentEmail),
		zap.String("to", newEmail))
	return nil
}

// Traffic fetches the usage snapshot for a client email. A client the
// panel has no record for yields a zeroed snapshot, not an error; only
// connection and authentication failures propagate.
func (s *Service) Traffic(ctx context.Context, email string) (Traffic, error) {
	resp, err := s.transport.request(ctx, http.MethodGet, "panel/api/inbounds/getClientTraffics/"+email, nil)
	if err != nil {
		return Traffic{}, err
	}
	if !resp.Success || len(resp.Obj) == 0 || string(resp.Obj) == "null" {
		return Traffic{}, nil
	}

	var obj struct {
		Up         int64 `json:"up"`
		Down       int64 `json:"down"`
		ExpiryTime int64 `json:"expiryTime"`
	}
	if err := json.Unmarshal(resp.Obj, &obj); err != nil {
		return Traffic{}, nil
	}
	return Traffic{Up: obj.Up, Down: obj.Down, ExpiryTime: obj.ExpiryTime}, nil
}

// decodeClientObject parses a raw client entry preserving numeric
// fidelity: json.Number keeps 64-bit traffic counters from being mangled
// through float64 on re-serialization.
func decodeClientObject(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return obj, nil
}
