package gree

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Default exchange timeouts. Bind waits longer because some units only
// answer after a button press.
const (
	DefaultBindTimeout     = 10 * time.Second
	DefaultExchangeTimeout = 5 * time.Second
)

// SessionConfig configures a Session.
type SessionConfig struct {
	Transport       Transport
	BindTimeout     time.Duration
	ExchangeTimeout time.Duration
	Logger          Logger

	// now is overridden in tests.
	now func() time.Time
}

// Session runs bind, status and command exchanges for one device. Calls on
// the same session are serialised; different sessions never share a socket.
type Session struct {
	device          *Device
	transport       Transport
	bindTimeout     time.Duration
	exchangeTimeout time.Duration
	logger          Logger
	now             func() time.Time

	mu sync.Mutex
}

// NewSession creates a session for device.
func NewSession(device *Device, cfg SessionConfig) *Session {
	if cfg.Transport == nil {
		cfg.Transport = NewUDPTransport()
	}
	if cfg.BindTimeout <= 0 {
		cfg.BindTimeout = DefaultBindTimeout
	}
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = DefaultExchangeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Session{
		device:          device,
		transport:       cfg.Transport,
		bindTimeout:     cfg.BindTimeout,
		exchangeTimeout: cfg.ExchangeTimeout,
		logger:          cfg.Logger,
		now:             cfg.now,
	}
}

// Device returns the device this session talks to.
func (s *Session) Device() *Device { return s.device }

// Bind obtains a session key. It returns immediately, without touching the
// network, when a key is already held. On failure the device stays unbound
// and the error wraps ErrBindFailed.
func (s *Session) Bind(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureBound(ctx)
}

// Status queries and decodes the full device state. On success the state
// is stored on the device and the device is marked available.
func (s *Session) Status(ctx context.Context) (DeviceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.status(ctx)
	if err != nil {
		s.device.markUnavailable()
		s.unbindOnCipherFailure(err)
		return DeviceState{}, err
	}

	s.device.setState(state)
	s.device.markSeen(s.now())
	return state, nil
}

// Command sends the opcodes for cmd. A command that translates to no
// opcodes is not sent.
func (s *Session) Command(ctx context.Context, cmd Command) (Instruction, error) {
	in := Translate(cmd)
	if in.Len() == 0 {
		return in, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.command(ctx, in); err != nil {
		s.device.markUnavailable()
		s.unbindOnCipherFailure(err)
		return in, err
	}
	s.device.markSeen(s.now())
	return in, nil
}

func (s *Session) status(ctx context.Context) (DeviceState, error) {
	if err := s.ensureBound(ctx); err != nil {
		return DeviceState{}, err
	}

	key, _ := s.device.Key()
	mac := s.device.MAC()

	reply, err := s.exchangePack(ctx, mac, newStatusRequest(mac), key)
	if err != nil {
		return DeviceState{}, err
	}
	if reply.T != TagPack {
		return DeviceState{}, fmt.Errorf("%w: status reply tagged %q", ErrUnexpectedResponse, reply.T)
	}

	inner, err := reply.Open(key)
	if err != nil {
		return DeviceState{}, err
	}
	return decodeStatusReply(inner)
}

func (s *Session) command(ctx context.Context, in Instruction) error {
	if err := s.ensureBound(ctx); err != nil {
		return err
	}

	key, _ := s.device.Key()
	mac := s.device.MAC()

	reply, err := s.exchangePack(ctx, mac, in, key)
	if err != nil {
		return err
	}

	switch reply.T {
	case TagRes:
		return nil
	case TagPack:
		var tag innerTag
		if err := reply.DecodePack(key, &tag); err != nil {
			return err
		}
		if tag.T != TagRes {
			return fmt.Errorf("%w: command reply tagged %q", ErrUnexpectedResponse, tag.T)
		}
		return nil
	default:
		return fmt.Errorf("%w: command reply tagged %q", ErrUnexpectedResponse, reply.T)
	}
}

// unbindOnCipherFailure drops the key when a reply could not be decrypted,
// so the next exchange binds again. Callers hold s.mu.
func (s *Session) unbindOnCipherFailure(err error) {
	if !errors.Is(err, ErrCrypto) {
		return
	}
	s.device.Unbind()
	s.logger.Warn("reply could not be decrypted, key dropped",
		"device_id", s.device.ID(),
		"error", err,
	)
}

// exchangePack encrypts inner for mac, sends it and parses the reply.
func (s *Session) exchangePack(ctx context.Context, mac string, inner any, key string) (Envelope, error) {
	req, err := NewPackRequest(mac, inner, key)
	if err != nil {
		return Envelope{}, err
	}
	return s.exchange(ctx, req, s.exchangeTimeout)
}

func (s *Session) exchange(ctx context.Context, req Envelope, timeout time.Duration) (Envelope, error) {
	payload, err := req.Marshal()
	if err != nil {
		return Envelope{}, err
	}
	data, err := s.transport.Exchange(ctx, s.device.Address(), payload, timeout)
	if err != nil {
		return Envelope{}, err
	}
	return ParseEnvelope(data)
}

// bindReply is the body of a bindok answer.
type bindReply struct {
	T   string `json:"t"`
	MAC string `json:"mac"`
	Key string `json:"key"`
}

// ensureBound must be called with s.mu held.
func (s *Session) ensureBound(ctx context.Context) error {
	if _, ok := s.device.Key(); ok {
		return nil
	}

	if s.device.MAC() == "" {
		if err := s.identify(ctx); err != nil {
			s.device.markUnavailable()
			return fmt.Errorf("%w: %s: %w", ErrBindFailed, s.device.ID(), err)
		}
	}

	key, source, err := s.negotiate(ctx)
	if err != nil {
		s.device.markUnavailable()
		return fmt.Errorf("%w: %s: %w", ErrBindFailed, s.device.ID(), err)
	}

	s.device.bind(key, source)
	if source == KeyGeneric {
		s.logger.Warn("device bound with the generic key; anyone on the LAN can control it",
			"device_id", s.device.ID(),
		)
		return nil
	}
	s.logger.Info("device bound",
		"device_id", s.device.ID(),
		"key_source", string(source),
	)
	return nil
}

func (s *Session) negotiate(ctx context.Context) (string, KeySource, error) {
	req, err := NewBindRequest(s.device.MAC())
	if err != nil {
		return "", KeyNone, err
	}
	reply, err := s.exchange(ctx, req, s.bindTimeout)
	if err != nil {
		return "", KeyNone, err
	}

	var body bindReply
	switch reply.T {
	case TagBindOK:
		if len(reply.Pack) > 0 {
			if err := reply.DecodePack(GenericKey, &body); err != nil {
				return "", KeyNone, err
			}
		}
	case TagPack:
		if err := reply.DecodePack(GenericKey, &body); err != nil {
			return "", KeyNone, err
		}
		if body.T != TagBindOK {
			return "", KeyNone, fmt.Errorf("%w: bind reply tagged %q", ErrUnexpectedResponse, body.T)
		}
	default:
		return "", KeyNone, fmt.Errorf("%w: bind reply tagged %q", ErrUnexpectedResponse, reply.T)
	}

	if body.Key == "" {
		return GenericKey, KeyGeneric, nil
	}
	return body.Key, KeyNegotiated, nil
}

// identify learns the MAC of a unit configured by address only.
func (s *Session) identify(ctx context.Context) error {
	reply, err := s.exchange(ctx, NewScanRequest(), s.exchangeTimeout)
	if err != nil {
		return err
	}
	info, err := decodeDevReply(reply)
	if err != nil {
		return err
	}
	if info.MAC == "" {
		return fmt.Errorf("%w: scan reply carries no mac", ErrUnexpectedResponse)
	}
	s.device.setMAC(info.MAC)
	return nil
}

// devInfo is the body of a dev reply.
type devInfo struct {
	T     string `json:"t"`
	CID   string `json:"cid"`
	Name  string `json:"name"`
	MAC   string `json:"mac"`
	Brand string `json:"brand"`
	Model string `json:"model"`
	Ver   string `json:"ver"`
}

// decodeDevReply accepts a dev frame with a plaintext or generic-key pack,
// and a pack frame whose inner tag is dev.
func decodeDevReply(reply Envelope) (devInfo, error) {
	var info devInfo
	switch reply.T {
	case TagDev, TagPack:
		if reply.T == TagDev && len(reply.Pack) == 0 {
			break
		}
		if err := reply.DecodePack(GenericKey, &info); err != nil {
			return devInfo{}, err
		}
	default:
		return devInfo{}, fmt.Errorf("%w: scan reply tagged %q", ErrUnexpectedResponse, reply.T)
	}
	if reply.T == TagPack && info.T != TagDev {
		return devInfo{}, fmt.Errorf("%w: scan reply tagged %q", ErrUnexpectedResponse, info.T)
	}
	if info.MAC == "" {
		info.MAC = info.CID
	}
	return info, nil
}
