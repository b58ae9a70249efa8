package gree

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"
)

// simDevice is a loopback UDP unit speaking the device side of the protocol.
type simDevice struct {
	t    *testing.T
	conn *net.UDPConn

	mac  string
	name string

	mu        sync.Mutex
	bindKey   string // returned in bindok; empty means no key field
	dat       []int
	silent    bool
	bindCount int
	scanCount int
	commands  []Instruction
}

func newSimDevice(t *testing.T, mac string) *simDevice {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &simDevice{
		t:    t,
		conn: conn,
		mac:  mac,
		name: "Sim " + mac,
		dat:  []int{1, 1, 25, 0, 23, 3, 1, 0, 0, 0, 1, 0, 0},
	}
	go s.serve()
	t.Cleanup(func() { conn.Close() })
	return s
}

func (s *simDevice) port() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

func (s *simDevice) addr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(s.port()))
}

func (s *simDevice) options() DeviceOptions {
	return DeviceOptions{Host: "127.0.0.1", Port: s.port(), MAC: s.mac}
}

func (s *simDevice) setSilent(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = v
}

func (s *simDevice) setBindKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindKey = key
}

func (s *simDevice) setDat(dat []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dat = dat
}

func (s *simDevice) binds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindCount
}

func (s *simDevice) receivedCommands() []Instruction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Instruction(nil), s.commands...)
}

// sessionKey is the key the unit uses after bind. Callers hold s.mu.
func (s *simDevice) sessionKey() string {
	if s.bindKey != "" {
		return s.bindKey
	}
	return GenericKey
}

func (s *simDevice) serve() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		s.mu.Lock()
		silent := s.silent
		s.mu.Unlock()
		if silent {
			continue
		}

		req, err := ParseEnvelope(buf[:n])
		if err != nil {
			continue
		}
		reply, ok := s.handle(req)
		if !ok {
			continue
		}
		data, err := reply.Marshal()
		if err != nil {
			continue
		}
		_, _ = s.conn.WriteToUDP(data, from)
	}
}

func (s *simDevice) handle(req Envelope) (Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.T {
	case TagScan:
		s.scanCount++
		return s.pack(map[string]any{
			"t": TagDev, "cid": s.mac, "mac": s.mac, "name": s.name,
			"brand": "gree", "model": "sim", "ver": "V1.0",
		}, GenericKey), true

	case TagBind:
		s.bindCount++
		body := map[string]any{"t": TagBindOK, "mac": s.mac}
		if s.bindKey != "" {
			body["key"] = s.bindKey
		}
		return s.pack(body, GenericKey), true

	case TagPack:
		inner, err := req.Open(s.sessionKey())
		if err != nil {
			return Envelope{}, false
		}
		var tag struct {
			T   string   `json:"t"`
			Opt []string `json:"opt"`
			P   []int    `json:"p"`
		}
		if err := json.Unmarshal(inner, &tag); err != nil {
			return Envelope{}, false
		}
		switch tag.T {
		case TagStatus:
			return s.pack(map[string]any{
				"t": "dat", "mac": s.mac, "cols": StatusColumns[:], "dat": s.dat,
			}, s.sessionKey()), true
		case TagCmd:
			s.commands = append(s.commands, Instruction{Opt: tag.Opt, P: tag.P, T: tag.T})
			return s.pack(map[string]any{
				"t": TagRes, "mac": s.mac, "opt": tag.Opt, "p": tag.P, "val": tag.P, "r": 200,
			}, s.sessionKey()), true
		}
	}
	return Envelope{}, false
}

func (s *simDevice) pack(body any, key string) Envelope {
	raw, err := json.Marshal(body)
	if err != nil {
		s.t.Errorf("marshal sim reply: %v", err)
		return Envelope{}
	}
	cipher, err := Encrypt(raw, key)
	if err != nil {
		s.t.Errorf("encrypt sim reply: %v", err)
		return Envelope{}
	}
	packJSON, _ := json.Marshal(cipher)
	return Envelope{CID: s.mac, I: 1, T: TagPack, UID: 0, Pack: packJSON}
}

// countingTransport records calls and fails every exchange.
type countingTransport struct {
	mu        sync.Mutex
	exchanges int
	err       error
}

func (c *countingTransport) Exchange(context.Context, string, []byte, time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges++
	if c.err != nil {
		return nil, c.err
	}
	return nil, ErrNetworkTimeout
}

func (c *countingTransport) Broadcast(context.Context, string, []byte, time.Duration, func(*net.UDPAddr, []byte)) error {
	return nil
}

func (c *countingTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchanges
}

// recordingSink captures everything the poller publishes.
type recordingSink struct {
	mu           sync.Mutex
	availability map[string][]bool
	states       map[string][]DeviceState
	failWith     error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		availability: make(map[string][]bool),
		states:       make(map[string][]DeviceState),
	}
}

func (r *recordingSink) PublishAvailability(id string, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.availability[id] = append(r.availability[id], available)
	return r.failWith
}

func (r *recordingSink) PublishState(id string, state DeviceState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[id] = append(r.states[id], state)
	return r.failWith
}

func (r *recordingSink) availabilityFor(id string) []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.availability[id]...)
}

func (r *recordingSink) statesFor(id string) []DeviceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DeviceState(nil), r.states[id]...)
}

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	published []mockPublish
	connected bool
	handlers  map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// lastPayload returns the most recent payload published on topic.
func (m *MockMQTTClient) lastPayload(topic string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.published) - 1; i >= 0; i-- {
		if m.published[i].Topic == topic {
			return string(m.published[i].Payload), true
		}
	}
	return "", false
}

// SimulateMessage delivers payload to the handler subscribed with pattern.
func (m *MockMQTTClient) SimulateMessage(pattern, topic string, payload []byte) {
	m.mu.Lock()
	handler, ok := m.handlers[pattern]
	m.mu.Unlock()
	if ok {
		handler(topic, payload)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

var errTestTransport = errors.New("transport failure")
