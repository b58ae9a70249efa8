// Package gree implements the Gree air-conditioner protocol bridge.
//
// Units are controlled over UDP port 7000 with JSON datagrams. Everything
// except the discovery probe and the bind request is carried in an
// AES-128-ECB encrypted "pack" under a per-device key.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐   UDP/7000
//	│ Home Assistant  │   MQTT   │   Gree Bridge   │◄────────► AC units
//	│   (or others)   │◄────────►│   (this pkg)    │
//	└─────────────────┘          └─────────────────┘
//
// # Components
//
//   - Encrypt/Decrypt: the pack cipher (crypto.go)
//   - Envelope: outer frames for scan, bind and pack (envelope.go)
//   - DecodeStatus/EncodeStatus: the 13-column status vector (status.go)
//   - Translate: command fields to opcodes (command.go)
//   - Session: bind, status and command exchanges for one device
//   - Discovery: broadcast scan with a bounded reply window
//   - Poller: periodic status refresh with a worker limit
//   - Dispatcher: single loop executing queued commands
//   - MQTTSink: Home Assistant climate topics
//
// # Device Lifecycle
//
// A device starts unbound unless a key was configured. The first exchange
// binds it: the unit either returns its own key or none, in which case the
// generic key is kept. Bound devices flip between available and
// unavailable on every exchange; the key is never dropped on failure.
//
// # Security
//
// The cipher mode and the generic fallback key are fixed by the hardware.
// Anyone on the LAN can read traffic from units using the generic key and
// send them commands.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package gree
