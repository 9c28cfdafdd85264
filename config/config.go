// Package config loads the node and client TOML profiles described in
// spec §6. File I/O and parsing are glue around the core — the broker
// and client packages only ever see already-parsed structs.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/amqnet/amq/internal/xcrypto"
	"github.com/amqnet/amq/wire"
)

// NodeConfig is the broker node's TOML profile.
type NodeConfig struct {
	PublicKey string `toml:"public_key"`
	SecretKey string `toml:"secret_key"`
	Port      int    `toml:"port"`
}

// MessageKeyConfig holds the keys a client uses for body sealing; the
// broker never sees these. The keys are an Ed25519 keypair in hex
// (32-byte public, 64-byte secret) that internal/xcrypto converts to
// X25519 when sealing and opening; raw X25519 keys are not accepted.
type MessageKeyConfig struct {
	PublicKey string `toml:"public_key"`
	SecretKey string `toml:"secret_key"`
	Sign      bool   `toml:"sign"`
	Encode    bool   `toml:"encode"`
}

// ClientNodeConfig is the address of the broker a client dials.
type ClientNodeConfig struct {
	IP   string `toml:"ip"`
	Port int    `toml:"port"`
}

// ClientConfig is an interactive client's TOML profile.
type ClientConfig struct {
	ID        string           `toml:"id"`
	PublicKey string           `toml:"public_key"`
	SecretKey string           `toml:"secret_key"`
	Node      ClientNodeConfig `toml:"node"`
	Message   MessageKeyConfig `toml:"message"`
}

// LoadNodeConfig reads and parses a node TOML profile.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read node config %s: %w", path, err)
	}

	var cfg NodeConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse node config %s: %w", path, err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("config: node config %s: port is required", path)
	}
	return &cfg, nil
}

// LoadClientConfig reads and parses a client TOML profile.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read client config %s: %w", path, err)
	}

	var cfg ClientConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse client config %s: %w", path, err)
	}
	if cfg.Node.IP == "" || cfg.Node.Port == 0 {
		return nil, fmt.Errorf("config: client config %s: node.ip and node.port are required", path)
	}
	return &cfg, nil
}

// SaveNodeConfig writes cfg as TOML to path, creating a starter file
// for `amq node` (the CLI's config-file generation is glue, per
// spec §1's out-of-scope list, but still needs somewhere to live).
func SaveNodeConfig(path string, cfg *NodeConfig) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal node config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write node config %s: %w", path, err)
	}
	return nil
}

// SaveClientConfig writes cfg as TOML to path.
func SaveClientConfig(path string, cfg *ClientConfig) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal client config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write client config %s: %w", path, err)
	}
	return nil
}

// KeyPair resolves the node's hex-encoded keys into an xcrypto.KeyPair.
func (c *NodeConfig) KeyPair() (xcrypto.KeyPair, error) {
	return decodeKeyPair(c.PublicKey, c.SecretKey)
}

// KeyPair resolves the client's identity keys into an xcrypto.KeyPair.
func (c *ClientConfig) KeyPair() (xcrypto.KeyPair, error) {
	return decodeKeyPair(c.PublicKey, c.SecretKey)
}

// MessageKeyPair resolves the client's message sealing keys. They are
// a separate Ed25519 keypair from the identity keys; sealing derives
// the X25519 keys from them (see internal/xcrypto).
func (c *ClientConfig) MessageKeyPair() (xcrypto.KeyPair, error) {
	return decodeKeyPair(c.Message.PublicKey, c.Message.SecretKey)
}

func decodeKeyPair(pubHex, privHex string) (xcrypto.KeyPair, error) {
	pub, err := xcrypto.DecodePublicKeyHex(pubHex)
	if err != nil {
		return xcrypto.KeyPair{}, fmt.Errorf("config: decode public key: %w", err)
	}
	priv, err := xcrypto.DecodePrivateKeyHex(privHex)
	if err != nil {
		return xcrypto.KeyPair{}, fmt.Errorf("config: decode private key: %w", err)
	}
	return xcrypto.KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// WirePK converts a hex-encoded public key from config into a wire.PK.
func WirePK(hexKey string) (wire.PK, error) {
	return wire.PKFromHex(hexKey)
}
