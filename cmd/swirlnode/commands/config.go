package commands

import (
	"github.com/swirlchain/swirlnode/config"
)

// CLIConfig bundles the intake platform's Config with the CLI-only
// settings run needs to bootstrap it: key material, address book, and
// gossip bind address.
type CLIConfig struct {
	Node             config.Config `mapstructure:",squash"`
	NodeID           uint64        `mapstructure:"node-id"`
	KeyFile          string        `mapstructure:"keyfile"`
	AddressBookFile  string        `mapstructure:"addressbook"`
	GossipListenAddr string        `mapstructure:"gossip-listen"`
	Standalone       bool          `mapstructure:"standalone"`
}

func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Node:             *config.NewDefaultConfig(),
		KeyFile:          "priv_key",
		AddressBookFile:  "addressbook.json",
		GossipListenAddr: "127.0.0.1:1337",
		Standalone:       true,
	}
}
