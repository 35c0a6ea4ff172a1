package commands

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/swirlchain/swirlnode/cryptosig"
)

var (
	privKeyFile string
	pubKeyFile  string
)

// NewKeygenCmd produces a command that creates a new node key pair.
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create new key pair",
		RunE:  keygen,
	}
	AddKeygenFlags(cmd)
	return cmd
}

func AddKeygenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&privKeyFile, "priv", cliConfig.KeyFile, "File where the private key will be written")
	cmd.Flags().StringVar(&pubKeyFile, "pub", cliConfig.KeyFile+".pub", "File where the public key will be written")
}

func keygen(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(privKeyFile); err == nil {
		return fmt.Errorf("a key already lives under: %s", path.Dir(privKeyFile))
	}

	key, err := cryptosig.GenerateECDSAKey()
	if err != nil {
		return fmt.Errorf("generating ECDSA key: %w", err)
	}

	if err := cryptosig.NewKeyfile(privKeyFile).WriteKey(key); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	fmt.Printf("Your private key has been saved to: %s\n", privKeyFile)

	pub := cryptosig.ToHex(cryptosig.FromECDSAPub(&key.PublicKey))
	if err := os.MkdirAll(path.Dir(pubKeyFile), 0700); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	if err := ioutil.WriteFile(pubKeyFile, []byte(pub), 0600); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	fmt.Printf("Your public key has been saved to: %s\n", pubKeyFile)
	fmt.Printf("PublicKey: %s\n", pub)

	return nil
}
