package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/swirlchain/swirlnode/addressbook"
	"github.com/swirlchain/swirlnode/appstate"
	"github.com/swirlchain/swirlnode/cryptosig"
	"github.com/swirlchain/swirlnode/gossip"
	"github.com/swirlchain/swirlnode/platform"
)

// NewRunCmd returns the command that starts a swirlnode process.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runNode,
	}
	AddRunFlags(cmd)
	return cmd
}

func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", cliConfig.Node.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log-level", cliConfig.Node.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-dir", cliConfig.Node.LogDir, "Directory for per-level log files (empty disables file logging)")
	cmd.Flags().String("stats-listen", cliConfig.Node.StatsAddr, "Listen IP:Port for the /stats and /metrics HTTP endpoints")

	cmd.Flags().Uint64("node-id", cliConfig.NodeID, "This node's numeric identifier in the address book")
	cmd.Flags().String("keyfile", cliConfig.KeyFile, "File containing this node's private key")
	cmd.Flags().String("addressbook", cliConfig.AddressBookFile, "File containing the address book")
	cmd.Flags().StringP("gossip-listen", "l", cliConfig.GossipListenAddr, "Listen IP:Port for gossip")
	cmd.Flags().Bool("standalone", cliConfig.Standalone, "Run without a gossip peer, creating self-events only")

	cmd.Flags().Int("cache-size", cliConfig.Node.CacheSize, "Number of items in the deduplication LRU cache")
	cmd.Flags().Float64("event-creation-rate", cliConfig.Node.EventCreationRate, "Self-events created per second")
	cmd.Flags().Bool("ancient-mode-birth-round", cliConfig.Node.AncientModeBirthRound, "Use birth-round instead of generation for the ancient window")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := viper.Unmarshal(cliConfig); err != nil {
		return err
	}

	viper.SetConfigName("swirlnode")
	viper.AddConfigPath(cliConfig.Node.DataDir)
	if err := viper.ReadInConfig(); err == nil {
		cliConfig.Node.Logger().Debugf("using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		return err
	}
	if err := viper.Unmarshal(cliConfig); err != nil {
		return err
	}

	cliConfig.Node.Logger().WithFields(logrus.Fields{
		"datadir":     cliConfig.Node.DataDir,
		"node-id":     cliConfig.NodeID,
		"standalone":  cliConfig.Standalone,
		"gossip":      cliConfig.GossipListenAddr,
		"addressbook": cliConfig.AddressBookFile,
	}).Debug("RUN")

	return nil
}

func runNode(cmd *cobra.Command, args []string) error {
	log := cliConfig.Node.Logger()

	priv, err := cryptosig.NewKeyfile(cliConfig.KeyFile).ReadKey()
	if err != nil {
		return fmt.Errorf("reading private key: %w", err)
	}
	signer := cryptosig.NewECDSASigner(priv)

	book, err := addressbook.LoadJSON(cliConfig.AddressBookFile)
	if err != nil {
		return fmt.Errorf("loading address book: %w", err)
	}
	books := addressbook.NewManager(book)

	var transport gossip.Transport
	if !cliConfig.Standalone {
		transport = gossip.NewInmemTransport(cliConfig.NodeID)
		log.Warn("no production gossip transport is wired yet; running with an unconnected in-memory transport")
	}

	deps := platform.Deps{
		NodeID:    cliConfig.NodeID,
		Signer:    signer,
		Verifier:  signer,
		Books:     books,
		Transport: transport,
		AppState:  appstate.NewInmemStateMachine(),
	}

	coordinator, err := platform.NewCoordinator(&cliConfig.Node, deps)
	if err != nil {
		return fmt.Errorf("constructing platform: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := coordinator.Start(ctx); err != nil {
		return fmt.Errorf("starting platform: %w", err)
	}
	if cliConfig.Node.StatsAddr != "" {
		if err := coordinator.StartStatusServer(cliConfig.Node.StatsAddr); err != nil {
			log.WithField("error", err).Warn("failed to start status server")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
	return coordinator.Stop(context.Background())
}
