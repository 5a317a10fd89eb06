package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	figure "github.com/common-nighthawk/go-figure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"nosana-node/node"
	"nosana-node/secrets"
	nosana_protocol "nosana-node/solana"
	"nosana-node/storage"
)

var trace bool

var rootCmd = &cobra.Command{
	Use:   "nosana-node",
	Short: "Run a Nosana worker node.",
	Long:  `A long-running daemon that joins a Nosana compute market, executes assigned jobs and posts their results on-chain.`,
	Run:   run,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "enable trace logging")
}

func run(cmd *cobra.Command, args []string) {
	if trace {
		logrus.SetLevel(logrus.TraceLevel)
	}

	cfg, err := LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}

	client, err := nosana_protocol.NewClient(cfg.RpcURL, cfg.PrivateKey, cfg.Network)
	if err != nil {
		logrus.Fatalf("failed to create Solana client: %v", err)
	}
	nodeCfg, err := nosana_protocol.DeriveNodeConfig(
		cfg.PrivateKey, cfg.DummyKey, cfg.Market, cfg.NftMint, cfg.Collection, cfg.Network,
	)
	if err != nil {
		logrus.Fatalf("failed to derive node configuration: %v", err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		logrus.Fatalf("failed to get user home directory: %v", err)
	}
	store, err := storage.Open(filepath.Join(homeDir, ".nosana", "flows"))
	if err != nil {
		logrus.Fatalf("failed to open flow store: %v", err)
	}

	ipfs := node.NewIpfsClient(cfg.IpfsURL, cfg.PinataJWT)
	var sec *secrets.Client
	if cfg.SecretsEndpoint != "" {
		sec = secrets.NewClient(cfg.SecretsEndpoint, cfg.PrivateKey)
	}
	engine := node.NewStoreEngine(store, ipfs)
	worker := node.NewNode(client, nodeCfg, engine, ipfs, sec, cfg.PollDelay)

	ctx := context.Background()
	health, err := worker.CheckHealth(ctx)
	if err != nil {
		health = &node.Health{Problems: []string{err.Error()}}
	}
	printBanner(nodeCfg, health)

	exit := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("shutdown signal received")
		close(exit)
	}()

	switch {
	case !cfg.StartJobLoop:
		logrus.Info("job loop disabled by configuration, staying up for diagnostics")
		<-exit
	case !health.Ok():
		logrus.Warn("health check failed, job loop disabled, staying up for diagnostics")
		<-exit
	default:
		worker.Start(ctx, exit)
	}
	logrus.Info("node stopped")
}

func printBanner(cfg *nosana_protocol.NodeConfig, health *node.Health) {
	banner := figure.NewFigure("NOSANA", "larry3d", true)
	fmt.Println(titleStyle.Render(banner.String()))

	fmt.Println(infoStyle.Render(fmt.Sprintf("  Address: %s", cfg.Address)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("  Market:  %s", cfg.Market)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("  Network: %s", cfg.Network)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("  SOL:     %.9f", float64(health.Sol)/1e9)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("  NOS:     %.6f", float64(health.Nos)/1e6)))
	fmt.Println(infoStyle.Render(fmt.Sprintf("  NFT:     %d", health.Nft)))

	if health.Ok() {
		fmt.Println(titleStyle.Render("  Health check passed"))
		return
	}
	for _, problem := range health.Problems {
		fmt.Println(warningStyle.Render("  ✗ " + problem))
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
