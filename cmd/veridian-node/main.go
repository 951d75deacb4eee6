package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/veridian-chain/veridian/core"
)

func main() {
	rootCmd := &cobra.Command{Use: "veridian-node"}
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(manifestCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openNode wires a Store, BuilderDeps, and Node from the TOML configuration
// at the given environment name, matching the shape NewNode expects.
func openNode(env string) (*core.Node, *core.Store, error) {
	cfg, err := core.Load(env)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	kv, err := core.OpenBoltKVStore(cfg.Dir + "/veridian.bolt")
	if err != nil {
		return nil, nil, fmt.Errorf("open kv store: %w", err)
	}
	store, err := core.NewStore(kv, cfg.CheckableDepth)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	var sigAlgo core.SignatureAlgorithm = core.Ed25519Algorithm{}
	if cfg.SignatureAlgorithm == "empty" {
		sigAlgo = core.EmptyAlgorithm{}
	}
	deps := core.BuilderDeps{
		Sandbox:    core.NewTestSandbox(),
		SigAlgo:    sigAlgo,
		ChainID:    cfg.ChainID,
		GasPrice:   1,
		MaxGas:     cfg.MaxGasPerViewTransaction,
		MaxViewGas: cfg.MaxGasPerViewTransaction,
	}
	node, err := core.NewNode(store, deps, *cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("new node: %w", err)
	}
	return node, store, nil
}

func startCmd() *cobra.Command {
	var env, addr string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start a node and serve its HTTP API with an inline single-process mempool",
		RunE: func(cmd *cobra.Command, args []string) error {
			node, store, err := openNode(env)
			if err != nil {
				return err
			}
			mempool := core.NewInlineMempool(node)
			api := core.NewHTTPAPI(node, mempool)
			logrus.WithFields(logrus.Fields{
				"commit_count": store.GetCommitCount(),
				"addr":         addr,
			}).Info("veridian-node: started")
			return http.ListenAndServe(addr, api.Router())
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment name (merges <env>.toml over default.toml)")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	return cmd
}

func submitCmd() *cobra.Command {
	var env, jarPath, pubKeyHex, green string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "submit a gamete-creation + jar-store-initial bootstrap pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			node, _, err := openNode(env)
			if err != nil {
				return err
			}
			mempool := core.NewInlineMempool(node)
			ctx := context.Background()

			jar := []byte{}
			if jarPath != "" {
				jar, err = os.ReadFile(jarPath)
				if err != nil {
					return fmt.Errorf("read jar: %w", err)
				}
			}
			jarReq := &core.JarStoreInitialRequest{Jar: jar}
			jarTR, err := node.AddRequest(ctx, mempool, jarReq)
			if err != nil {
				return err
			}
			fmt.Printf("jar-store-initial TR: %s\n", jarTR)

			pubKey, err := hex.DecodeString(pubKeyHex)
			if err != nil {
				return fmt.Errorf("decode public key: %w", err)
			}
			greenAmt, ok := new(big.Int).SetString(green, 10)
			if !ok {
				return fmt.Errorf("bad green amount %q", green)
			}
			gameteReq := &core.GameteCreationRequest{
				Classpath:    jarTR,
				InitialGreen: greenAmt,
				InitialRed:   big.NewInt(0),
				PublicKey:    pubKey,
			}
			gameteTR, err := node.AddRequest(ctx, mempool, gameteReq)
			if err != nil {
				return err
			}
			fmt.Printf("gamete-creation TR: %s\n", gameteTR)
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment name")
	cmd.Flags().StringVar(&jarPath, "jar", "", "path to the base code jar")
	cmd.Flags().StringVar(&pubKeyHex, "pubkey", "", "hex-encoded gamete public key")
	cmd.Flags().StringVar(&green, "green", "0", "initial green balance")
	return cmd
}

func pollCmd() *cobra.Command {
	var env, trHex string
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "poll for a transaction reference's response",
		RunE: func(cmd *cobra.Command, args []string) error {
			node, _, err := openNode(env)
			if err != nil {
				return err
			}
			tr, err := core.ParseTransactionReference(trHex)
			if err != nil {
				return err
			}
			resp, err := node.GetPolledResponse(context.Background(), tr)
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment name")
	cmd.Flags().StringVar(&trHex, "tr", "", "hex-encoded transaction reference")
	return cmd
}

func manifestCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "print the node's manifest object reference, if initialized",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openNode(env)
			if err != nil {
				return err
			}
			snap := store.Snapshot()
			manifest, ok := snap.GetManifest()
			if !ok {
				return fmt.Errorf("node is not yet initialized")
			}
			fmt.Println(manifest.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment name")
	return cmd
}
