// Package main fetches the token managers issued by a wallet once and prints
// them as JSON.
//
// Usage:
//
//	tokenmanagers -wallet <pubkey> [-cluster mainnet-beta] [-project acme]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"

	"token-manager-dashboard/internal/datahook"
	"token-manager-dashboard/internal/environment"
	"token-manager-dashboard/internal/indexer"
	"token-manager-dashboard/internal/logging"
	"token-manager-dashboard/internal/projectconfig"
	"token-manager-dashboard/internal/solana"
	"token-manager-dashboard/internal/tokenmanager"
)

func main() {
	_ = godotenv.Load()

	wallet := flag.String("wallet", os.Getenv("WALLET"), "Issuer wallet public key (base58)")
	cluster := flag.String("cluster", envOr("DEFAULT_CLUSTER", "mainnet-beta"), "Cluster label")
	project := flag.String("project", "", "Project whose filters apply to the output")
	envFile := flag.String("environments", os.Getenv("ENVIRONMENTS_FILE"), "Cluster environments file (.toml or .json)")
	configEndpoint := flag.String("config-endpoint", projectconfig.DefaultEndpoint, "Project config service base URL")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Override the cluster RPC endpoint")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall fetch timeout")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "warn"), "Log level")
	flag.Parse()

	log := logging.New("tokenmanagers", *logLevel, logging.FormatConsole)
	tokenmanager.SetLogger(log)

	if *wallet == "" {
		fmt.Fprintln(os.Stderr, "-wallet is required")
		flag.Usage()
		os.Exit(2)
	}
	issuer, err := solana.PublicKeyFromBase58(*wallet)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid wallet")
	}

	var envs *environment.Registry
	if *envFile != "" {
		envs, err = environment.LoadFile(environment.OSFileReader{}, *envFile)
	} else {
		envs, err = environment.NewRegistry(environment.Defaults()...)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environments")
	}
	env, err := envs.Get(*cluster)
	if err != nil {
		log.Fatal().Err(err).Strs("known", envs.Labels()).Msg("unknown cluster")
	}
	if *rpcEndpoint != "" {
		env.RPCEndpoint = *rpcEndpoint
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	loader := projectconfig.NewLoader(
		projectconfig.WithEndpoint(*configEndpoint),
		projectconfig.WithLogger(log),
	)
	if *project != "" {
		if err := loader.Navigate(ctx, url.Values{"project": {*project}}); err != nil {
			log.Warn().Err(err).Str("project", *project).Msg("continuing without project filters")
		}
	}

	opts := datahook.Options{
		Environment: env,
		Filters:     loader.Filters,
		Logger:      &log,
	}
	if env.HasIndexer() {
		opts.Indexer = indexer.NewClient(env.API)
	} else {
		opts.Chain = tokenmanager.NewChainSource(solana.NewHTTPClient(env.RPCEndpoint))
	}
	hook, err := datahook.New(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create data hook")
	}
	defer hook.Close()

	hook.SetWallet(issuer)
	st, err := hook.RefreshAndWait(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("fetch did not complete")
	}
	if st.Err != nil {
		log.Fatal().Err(st.Err).Msg("fetch failed")
	}

	out := make([]indexer.RawTokenData, 0, len(st.Value))
	for _, td := range st.Value {
		out = append(out, indexer.EncodeTokenData(td))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]interface{}{"data": out}); err != nil {
		log.Fatal().Err(err).Msg("failed to write output")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
