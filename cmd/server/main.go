package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/apereira/contago"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfp := flag.String("config", "config.yml", "path to configuration file")
	flag.Parse()

	var cfg contago.Config
	cfgfl, err := os.Open(*cfp)
	if err != nil {
		logger.Fatal().Err(err).Msg("error opening config file")
	}
	if err = yaml.NewDecoder(cfgfl).Decode(&cfg); err != nil {
		logger.Fatal().Err(err).Msg("error decoding config file")
	}
	cfgfl.Close()

	acctCfg, err := cfg.AccountConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("error parsing account limits")
	}

	var repo contago.Repository
	if cfg.Database.ConnectionString != "" {
		// distinct from the service node so entry IDs from the two
		// generators cannot collide
		node, err := snowflake.NewNode(cfg.NodeID + 1)
		if err != nil {
			logger.Fatal().Err(err).Msg("error creating snowflake node")
		}
		pgendpt, err := contago.NewPostgresEndpoint(cfg.Database.ConnectionString, node, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("error starting database")
		}
		repo = pgendpt
	} else {
		logger.Warn().Msg("no database configured, ledger state is in-memory only")
		repo = contago.NewMemoryEndpoint()
	}

	base, err := contago.NewService(repo, cfg.NodeID, acctCfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting service")
	}

	reg := prometheus.NewRegistry()
	var svc contago.Service = base
	svc = contago.NewInstrumentingMiddleware(reg)(svc)
	svc = contago.NewLimitMiddleware(cfg.ServiceLimits())(svc)
	svc = contago.NewCircuitBreakMiddleware(contago.NewServiceBreaker())(svc)
	svc = contago.NewValidationMiddleware()(svc)

	hndlr := contago.NewHTTPHandler(svc, &logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", hndlr)

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":3000"
	}
	logger.Info().Str("addr", addr).Msg("listening")
	if err = http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
