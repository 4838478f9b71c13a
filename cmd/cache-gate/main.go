package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	cachegate "github.com/cache-gate/cache-gate"
	"github.com/cache-gate/cache-gate/cache"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// environment overrides for the flag defaults
type envConfig struct {
	Origin      string `env:"CACHE_GATE_ORIGIN"`
	Port        int    `env:"CACHE_GATE_PORT" envDefault:"8080"`
	Version     string `env:"CACHE_GATE_VERSION" envDefault:"v1"`
	DbFilename  string `env:"CACHE_GATE_DB" envDefault:"cache.db"`
	PolicyFile  string `env:"CACHE_GATE_POLICY"`
	LogFilename string `env:"CACHE_GATE_LOG_FILE"`
}

var (
	portFlag           int
	originFlag         string
	versionFlag        string
	dbFilenameFlag     string
	policyFilenameFlag string
	refreshFlag        time.Duration
	verbosityTraceFlag bool
	logFilenameFlag    string
)

func main() {
	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		log.Fatal().Err(err).Msg("Cannot parse environment")
	}

	flag.StringVar(&originFlag, "origin", envCfg.Origin, "Origin URL to proxy to")
	flag.IntVar(&portFlag, "port", envCfg.Port, "Port to listen on")
	flag.StringVar(&versionFlag, "cache-version", envCfg.Version, "Cache generation version identifier")
	flag.StringVar(&dbFilenameFlag, "db", envCfg.DbFilename, "Cache DB file name (use 'memory' for in-memory db)")
	flag.StringVar(&policyFilenameFlag, "policy", envCfg.PolicyFile, "Path to policy yaml file")
	flag.DurationVar(&refreshFlag, "refresh", 0, "Background refresh interval (0 to disable)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", envCfg.LogFilename, "Log file to use (in addition to stdout)")
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to rotating logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		logOutputs = append(logOutputs, &lumberjack.Logger{
			Filename:   logFilenameFlag,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
		})
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", versionFlag).Logger()

	if originFlag == "" {
		log.Fatal().Msg("Please specify origin")
	}
	originUrl, err := url.Parse(originFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	policy := cachegate.DefaultPolicy()
	if policyFilenameFlag != "" {
		policy, err = cachegate.LoadPolicy(policyFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not load policy file")
		}
	}

	dbFilename := dbFilenameFlag
	if dbFilename == "memory" {
		dbFilename = ""
	}

	gate, err := cachegate.New(cachegate.Config{
		Cache:           cache.NewSQLiteCache(dbFilename),
		Origin:          *originUrl,
		Version:         versionFlag,
		Policy:          &policy,
		Logger:          &log.Logger,
		RefreshInterval: refreshFlag,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create gatekeeper")
	}

	ctx := context.Background()
	if err := gate.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Could not install and activate cache generation")
	}

	r := chi.NewRouter()
	r.Get("/-/healthz", func(w http.ResponseWriter, req *http.Request) {
		io.WriteString(w, "ok")
	})
	r.Post("/-/refresh", func(w http.ResponseWriter, req *http.Request) {
		go func() {
			if err := gate.RefreshAll(ctx); err != nil {
				log.Warn().Err(err).Msg("Refresh failed")
			}
		}()
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, "Refreshing all content...")
	})
	r.Handle("/*", gate.Handler())

	log.Info().Msgf("Proxying port %v to %s", portFlag, originUrl.String())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", portFlag), r); err != nil {
		panic(err)
	}
}
