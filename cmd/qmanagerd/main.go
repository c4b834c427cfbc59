package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	stdlog "log"

	"github.com/ardanlabs/conf/v3"
	"github.com/jkaessens/qmanager/internal/daemonhost"
	"github.com/jkaessens/qmanager/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	log, err := logger.New("QMANAGER")
	if err != nil {
		stdlog.Fatalf("setting up logger: %v", err)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Fatalf("running: %v", err)
	}
	log.Info("stopping service")
}

func run(log *zap.SugaredLogger) error {
	log.Infow("starting service", "configuration", "initializing")
	cfg := struct {
		Server struct {
			Port int `conf:"env:QMANAGER_PORT,default:7654"`
		}
		Authen struct {
			ServerCertFile string `conf:"env:QMANAGER_SERVER_CERT_FILE"`
			ServerKeyFile  string `conf:"env:QMANAGER_SERVER_KEY_FILE"`
		}
		Paths struct {
			StateFile     string `conf:"env:QMANAGER_STATE_FILE,default:qmanager-state.json"`
			AppkeyMapFile string `conf:"env:QMANAGER_APPKEY_MAP_FILE,default:appkeys.conf"`
		}
		Notify struct {
			URL string `conf:"env:QMANAGER_NOTIFY_URL"`
		}
	}{}

	help, err := conf.Parse("", &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}
	cfgString, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("config to string: %w", err)
	}
	log.Infow("starting service", "configuration\n", cfgString)

	// An XOR between cert and key is a hard configuration error;
	// absence of both means plain HTTP.
	haveCert := cfg.Authen.ServerCertFile != ""
	haveKey := cfg.Authen.ServerKeyFile != ""
	if haveCert != haveKey {
		return fmt.Errorf("server cert and key must both be set, or both be empty")
	}

	var tlsConfig *tls.Config
	if haveCert {
		log.Infow("starting service", "configuration", "loading server credentials")
		cert, err := tls.LoadX509KeyPair(cfg.Authen.ServerCertFile, cfg.Authen.ServerKeyFile)
		if err != nil {
			return fmt.Errorf("loading server key pair: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	host, err := daemonhost.New(daemonhost.Config{
		Addr:          fmt.Sprintf(":%d", cfg.Server.Port),
		TLSConfig:     tlsConfig,
		StateFile:     cfg.Paths.StateFile,
		AppkeyMapFile: cfg.Paths.AppkeyMapFile,
		NotifyURL:     cfg.Notify.URL,
	}, log)
	if err != nil {
		return fmt.Errorf("initializing daemon host: %w", err)
	}

	log.Infow("starting service", "listening", fmt.Sprintf(":%d", cfg.Server.Port), "tls", tlsConfig != nil)
	return host.Run(context.Background())
}
