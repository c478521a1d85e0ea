package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/cedarauth/cedar/pkg/authtree"
	"github.com/cedarauth/cedar/pkg/authtree/nodes"
	"github.com/cedarauth/cedar/pkg/config"
	"github.com/cedarauth/cedar/pkg/identity"
	"github.com/cedarauth/cedar/pkg/observability"
	"github.com/cedarauth/cedar/pkg/push"
	"github.com/cedarauth/cedar/pkg/saml2/binding"
	"github.com/cedarauth/cedar/pkg/saml2/proxy"
	"github.com/cedarauth/cedar/pkg/script"
	"github.com/cedarauth/cedar/pkg/server"
)

var version = "dev"

// correlationCacheSize bounds in-flight proxied round trips held in
// process memory; overflow correlations still resolve via Redis.
const correlationCacheSize = 1024

type flags struct {
	providersFile string
	realm         string
	smsWebhook    string
	emailWebhook  string
	pushWebhook   string
	showVersion   bool
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.providersFile, "providers", "", "YAML file of social identity providers")
	flag.StringVar(&f.realm, "realm", "/", "Realm served by this instance")
	flag.StringVar(&f.smsWebhook, "sms-webhook", "", "URL receiving OTP SMS deliveries (logged when empty)")
	flag.StringVar(&f.emailWebhook, "email-webhook", "", "URL receiving OTP email deliveries (logged when empty)")
	flag.StringVar(&f.pushWebhook, "push-webhook", "", "URL receiving push notification deliveries (logged when empty)")
	flag.BoolVar(&f.showVersion, "version", false, "Print version and exit")
	flag.Parse()
	return f
}

func setupBootLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stderr)
	return logger
}

func main() {
	f := parseFlags()
	if f.showVersion {
		fmt.Println("cedar " + version)
		return
	}

	boot := setupBootLogger()
	boot.Infof("Starting Cedar authentication server %s", version)

	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		boot.Infof("Received %s, shutting down", sig)
		cancel()
	}()

	providers, err := loadProviders(f.providersFile)
	if err != nil {
		boot.Fatalf("Failed to load provider configuration: %v", err)
	}

	store := identity.NewMemoryStore()

	reg := authtree.NewRegistry()
	nodes.RegisterAll(reg, nodes.Deps{
		Store:        store,
		Engine:       noScriptEngine(),
		SMSGateway:   webhookGateway(f.smsWebhook, "sms", logger),
		EmailGateway: webhookGateway(f.emailWebhook, "email", logger),
		Providers:    providers,
		Realm:        f.realm,
		Logger:       logger,
	})

	trees, err := authtree.LoadDirectory(cfg.Trees.Directory, reg, logger, metrics)
	if err != nil {
		boot.Fatalf("Failed to load tree definitions: %v", err)
	}
	treeSet := authtree.NewTreeSet(trees)
	boot.Infof("Loaded %d authentication trees from %s", len(trees), cfg.Trees.Directory)

	if cfg.Trees.Watch {
		watcher, err := authtree.NewWatcher(cfg.Trees.Directory, reg, treeSet, logger, metrics)
		if err != nil {
			boot.Fatalf("Failed to watch tree directory: %v", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && err != context.Canceled {
				logger.WithError(err).Error("tree watcher stopped")
			}
		}()
	}

	var samlProxy *proxy.Proxy
	var keyPair *binding.KeyPair
	if cfg.SAML.ProxyEnabled {
		samlProxy, keyPair, err = setupProxy(ctx, cfg, logger, metrics)
		if err != nil {
			boot.Fatalf("Failed to set up SAML proxy: %v", err)
		}
		boot.Infof("SAML IDP proxy enabled as %s", cfg.SAML.EntityID)
	}

	dispatcher := push.NewMemoryDispatcher(pushTransport(f.pushWebhook, logger))

	var gatherer prometheus.Gatherer
	if cfg.Observability.MetricsEnabled {
		gatherer = registry
	}

	srv, err := server.New(server.Options{
		Config:   cfg,
		Trees:    treeSet,
		Proxy:    samlProxy,
		KeyPair:  keyPair,
		Answerer: dispatcher,
		Logger:   logger,
		Metrics:  metrics,
		Gatherer: gatherer,
	})
	if err != nil {
		boot.Fatalf("Failed to create server: %v", err)
	}

	go runHealthServer(ctx, cfg.Server, treeSet, gatherer, logger)

	boot.Infof("Listening on %s:%s", cfg.Server.Host, cfg.Server.Port)
	if err := srv.Run(ctx); err != nil {
		boot.Fatalf("Server error: %v", err)
	}
	boot.Info("Shutdown complete")
}

// providerDefinition is the YAML shape of one entry in the providers file.
type providerDefinition struct {
	IssuerURL    string   `yaml:"issuerUrl"`
	ClientID     string   `yaml:"clientId"`
	ClientSecret string   `yaml:"clientSecret"`
	RedirectURL  string   `yaml:"redirectUrl"`
	Scopes       []string `yaml:"scopes"`
}

func loadProviders(path string) (map[string]*nodes.ProviderConfig, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	var defs map[string]providerDefinition
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	providers := make(map[string]*nodes.ProviderConfig, len(defs))
	for name, def := range defs {
		if def.IssuerURL == "" || def.ClientID == "" {
			return nil, fmt.Errorf("provider %q: issuerUrl and clientId are required", name)
		}
		providers[name] = &nodes.ProviderConfig{
			IssuerURL:    def.IssuerURL,
			ClientID:     def.ClientID,
			ClientSecret: def.ClientSecret,
			RedirectURL:  def.RedirectURL,
			Scopes:       def.Scopes,
		}
	}
	return providers, nil
}

// noScriptEngine rejects evaluation with a clear error. Deployments that
// use scripted decision nodes embed Cedar as a library and supply their
// own runtime behind script.Engine.
func noScriptEngine() script.Engine {
	return script.Func(func(_ context.Context, _, language string, _ script.Bindings) (interface{}, error) {
		return nil, fmt.Errorf("no %s engine configured", language)
	})
}

// webhookGateway delivers OTP messages by posting JSON to url. With no
// URL configured, deliveries are logged and succeed, which keeps demo
// trees usable without a messaging vendor.
func webhookGateway(url, channel string, logger *observability.Logger) nodes.Gateway {
	return nodes.GatewayFunc(func(ctx context.Context, recipient, subject, body string) error {
		if url == "" {
			logger.WithFields(map[string]interface{}{
				"channel":   channel,
				"recipient": recipient,
			}).Info("otp delivery (no gateway configured)")
			return nil
		}
		payload, err := json.Marshal(map[string]string{
			"recipient": recipient,
			"subject":   subject,
			"body":      body,
		})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s gateway: %w", channel, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("%s gateway returned %d", channel, resp.StatusCode)
		}
		return nil
	})
}

// pushTransport posts push messages to the vendor gateway webhook.
func pushTransport(url string, logger *observability.Logger) push.Transport {
	return push.TransportFunc(func(ctx context.Context, msg *push.Message) error {
		if url == "" {
			logger.WithFields(map[string]interface{}{
				"messageId": msg.ID,
				"deviceId":  msg.DeviceID,
			}).Info("push delivery (no gateway configured)")
			return nil
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("push gateway: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("push gateway returned %d", resp.StatusCode)
		}
		return nil
	})
}

// setupProxy builds the SAML IDP proxy from configuration: signing keys,
// upstream metadata, the in-process correlation cache, and, when Redis is
// configured, the durable correlation repository behind it.
func setupProxy(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*proxy.Proxy, *binding.KeyPair, error) {
	var keyPair *binding.KeyPair
	if cfg.SAML.CertificateFile != "" && cfg.SAML.PrivateKeyFile != "" {
		certPEM, err := os.ReadFile(cfg.SAML.CertificateFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read certificate: %w", err)
		}
		keyPEM, err := os.ReadFile(cfg.SAML.PrivateKeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read private key: %w", err)
		}
		keyPair, err = binding.LoadKeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, nil, err
		}
	}

	metadata, err := loadMetadata(cfg.SAML.MetadataDirectory)
	if err != nil {
		return nil, nil, err
	}

	var repository proxy.TokenRepository
	if cfg.Redis.URL != "" {
		client, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		repository = proxy.NewRedisTokenRepository(client, "cedar:saml2:proxy")
	}

	p, err := proxy.New(proxy.Options{
		EntityID:       cfg.SAML.EntityID,
		CorrelationTTL: cfg.SAML.CorrelationTTL,
		Finder:         &proxy.ScopedFinder{DefaultEntityID: cfg.SAML.DefaultUpstreamIDP},
		Metadata:       metadata,
		Cache:          proxy.NewCorrelationCache(correlationCacheSize, cfg.SAML.CorrelationTTL),
		Repository:     repository,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		return nil, nil, err
	}
	return p, keyPair, nil
}

func loadMetadata(dir string) (*proxy.MetadataRegistry, error) {
	registry := proxy.NewMetadataRegistry()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read metadata directory: %w", err)
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".xml" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read metadata file %s: %w", entry.Name(), err)
		}
		if _, err := registry.RegisterXML(raw); err != nil {
			return nil, fmt.Errorf("metadata file %s: %w", entry.Name(), err)
		}
		loaded++
	}
	if loaded == 0 {
		return nil, fmt.Errorf("no metadata documents in %s", dir)
	}
	return registry, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.MaxRetries = cfg.MaxRetries
	opts.PoolSize = cfg.PoolSize

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// runHealthServer serves liveness, readiness, and metrics on the separate
// health port so probes stay reachable while the main listener drains.
func runHealthServer(ctx context.Context, cfg config.ServerConfig, trees *authtree.TreeSet, gatherer prometheus.Gatherer, logger *observability.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if len(trees.Names()) == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("no trees loaded"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{Addr: cfg.Host + ":" + cfg.HealthPort, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Error("health server stopped")
	}
}
