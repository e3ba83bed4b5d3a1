package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/config"
	"github.com/apexlog/trackmap-service-go/pkg/utils/certs/traefik"
)

type certProvider struct {
	ctx  context.Context
	log  *log.Logger
	cert *tls.Certificate
	mu   sync.RWMutex
}

// newTLSConfig builds a tls.Config from the configured certificate source
// (file pair or traefik acme.json). Returns nil when no source is configured
// so the caller falls back to plain HTTP. Certificates are reloaded when the
// underlying files change.
func newTLSConfig(ctx context.Context) *tls.Config {
	c := &certProvider{
		ctx: ctx,
		log: log.GetFromContext(ctx).Named("web.certs"),
	}
	c.loadCert()
	if c.cert == nil {
		return nil
	}
	tlsConfig := &tls.Config{
		GetCertificate: func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return c.cert, nil
		},
		MinVersion: tls.VersionTLS13,
	}
	if config.TLSCAFile != "" {
		c.log.Info("Loading ca cert", log.String("file", config.TLSCAFile))

		caCert, err := os.ReadFile(config.TLSCAFile)
		if err != nil {
			c.log.Error("could not read TLS root CA", log.ErrorField(err))
		}
		caCertPool := x509.NewCertPool()
		if ok := caCertPool.AppendCertsFromPEM(caCert); !ok {
			c.log.Error("could not append cert to pool")
		}
		tlsConfig.ClientCAs = caCertPool
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}
	go c.watchAndReloadCerts()
	return tlsConfig
}

//nolint:gocognit,cyclop // by design
func (c *certProvider) watchAndReloadCerts() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.log.Error("could not create fsnotify watcher", log.ErrorField(err))
		return
	}
	defer watcher.Close()
	go func() {
		for {
			select {
			case <-c.ctx.Done():
				c.log.Info("context done, stopping cert reload")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					c.log.Info("watcher events channel closed, stopping cert reload")
					return
				}
				c.log.Debug("change detected",
					log.String("file", event.Name), log.Any("event", event))
				if event.Op&fsnotify.Write == fsnotify.Write ||
					event.Op&fsnotify.Chmod == fsnotify.Chmod {

					c.log.Info("cert file changed, reloading cert",
						log.String("file", event.Name))
					c.loadCert()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					c.log.Info("watcher errors channel closed, stopping cert reload")
					return
				}
				c.log.Error("watcher error", log.ErrorField(err))
			}
		}
	}()
	for _, f := range []string{
		config.TLSCertFile, config.TLSKeyFile, config.TraefikCerts,
	} {
		if f == "" {
			continue
		}
		if err := watcher.Add(f); err != nil {
			c.log.Error("could not watch file",
				log.String("file", f), log.ErrorField(err))
		}
	}
	<-c.ctx.Done()
}

func (c *certProvider) loadCert() {
	if config.TraefikCerts != "" && config.TraefikCertDomain != "" {
		c.log.Info("Looking up traefik certs",
			log.String("file", config.TraefikCerts),
			log.String("domain", config.TraefikCertDomain))
		cert, err := traefik.GetCertFromTraefik(
			config.TraefikCerts,
			config.TraefikCertDomain)
		if err != nil {
			c.log.Error("could not load traefik certs", log.ErrorField(err))
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.cert = &cert
		return
	}
	if config.TLSCertFile != "" && config.TLSKeyFile != "" {
		c.log.Info("Loading cert",
			log.String("key", config.TLSKeyFile),
			log.String("cert", config.TLSCertFile))
		cert, err := tls.LoadX509KeyPair(config.TLSCertFile, config.TLSKeyFile)
		if err != nil {
			c.log.Error("could not load TLS key pair", log.ErrorField(err))
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.cert = &cert
		return
	}
}
