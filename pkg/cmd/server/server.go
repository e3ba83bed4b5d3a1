package server

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/config"
	"github.com/apexlog/trackmap-service-go/pkg/feed"
	"github.com/apexlog/trackmap-service-go/pkg/model"
	"github.com/apexlog/trackmap-service-go/pkg/processing/track"
	"github.com/apexlog/trackmap-service-go/pkg/relay"
	"github.com/apexlog/trackmap-service-go/pkg/utils"
	"github.com/apexlog/trackmap-service-go/pkg/web"
)

//nolint:funlen // by design
func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "starts the track map server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&config.ListenAddr,
		"listen-addr",
		"a",
		"localhost:8080",
		"HTTP server listen address")
	cmd.Flags().StringVar(&config.FeedSession,
		"feed-session",
		"live",
		"session key used for frames of the upstream feed")
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		"",
		"URL of the NATS server used as relay (empty: relay disabled)")
	cmd.Flags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	cmd.Flags().StringVar(&config.LogFormat,
		"log-format",
		"json",
		"controls the log output format")
	cmd.Flags().StringVar(&config.LogConfig,
		"log-config",
		"",
		"path to the log configuration file")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	cmd.Flags().StringVar(&config.ProviderToken,
		"provider-token",
		"",
		"provider token value")
	cmd.Flags().StringVar(&config.StaleDuration,
		"stale-duration",
		"1h",
		"session is removed if no data was received for this duration")
	cmd.Flags().StringVar(&config.ParamsFile,
		"params-file",
		"",
		"path to engine parameter overrides (yaml)")
	cmd.Flags().StringVar(&config.BroadcastInterval,
		"broadcast-interval",
		"1s",
		"interval for live position broadcasts")
	cmd.Flags().StringVar(&config.MapInterval,
		"map-interval",
		"30s",
		"interval for track map regeneration")
	cmd.Flags().StringVar(&config.SessionTTL,
		"session-ttl",
		"5m",
		"expiration for the session metadata cache")
	cmd.Flags().StringVar(&config.TLSCertFile,
		"tls-cert",
		"",
		"file containing the TLS certificate")
	cmd.Flags().StringVar(&config.TLSKeyFile,
		"tls-key",
		"",
		"file containing the TLS private key")
	cmd.Flags().StringVar(&config.TLSCAFile,
		"tls-ca",
		"",
		"file containing the TLS root CA (enables client cert verification)")
	cmd.Flags().StringVar(&config.TraefikCerts,
		"traefik-certs",
		"",
		"path to traefik acme.json as certificate source")
	cmd.Flags().StringVar(&config.TraefikCertDomain,
		"traefik-cert-domain",
		"",
		"domain to extract from traefik acme.json")
	return cmd
}

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

func parseDuration(value string, defaultVal time.Duration) time.Duration {
	ret, err := time.ParseDuration(value)
	if err != nil {
		log.Warn("invalid duration value, using default",
			log.String("value", value),
			log.Duration("default", defaultVal))
		return defaultVal
	}
	return ret
}

//nolint:funlen,cyclop // by design
func startServer(mainCtx context.Context) error {
	var logger *log.Logger
	var telemetry *config.Telemetry
	switch config.LogFormat {
	case "json":
		logger = log.New(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	default:
		logger = log.DevLogger(
			os.Stderr,
			parseLogLevel(config.LogLevel, log.DebugLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}
	if config.LogConfig != "" {
		if logCfg, err := log.LoadConfig(config.LogConfig); err == nil {
			logger = logger.WithFilterRules(logCfg.Filters)
		} else {
			logger.Warn("could not load log config", log.ErrorField(err))
		}
	}
	log.ResetDefault(logger)

	log.Debug("Config:",
		log.String("listenAddr", config.ListenAddr),
		log.String("feedUrl", config.FeedURL),
		log.String("feedSession", config.FeedSession),
		log.String("natsUrl", config.NatsURL),
	)

	if config.ProfilingPort > 0 {
		log.Info("Starting profiling server on port", log.Int("port", config.ProfilingPort))
		go func() {
			//nolint:gosec // by design
			err := http.ListenAndServe(
				fmt.Sprintf("localhost:%d", config.ProfilingPort),
				nil)
			if err != nil {
				log.Error("Profiling server stopped", log.ErrorField(err))
			}
		}()
	}

	waitForRequiredServices()

	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		var err error
		if telemetry, err = config.SetupTelemetry(context.Background()); err != nil {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		}
		err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
		if err != nil {
			log.Warn("Could not start runtime metrics", log.ErrorField(err))
		}
	}

	params, err := loadParams()
	if err != nil {
		log.Error("invalid engine parameters", log.ErrorField(err))
		return err
	}

	staleDuration := parseDuration(config.StaleDuration, time.Hour)
	log.Debug("init with stale duration", log.Duration("duration", staleDuration))
	lookup := utils.NewSessionLookup(
		utils.WithStaleDuration(staleDuration),
		utils.WithProcessorOptions(track.WithParams(params)))

	dataRelay, err := setupRelay()
	if err != nil {
		log.Error("could not setup relay", log.ErrorField(err))
		return err
	}

	ctx, cancel := context.WithCancel(mainCtx)
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		v := <-sigChan
		log.Debug("Got signal", log.Any("signal", v))
		cancel()
	}()
	setupGoRoutinesDump()

	if config.FeedURL != "" {
		startFeedClient(ctx, lookup, dataRelay)
	}
	startBroadcasters(ctx, lookup, dataRelay)

	log.Info("Starting server")
	webOpts := []web.Option{
		web.WithAddr(config.ListenAddr),
		web.WithProviderToken(config.ProviderToken),
		web.WithRelay(dataRelay),
		web.WithSessionTTL(parseDuration(config.SessionTTL, 5*time.Minute)),
	}
	if tlsCfg := newTLSConfig(ctx); tlsCfg != nil {
		webOpts = append(webOpts, web.WithTLSConfig(tlsCfg))
	}
	webServer := web.NewServer(lookup, webOpts...)
	err = webServer.Start(ctx)
	if err != nil {
		log.Error("server could not be started", log.ErrorField(err))
	}

	lookup.Close()
	dataRelay.Close()
	if telemetry != nil {
		telemetry.Shutdown()
	}
	log.Info("Server terminated")
	return err
}

func loadParams() (track.Params, error) {
	if config.ParamsFile == "" {
		return track.DefaultParams(), nil
	}
	return track.LoadParams(config.ParamsFile)
}

func setupRelay() (relay.Relay, error) {
	if config.NatsURL == "" {
		return relay.NewNoopRelay(), nil
	}
	conn, err := nats.Connect(config.NatsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	log.Info("relay connected", log.String("url", config.NatsURL))
	return relay.NewNatsRelay(conn), nil
}

// startFeedClient consumes the upstream feed and pumps its frames into the
// session registry. The session is registered on the upstream hello.
//
//nolint:whitespace // can't make both editor and linter happy
func startFeedClient(
	ctx context.Context, lookup *utils.SessionLookup, dataRelay relay.Relay,
) {
	sessionKey := func(fromFeed string) string {
		if fromFeed != "" {
			return fromFeed
		}
		return config.FeedSession
	}
	onHello := func(hello feed.UpstreamHello) {
		key := sessionKey(hello.Session)
		if _, err := lookup.GetSession(key); err == nil {
			return
		}
		info := model.SessionInfo{
			Key:       key,
			Name:      "upstream feed",
			TrackName: hello.TrackName,
			CreatedAt: time.Now(),
		}
		if _, err := lookup.AddSession(info); err != nil {
			log.Warn("could not register feed session", log.ErrorField(err))
			return
		}
		if err := dataRelay.PublishSessionRegistered(info); err != nil {
			log.Warn("could not publish session registration", log.ErrorField(err))
		}
		log.Info("registered feed session",
			log.String("key", key),
			log.String("track", hello.TrackName))
	}
	onFrame := func(env *model.FrameEnvelope) {
		key := sessionKey(env.Session)
		spd, err := lookup.GetSession(key)
		if err != nil {
			return
		}
		payload, err := feed.DecodePayload(env.Data)
		if err != nil {
			log.Warn("dropping frame with bad payload", log.ErrorField(err))
			return
		}
		switch env.Type {
		case model.FrameTypePosition:
			spd.Processor.ProcessPositionData(payload)
		case model.FrameTypeTiming:
			spd.Processor.ProcessTimingData(payload)
		default:
			log.Debug("ignoring frame", log.String("type", string(env.Type)))
			return
		}
		lookup.MarkActivity(key)
	}
	client := feed.NewClient(config.FeedURL, onFrame,
		feed.WithToken(config.ProviderToken),
		feed.WithHelloHandler(onHello))
	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("feed client stopped", log.ErrorField(err))
		}
	}()
}

// startBroadcasters pushes live positions and regenerated track maps to the
// per session fan-outs and the relay.
//
//nolint:whitespace // can't make both editor and linter happy
func startBroadcasters(
	ctx context.Context, lookup *utils.SessionLookup, dataRelay relay.Relay,
) {
	posInterval := parseDuration(config.BroadcastInterval, time.Second)
	mapInterval := parseDuration(config.MapInterval, 30*time.Second)
	go func() {
		posTicker := time.NewTicker(posInterval)
		mapTicker := time.NewTicker(mapInterval)
		defer posTicker.Stop()
		defer mapTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-posTicker.C:
				broadcastPositions(lookup, dataRelay)
			case <-mapTicker.C:
				broadcastTrackMaps(lookup, dataRelay)
			}
		}
	}()
}

func broadcastPositions(lookup *utils.SessionLookup, dataRelay relay.Relay) {
	for _, info := range lookup.Sessions() {
		spd, err := lookup.GetSession(info.Key)
		if err != nil {
			continue
		}
		live := spd.Processor.CurrentDriverPositions()
		if len(live) == 0 {
			continue
		}
		msg := model.PositionsMessage{
			Type:      model.MessagePositions,
			Session:   info.Key,
			Positions: live,
			SentAt:    time.Now(),
		}
		spd.OfferPositions(msg)
		if err := dataRelay.PublishPositions(msg); err != nil {
			log.Debug("could not publish positions", log.ErrorField(err))
		}
	}
}

func broadcastTrackMaps(lookup *utils.SessionLookup, dataRelay relay.Relay) {
	for _, info := range lookup.Sessions() {
		spd, err := lookup.GetSession(info.Key)
		if err != nil {
			continue
		}
		trackMap := spd.Processor.GenerateTrackMap("")
		if trackMap == nil {
			continue
		}
		msg := model.TrackMapMessage{
			Type:     model.MessageTrackMap,
			Session:  info.Key,
			TrackMap: trackMap,
			SentAt:   time.Now(),
		}
		spd.OfferTrackMap(msg)
		if err := dataRelay.PublishTrackMap(msg); err != nil {
			log.Debug("could not publish track map", log.ErrorField(err))
		}
	}
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}

func waitForRequiredServices() {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}

	wg := sync.WaitGroup{}
	checkTCP := func(addr string) {
		if err = utils.WaitForTCP(addr, timeout); err != nil {
			log.Fatal("required services not ready", log.ErrorField(err))
		}
		wg.Done()
	}

	if natsAddr := utils.ExtractFromNatsURL(config.NatsURL); natsAddr != "" {
		wg.Add(1)
		go checkTCP(natsAddr)
	}
	if feedAddr, _ := utils.ExtractFromWebsocketURL(config.FeedURL); feedAddr != "" {
		wg.Add(1)
		go checkTCP(feedAddr)
	}
	log.Debug("Waiting for connection checks to return")
	wg.Wait()
	log.Debug("Required services are available")
}
