package check

import (
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/config"
	"github.com/apexlog/trackmap-service-go/pkg/utils"
)

var (
	natsURL   string
	serverURL string
)

func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "checks if the configured services are reachable",
		Long: `Waits until the services the server depends on (upstream feed, NATS)
are reachable, then exits. Useful as an init container or deployment smoke
test. With --server-url a running instance's health endpoint is probed too.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChecks()
		},
	}
	cmd.Flags().StringVar(&natsURL,
		"nats-url", "", "URL of the NATS server to check")
	cmd.Flags().StringVar(&serverURL,
		"server-url", "", "base URL of a running server whose health endpoint is probed")
	return cmd
}

type target struct {
	name  string
	check func() error
}

func runChecks() error {
	log.ResetDefault(log.DevLogger(os.Stderr, log.InfoLevel))
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}

	targets := collectTargets(timeout)
	if len(targets) == 0 {
		log.Info("nothing to check")
		return nil
	}

	wg := sync.WaitGroup{}
	errCh := make(chan error, len(targets))
	for _, tgt := range targets {
		wg.Add(1)
		go func(tgt target) {
			defer wg.Done()
			if err := tgt.check(); err != nil {
				log.Error("not reachable",
					log.String("target", tgt.name), log.ErrorField(err))
				errCh <- err
				return
			}
			log.Info("reachable", log.String("target", tgt.name))
		}(tgt)
	}
	wg.Wait()
	close(errCh)
	return <-errCh
}

func collectTargets(timeout time.Duration) []target {
	targets := make([]target, 0, 3)
	if addr, _ := utils.ExtractFromWebsocketURL(config.FeedURL); addr != "" {
		targets = append(targets, target{
			name:  "feed " + addr,
			check: func() error { return utils.WaitForTCP(addr, timeout) },
		})
	}
	if addr := utils.ExtractFromNatsURL(natsURL); addr != "" {
		targets = append(targets, target{
			name:  "nats " + addr,
			check: func() error { return utils.WaitForTCP(addr, timeout) },
		})
	}
	if serverURL != "" {
		healthURL := serverURL + "/health"
		targets = append(targets, target{
			name:  "server " + serverURL,
			check: func() error { return utils.WaitForHTTPResponse(healthURL, timeout) },
		})
	}
	return targets
}
