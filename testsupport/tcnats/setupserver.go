//nolint:errcheck // testsetup
package tcnats

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go/wait"
)

// InitNatsServer provides the URL of a nats server for tests. An external
// server may be supplied via TESTNATS_URL, otherwise a container is started.
func InitNatsServer() string {
	if url := os.Getenv("TESTNATS_URL"); url != "" {
		return url
	}
	return setupNatsServer()
}

func setupNatsServer() string {
	ctx := context.Background()
	port, err := nat.NewPort("tcp", "4222")
	if err != nil {
		log.Fatal(err)
	}
	container, err := SetupNats(ctx,
		WithPort(port.Port()),
		WithWaitStrategy(
			wait.ForLog("Server is ready").
				WithStartupTimeout(5*time.Second)),
		WithName("trackmap-service-test-nats"),
	)
	if err != nil {
		log.Fatal(err)
	}
	containerPort, _ := container.MappedPort(ctx, port)
	host, _ := container.Host(ctx)
	return fmt.Sprintf("nats://%s:%s", host, containerPort.Port())
}
