package record

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/config"
	"github.com/apexlog/trackmap-service-go/pkg/feed"
	"github.com/apexlog/trackmap-service-go/pkg/model"
)

var (
	output   string
	token    string
	duration string
)

func NewRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "records the upstream feed to a file",
		Long: `Connects to the upstream feed and writes every frame as one
JSON line. The first line holds the session info from the upstream hello.
Recording stops on interrupt or after --duration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&output,
		"output", "o", "recording.jsonl", "output file")
	cmd.Flags().StringVarP(&token,
		"token", "t", "", "api token for the upstream feed")
	cmd.Flags().StringVar(&duration,
		"duration", "", "stop recording after this duration (default: until interrupted)")
	return cmd
}

func runRecord(mainCtx context.Context) error {
	log.ResetDefault(log.DevLogger(os.Stderr, log.InfoLevel))
	if config.FeedURL == "" {
		return errors.New("no feed url configured (use --feed-url)")
	}
	recorder, err := feed.NewRecorder(output)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(mainCtx)
	defer cancel()
	if duration != "" {
		if d, parseErr := time.ParseDuration(duration); parseErr == nil {
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		} else {
			log.Warn("invalid duration, recording until interrupted",
				log.String("duration", duration))
		}
	}
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	headerWritten := false
	onHello := func(hello feed.UpstreamHello) {
		// reconnects repeat the hello, the header goes out once
		if headerWritten {
			return
		}
		info := model.SessionInfo{
			Key:       hello.Session,
			Name:      "recorded feed",
			TrackName: hello.TrackName,
			CreatedAt: time.Now(),
		}
		data, err := json.Marshal(info)
		if err != nil {
			log.Warn("could not marshal session info", log.ErrorField(err))
			return
		}
		if err := recorder.Write(&model.FrameEnvelope{
			Type:    model.FrameTypeSession,
			Session: hello.Session,
			At:      time.Now(),
			Data:    data,
		}); err != nil {
			log.Warn("could not write session header", log.ErrorField(err))
			return
		}
		headerWritten = true
	}
	onFrame := func(env *model.FrameEnvelope) {
		if err := recorder.Write(env); err != nil {
			log.Error("could not write frame", log.ErrorField(err))
			cancel()
		}
	}

	client := feed.NewClient(config.FeedURL, onFrame,
		feed.WithToken(token),
		feed.WithHelloHandler(onHello))
	log.Info("recording feed",
		log.String("url", config.FeedURL),
		log.String("output", output))
	err = client.Run(ctx)
	if closeErr := recorder.Close(); closeErr != nil {
		log.Warn("could not close recording", log.ErrorField(closeErr))
	}
	if ctx.Err() != nil {
		// interrupted or duration elapsed, that is the normal way out
		return nil
	}
	return err
}
