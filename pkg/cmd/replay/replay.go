package replay

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/feed"
)

//nolint:gochecknoglobals // cobra wiring
var (
	// Speed is the replay speed factor (0 means: go as fast as possible)
	Speed int
	// Addr is the base URL of the track map server
	Addr string
	// Token authenticates against the server's guarded endpoints
	Token string
	// SessionKey overrides the session key from the recording
	SessionKey string
	// FastForward is the duration replayed at max speed
	FastForward string
	// KeepSession leaves the session registered after the replay
	KeepSession bool
)

func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <recording>",
		Short: "replays a recorded feed against the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), args[0])
		},
	}
	cmd.Flags().IntVar(&Speed, "speed", 1,
		"Recording speed (0 means: go as fast as possible)")
	cmd.Flags().StringVar(&Addr,
		"addr",
		"http://localhost:8080",
		"track map server address")
	cmd.Flags().StringVarP(&Token,
		"token", "t", "", "authentication token")
	cmd.Flags().StringVar(&SessionKey,
		"key", "", "session key to use for replay (default: key from the recording)")
	cmd.Flags().StringVar(&FastForward,
		"fast-forward",
		"",
		"replay this duration with max speed")
	cmd.Flags().BoolVar(&KeepSession,
		"keep-session", false, "do not remove the session when the replay ends")
	return cmd
}

func runReplay(ctx context.Context, path string) error {
	log.ResetDefault(log.DevLogger(os.Stderr, log.InfoLevel))
	reader, err := feed.NewRecordingReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()
	return NewReplayTask(reader).Replay(ctx)
}
