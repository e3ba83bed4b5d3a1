package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/feed"
	"github.com/apexlog/trackmap-service-go/pkg/model"
)

// ReplayTask registers a session, pushes the recorded frames through the
// ingest endpoint with the original pacing and removes the session when the
// recording is exhausted.
type ReplayTask struct {
	reader  *feed.RecordingReader
	client  *http.Client
	key     string
	pending *model.FrameEnvelope
}

func NewReplayTask(reader *feed.RecordingReader) *ReplayTask {
	return &ReplayTask{
		reader: reader,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *ReplayTask) Replay(ctx context.Context) error {
	info, err := r.sessionInfo()
	if err != nil {
		return err
	}
	r.key = info.Key
	if err = r.registerSession(ctx, info); err != nil {
		return err
	}
	log.Debug("Session registered", log.String("key", r.key))

	err = r.sendData(ctx)

	if !KeepSession {
		if unregErr := r.unregisterSession(ctx); unregErr != nil {
			log.Warn("could not remove session", log.ErrorField(unregErr))
		} else {
			log.Debug("Session removed", log.String("key", r.key))
		}
	}
	return err
}

// sessionInfo builds the session to replay into. Recordings start with a
// session header line, older ones without get a synthesized session.
func (r *ReplayTask) sessionInfo() (model.SessionInfo, error) {
	info := model.SessionInfo{Key: "replay", Name: "replayed recording"}
	env, err := r.reader.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return info, errors.New("recording is empty")
		}
		return info, err
	}
	if env.Type == model.FrameTypeSession {
		if err := json.Unmarshal(env.Data, &info); err != nil {
			log.Warn("unreadable session header", log.ErrorField(err))
		}
	} else {
		// no header, replay the frame as data
		r.pending = env
	}
	if SessionKey != "" {
		info.Key = SessionKey
	}
	if info.Key == "" {
		info.Key = "replay"
	}
	info.CreatedAt = time.Now()
	return info, nil
}

func (r *ReplayTask) next() (*model.FrameEnvelope, error) {
	if r.pending != nil {
		env := r.pending
		r.pending = nil
		return env, nil
	}
	return r.reader.Next()
}

//nolint:cyclop // by design
func (r *ReplayTask) sendData(ctx context.Context) error {
	var fastForward time.Duration
	if FastForward != "" {
		if d, err := time.ParseDuration(FastForward); err == nil {
			fastForward = d
		} else {
			log.Warn("invalid fast-forward value", log.String("value", FastForward))
		}
	}
	var firstTs, lastTs time.Time
	frames := 0
	for {
		env, err := r.next()
		if errors.Is(err, io.EOF) {
			log.Info("replay finished", log.Int("frames", frames))
			return nil
		}
		if err != nil {
			return err
		}
		if env.Type == model.FrameTypeSession {
			continue
		}
		if firstTs.IsZero() {
			firstTs = env.At
		}
		if !lastTs.IsZero() && Speed > 0 && env.At.Sub(firstTs) >= fastForward {
			delta := env.At.Sub(lastTs)
			if delta > 0 {
				wait := time.Duration(int(delta.Nanoseconds()) / Speed)
				log.Debug("Sleeping",
					log.Time("time", env.At),
					log.Duration("delta", delta),
					log.Duration("wait", wait),
				)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
			}
		}
		lastTs = env.At

		if err := r.publish(ctx, env); err != nil {
			log.Error("Error publishing data", log.ErrorField(err))
			return err
		}
		frames++
	}
}

func (r *ReplayTask) publish(ctx context.Context, env *model.FrameEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/v1/ingest/%s", Addr, r.key), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	withToken(req.Header)
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ingest returned status %d", resp.StatusCode)
	}
	return nil
}

//nolint:whitespace // can't make both editor and linter happy
func (r *ReplayTask) registerSession(
	ctx context.Context, info model.SessionInfo,
) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/v1/sessions", Addr), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	withToken(req.Header)
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		log.Info("session already registered, reusing", log.String("key", info.Key))
		return nil
	default:
		return fmt.Errorf("session registration returned status %d", resp.StatusCode)
	}
}

func (r *ReplayTask) unregisterSession(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/api/v1/sessions/%s", Addr, r.key), nil)
	if err != nil {
		return err
	}
	withToken(req.Header)
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("session removal returned status %d", resp.StatusCode)
	}
	return nil
}

func withToken(h http.Header) {
	h.Set("api-token", Token)
}
