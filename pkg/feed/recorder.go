package feed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/model"
)

// Recorder appends frames to a JSONL file, one envelope per line. Lines are
// flushed as they are written so an aborted recording stays usable.
type Recorder struct {
	file   *os.File
	writer *bufio.Writer
	logger *log.Logger
	frames int
}

func NewRecorder(path string) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create recording %s: %w", path, err)
	}
	return &Recorder{
		file:   file,
		writer: bufio.NewWriter(file),
		logger: log.Default().Named("feed.recorder"),
	}, nil
}

func (r *Recorder) Write(env *model.FrameEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("could not encode frame: %w", err)
	}
	if _, err := r.writer.Write(data); err != nil {
		return err
	}
	if err := r.writer.WriteByte('\n'); err != nil {
		return err
	}
	r.frames++
	return r.writer.Flush()
}

func (r *Recorder) Frames() int {
	return r.frames
}

func (r *Recorder) Close() error {
	if err := r.writer.Flush(); err != nil {
		return err
	}
	r.logger.Info("recording closed",
		log.String("file", r.file.Name()),
		log.Int("frames", r.frames))
	return r.file.Close()
}
