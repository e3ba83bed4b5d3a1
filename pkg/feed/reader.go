package feed

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/model"
)

// recordings carry full position frames, lines can get long
const maxRecordingLine = 4 * 1024 * 1024

// RecordingReader walks a JSONL recording frame by frame. Malformed lines
// are logged and skipped, the end of the file surfaces as io.EOF.
type RecordingReader struct {
	file    *os.File
	scanner *bufio.Scanner
	logger  *log.Logger
	line    int
}

func NewRecordingReader(path string) (*RecordingReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open recording %s: %w", path, err)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordingLine)
	return &RecordingReader{
		file:    file,
		scanner: scanner,
		logger:  log.Default().Named("feed.reader"),
	}, nil
}

func (r *RecordingReader) Next() (*model.FrameEnvelope, error) {
	for r.scanner.Scan() {
		r.line++
		raw := r.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		env, err := DecodeEnvelope(raw)
		if err != nil {
			r.logger.Warn("skipping malformed recording line",
				log.Int("line", r.line), log.ErrorField(err))
			continue
		}
		return env, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (r *RecordingReader) Close() error {
	return r.file.Close()
}
