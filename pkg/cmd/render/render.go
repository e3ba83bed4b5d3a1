package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/feed"
	"github.com/apexlog/trackmap-service-go/pkg/model"
	"github.com/apexlog/trackmap-service-go/pkg/processing/track"
)

var (
	name       string
	outputDir  string
	paramsFile string
)

func NewRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <recording>",
		Short: "renders a track map from a recording",
		Long: `Feeds a recording through the processing engine without a server
and writes the resulting track map as JSON plus a PNG rendering.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(args[0])
		},
	}
	cmd.Flags().StringVar(&name,
		"name", "", "track name (default: name from the recording)")
	cmd.Flags().StringVarP(&outputDir,
		"output-dir", "o", ".", "directory for the generated files")
	cmd.Flags().StringVar(&paramsFile,
		"params-file", "", "path to engine parameter overrides (yaml)")
	return cmd
}

//nolint:funlen,cyclop // by design
func runRender(path string) error {
	log.ResetDefault(log.DevLogger(os.Stderr, log.InfoLevel))
	reader, err := feed.NewRecordingReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	params := track.DefaultParams()
	if paramsFile != "" {
		if params, err = track.LoadParams(paramsFile); err != nil {
			return err
		}
	}
	proc := track.NewProcessor(track.WithParams(params))

	trackName := name
	frames := 0
	for {
		env, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch env.Type {
		case model.FrameTypeSession:
			if trackName == "" {
				var info model.SessionInfo
				if err := json.Unmarshal(env.Data, &info); err == nil {
					trackName = info.TrackName
				}
			}
			continue
		case model.FrameTypePosition, model.FrameTypeTiming:
		default:
			continue
		}
		payload, err := feed.DecodePayload(env.Data)
		if err != nil {
			log.Warn("dropping frame with bad payload", log.ErrorField(err))
			continue
		}
		if env.Type == model.FrameTypePosition {
			proc.ProcessPositionData(payload)
		} else {
			proc.ProcessTimingData(payload)
		}
		frames++
	}
	log.Info("recording processed",
		log.Int("frames", frames),
		log.Int("coordinates", proc.Stats().CoordinateCount))

	trackMap := proc.GenerateTrackMap(trackName)
	if trackMap == nil {
		return fmt.Errorf("not enough coordinates for a track map (got %d, need %d)",
			proc.Stats().CoordinateCount, params.MinCoordinates)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	jsonFile := filepath.Join(outputDir, base+".trackmap.json")
	data, err := json.MarshalIndent(trackMap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(jsonFile, data, 0o644); err != nil {
		return fmt.Errorf("could not write %s: %w", jsonFile, err)
	}

	pngFile := filepath.Join(outputDir, base+".trackmap.png")
	if err := renderPNG(trackMap, pngFile); err != nil {
		return fmt.Errorf("could not render %s: %w", pngFile, err)
	}

	log.Info("track map rendered",
		log.String("track", trackMap.TrackName),
		log.Float64("length", trackMap.Meta.TrackLength),
		log.Int("sections", len(trackMap.Sections)),
		log.Int("features", len(trackMap.Features)),
		log.String("json", jsonFile),
		log.String("png", pngFile))
	return nil
}
