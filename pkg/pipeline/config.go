package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the on-disk YAML configuration for a mosh run, loaded from
// --config=FILE (SPEC_FULL.md §6), adapted from the teacher's
// start/start.go env.yaml loading and pkg/storage's ConfigGeneral.
type Config struct {
	SceneThreshold     float64 `yaml:"scene_threshold"`
	MaxGOP             int     `yaml:"max_gop"`
	AllowBFrames       bool    `yaml:"allow_b_frames"`
	PreserveFrameCount bool    `yaml:"preserve_frame_count"`
	RebuildIndex       bool    `yaml:"rebuild_index"`
	BakeCRF            int     `yaml:"bake_crf"`
	BakeCodec          string  `yaml:"bake_codec"`
	KeepIntermediates  bool    `yaml:"keep_intermediates"`

	FFmpegBin string `yaml:"ffmpeg_bin"`
	FFprobeBin string `yaml:"ffprobe_bin"`
}

// DefaultConfig matches the defaults tabulated in spec.md §6.
func DefaultConfig() Config {
	return Config{
		SceneThreshold:     0.35,
		MaxGOP:             999,
		AllowBFrames:       false,
		PreserveFrameCount: true,
		RebuildIndex:       true,
		BakeCRF:            18,
		BakeCodec:          "h264",
		KeepIntermediates:  false,
		FFmpegBin:          "ffmpeg",
		FFprobeBin:         "ffprobe",
	}
}

// LoadConfig reads and parses a YAML config file, applying it over
// DefaultConfig so an omitted field keeps its default value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("could not unmarshal config %q: %w", path, err)
	}
	return cfg, nil
}
