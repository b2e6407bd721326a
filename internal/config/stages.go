package config

import (
	"fmt"

	"github.com/hakolsound/midinet/internal/pipeline"
)

// BuildPipeline decodes cfg.Stages into a *pipeline.Pipeline, in order.
// Unknown stage kinds are a hard error: a config typo should fail reload
// rather than silently run a shorter pipeline than configured.
func BuildPipeline(cfg PipelineConfig) (*pipeline.Pipeline, error) {
	stages := make([]pipeline.Stage, 0, len(cfg.Stages))
	for i, sc := range cfg.Stages {
		stage, err := buildStage(sc)
		if err != nil {
			return nil, fmt.Errorf("config: pipeline.stages[%d] (%s): %w", i, sc.Kind, err)
		}
		stages = append(stages, stage)
	}
	return &pipeline.Pipeline{Stages: stages}, nil
}

func buildStage(sc StageConfig) (pipeline.Stage, error) {
	switch sc.Kind {
	case "channel_filter":
		var p pipeline.ChannelFilter
		if err := sc.Params.Decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case "channel_remap":
		var p pipeline.ChannelRemap
		if err := sc.Params.Decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case "cc_remap":
		var p pipeline.CcRemap
		if err := sc.Params.Decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case "velocity_curve":
		var p pipeline.VelocityCurve
		if err := sc.Params.Decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	case "note_range":
		var p pipeline.NoteRange
		if err := sc.Params.Decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown stage kind %q", sc.Kind)
	}
}
