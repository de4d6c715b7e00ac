package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SessionParams is the per-session animation parameter bundle sent to the
// inference service in the stream header and first audio frame.
type SessionParams struct {
	PostProcessing  PostProcessingParams `yaml:"post_processing_parameters"`
	FaceParams      map[string]float32   `yaml:"face_parameters"`
	Blendshape      BlendshapeParams     `yaml:"blendshape_parameters"`
	EmotionTimeline []EmotionKey         `yaml:"emotion_with_timecode_list"`
}

// PostProcessingParams tunes emotion smoothing on the service side.
type PostProcessingParams struct {
	EmotionContrast          float32 `yaml:"emotion_contrast"`
	LiveBlendCoef            float32 `yaml:"live_blend_coef"`
	EnablePreferredEmotion   bool    `yaml:"enable_preferred_emotion"`
	PreferredEmotionStrength float32 `yaml:"preferred_emotion_strength"`
	EmotionStrength          float32 `yaml:"emotion_strength"`
	MaxEmotions              int     `yaml:"max_emotions"`
}

// BlendshapeParams scales and shifts individual output weights by target name.
type BlendshapeParams struct {
	Multipliers map[string]float32 `yaml:"multipliers"`
	Offsets     map[string]float32 `yaml:"offsets"`
}

// EmotionKey is a user-supplied emotion vector pinned to a point in time.
type EmotionKey struct {
	TimeCode float64            `yaml:"time_code"`
	Emotions map[string]float32 `yaml:"emotions"`
}

// LoadSessionParams reads the parameter bundle from a YAML document.
func LoadSessionParams(path string) (SessionParams, error) {
	var params SessionParams
	data, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("read session params: %w", err)
	}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return params, fmt.Errorf("parse session params: %w", err)
	}
	if err := validateParams(params); err != nil {
		return params, err
	}
	return params, nil
}

func validateParams(params SessionParams) error {
	for _, key := range params.EmotionTimeline {
		if key.TimeCode < 0 {
			return errors.New("emotion_with_timecode_list entries must not have negative time_code")
		}
		if len(key.Emotions) == 0 {
			return errors.New("emotion_with_timecode_list entries must carry at least one emotion")
		}
	}
	for name, multiplier := range params.Blendshape.Multipliers {
		if multiplier < 0 {
			return fmt.Errorf("blendshape_parameters.multipliers[%s] must be >= 0", name)
		}
	}
	return nil
}
