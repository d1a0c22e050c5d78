package models

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ArtifactFormat tags artifacts written by this package. Artifacts carrying
// any other tag are rejected as corrupt.
const ArtifactFormat = "supplylink.linear.v1"

// artifact is the persisted form of a LinearModel.
type artifact struct {
	Version      string
	Intercept    float64
	Coefficients [NumFeatures]float64
	Samples      int
	R2Score      float64
	RunID        string
	TrainedAt    time.Time
}

// encodeArtifact serializes a as a protobuf Struct.
func encodeArtifact(a artifact) ([]byte, error) {
	coef := make([]any, NumFeatures)
	for i, c := range a.Coefficients {
		coef[i] = c
	}

	s, err := structpb.NewStruct(map[string]any{
		"format":       ArtifactFormat,
		"version":      a.Version,
		"intercept":    a.Intercept,
		"coefficients": coef,
		"samples":      float64(a.Samples),
		"r2_score":     a.R2Score,
		"run_id":       a.RunID,
		"trained_at":   a.TrainedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("encode model artifact: %w", err)
	}

	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode model artifact: %w", err)
	}
	return data, nil
}

// decodeArtifact parses data produced by encodeArtifact.
// Every failure wraps ErrArtifactCorrupt.
func decodeArtifact(data []byte) (artifact, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return artifact{}, fmt.Errorf("%w: %v", ErrArtifactCorrupt, err)
	}
	fields := s.GetFields()

	if format := fields["format"].GetStringValue(); format != ArtifactFormat {
		return artifact{}, fmt.Errorf("%w: unsupported format %q", ErrArtifactCorrupt, format)
	}

	a := artifact{
		Version: fields["version"].GetStringValue(),
		RunID:   fields["run_id"].GetStringValue(),
	}
	if a.Version == "" {
		return artifact{}, fmt.Errorf("%w: missing version", ErrArtifactCorrupt)
	}

	var err error
	if a.Intercept, err = number(fields, "intercept"); err != nil {
		return artifact{}, err
	}

	coef := fields["coefficients"].GetListValue().GetValues()
	if len(coef) != NumFeatures {
		return artifact{}, fmt.Errorf("%w: expected %d coefficients, got %d", ErrArtifactCorrupt, NumFeatures, len(coef))
	}
	for i, v := range coef {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok || !finite(n.NumberValue) {
			return artifact{}, fmt.Errorf("%w: coefficient %d is not a finite number", ErrArtifactCorrupt, i)
		}
		a.Coefficients[i] = n.NumberValue
	}

	samples, err := number(fields, "samples")
	if err != nil {
		return artifact{}, err
	}
	a.Samples = int(samples)

	// r2_score and trained_at are informational; tolerate their absence.
	if v, ok := fields["r2_score"]; ok {
		a.R2Score = v.GetNumberValue()
	}
	if ts := fields["trained_at"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return artifact{}, fmt.Errorf("%w: trained_at: %v", ErrArtifactCorrupt, err)
		}
		a.TrainedAt = t
	}

	return a, nil
}

func number(fields map[string]*structpb.Value, key string) (float64, error) {
	n, ok := fields[key].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrArtifactCorrupt, key)
	}
	if !finite(n.NumberValue) {
		return 0, fmt.Errorf("%w: %s is not finite", ErrArtifactCorrupt, key)
	}
	return n.NumberValue, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
