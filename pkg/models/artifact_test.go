package models

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func validArtifactFields() map[string]any {
	return map[string]any{
		"format":       ArtifactFormat,
		"version":      "1.0.0",
		"intercept":    1.5,
		"coefficients": []any{0.1, 0.2, 0.3},
		"samples":      26.0,
		"r2_score":     0.75,
		"run_id":       "run-1",
		"trained_at":   "2026-01-02T03:04:05Z",
	}
}

func marshalFields(t *testing.T, fields map[string]any) []byte {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("NewStruct() error = %v", err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		t.Fatalf("proto.Marshal() error = %v", err)
	}
	return data
}

func TestArtifact_EncodeDecode(t *testing.T) {
	in := artifact{
		Version:      "3.0.0",
		Intercept:    -2.25,
		Coefficients: [NumFeatures]float64{1, -0.5, 0.125},
		Samples:      26,
		R2Score:      0.42,
		RunID:        "abc",
		TrainedAt:    time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC),
	}

	data, err := encodeArtifact(in)
	if err != nil {
		t.Fatalf("encodeArtifact() error = %v", err)
	}

	out, err := decodeArtifact(data)
	if err != nil {
		t.Fatalf("decodeArtifact() error = %v", err)
	}
	if out.Version != in.Version || out.Intercept != in.Intercept || out.Coefficients != in.Coefficients ||
		out.Samples != in.Samples || out.R2Score != in.R2Score || out.RunID != in.RunID || !out.TrainedAt.Equal(in.TrainedAt) {
		t.Errorf("decodeArtifact() = %+v, want %+v", out, in)
	}
}

func TestArtifact_EncodeDeterministic(t *testing.T) {
	a := artifact{Version: "1.0.0", Coefficients: [NumFeatures]float64{1, 2, 3}, Samples: 3}

	first, err := encodeArtifact(a)
	if err != nil {
		t.Fatalf("encodeArtifact() error = %v", err)
	}
	second, _ := encodeArtifact(a)
	if !bytes.Equal(first, second) {
		t.Error("encoding the same artifact twice produced different bytes")
	}
}

func TestArtifact_DecodeCorrupt(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		raw    []byte
	}{
		{name: "empty bytes", raw: []byte{}},
		{name: "random bytes", raw: []byte{0xff, 0xff, 0xff, 0x0f, 0x07}},
		{name: "wrong format", mutate: func(f map[string]any) { f["format"] = "sklearn.joblib" }},
		{name: "missing format", mutate: func(f map[string]any) { delete(f, "format") }},
		{name: "missing version", mutate: func(f map[string]any) { delete(f, "version") }},
		{name: "missing intercept", mutate: func(f map[string]any) { delete(f, "intercept") }},
		{name: "intercept as string", mutate: func(f map[string]any) { f["intercept"] = "1.5" }},
		{name: "too few coefficients", mutate: func(f map[string]any) { f["coefficients"] = []any{0.1, 0.2} }},
		{name: "non-numeric coefficient", mutate: func(f map[string]any) { f["coefficients"] = []any{0.1, "x", 0.3} }},
		{name: "infinite coefficient", mutate: func(f map[string]any) { f["coefficients"] = []any{0.1, math.Inf(1), 0.3} }},
		{name: "missing samples", mutate: func(f map[string]any) { delete(f, "samples") }},
		{name: "bad trained_at", mutate: func(f map[string]any) { f["trained_at"] = "yesterday" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.raw
			if tt.mutate != nil {
				fields := validArtifactFields()
				tt.mutate(fields)
				data = marshalFields(t, fields)
			}

			_, err := decodeArtifact(data)
			if !errors.Is(err, ErrArtifactCorrupt) {
				t.Errorf("decodeArtifact() error = %v, want ErrArtifactCorrupt", err)
			}
		})
	}
}

func TestArtifact_DecodeToleratesMissingInformationalFields(t *testing.T) {
	fields := validArtifactFields()
	delete(fields, "r2_score")
	delete(fields, "trained_at")
	delete(fields, "run_id")

	a, err := decodeArtifact(marshalFields(t, fields))
	if err != nil {
		t.Fatalf("decodeArtifact() error = %v", err)
	}
	if a.Version != "1.0.0" || a.Samples != 26 {
		t.Errorf("decodeArtifact() = %+v", a)
	}
}

func TestLinearModel_MarshalBinary_NotTrained(t *testing.T) {
	if _, err := NewLinearModel("").MarshalBinary(); !errors.Is(err, ErrNotTrained) {
		t.Errorf("MarshalBinary() error = %v, want ErrNotTrained", err)
	}
}

func TestLinearModel_UnmarshalBinary(t *testing.T) {
	m := NewLinearModel("9.9.9")
	if err := m.UnmarshalBinary(marshalFields(t, validArtifactFields())); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}
	if m.Version() != "1.0.0" {
		t.Errorf("Version() = %q, want version from artifact", m.Version())
	}
	intercept, coef := m.Coefficients()
	if intercept != 1.5 || coef != [NumFeatures]float64{0.1, 0.2, 0.3} {
		t.Errorf("Coefficients() = %v, %v", intercept, coef)
	}
}
