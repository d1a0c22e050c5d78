package pipeline

import "github.com/supplylink/supplylink-ml/pkg/models"

// Recorder receives pipeline measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordCollect(seconds float64, records int)
	RecordTrain(seconds float64, m models.Metrics)
	RecordPredict(seconds float64, points int)
	RecordError(component, reason string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCollect(float64, int) {}
func (nopRecorder) RecordTrain(float64, models.Metrics) {}
func (nopRecorder) RecordPredict(float64, int) {}
func (nopRecorder) RecordError(string, string) {}
