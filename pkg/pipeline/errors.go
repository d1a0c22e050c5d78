package pipeline

import (
	"errors"

	"github.com/supplylink/supplylink-ml/pkg/models"
	"github.com/supplylink/supplylink-ml/pkg/storage"
)

// ErrDataSource marks a failure to read demand records.
var ErrDataSource = errors.New("data source unavailable")

// Kind is the failure class of a pipeline error.
type Kind int

const (
	KindOK Kind = iota
	KindValidation
	KindNotTrained
	KindNotFound
	KindCorrupt
	KindDataSource
	KindBusy
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindValidation:
		return "validation"
	case KindNotTrained:
		return "not_trained"
	case KindNotFound:
		return "not_found"
	case KindCorrupt:
		return "corrupt"
	case KindDataSource:
		return "data_source"
	case KindBusy:
		return "busy"
	default:
		return "internal"
	}
}

// Classify maps err to exactly one Kind. Nil is KindOK; errors matching no
// sentinel are KindInternal.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, storage.ErrLocked):
		return KindBusy
	case errors.Is(err, ErrDataSource):
		return KindDataSource
	case errors.Is(err, models.ErrArtifactCorrupt):
		return KindCorrupt
	case errors.Is(err, models.ErrArtifactNotFound), errors.Is(err, storage.ErrNotFound):
		return KindNotFound
	case errors.Is(err, models.ErrNotTrained):
		return KindNotTrained
	case errors.Is(err, models.ErrValidation):
		return KindValidation
	default:
		return KindInternal
	}
}
