package filter

import (
	"fmt"

	"go.uber.org/zap"
)

// Detection is a language detector's verdict for a text.
type Detection struct {
	Code     string
	Percent  float64
	Reliable bool
}

// Detector identifies the dominant language of a text.
type Detector interface {
	Detect(text string) (Detection, error)
}

// Language accepts documents whose dominant language is Target with a
// confidence above MinPercent.
type Language struct {
	detector   Detector
	target     string
	minPercent float64
	logger     *zap.Logger
}

// NewLanguage builds a Language filter. minPercent <= 0 defaults to 90.
func NewLanguage(detector Detector, target string, minPercent float64, logger *zap.Logger) *Language {
	if minPercent <= 0 {
		minPercent = 90
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Language{detector: detector, target: target, minPercent: minPercent, logger: logger}
}

// Name implements Filter.
func (*Language) Name() string { return "language" }

// Apply implements Filter. Detector errors and panics reject the document.
func (f *Language) Apply(doc Document) Result {
	det, err := f.detect(doc.Text())
	if err != nil {
		f.logger.Debug("language detection failed", zap.Error(err))
		return Reject(f.Name())
	}
	if det.Reliable && det.Code == f.target && det.Percent > f.minPercent {
		return Accept(doc)
	}
	return Reject(f.Name())
}

func (f *Language) detect(text string) (det Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return f.detector.Detect(text)
}
