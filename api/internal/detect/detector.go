package detect

import (
	"context"
	"log"
	"time"

	"voiceshield/api/internal/detect/prompt"
	"voiceshield/api/internal/detect/types"
	"voiceshield/api/internal/observe"
)

// Detector turns requests into model calls and validated responses.
type Detector struct {
	Engines *Engines
	Builder prompt.Builder
	Retry   Retry
	Metrics *observe.Metrics
}

// Detect never fails outright: the response is always populated, with the
// error placeholder shape when err is non-nil. err is an *Error.
func (d *Detector) Detect(ctx context.Context, llmName string, req types.DetectionRequest) (types.DetectionResponse, error) {
	start := time.Now()

	eng, err := d.Engines.GetEngine(llmName)
	if err != nil {
		return d.fail(ctx, llmName, start, Classify(err))
	}
	call, err := d.Builder.Detection(req)
	if err != nil {
		return d.fail(ctx, eng.Name(), start, Classify(err))
	}

	var out types.DetectionResponse
	err = d.Retry.Do(ctx, "detect", func(ctx context.Context) error {
		txt, err := d.generate(ctx, eng, call)
		if err != nil {
			return err
		}
		out, err = ParseVerdict(txt)
		if err != nil {
			d.Metrics.RecordProviderError(ctx, eng.Name(), string(KindParse))
		}
		return err
	})
	if err != nil {
		return d.fail(ctx, eng.Name(), start, Classify(err))
	}

	elapsed := time.Since(start)
	d.Metrics.RecordDetect(ctx, eng.Name(), string(types.StatusSuccess), elapsed.Seconds())
	log.Printf("detect engine=%s model=%s lang=%s corrections=%d prediction=%s confidence=%v time_ms=%d",
		eng.Name(), eng.GetModel(), req.Language, len(req.PastCorrections), out.Prediction, out.Confidence, elapsed.Milliseconds())
	return out, nil
}

// Calibrate asks the model for the lesson behind a disputed prediction.
func (d *Detector) Calibrate(ctx context.Context, llmName string, req types.CalibrationRequest) (string, error) {
	eng, err := d.Engines.GetEngine(llmName)
	if err != nil {
		return "", Classify(err)
	}
	call, err := d.Builder.Calibration(req)
	if err != nil {
		return "", Classify(err)
	}

	var lesson string
	err = d.Retry.Do(ctx, "calibrate", func(ctx context.Context) error {
		txt, err := d.generate(ctx, eng, call)
		if err != nil {
			return err
		}
		lesson, err = ParseLesson(txt)
		return err
	})
	if err != nil {
		e := Classify(err)
		log.Printf("calibrate engine=%s kind=%s err=%v", eng.Name(), e.Kind, e.Err)
		return "", e
	}
	return lesson, nil
}

func (d *Detector) generate(ctx context.Context, eng Engine, call prompt.Call) (string, error) {
	txt, err := eng.Generate(ctx, call)
	if err != nil {
		e := Classify(err)
		d.Metrics.RecordProviderRequest(ctx, eng.Name(), string(call.Kind), "error")
		d.Metrics.RecordProviderError(ctx, eng.Name(), string(e.Kind))
		return "", e
	}
	d.Metrics.RecordProviderRequest(ctx, eng.Name(), string(call.Kind), "ok")
	return txt, nil
}

func (d *Detector) fail(ctx context.Context, engine string, start time.Time, e *Error) (types.DetectionResponse, error) {
	elapsed := time.Since(start)
	d.Metrics.RecordDetect(ctx, engine, string(types.StatusError), elapsed.Seconds())
	log.Printf("detect engine=%s kind=%s time_ms=%d err=%v", engine, e.Kind, elapsed.Milliseconds(), e.Err)
	return ErrorResponse(e), e
}
