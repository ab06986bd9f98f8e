package worker

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/Alfresco/gytheio-sub001/errors"
	"github.com/Alfresco/gytheio-sub001/message"
)

// Detail keys of hash results.
const (
	DetailHash      = "hash"
	DetailAlgorithm = "algorithm"
	DetailError     = "error"
	DetailErrorKind = "errorKind"
)

// HashProcessor serves HashRequests with a HashWorker.
type HashProcessor struct {
	worker HashWorker
}

// NewHashProcessor adapts w to hash requests.
func NewHashProcessor(w HashWorker) *HashProcessor {
	return &HashProcessor{worker: w}
}

// RequestKind returns the request kind served.
func (p *HashProcessor) RequestKind() string {
	return message.KindHashRequest
}

// Process hashes every source. Each source gets one result, carrying
// either its digest or its failure. An error is returned only when the
// algorithm is unsupported or every source failed.
func (p *HashProcessor) Process(ctx context.Context, req message.Request, _ ProgressFunc) ([]message.Result, error) {
	hr, ok := req.(*message.HashRequest)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("unexpected request kind %s", req.Kind()), "HashProcessor", "Process", "request kind check")
	}
	if !p.worker.IsAlgorithmSupported(hr.Algorithm) {
		return nil, errors.AlgorithmUnsupported("HashProcessor", "Process", hr.Algorithm)
	}

	sources := hr.SourceReferences()
	digests, err := p.worker.GenerateHashes(ctx, sources, hr.Algorithm)
	var refErrs ReferenceErrors
	if err != nil && !stderrors.As(err, &refErrs) {
		return nil, err
	}

	results := make([]message.Result, 0, len(sources))
	var firstErr error
	failed := 0
	for _, src := range sources {
		if digest, ok := digests[src.URI()]; ok {
			results = append(results, message.Result{
				ContentReference: src,
				Details:          map[string]string{DetailHash: digest, DetailAlgorithm: hr.Algorithm},
			})
			continue
		}

		refErr := refErrs[src.URI()]
		if refErr == nil {
			refErr = errors.IO(fmt.Errorf("no digest produced"), "HashProcessor", "Process", "collect digest")
		}
		if firstErr == nil {
			firstErr = refErr
		}
		failed++
		results = append(results, message.Result{
			ContentReference: src,
			Details: map[string]string{
				DetailAlgorithm: hr.Algorithm,
				DetailError:     refErr.Error(),
				DetailErrorKind: errors.Kind(refErr),
			},
		})
	}

	if len(sources) > 0 && failed == len(sources) {
		return nil, firstErr
	}
	return results, nil
}

// TransformProcessor serves TransformationRequests with a TransformWorker.
type TransformProcessor struct {
	worker   TransformWorker
	defaults *message.Options
}

// NewTransformProcessor adapts w to transformation requests. defaults are
// applied beneath the options of every request.
func NewTransformProcessor(w TransformWorker, defaults *message.Options) *TransformProcessor {
	return &TransformProcessor{worker: w, defaults: defaults.Clone()}
}

// RequestKind returns the request kind served.
func (p *TransformProcessor) RequestKind() string {
	return message.KindTransformationRequest
}

// Process merges the request options over the defaults, request winning
// per kind, and runs the worker.
func (p *TransformProcessor) Process(ctx context.Context, req message.Request, progress ProgressFunc) ([]message.Result, error) {
	tr, ok := req.(*message.TransformationRequest)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("unexpected request kind %s", req.Kind()), "TransformProcessor", "Process", "request kind check")
	}

	sources := tr.SourceReferences()
	if len(sources) == 0 || len(tr.Targets) == 0 {
		return nil, errors.TransformFailure(
			fmt.Errorf("request needs at least one source and one target"), "TransformProcessor", "Process", "validate request")
	}
	if progress == nil {
		progress = func(float64) {}
	}
	return p.worker.Transform(ctx, sources, tr.Targets, p.defaults.Merge(tr.Options), progress)
}
