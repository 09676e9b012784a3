package pipeline

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/MeKo-Tech/ocrlite/internal/common"
)

// ParallelConfig holds configuration for parallel processing.
type ParallelConfig struct {
	MaxWorkers      int              // workers for per-region stages (0 = runtime.NumCPU())
	BatchWorkers    int              // images processed at once by ProcessFiles (0 = 1)
	ContinueOnError bool             // keep going after a failed image in ProcessFiles
	Progress        ProgressCallback // optional progress reporting for ProcessFiles
}

// DefaultParallelConfig returns sensible defaults for parallel processing.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		MaxWorkers:   runtime.NumCPU(),
		BatchWorkers: 1,
	}
}

// FileResult is the outcome for one input of ProcessFiles.
type FileResult struct {
	Path   string
	Result *Result
	Err    error
}

// ProcessFiles runs ProcessFile over paths with BatchWorkers images in flight
// and returns one entry per path, in order. Without ContinueOnError the first
// failure is also returned as error; with it, failures are only recorded in
// the entries.
func (p *Pipeline) ProcessFiles(ctx context.Context, paths []string) ([]FileResult, error) {
	if len(paths) == 0 {
		return nil, errors.New("no images provided")
	}
	cfg := p.cfg.Parallel
	progress := cfg.Progress
	if progress == nil {
		progress = NoOpProgressCallback{}
	}
	progress.OnStart(len(paths))
	defer progress.OnComplete()

	var done atomic.Int64
	return common.MapOrdered(ctx, paths, max(cfg.BatchWorkers, 1),
		func(ctx context.Context, i int, path string) (FileResult, error) {
			res, err := p.ProcessFile(ctx, path)
			progress.OnProgress(int(done.Add(1)), len(paths))
			if err != nil {
				progress.OnError(i, err)
				if !cfg.ContinueOnError || ctx.Err() != nil {
					return FileResult{Path: path, Err: err}, err
				}
			}
			return FileResult{Path: path, Result: res, Err: err}, nil
		})
}
