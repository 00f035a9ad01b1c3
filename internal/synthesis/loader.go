package synthesis

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"voxstudio/pkg/logger"
	"voxstudio/pkg/model"
)

// Loader memoizes a single model load for the process lifetime. A failed
// load is memoized as well and is never retried.
type Loader struct {
	load LoadFunc

	once  sync.Once
	model Model
	err   error
}

func NewLoader(load LoadFunc) *Loader {
	return &Loader{load: load}
}

// Load returns the memoized model, loading it on first use. The load is
// detached from ctx cancellation so a caller going away cannot memoize
// its own cancellation as the load failure.
func (l *Loader) Load(ctx context.Context) (Model, error) {
	l.once.Do(func() {
		if l.load == nil {
			l.err = model.ModelError("load", errors.New("no model loader configured"))
			return
		}

		start := time.Now()
		logger.Info("Loading speech model")

		m, err := l.load(context.WithoutCancel(ctx))
		if err == nil && m == nil {
			err = errors.New("loader returned no model")
		}
		if err != nil {
			l.err = model.ModelError("load", err)
			logger.Error("Failed to load speech model", zap.Error(err))
			return
		}

		l.model = m
		info := m.Info()
		logger.Info("Speech model loaded",
			zap.String("model", info.Name),
			zap.String("device", info.Device),
			zap.Int("sample_rate", info.SampleRate),
			zap.Duration("took", time.Since(start)))
	})

	return l.model, l.err
}

