package metrics

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/conductorsdk/worker-go/internal/logger"
)

// FileWriter periodically writes a collector's registry to a file in
// Prometheus text format. It is the alternative to the embedded HTTP
// server for environments where a scrape endpoint cannot be exposed.
type FileWriter struct {
	collector *Collector
	path      string
	interval  time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewFileWriter writes metrics to dir/name every interval.
func NewFileWriter(collector *Collector, dir, name string, interval time.Duration) *FileWriter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &FileWriter{
		collector: collector,
		path:      filepath.Join(dir, name),
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the write loop in the background.
func (w *FileWriter) Start() {
	w.wg.Add(1)
	go w.loop()
	logger.Info().Str("path", w.path).Dur("interval", w.interval).Msg("metrics file writer started")
}

// Stop writes one final snapshot and stops the loop. Idempotent.
func (w *FileWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	w.wg.Wait()
}

func (w *FileWriter) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			w.write()
			return
		case <-ticker.C:
			w.write()
		}
	}
}

// write gathers the registry and atomically replaces the metrics file.
func (w *FileWriter) write() {
	families, err := w.collector.Registry().Gather()
	if err != nil {
		logger.Error().Err(err).Msg("failed to gather metrics")
		return
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".metrics-*")
	if err != nil {
		logger.Error().Err(err).Msg("failed to create metrics temp file")
		return
	}

	enc := expfmt.NewEncoder(tmp, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			logger.Error().Err(err).Msg("failed to encode metrics")
			tmp.Close()
			os.Remove(tmp.Name())
			return
		}
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		logger.Error().Err(err).Str("path", w.path).Msg("failed to replace metrics file")
		os.Remove(tmp.Name())
	}
}
