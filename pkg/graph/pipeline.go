package graph

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	pipelineProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "stix2graph_pipeline_processing_duration_seconds",
			Help: "Time spent decoding documents in pipeline",
		},
		[]string{"status"},
	)

	documentProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stix2graph_pipeline_documents_processed_total",
			Help: "Total number of documents decoded",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(pipelineProcessingDuration)
	prometheus.MustRegister(documentProcessedTotal)
}

// DefaultBatchSize is the number of documents decoded concurrently.
const DefaultBatchSize = 10

// DecodePipeline decodes documents concurrently in batches. Decoding never
// touches the graph store, so the load itself stays single-threaded.
type DecodePipeline struct {
	decoder   RecordDecoder
	logger    logrus.FieldLogger
	batchSize int
}

// NewPipeline creates a decode pipeline. A nil logger falls back to a JSON
// logrus logger and a non-positive batch size to DefaultBatchSize.
func NewPipeline(decoder RecordDecoder, logger logrus.FieldLogger, batchSize int) *DecodePipeline {
	if logger == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.JSONFormatter{})
		logger = l
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &DecodePipeline{
		decoder:   decoder,
		logger:    logger,
		batchSize: batchSize,
	}
}

// BatchProcess decodes every document, filling its Records. It stops after
// the first batch containing a failure and returns that failure.
func (p *DecodePipeline) BatchProcess(ctx context.Context, docs []*Document) error {
	p.logger.WithField("document_count", len(docs)).Info("Starting batch decoding")

	for i := 0; i < len(docs); i += p.batchSize {
		end := i + p.batchSize
		if end > len(docs) {
			end = len(docs)
		}

		batch := docs[i:end]
		errs := make(chan error, len(batch))
		var wg sync.WaitGroup

		for _, doc := range batch {
			wg.Add(1)
			go func(d *Document) {
				defer wg.Done()

				timer := prometheus.NewTimer(pipelineProcessingDuration.WithLabelValues("batch"))
				err := p.Process(ctx, d)
				timer.ObserveDuration()

				if err != nil {
					p.logger.WithError(err).WithField("document", d.Name).Error("Failed to decode document")
					documentProcessedTotal.WithLabelValues("error").Inc()
					errs <- err
					return
				}
				documentProcessedTotal.WithLabelValues("success").Inc()
			}(doc)
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				return errors.Wrap(err, "batch decoding failed")
			}
		}
	}

	p.logger.Info("Batch decoding completed successfully")
	return nil
}

// Process decodes a single document.
func (p *DecodePipeline) Process(ctx context.Context, doc *Document) error {
	if doc == nil {
		return errors.New("cannot process nil document")
	}

	records, err := p.decoder.Decode(ctx, doc.Content)
	if err != nil {
		return errors.Wrapf(err, "decode %s", doc.Name)
	}
	doc.Records = records

	p.logger.WithFields(logrus.Fields{
		"document": doc.Name,
		"records":  len(records),
	}).Debug("Document decoded")
	return nil
}
