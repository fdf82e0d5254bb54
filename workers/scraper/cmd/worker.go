package cmd

import (
	"context"
	"encoding/json"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/spf13/cobra"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/logger"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/repositories"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/services"
)

const (
	MaxBatchSize   = 10
	FlushInterval  = 1 * time.Second
	SQSMaxMessages = 10
	ReceiveBackoff = 5 * time.Second
)

func workerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume scrape jobs from the queue and ingest their documents",
		RunE:  runWorker,
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	if err := cfg.RequireQueue(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository()
	if err != nil {
		return err
	}
	awsCfg, err := loadAWSConfig(ctx)
	if err != nil {
		return err
	}
	sqsClient := repositories.NewSQSClient(sqs.NewFromConfig(awsCfg))
	liveness := newLiveness()

	opts := []services.IngestionOption{
		services.WithDocumentStore(repo),
		services.WithCursorOpener(services.PortalCursors{Client: newPortalClient()}),
		services.WithHeartbeat(liveness, liveness.TTL()/3),
		services.WithLogger(log),
	}
	if cfg.DocumentsBucket != "" {
		opts = append(opts, services.WithArchive(repositories.NewS3Repository(repositories.NewS3Client(awsCfg), cfg.DocumentsBucket)))
	}
	if cfg.DynamoDBTable != "" {
		opts = append(opts, services.WithJobStatusSink(repositories.NewDynamoDBClient(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable)))
	}
	if cfg.OpenSearchURL != "" {
		osClient, err := repositories.NewOpenSearchClient(cfg.OpenSearchURL)
		if err != nil {
			return err
		}
		opts = append(opts, services.WithCatalog(repositories.NewOpenSearchRepository(osClient)))
	}

	p := &pool{
		queue:    sqsClient,
		queueURL: cfg.InputQueueURL,
		runner:   services.NewIngestionService(opts...),
		workers:  cfg.NumWorkers,
		logger:   log,
	}
	log.Info("scraper worker started", logger.Int("workers", cfg.NumWorkers), logger.Int("batch_size", MaxBatchSize))
	p.run(ctx)
	log.Info("shutdown complete")
	return nil
}

type jobRunner interface {
	Run(ctx context.Context, job domain.Job) (domain.JobSummary, error)
}

type messageQueue interface {
	ReceiveMessages(ctx context.Context, queueURL string, maxMessages int32) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, queueURL string, entries []types.DeleteMessageBatchRequestEntry) error
}

// pool feeds received messages to a fixed set of workers and deletes handled
// messages in batches.
type pool struct {
	queue    messageQueue
	queueURL string
	runner   jobRunner
	workers  int
	logger   logger.Logger
	backoff  time.Duration
}

func (p *pool) run(ctx context.Context) {
	jobs := make(chan types.Message, p.workers*2)
	deletes := make(chan types.Message, p.workers*2)

	var workerWg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		workerWg.Add(1)
		go p.worker(ctx, &workerWg, jobs, deletes, i)
	}
	deleterDone := make(chan struct{})
	go p.batchDeleter(deletes, deleterDone)

	p.receive(ctx, jobs)

	p.logger.Info("receive loop exited, waiting for workers to finish")
	close(jobs)
	workerWg.Wait()
	close(deletes)
	<-deleterDone
}

func (p *pool) receive(ctx context.Context, jobs chan<- types.Message) {
	backoff := p.backoff
	if backoff <= 0 {
		backoff = ReceiveBackoff
	}
	for ctx.Err() == nil {
		out, err := p.queue.ReceiveMessages(ctx, p.queueURL, SQSMaxMessages)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("failed to receive messages", logger.Err(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		for _, msg := range out.Messages {
			select {
			case jobs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// worker drains jobs until the channel closes. A job that was started runs to
// completion so that its rows end terminal.
func (p *pool) worker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan types.Message, deletes chan<- types.Message, id int) {
	defer wg.Done()
	log := p.logger.With(logger.Int("worker", id))
	for msg := range jobs {
		if ctx.Err() != nil {
			// Left on the queue for redelivery.
			continue
		}
		p.handle(context.WithoutCancel(ctx), msg, log)
		deletes <- msg
	}
}

func (p *pool) handle(ctx context.Context, msg types.Message, log logger.Logger) {
	var body domain.JobMessage
	if msg.Body == nil {
		log.Error("dropping message without body")
		return
	}
	if err := json.Unmarshal([]byte(*msg.Body), &body); err != nil {
		log.Error("dropping malformed message", logger.Err(err))
		return
	}
	if body.Type != domain.MsgTypeScrapeDocuments {
		log.Error("dropping message of unknown type", logger.String("type", body.Type))
		return
	}
	job, err := body.Job()
	if err != nil {
		log.Error("dropping invalid job", logger.String("job_id", body.JobID), logger.Err(err))
		return
	}
	if _, err := p.runner.Run(ctx, job); err != nil {
		log.Warn("job ended with failure", logger.String("job_id", job.ID), logger.Err(err))
	}
}

func (p *pool) batchDeleter(deletes <-chan types.Message, done chan<- struct{}) {
	defer close(done)
	var batch []types.DeleteMessageBatchRequestEntry
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := p.queue.DeleteMessageBatch(context.Background(), p.queueURL, batch); err != nil {
			p.logger.Error("failed to delete batch", logger.Err(err))
		}
		batch = nil
	}

	for {
		select {
		case msg, ok := <-deletes:
			if !ok {
				flush()
				return
			}
			batch = append(batch, types.DeleteMessageBatchRequestEntry{
				Id:            msg.MessageId,
				ReceiptHandle: msg.ReceiptHandle,
			})
			if len(batch) >= MaxBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
