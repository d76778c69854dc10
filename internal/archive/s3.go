package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"perp-mm/pkg/types"
)

// S3Writer is an additive archive sink: it batches rows in memory and
// uploads them as timestamped CSV objects under prefix/. It is never the
// sole sink — CSVWriter's local files remain the record of truth even when
// S3 is unreachable, per the archive writer contract (§6).
type S3Writer struct {
	client *s3.Client
	bucket string
	prefix string

	mu     sync.Mutex
	trades [][]string
	books  [][]string
}

// NewS3Writer loads the default AWS config chain (env vars, shared config,
// IMDS) and constructs a writer targeting bucket/prefix.
func NewS3Writer(ctx context.Context, bucket, prefix, region string) (*S3Writer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Writer{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (w *S3Writer) WriteTrade(t types.Trade) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trades = append(w.trades, []string{
		t.TradeID, string(t.Market), fmt.Sprintf("%d", t.TSMillis),
		t.Price.String(), t.Qty.String(), string(t.Aggressor),
	})
	return nil
}

func (w *S3Writer) WriteSnapshot(s types.OrderBookSnapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.books = append(w.books, []string{
		string(s.Market), fmt.Sprintf("%d", s.TSMillis),
		s.BestBid.String(), s.BestAsk.String(), s.Mid.String(),
	})
	return nil
}

// Flush uploads any batched rows as new objects and clears the batch. A
// failed upload leaves the batch intact so the next Flush retries it.
func (w *S3Writer) Flush() error {
	w.mu.Lock()
	trades, books := w.trades, w.books
	w.mu.Unlock()

	if len(trades) > 0 {
		if err := w.upload("trades", trades); err != nil {
			return fmt.Errorf("upload trades batch: %w", err)
		}
		w.mu.Lock()
		w.trades = w.trades[len(trades):]
		w.mu.Unlock()
	}
	if len(books) > 0 {
		if err := w.upload("books", books); err != nil {
			return fmt.Errorf("upload books batch: %w", err)
		}
		w.mu.Lock()
		w.books = w.books[len(books):]
		w.mu.Unlock()
	}
	return nil
}

func (w *S3Writer) upload(kind string, rows [][]string) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	key := fmt.Sprintf("%s/%s-%d.csv", w.prefix, kind, time.Now().UnixNano())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	return err
}

// Close flushes any remaining batch. S3 has no persistent connection to tear down.
func (w *S3Writer) Close() error {
	return w.Flush()
}
