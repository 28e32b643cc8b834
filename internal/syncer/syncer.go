package syncer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/davexpro/hybrid-backup/internal/db"
	"github.com/davexpro/hybrid-backup/internal/errs"
	"github.com/davexpro/hybrid-backup/internal/source"
)

// maxRecordedErrors bounds Result.Errors; counts are always exact.
const maxRecordedErrors = 100

// Upserter writes one row by natural key. Rows are passed as pointers.
type Upserter interface {
	Upsert(ctx context.Context, row db.Row) error
}

// Result holds the counts of one collection pass.
type Result struct {
	Collection        string   `json:"collection"`
	Processed         int      `json:"processed"`
	Failed            int      `json:"failed"`
	MessagesProcessed int      `json:"messagesProcessed,omitempty"`
	MessagesFailed    int      `json:"messagesFailed,omitempty"`
	Errors            []string `json:"errors,omitempty"`
}

// Outcome is what a Handler reports for one source record.
type Outcome struct {
	Key           string
	Err           error
	Children      int
	ChildFailures []error
}

// Handler maps and upserts one record.
type Handler[T any] func(ctx context.Context, rec T) Outcome

// Sync runs handle over every record of enum. Record-level failures are
// logged, counted and skipped. The returned error is non-nil only when the
// collection itself could not be enumerated; Result still carries whatever
// was processed before that.
func Sync[T any](ctx context.Context, log logrus.FieldLogger, enum source.Enumerator[T], handle Handler[T]) (Result, error) {
	name := enum.Name()
	res := Result{Collection: name}
	log = log.WithField("collection", name)

	cur, err := enum.Open(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to open source collection")
		return res, errs.NewSourceOpenError(name, err)
	}
	defer func() {
		if err := cur.Close(ctx); err != nil {
			log.WithError(err).Warn("Failed to close source cursor")
		}
	}()

	for cur.Next(ctx) {
		rec, err := cur.Decode()
		if err != nil {
			res.recordFailure(log, cur.ID(), errs.NewMappingError(cur.ID(), fmt.Sprintf("cannot decode document: %v", err)))
			continue
		}

		out := handle(ctx, rec)
		key := out.Key
		if key == "" {
			key = cur.ID()
		}

		res.MessagesProcessed += out.Children - len(out.ChildFailures)
		res.MessagesFailed += len(out.ChildFailures)
		for _, childErr := range out.ChildFailures {
			res.recordError(log, key, childErr)
		}

		switch {
		case out.Err != nil:
			res.recordFailure(log, key, out.Err)
		case len(out.ChildFailures) > 0:
			res.Failed++
		default:
			res.Processed++
		}
	}

	if err := cur.Err(); err != nil {
		log.WithError(err).Error("Source cursor failed mid-collection")
		return res, errs.NewSourceOpenError(name, err)
	}
	if err := ctx.Err(); err != nil {
		return res, errs.New(errs.KindSourceOpen, name, "enumeration interrupted", err)
	}

	log.WithFields(logrus.Fields{
		"processed": res.Processed,
		"failed":    res.Failed,
	}).Info("Collection synchronized")
	return res, nil
}

func (r *Result) recordFailure(log logrus.FieldLogger, key string, err error) {
	r.Failed++
	r.recordError(log, key, err)
}

func (r *Result) recordError(log logrus.FieldLogger, key string, err error) {
	log.WithField("key", key).WithError(err).Warn("Record skipped")
	if len(r.Errors) < maxRecordedErrors {
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", key, err))
	}
}

// Add folds another pass into r, used when totalling a run.
func (r *Result) Add(o Result) {
	r.Processed += o.Processed
	r.Failed += o.Failed
	r.MessagesProcessed += o.MessagesProcessed
	r.MessagesFailed += o.MessagesFailed
}
