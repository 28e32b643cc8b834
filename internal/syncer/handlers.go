package syncer

import (
	"context"

	"github.com/davexpro/hybrid-backup/internal/db"
	"github.com/davexpro/hybrid-backup/internal/errs"
	"github.com/davexpro/hybrid-backup/internal/mapper"
	"github.com/davexpro/hybrid-backup/internal/source"
)

// UpsertHandler maps a record with mapFn and upserts the resulting row.
func UpsertHandler[T any, R any, PR interface {
	*R
	db.Row
}](up Upserter, mapFn func(T) (R, error)) Handler[T] {
	return func(ctx context.Context, rec T) Outcome {
		row, err := mapFn(rec)
		if err != nil {
			return Outcome{Err: err}
		}
		ptr := PR(&row)
		key := ptr.NaturalKey()
		if err := up.Upsert(ctx, ptr); err != nil {
			return Outcome{Key: key, Err: errs.NewUpsertError(key, err)}
		}
		return Outcome{Key: key}
	}
}

// SessionHandler upserts a session and then its messages in ascending
// order. Messages are only written once the session row exists. A failed
// message is recorded and the next one is still attempted at its own
// order, so the stored sequence never shifts.
func SessionHandler(up Upserter, m *mapper.Mapper) Handler[source.CounselingSession] {
	return func(ctx context.Context, doc source.CounselingSession) Outcome {
		session, err := m.MapSession(doc, doc.SessionID)
		if err != nil {
			return Outcome{Err: err}
		}
		key := session.NaturalKey()
		if err := up.Upsert(ctx, &session); err != nil {
			return Outcome{Key: key, Err: errs.NewUpsertError(key, err)}
		}

		out := Outcome{Key: key, Children: len(doc.Messages)}
		for i, msg := range doc.Messages {
			row, err := m.MapMessage(session, msg, i)
			if err != nil {
				out.ChildFailures = append(out.ChildFailures, err)
				continue
			}
			if err := up.Upsert(ctx, &row); err != nil {
				out.ChildFailures = append(out.ChildFailures, errs.NewUpsertError(row.NaturalKey(), err))
			}
		}
		return out
	}
}
