package fetch

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Querier is the subset of *pgxpool.Pool the SQL fetcher needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// SQL fetches sql-type calls. The call endpoint is the query text and the
// bound arguments are its positional parameters ($1, $2, ...) in declared
// order. Rows are returned as a JSON array of objects.
type SQL struct {
	db       Querier
	observer Observer
}

// NewSQL builds a SQL fetcher. obs may be nil.
func NewSQL(db Querier, obs Observer) *SQL {
	if obs == nil {
		obs = nopObserver{}
	}
	return &SQL{db: db, observer: obs}
}

// Fetch implements Fetcher.
func (s *SQL) Fetch(ctx context.Context, req Request) ([]byte, error) {
	start := time.Now()
	body, err := s.fetch(ctx, req)
	s.observer.UpstreamCall(req.Name, time.Since(start), err)
	return body, err
}

func (s *SQL) fetch(ctx context.Context, req Request) ([]byte, error) {
	args := make([]any, len(req.Call.Arguments))
	for i, arg := range req.Call.Arguments {
		args[i] = arg.Value
	}

	rows, err := s.db.Query(ctx, req.Call.Endpoint, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", req.Name, err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", req.Name, err)
	}

	for _, rec := range records {
		for k, v := range rec {
			rec[k] = jsonValue(v)
		}
	}
	if records == nil {
		records = []map[string]any{}
	}
	return json.Marshal(records)
}

// jsonValue converts pgx scan results into values that marshal the way an
// HTTP upstream would send them.
func jsonValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		if t.NaN || t.InfinityModifier != pgtype.Finite {
			f, _ := t.Float64Value()
			return fmt.Sprint(f.Float64)
		}
		dv, err := t.Value()
		if err != nil {
			return nil
		}
		if s, ok := dv.(string); ok {
			return json.Number(s)
		}
		return dv
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 && t.Location() == time.UTC {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339Nano)
	case [16]byte:
		return uuid.UUID(t).String()
	case netip.Prefix:
		return t.String()
	case []byte:
		return string(t)
	case pgtype.Interval:
		if !t.Valid {
			return nil
		}
		return fmt.Sprintf("%d months %d days %d microseconds", t.Months, t.Days, t.Microseconds)
	default:
		return v
	}
}
