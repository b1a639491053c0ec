package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/giftpots-go/apperr"
)

type txKey struct{}

// MemoryStore keeps rows as BSON documents in process memory, so values go
// through the same encoding as MongoStore. Transactions are serialized and
// rolled back by restoring a snapshot.
type MemoryStore struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	tables map[string][]bson.M
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: map[string][]bson.M{}}
}

func (s *MemoryStore) Find(ctx context.Context, table string, q Query, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return apperr.StoreUnavailable(err, "find "+table)
	}

	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return apperr.Store(errors.Errorf("out must be a pointer to a slice, got %T", out), "find "+table)
	}

	s.mu.RLock()
	var rows []bson.M
	for _, doc := range s.tables[table] {
		if matches(doc, q.Filter) {
			rows = append(rows, doc)
		}
	}
	s.mu.RUnlock()

	if len(q.Sort) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, srt := range q.Sort {
				c := compareValues(rows[i][srt.Field], rows[j][srt.Field])
				if c == 0 {
					continue
				}
				if srt.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && int64(len(rows)) > q.Limit {
		rows = rows[:q.Limit]
	}

	slice := reflect.MakeSlice(rv.Elem().Type(), 0, len(rows))
	elemType := rv.Elem().Type().Elem()
	for _, doc := range rows {
		raw, err := bson.Marshal(doc)
		if err != nil {
			return apperr.Store(err, "find "+table)
		}
		elem := reflect.New(elemType)
		if err := bson.Unmarshal(raw, elem.Interface()); err != nil {
			return apperr.Store(err, "decode "+table)
		}
		slice = reflect.Append(slice, elem.Elem())
	}
	rv.Elem().Set(slice)
	return nil
}

func (s *MemoryStore) Insert(ctx context.Context, table string, docs ...interface{}) error {
	if err := ctx.Err(); err != nil {
		return apperr.StoreUnavailable(err, "insert "+table)
	}

	encoded := make([]bson.M, 0, len(docs))
	for _, d := range docs {
		doc, err := toDocument(d)
		if err != nil {
			return apperr.Store(err, "insert "+table)
		}
		if _, ok := doc["_id"]; !ok || doc["_id"] == "" {
			doc["_id"] = uuid.NewString()
		}
		encoded = append(encoded, doc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range encoded {
		for _, existing := range s.tables[table] {
			if compareValues(existing["_id"], doc["_id"]) == 0 {
				return apperr.Store(errors.Errorf("duplicate _id %v", doc["_id"]), "insert "+table)
			}
		}
	}
	s.tables[table] = append(s.tables[table], encoded...)
	return nil
}

func (s *MemoryStore) Patch(ctx context.Context, table string, changes map[string]interface{}, f Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperr.StoreUnavailable(err, "patch "+table)
	}
	set, err := toDocument(bson.M(changes))
	if err != nil {
		return 0, apperr.Store(err, "patch "+table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var matched int64
	rows := s.tables[table]
	for i, doc := range rows {
		if !matches(doc, f) {
			continue
		}
		// replace rather than mutate so snapshots stay intact
		next := make(bson.M, len(doc)+len(set))
		for k, v := range doc {
			next[k] = v
		}
		for k, v := range set {
			next[k] = v
		}
		rows[i] = next
		matched++
	}
	return matched, nil
}

func (s *MemoryStore) Delete(ctx context.Context, table string, f Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperr.StoreUnavailable(err, "delete "+table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]bson.M, 0, len(s.tables[table]))
	var deleted int64
	for _, doc := range s.tables[table] {
		if matches(doc, f) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	s.tables[table] = kept
	return deleted, nil
}

func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := make(map[string][]bson.M, len(s.tables))
	for name, rows := range s.tables {
		snapshot[name] = append([]bson.M(nil), rows...)
	}
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.tables = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperr.StoreUnavailable(err, "ping")
	}
	return nil
}

func (s *MemoryStore) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range Tables {
		if _, ok := s.tables[t]; !ok {
			s.tables[t] = nil
		}
	}
	return nil
}

func toDocument(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %T", v)
	}
	doc := bson.M{}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "decode %T", v)
	}
	return doc, nil
}

func matches(doc bson.M, f Filter) bool {
	for _, c := range f {
		v, present := doc[c.Field]
		switch c.op {
		case opEq:
			if !present || compareValues(v, c.Value) != 0 {
				return false
			}
		case opNe:
			if present && compareValues(v, c.Value) == 0 {
				return false
			}
		case opIn:
			if !present {
				return false
			}
			found := false
			for _, want := range c.Values {
				if compareValues(v, want) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

// normalize folds the numeric and time representations that appear after a
// BSON round trip onto float64 so caller-supplied values compare equal.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	case primitive.DateTime:
		return float64(x)
	case time.Time:
		return float64(primitive.NewDateTimeFromTime(x))
	default:
		return v
	}
}

// compareValues orders missing/nil before anything else, like MongoDB does.
func compareValues(a, b interface{}) int {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprintf("%T:%v", a, a), fmt.Sprintf("%T:%v", b, b))
}
