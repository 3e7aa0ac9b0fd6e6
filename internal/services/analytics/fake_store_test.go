package analytics

import (
	"context"
	"reflect"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type aggregateCall struct {
	collection string
	pipeline   mongo.Pipeline
}

// fakeStore answers aggregations from a scripted responder and records every call.
type fakeStore struct {
	mu      sync.Mutex
	calls   []aggregateCall
	respond func(collection string, pipeline mongo.Pipeline) ([]bson.M, error)
}

func (f *fakeStore) Aggregate(_ context.Context, collection string, pipeline mongo.Pipeline, results any) error {
	f.mu.Lock()
	f.calls = append(f.calls, aggregateCall{collection: collection, pipeline: pipeline})
	respond := f.respond
	f.mu.Unlock()

	var docs []bson.M
	if respond != nil {
		var err error
		docs, err = respond(collection, pipeline)
		if err != nil {
			return err
		}
	}
	return decodeInto(docs, results)
}

func (f *fakeStore) callsTo(collection string) []aggregateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []aggregateCall
	for _, c := range f.calls {
		if c.collection == collection {
			out = append(out, c)
		}
	}
	return out
}

// decodeInto round-trips docs through bson so the production struct tags are exercised.
func decodeInto(docs []bson.M, results any) error {
	rv := reflect.ValueOf(results).Elem()
	slice := reflect.MakeSlice(rv.Type(), 0, len(docs))
	for _, d := range docs {
		raw, err := bson.Marshal(d)
		if err != nil {
			return err
		}
		elem := reflect.New(rv.Type().Elem())
		if err := bson.Unmarshal(raw, elem.Interface()); err != nil {
			return err
		}
		slice = reflect.Append(slice, elem.Elem())
	}
	rv.Set(slice)
	return nil
}

// stage returns the body of the first stage named op, e.g. "$match".
func stage(p mongo.Pipeline, op string) (any, bool) {
	for _, s := range p {
		if len(s) > 0 && s[0].Key == op {
			return s[0].Value, true
		}
	}
	return nil, false
}

// lookup returns the value stored under key in a bson.D.
func lookup(d any, key string) (any, bool) {
	doc, ok := d.(bson.D)
	if !ok {
		return nil, false
	}
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

type recordedFallback struct {
	operation string
	reason    string
}

type fallbackRecorder struct {
	mu     sync.Mutex
	events []recordedFallback
}

func (r *fallbackRecorder) RecordFallback(operation, reason string) {
	r.mu.Lock()
	r.events = append(r.events, recordedFallback{operation, reason})
	r.mu.Unlock()
}
