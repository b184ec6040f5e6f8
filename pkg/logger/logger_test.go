package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithOwnerKey(ctx, "g:abc")

	log.Error(ctx, "boom", errors.New("boom"))

	if !bytes.Contains(buf.Bytes(), []byte(`"request_id"`)) {
		t.Fatalf("expected request_id to be preserved; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"owner_key"`)) {
		t.Fatalf("expected owner_key to be preserved; entry=%s", buf.String())
	}
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	parent := context.Background()
	_ = log.WithFields(parent, map[string]any{"child": true})

	log.Info(parent, "plain")
	if bytes.Contains(buf.Bytes(), []byte(`"child"`)) {
		t.Fatalf("parent context unexpectedly carried child fields; entry=%s", buf.String())
	}
}
