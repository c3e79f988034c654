package queue

import (
	"context"
	"strings"
	"testing"
)

func TestBuild_Memory(t *testing.T) {
	q, err := Build(context.Background(), "memory", nil, "meter")
	if err != nil {
		t.Fatalf("expected memory queue, got error: %v", err)
	}
	if _, ok := q.(*MemoryQueue); !ok {
		t.Fatalf("expected *MemoryQueue, got %T", q)
	}
}

func TestBuild_RedisRequiresClient(t *testing.T) {
	_, err := Build(context.Background(), "redis", nil, "meter")
	if err == nil {
		t.Fatal("expected an error when no redis client is supplied")
	}
}

func TestBuild_UnknownAdapter(t *testing.T) {
	_, err := Build(context.Background(), "rabbitmq", nil, "meter")
	if err == nil {
		t.Fatal("expected an error for an unknown adapter")
	}
	if !strings.Contains(err.Error(), "rabbitmq") {
		t.Fatalf("error should name the bad adapter: %v", err)
	}
}
