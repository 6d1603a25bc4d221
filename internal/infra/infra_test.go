package infra

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if _, err := NewRedisClient(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewRedisClient(context.Background(), "://bad"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestNewPostgresPoolRequiresURL(t *testing.T) {
	if _, err := NewPostgresPool(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestKafkaConstructors(t *testing.T) {
	if _, err := NewKafkaWriter(nil, "events"); err == nil {
		t.Fatal("expected error without brokers")
	}
	w, err := NewKafkaWriter([]string{"localhost:9092"}, "events")
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	if w.Topic != "events" {
		t.Fatalf("unexpected topic %q", w.Topic)
	}

	if _, err := NewKafkaReader([]string{"localhost:9092"}, "signals", ""); err == nil {
		t.Fatal("expected error without group id")
	}
}

func TestSchemaDefinesEveryTable(t *testing.T) {
	for _, table := range []string{"wallets", "balances", "transactions", "exchange_rates"} {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Fatalf("schema is missing table %s", table)
		}
	}
	if !strings.Contains(schema, "amount >= locked_amount") {
		t.Fatal("balances must enforce amount >= locked_amount")
	}
}
