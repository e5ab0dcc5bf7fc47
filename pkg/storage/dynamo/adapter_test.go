package dynamo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-reactive/pkg/storage"
)

// fakeClient keeps items in memory and pages queries one item at a time.
type fakeClient struct {
	mu      sync.Mutex
	items   map[string]map[string]types.AttributeValue
	gets    int
	queries int
	failPut error
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: make(map[string]map[string]types.AttributeValue)}
}

func itemID(item map[string]types.AttributeValue) string {
	pk := item["pk"].(*types.AttributeValueMemberS).Value
	sk := item["sk"].(*types.AttributeValueMemberS).Value
	return pk + "\x00" + sk
}

func (c *fakeClient) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	return &dynamodb.GetItemOutput{Item: c.items[itemID(in.Key)]}, nil
}

func (c *fakeClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if c.failPut != nil {
		return nil, c.failPut
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[itemID(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (c *fakeClient) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, itemID(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (c *fakeClient) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries++
	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value

	var ids []string
	for id, item := range c.items {
		if item["pk"].(*types.AttributeValueMemberS).Value == pk {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	start := 0
	if in.ExclusiveStartKey != nil {
		after := itemID(in.ExclusiveStartKey)
		start = sort.SearchStrings(ids, after) + 1
	}
	if start >= len(ids) {
		return &dynamodb.QueryOutput{}, nil
	}
	item := c.items[ids[start]]
	out := &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}
	if start+1 < len(ids) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{"pk": item["pk"], "sk": item["sk"]}
	}
	return out, nil
}

func TestAdapterRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	adapter, err := New(client, "state", WithNamespace("store-a"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	other, _ := New(client, "state", WithNamespace("store-b"))

	if _, ok, err := adapter.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	for _, key := range []string{"persisted_state_user", "persisted_state", "persisted_state_items"} {
		if err := adapter.Set(ctx, key, []byte(`"`+key+`"`)); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := other.Set(ctx, "persisted_state_user", []byte(`"other"`)); err != nil {
		t.Fatalf("set other: %v", err)
	}

	got, ok, err := adapter.Get(ctx, "persisted_state_user")
	if err != nil || !ok || string(got) != `"persisted_state_user"` {
		t.Fatalf("unexpected get: %s ok=%v err=%v", got, ok, err)
	}

	keys, err := adapter.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	want := []string{"persisted_state", "persisted_state_items", "persisted_state_user"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}

	if err := adapter.Remove(ctx, "persisted_state_items"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := adapter.Get(ctx, "persisted_state_items"); ok {
		t.Fatalf("removed key still readable")
	}
	if _, ok, _ := other.Get(ctx, "persisted_state_user"); !ok {
		t.Fatalf("namespaces must not interfere")
	}
}

func TestAdapterPrewarmServesReadsLocally(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	adapter, _ := New(client, "state")
	adapter.Set(ctx, "a", []byte("1"))
	adapter.Set(ctx, "b", []byte("2"))

	if err := adapter.Prewarm(ctx); err != nil {
		t.Fatalf("prewarm: %v", err)
	}
	if client.queries != 2 {
		t.Fatalf("expected one query per page, got %d", client.queries)
	}
	gets := client.gets

	got, ok, _ := adapter.Get(ctx, "b")
	if !ok || string(got) != "2" {
		t.Fatalf("unexpected cached value %s", got)
	}
	adapter.Set(ctx, "c", []byte("3"))
	adapter.Remove(ctx, "a")
	keys, _ := adapter.Keys(ctx)
	sort.Strings(keys)
	if diff := cmp.Diff([]string{"b", "c"}, keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if client.gets != gets {
		t.Fatalf("warm reads must not hit the table")
	}

	adapter.Invalidate()
	if _, ok, _ := adapter.Get(ctx, "c"); !ok || client.gets != gets+1 {
		t.Fatalf("invalidated reads go to the table")
	}
}

func TestAdapterIsAsync(t *testing.T) {
	adapter, _ := New(newFakeClient(), "state")
	if storage.IsSync(adapter) {
		t.Fatalf("dynamo reads are remote")
	}
}

func TestAdapterWrapsClientErrors(t *testing.T) {
	boom := errors.New("throttled")
	client := newFakeClient()
	client.failPut = boom
	adapter, _ := New(client, "state")
	if err := adapter.Set(context.Background(), "a", []byte("1")); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped client error, got %v", err)
	}
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New(nil, "state"); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := New(newFakeClient(), ""); err == nil {
		t.Fatalf("expected error for empty table")
	}
}
