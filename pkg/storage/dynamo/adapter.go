// Package dynamo provides a DynamoDB-backed storage adapter.
//
// Items live in one table keyed by a string partition key "pk" holding the
// namespace and a string sort key "sk" holding the storage key, so several
// stores can share a table.
package dynamo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/goliatone/go-reactive/pkg/storage"
)

// DefaultNamespace is the partition used when none is configured.
const DefaultNamespace = "reactive"

// Client is the subset of *dynamodb.Client the adapter uses.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type record struct {
	PK        string `dynamodbav:"pk"`
	SK        string `dynamodbav:"sk"`
	Value     []byte `dynamodbav:"value"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// Adapter reads and writes one namespace. Reads are remote, so stores using
// it hydrate asynchronously; Prewarm loads the namespace into a local cache
// that later reads are served from.
type Adapter struct {
	client     Client
	table      string
	namespace  string
	consistent bool

	mu     sync.RWMutex
	warm   bool
	values map[string][]byte
}

var (
	_ storage.Adapter   = (*Adapter)(nil)
	_ storage.Prewarmer = (*Adapter)(nil)
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithNamespace sets the partition key value.
func WithNamespace(namespace string) Option {
	return func(a *Adapter) {
		if namespace != "" {
			a.namespace = namespace
		}
	}
}

// WithConsistentReads requests strongly consistent reads.
func WithConsistentReads(enabled bool) Option {
	return func(a *Adapter) {
		a.consistent = enabled
	}
}

// New creates an adapter over an existing client.
func New(client Client, table string, opts ...Option) (*Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamo: client is required")
	}
	if table == "" {
		return nil, fmt.Errorf("dynamo: table is required")
	}
	a := &Adapter{client: client, table: table, namespace: DefaultNamespace}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// NewFromConfig loads the default AWS configuration and builds a client.
func NewFromConfig(ctx context.Context, table string, loadOpts []func(*config.LoadOptions) error, opts ...Option) (*Adapter, error) {
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("dynamo: load aws config: %w", err)
	}
	return New(dynamodb.NewFromConfig(cfg), table, opts...)
}

func (a *Adapter) key(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: a.namespace},
		"sk": &types.AttributeValueMemberS{Value: key},
	}
}

func (a *Adapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	a.mu.RLock()
	if a.warm {
		value, ok := a.values[key]
		a.mu.RUnlock()
		return clone(value), ok, nil
	}
	a.mu.RUnlock()

	out, err := a.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(a.table),
		Key:            a.key(key),
		ConsistentRead: aws.Bool(a.consistent),
	})
	if err != nil {
		return nil, false, fmt.Errorf("dynamo: get %q: %w", key, err)
	}
	if out.Item == nil {
		return nil, false, nil
	}
	var rec record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, false, fmt.Errorf("dynamo: decode %q: %w", key, err)
	}
	return rec.Value, true, nil
}

func (a *Adapter) Set(ctx context.Context, key string, value []byte) error {
	item, err := attributevalue.MarshalMap(record{
		PK:        a.namespace,
		SK:        key,
		Value:     value,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("dynamo: encode %q: %w", key, err)
	}
	if _, err := a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamo: put %q: %w", key, err)
	}
	a.mu.Lock()
	if a.warm {
		a.values[key] = clone(value)
	}
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Remove(ctx context.Context, key string) error {
	if _, err := a.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(a.table),
		Key:       a.key(key),
	}); err != nil {
		return fmt.Errorf("dynamo: delete %q: %w", key, err)
	}
	a.mu.Lock()
	if a.warm {
		delete(a.values, key)
	}
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Keys(ctx context.Context) ([]string, error) {
	a.mu.RLock()
	if a.warm {
		keys := make([]string, 0, len(a.values))
		for key := range a.values {
			keys = append(keys, key)
		}
		a.mu.RUnlock()
		return keys, nil
	}
	a.mu.RUnlock()

	records, err := a.query(ctx, "pk, sk")
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(records))
	for _, rec := range records {
		keys = append(keys, rec.SK)
	}
	return keys, nil
}

// Prewarm loads every item in the namespace into the local cache.
func (a *Adapter) Prewarm(ctx context.Context) error {
	records, err := a.query(ctx, "")
	if err != nil {
		return err
	}
	values := make(map[string][]byte, len(records))
	for _, rec := range records {
		values[rec.SK] = rec.Value
	}
	a.mu.Lock()
	a.values = values
	a.warm = true
	a.mu.Unlock()
	return nil
}

// Invalidate drops the local cache so reads go back to the table.
func (a *Adapter) Invalidate() {
	a.mu.Lock()
	a.values = nil
	a.warm = false
	a.mu.Unlock()
}

func (a *Adapter) query(ctx context.Context, projection string) ([]record, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(a.table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: a.namespace},
		},
		ConsistentRead: aws.Bool(a.consistent),
	}
	if projection != "" {
		input.ProjectionExpression = aws.String(projection)
	}

	var records []record
	paginator := dynamodb.NewQueryPaginator(a.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo: query %s: %w", a.namespace, err)
		}
		var batch []record
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("dynamo: decode page: %w", err)
		}
		records = append(records, batch...)
	}
	return records, nil
}

func clone(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
