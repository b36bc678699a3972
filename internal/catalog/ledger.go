package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/leafcart/strain-admin/internal/aws"
)

// ErrStrainNotFound indicates the strain id has no catalog record.
var ErrStrainNotFound = errors.New("strain not found")

// ErrInsufficientStock indicates a decrement would drive available grams negative.
var ErrInsufficientStock = errors.New("insufficient stock")

// Store is the inventory ledger over the strains table. It is the only
// component allowed to write available_grams outside the fulfillment
// transaction in the orders store.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a ledger Store bound to the strains table.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// TableName reports the backing table; the orders store targets it when
// building the fulfillment transaction.
func (s *Store) TableName() string { return s.tableName }

// Get fetches a strain by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, strainID string) (*Strain, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"strain_id": &types.AttributeValueMemberS{Value: strainID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get strain: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var st Strain
	if err := attributevalue.UnmarshalMap(out.Item, &st); err != nil {
		return nil, fmt.Errorf("unmarshal strain: %w", err)
	}
	return &st, nil
}

// GetAvailable reads the current stock for a strain in grams.
func (s *Store) GetAvailable(ctx context.Context, strainID string) (int64, error) {
	st, err := s.Get(ctx, strainID)
	if err != nil {
		return 0, err
	}
	if st == nil {
		return 0, fmt.Errorf("%w: %s", ErrStrainNotFound, strainID)
	}
	return st.AvailableGrams, nil
}

// IsLowStock reports whether the strain's available grams are below
// threshold. A threshold <= 0 uses DefaultLowStockThreshold.
func (s *Store) IsLowStock(ctx context.Context, strainID string, threshold int64) (bool, error) {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	grams, err := s.GetAvailable(ctx, strainID)
	if err != nil {
		return false, err
	}
	return grams < threshold, nil
}

// Decrement atomically subtracts grams from a strain's available stock.
// The conditional write guarantees the stored value never goes negative:
// a concurrent decrement that would overdraw fails rather than racing.
// Fulfillment uses the transactional batch in the orders store instead;
// this single-strain path serves manual stock corrections.
func (s *Store) Decrement(ctx context.Context, strainID string, grams int64) error {
	if grams <= 0 {
		return fmt.Errorf("decrement grams must be positive, got %d", grams)
	}
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"strain_id": &types.AttributeValueMemberS{Value: strainID},
		},
		UpdateExpression:    awsString("SET available_grams = available_grams - :g, updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(strain_id) AND available_grams >= :g"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":g":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", grams)},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// disambiguate: missing strain vs. not enough stock
			st, gerr := s.Get(ctx, strainID)
			if gerr != nil {
				return fmt.Errorf("decrement condition failed, lookup also failed: %w", gerr)
			}
			if st == nil {
				return fmt.Errorf("%w: %s", ErrStrainNotFound, strainID)
			}
			return fmt.Errorf("%w: strain %s has %dg, wanted %dg", ErrInsufficientStock, strainID, st.AvailableGrams, grams)
		}
		return fmt.Errorf("decrement stock: %w", err)
	}
	return nil
}

// Put upserts a strain record. Catalog management proper lives outside this
// core; the seed path and tests go through here.
func (s *Store) Put(ctx context.Context, st Strain) error {
	now := s.nowFunc()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now

	item, err := attributevalue.MarshalMap(st)
	if err != nil {
		return fmt.Errorf("marshal strain: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put strain: %w", err)
	}
	return nil
}

// List scans all strains. The catalog is small (admin dashboard scale), so a
// full scan per stats query is acceptable.
func (s *Store) List(ctx context.Context) ([]Strain, error) {
	var all []Strain
	paginator := dyn.NewScanPaginator(s.client, &dyn.ScanInput{TableName: &s.tableName})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan strains: %w", err)
		}
		var batch []Strain
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal strains: %w", err)
		}
		all = append(all, batch...)
	}
	return all, nil
}

func awsString(s string) *string { return &s }
