package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/leafcart/strain-admin/internal/aws"
	"github.com/leafcart/strain-admin/internal/catalog"
)

// Store encapsulates operations on the orders table. Fulfillment also writes
// the strains table, always inside a single TransactWriteItems call.
type Store struct {
	client       aws.DynamoDBAPI
	tableName    string
	strainsTable string
	nowFunc      func() time.Time
}

// NewStore creates an orders Store. strainsTable is the inventory table the
// fulfillment transaction decrements.
func NewStore(client aws.DynamoDBAPI, tableName, strainsTable string) *Store {
	return &Store{
		client:       client,
		tableName:    tableName,
		strainsTable: strainsTable,
		nowFunc:      time.Now,
	}
}

// Create persists a new order, refusing to overwrite an existing id.
func (s *Store) Create(ctx context.Context, order Order) error {
	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		return fmt.Errorf("put order: %w", err)
	}
	return nil
}

// CreateWithIdempotencyTransaction atomically creates:
//   - idempotency record in idempotencyTable (conditioned on
//     attribute_not_exists(idempotency_key))
//   - order record in the orders table
//
// idempotencyItem must serialize with an idempotency_key attribute present;
// order.OrderID must be set by the caller. A duplicate idempotency key
// cancels the whole transaction, so retried checkouts never create a second
// order.
func (s *Store) CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, order Order, ttlWindow time.Duration) error {
	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	if _, ok := idempMap["expires_at"]; !ok && ttlWindow > 0 {
		expires := s.nowFunc().Add(ttlWindow).Unix()
		idempMap["expires_at"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expires)}
	}

	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &idempotencyTable,
					Item:                idempMap,
					ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                orderMap,
					ConditionExpression: awsString("attribute_not_exists(order_id)"),
				},
			},
		},
	}

	if _, err := s.client.TransactWriteItems(ctx, input); err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("transaction canceled (likely idempotency key exists): %w", err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// List scans the full order history. The analytics engine consumes the
// returned slice as a point-in-time snapshot; it is not linearizable with
// in-flight transitions and does not need to be.
func (s *Store) List(ctx context.Context) ([]Order, error) {
	var all []Order
	paginator := dyn.NewScanPaginator(s.client, &dyn.ScanInput{TableName: &s.tableName})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		all = append(all, batch...)
	}
	return all, nil
}

// UpdateStatus conditionally moves the order from expectedStatus to
// newStatus. When paymentRef is non-empty it is recorded alongside (the
// payment webhook path). Returns ErrStatusMismatch if another writer got
// there first; the compare-and-set serializes concurrent admins.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, expectedStatus, newStatus Status, paymentRef string) error {
	now := s.nowFunc()
	updateExpr := "SET #s = :new, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: string(newStatus)},
		":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		":expected": &types.AttributeValueMemberS{Value: string(expectedStatus)},
	}
	if paymentRef != "" {
		updateExpr = "SET #s = :new, updated_at = :ua, payment_ref = :pr"
		values[":pr"] = &types.AttributeValueMemberS{Value: paymentRef}
	}

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:          &updateExpr,
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
		ConditionExpression:       awsString("#s = :expected"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// Fulfill commits the PAID -> FULFILLED transition and every line-item
// decrement as one transaction. No observer can see the status flipped with
// stock not yet decremented, or vice versa; any single conditional failure
// cancels every write.
//
// Returns ErrStatusMismatch when the order was no longer PAID (a concurrent
// or retried transition already moved it), or a *FulfillmentBlockedError
// naming the first strain whose decrement failed.
func (s *Store) Fulfill(ctx context.Context, order *Order) error {
	now := s.nowFunc()

	items := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName: &s.tableName,
				Key: map[string]types.AttributeValue{
					"order_id": &types.AttributeValueMemberS{Value: order.OrderID},
				},
				UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
				ExpressionAttributeNames: map[string]string{"#s": "status"},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":new":      &types.AttributeValueMemberS{Value: string(StatusFulfilled)},
					":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
					":expected": &types.AttributeValueMemberS{Value: string(StatusPaid)},
				},
				ConditionExpression: awsString("#s = :expected"),
			},
		},
	}

	// exactly one decrement per (order, strain) pair: grams from duplicate
	// line items coalesce into a single update, since DynamoDB rejects a
	// transaction carrying more than one operation on the same item
	byStrain := map[string]int{}
	decs := make([]strainDecrement, 0, len(order.Items))
	for _, it := range order.Items {
		if idx, ok := byStrain[it.StrainID]; ok {
			decs[idx].Grams += it.Grams
			continue
		}
		byStrain[it.StrainID] = len(decs)
		decs = append(decs, strainDecrement{StrainID: it.StrainID, StrainName: it.StrainName, Grams: it.Grams})
	}
	for _, dec := range decs {
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName: &s.strainsTable,
				Key: map[string]types.AttributeValue{
					"strain_id": &types.AttributeValueMemberS{Value: dec.StrainID},
				},
				UpdateExpression:    awsString("SET available_grams = available_grams - :g, updated_at = :ua"),
				ConditionExpression: awsString("attribute_exists(strain_id) AND available_grams >= :g"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":g":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", dec.Grams)},
					":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
				},
			},
		})
	}

	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}

	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return fmt.Errorf("fulfill transact write: %w", err)
	}

	for i, reason := range tce.CancellationReasons {
		if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" {
			continue
		}
		if i == 0 {
			return ErrStatusMismatch
		}
		dec := decs[i-1]
		return &FulfillmentBlockedError{
			StrainID:   dec.StrainID,
			StrainName: dec.StrainName,
			Err:        s.classifyDecrementFailure(ctx, dec.StrainID),
		}
	}
	return fmt.Errorf("fulfill transaction canceled: %w", err)
}

// strainDecrement is the coalesced stock debit for one strain across an
// order's line items.
type strainDecrement struct {
	StrainID   string
	StrainName string
	Grams      int64
}

// classifyDecrementFailure decides whether a failed stock condition was a
// deleted strain or an overdraw.
func (s *Store) classifyDecrementFailure(ctx context.Context, strainID string) error {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.strainsTable,
		Key: map[string]types.AttributeValue{
			"strain_id": &types.AttributeValueMemberS{Value: strainID},
		},
	})
	if err != nil {
		return fmt.Errorf("strain lookup: %w", err)
	}
	if len(out.Item) == 0 {
		return catalog.ErrStrainNotFound
	}
	return catalog.ErrInsufficientStock
}

func awsString(s string) *string { return &s }
