package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is an in-memory stand-in for DynamoDB that understands exactly
// the condition and update expressions this repo issues. Items live per
// table keyed by primary-key value: table -> pk -> item.
type mockDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue

	// getErrs fails GetItem for specific primary keys.
	getErrs map[string]error

	transactCalls int
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		tables:  map[string]map[string]map[string]types.AttributeValue{},
		getErrs: map[string]error{},
	}
}

func (m *mockDynamo) ensureTable(tbl string) map[string]map[string]types.AttributeValue {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
	return m.tables[tbl]
}

// pkOf finds the primary-key value among the key attribute names this repo
// uses.
func pkOf(attrs map[string]types.AttributeValue) (string, error) {
	// idempotency records carry an order_id attribute alongside their own
	// key, so idempotency_key has to win
	for _, name := range []string{"idempotency_key", "order_id", "strain_id"} {
		if v, ok := attrs[name]; ok {
			return v.(*types.AttributeValueMemberS).Value, nil
		}
	}
	return "", errors.New("no known primary key attribute")
}

func numberOf(item map[string]types.AttributeValue, attr string) (int64, bool) {
	v, ok := item[attr]
	if !ok {
		return 0, false
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// conditionHolds evaluates the condition expressions the stores issue.
func conditionHolds(cond string, exists bool, item map[string]types.AttributeValue, values map[string]types.AttributeValue) (bool, error) {
	switch {
	case strings.HasPrefix(cond, "attribute_not_exists("):
		return !exists, nil
	case cond == "attribute_exists(strain_id) AND available_grams >= :g":
		if !exists {
			return false, nil
		}
		have, ok := numberOf(item, "available_grams")
		if !ok {
			return false, nil
		}
		want, err := strconv.ParseInt(values[":g"].(*types.AttributeValueMemberN).Value, 10, 64)
		if err != nil {
			return false, err
		}
		return have >= want, nil
	case cond == "#s = :expected":
		if !exists {
			return false, nil
		}
		curr, ok := item["status"].(*types.AttributeValueMemberS)
		if !ok {
			return false, nil
		}
		expected := values[":expected"].(*types.AttributeValueMemberS).Value
		return curr.Value == expected, nil
	}
	return false, fmt.Errorf("mock does not understand condition %q", cond)
}

// applyUpdate mutates item per the update expressions the stores issue.
func applyUpdate(expr string, item map[string]types.AttributeValue, values map[string]types.AttributeValue) error {
	switch {
	case strings.HasPrefix(expr, "SET #s = :new"):
		item["status"] = values[":new"]
		item["updated_at"] = values[":ua"]
		if pr, ok := values[":pr"]; ok {
			item["payment_ref"] = pr
		}
		return nil
	case expr == "SET available_grams = available_grams - :g, updated_at = :ua":
		have, _ := numberOf(item, "available_grams")
		dec, err := strconv.ParseInt(values[":g"].(*types.AttributeValueMemberN).Value, 10, 64)
		if err != nil {
			return err
		}
		item["available_grams"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(have-dec, 10)}
		item["updated_at"] = values[":ua"]
		return nil
	}
	return fmt.Errorf("mock does not understand update %q", expr)
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table := m.ensureTable(*params.TableName)
	pk, err := pkOf(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil {
		_, exists := table[pk]
		ok, err := conditionHolds(*params.ConditionExpression, exists, table[pk], params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	table[pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table := m.ensureTable(*params.TableName)
	pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	if ge, ok := m.getErrs[pk]; ok {
		return nil, ge
	}
	item, ok := table[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table := m.ensureTable(*params.TableName)
	pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, exists := table[pk]
	if params.ConditionExpression != nil {
		ok, err := conditionHolds(*params.ConditionExpression, exists, item, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	if !exists {
		return nil, errors.New("item not found")
	}
	if err := applyUpdate(*params.UpdateExpression, item, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	return &dyn.UpdateItemOutput{}, nil
}

func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table := m.ensureTable(*params.TableName)
	items := make([]map[string]types.AttributeValue, 0, len(table))
	for _, it := range table {
		items = append(items, it)
	}
	return &dyn.ScanOutput{Items: items}, nil
}

// TransactWriteItems validates every condition first, then applies every
// write, matching DynamoDB's all-or-nothing semantics.
func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactCalls++

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	canceled := false
	seen := map[string]bool{}
	for i, ti := range params.TransactItems {
		var tableName string
		var attrs map[string]types.AttributeValue
		var cond *string
		var values map[string]types.AttributeValue

		switch {
		case ti.Put != nil:
			tableName, attrs, cond, values = *ti.Put.TableName, ti.Put.Item, ti.Put.ConditionExpression, ti.Put.ExpressionAttributeValues
		case ti.Update != nil:
			tableName, attrs, cond, values = *ti.Update.TableName, ti.Update.Key, ti.Update.ConditionExpression, ti.Update.ExpressionAttributeValues
		default:
			return nil, errors.New("mock supports only Put and Update transact items")
		}

		pk, err := pkOf(attrs)
		if err != nil {
			return nil, err
		}
		// DynamoDB rejects a transaction with more than one operation on
		// the same item
		target := tableName + "/" + pk
		if seen[target] {
			return nil, fmt.Errorf("ValidationException: transaction request cannot include multiple operations on one item %s", target)
		}
		seen[target] = true

		code := "None"
		if cond != nil {
			table := m.ensureTable(tableName)
			item, exists := table[pk]
			ok, err := conditionHolds(*cond, exists, item, values)
			if err != nil {
				return nil, err
			}
			if !ok {
				code = "ConditionalCheckFailed"
				canceled = true
			}
		}
		c := code
		reasons[i] = types.CancellationReason{Code: &c}
	}

	if canceled {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	for _, ti := range params.TransactItems {
		if ti.Put != nil {
			table := m.ensureTable(*ti.Put.TableName)
			pk, err := pkOf(ti.Put.Item)
			if err != nil {
				return nil, err
			}
			table[pk] = ti.Put.Item
			continue
		}
		table := m.ensureTable(*ti.Update.TableName)
		pk, err := pkOf(ti.Update.Key)
		if err != nil {
			return nil, err
		}
		item, exists := table[pk]
		if !exists {
			return nil, errors.New("transact update on missing item")
		}
		if err := applyUpdate(*ti.Update.UpdateExpression, item, ti.Update.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
