package dynamodb

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/bundle_downloader/internal/catalog"
)

// fakeScan returns one page per call and records the inputs it saw.
type fakeScan struct {
	pages  []*dynamodb.ScanOutput
	err    error
	inputs []dynamodb.ScanInput
}

func (f *fakeScan) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.inputs = append(f.inputs, *in)

	if f.err != nil {
		return nil, f.err
	}

	if len(f.pages) == 0 {
		return &dynamodb.ScanOutput{}, nil
	}

	page := f.pages[0]
	f.pages = f.pages[1:]

	return page, nil
}

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func n(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

func item(kv map[string]types.AttributeValue) types.AttributeValue {
	return &types.AttributeValueMemberM{Value: kv}
}

func order(id, orderID string, items ...types.AttributeValue) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id":      s(id),
		"orderId": s(orderID),
		"items":   &types.AttributeValueMemberL{Value: items},
	}
}

func TestOrderRepository_FindOrders(t *testing.T) {
	fake := &fakeScan{pages: []*dynamodb.ScanOutput{
		{
			ScannedCount: 10,
			Items: []map[string]types.AttributeValue{
				order("a1", "ORD-1700000000000",
					item(map[string]types.AttributeValue{"category": s("Names of God")}),
					item(map[string]types.AttributeValue{"productId": n("42")}),
				),
			},
			LastEvaluatedKey: map[string]types.AttributeValue{"id": s("a1")},
		},
		{
			ScannedCount: 5,
			Items: []map[string]types.AttributeValue{
				order("a2", "ORD-2",
					item(map[string]types.AttributeValue{"id": s("3")}),
					item(map[string]types.AttributeValue{"productId": s("x")}),
				),
				{"id": n("not-a-string")},
			},
		},
	}}

	repo := NewOrderRepository(fake, "orders")

	set, err := repo.FindOrders(context.Background(), "ORD-1700000000000", "ORD-2", "")
	require.NoError(t, err)
	assert.False(t, set.Empty)
	require.Len(t, set.Orders, 2)
	assert.Equal(t, []catalog.OrderItem{{Category: "Names of God"}, {ProductID: 42}}, set.Orders[0].Items)
	assert.Equal(t, []catalog.OrderItem{{ProductID: 3}}, set.Orders[1].Items)

	require.Len(t, fake.inputs, 2)
	assert.Equal(t, "orders", aws.ToString(fake.inputs[0].TableName))
	assert.Equal(t, "#id IN (:r0, :r1) OR #oid IN (:r0, :r1) OR #sid IN (:r0, :r1)", aws.ToString(fake.inputs[0].FilterExpression))
	assert.Len(t, fake.inputs[0].ExpressionAttributeValues, 2)
	assert.Nil(t, fake.inputs[0].ExclusiveStartKey)
	assert.NotNil(t, fake.inputs[1].ExclusiveStartKey)
}

func TestOrderRepository_EmptyTable(t *testing.T) {
	fake := &fakeScan{pages: []*dynamodb.ScanOutput{{ScannedCount: 0}}}

	set, err := NewOrderRepository(fake, "orders").FindOrders(context.Background(), "abcdef")
	require.NoError(t, err)
	assert.True(t, set.Empty)
	assert.Empty(t, set.Orders)
}

func TestOrderRepository_NoRefsCountsOnly(t *testing.T) {
	fake := &fakeScan{pages: []*dynamodb.ScanOutput{{ScannedCount: 3, Count: 3}}}

	set, err := NewOrderRepository(fake, "orders").FindOrders(context.Background())
	require.NoError(t, err)
	assert.False(t, set.Empty)
	assert.Equal(t, types.SelectCount, fake.inputs[0].Select)
	assert.Nil(t, fake.inputs[0].FilterExpression)
}

func TestOrderRepository_ScanFailure(t *testing.T) {
	fake := &fakeScan{err: errors.New("ResourceNotFoundException")}

	_, err := NewOrderRepository(fake, "orders").FindOrders(context.Background(), "abcdef")
	require.ErrorIs(t, err, catalog.ErrStoreUnavailable)
}
