// Package dynamodb reads the order collection from a DynamoDB table.
package dynamodb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/italolelis/bundle_downloader/internal/catalog"
	"github.com/italolelis/bundle_downloader/internal/logctx"
	"github.com/italolelis/bundle_downloader/internal/storage"
)

// ScanAPI is the subset of the DynamoDB client the order reader needs.
type ScanAPI interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type orderRecord struct {
	ID        string       `dynamodbav:"id"`
	OrderID   string       `dynamodbav:"orderId"`
	SessionID string       `dynamodbav:"sessionId"`
	Items     []itemRecord `dynamodbav:"items"`
}

// ProductID is stored as a number by current checkouts and as a string by older ones.
type itemRecord struct {
	ProductID any    `dynamodbav:"productId"`
	ID        any    `dynamodbav:"id"`
	Category  string `dynamodbav:"category"`
}

// OrderRepository scans an orders table. The table is keyed by id only, so matching order and
// session ids needs a filtered scan.
type OrderRepository struct {
	api   ScanAPI
	table string
}

var _ storage.OrderReader = (*OrderRepository)(nil)

func NewOrderRepository(api ScanAPI, table string) *OrderRepository {
	return &OrderRepository{api: api, table: table}
}

func (r *OrderRepository) FindOrders(ctx context.Context, refs ...string) (storage.OrderSet, error) {
	logger := logctx.LoggerFromContext(ctx)

	refs = storage.NonEmptyRefs(refs)

	input := &dynamodb.ScanInput{TableName: aws.String(r.table)}

	if len(refs) > 0 {
		expr, values := filterExpression(refs)
		input.FilterExpression = aws.String(expr)
		input.ExpressionAttributeNames = map[string]string{
			"#id":  "id",
			"#oid": "orderId",
			"#sid": "sessionId",
		}
		input.ExpressionAttributeValues = values
	} else {
		// Only the emptiness of the table is of interest.
		input.Select = types.SelectCount
	}

	var (
		set     storage.OrderSet
		scanned int32
	)

	for {
		out, err := r.api.Scan(ctx, input)
		if err != nil {
			return storage.OrderSet{}, &catalog.StoreError{Store: "orders", Op: "find_orders", Err: err}
		}

		scanned += out.ScannedCount

		for i, item := range out.Items {
			var rec orderRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				logger.WarnContext(ctx, "skipping malformed record", "kind", "order", "index", i, "err", err)

				continue
			}

			o := rec.toOrder()
			if o.Matches(refs...) {
				set.Orders = append(set.Orders, o)
			}
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}

		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	set.Empty = scanned == 0

	return set, nil
}

func filterExpression(refs []string) (string, map[string]types.AttributeValue) {
	values := make(map[string]types.AttributeValue, len(refs))
	names := make([]string, 0, len(refs))

	for i, ref := range refs {
		name := ":r" + strconv.Itoa(i)
		names = append(names, name)
		values[name] = &types.AttributeValueMemberS{Value: ref}
	}

	in := strings.Join(names, ", ")

	return fmt.Sprintf("#id IN (%s) OR #oid IN (%s) OR #sid IN (%s)", in, in, in), values
}

func (r orderRecord) toOrder() catalog.Order {
	o := catalog.Order{
		ID:        strings.TrimSpace(r.ID),
		OrderID:   strings.TrimSpace(r.OrderID),
		SessionID: strings.TrimSpace(r.SessionID),
	}

	for _, it := range r.Items {
		item := catalog.OrderItem{Category: strings.TrimSpace(it.Category)}

		if id, ok := toInt64(it.ProductID); ok {
			item.ProductID = id
		} else if id, ok := toInt64(it.ID); ok {
			item.ProductID = id
		}

		if item.ProductID == 0 && item.Category == "" {
			continue
		}

		o.Items = append(o.Items, item)
	}

	return o
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), t == float64(int64(t))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)

		return n, err == nil
	default:
		return 0, false
	}
}
