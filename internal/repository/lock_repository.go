package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
	pkgconfig "github.com/cloud-wave-best-zizon/promotion-service/pkg/config"
)

var (
	ErrLockNotFound  = errors.New("coupon lock not found")
	ErrMalformedLock = errors.New("malformed coupon lock snapshot")
)

const lockSortKey = "COUPON_LOCK"

// DynamoAPI is the subset of the DynamoDB client the repositories use.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

func NewDynamoDBClient(ctx context.Context, cfg *pkgconfig.Config) (*dynamodb.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	}), nil
}

// LockRepository keeps one coupon lock item per cart, overwritten wholesale.
type LockRepository struct {
	client    DynamoAPI
	tableName string
}

func NewLockRepository(client DynamoAPI, tableName string) *LockRepository {
	return &LockRepository{
		client:    client,
		tableName: tableName,
	}
}

func (r *LockRepository) Save(ctx context.Context, cartID string, lock domain.CouponLock) error {
	// Lock을 DynamoDB 아이템으로 변환
	item, err := marshalLock(cartID, lock)
	if err != nil {
		return err
	}

	// DynamoDB에 저장
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put lock: %w", err)
	}
	return nil
}

func (r *LockRepository) Load(ctx context.Context, cartID string) (*domain.CouponLock, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            lockKey(cartID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}
	// No item means the cart never locked
	if len(out.Item) == 0 {
		return nil, ErrLockNotFound
	}
	return unmarshalLock(out.Item)
}

func (r *LockRepository) Clear(ctx context.Context, cartID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       lockKey(cartID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}
	return nil
}

func lockKey(cartID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("CART#%s", cartID)},
		"SK": &types.AttributeValueMemberS{Value: lockSortKey},
	}
}

func marshalLock(cartID string, lock domain.CouponLock) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(lock)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}
	// PK, SK 추가
	for k, v := range lockKey(cartID) {
		av[k] = v
	}
	av["updated_at"] = &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)}
	return av, nil
}

func unmarshalLock(item map[string]types.AttributeValue) (*domain.CouponLock, error) {
	var lock domain.CouponLock
	if err := attributevalue.UnmarshalMap(item, &lock); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLock, err)
	}
	if !lock.Valid() {
		return nil, ErrMalformedLock
	}
	return &lock, nil
}
