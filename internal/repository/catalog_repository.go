package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cloud-wave-best-zizon/promotion-service/internal/catalog"
)

// CatalogRepository reads coupon and banner documents for catalog hydration.
type CatalogRepository struct {
	client      DynamoAPI
	couponTable string
	bannerTable string
}

func NewCatalogRepository(client DynamoAPI, couponTable, bannerTable string) *CatalogRepository {
	return &CatalogRepository{
		client:      client,
		couponTable: couponTable,
		bannerTable: bannerTable,
	}
}

// ListActiveCoupons returns coupon records that are not switched off.
func (r *CatalogRepository) ListActiveCoupons(ctx context.Context) ([]catalog.Record, error) {
	return r.scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(r.couponTable),
		FilterExpression: aws.String("attribute_not_exists(#active) OR #active = :on"),
		ExpressionAttributeNames: map[string]string{
			"#active": "active",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":on": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
}

func (r *CatalogRepository) ListBanners(ctx context.Context) ([]catalog.Record, error) {
	return r.scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(r.bannerTable),
	})
}

func (r *CatalogRepository) scan(ctx context.Context, in *dynamodb.ScanInput) ([]catalog.Record, error) {
	var records []catalog.Record
	p := dynamodb.NewScanPaginator(r.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", aws.ToString(in.TableName), err)
		}
		// 페이지 단위 변환
		var items []map[string]any
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", aws.ToString(in.TableName), err)
		}
		for _, item := range items {
			records = append(records, catalog.Record(item))
		}
	}
	return records, nil
}
