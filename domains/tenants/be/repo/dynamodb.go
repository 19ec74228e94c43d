package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/zenGate-Global/hubmetrix/domains/tenants/be/service"
	"github.com/zenGate-Global/hubmetrix/platform/go/dynamo"
)

// tenantItem is the DynamoDB attribute layout of a tenant record.
type tenantItem struct {
	StoreHash             string     `dynamodbav:"store_hash"`
	PlatformUserID        int64      `dynamodbav:"platform_user_id"`
	PlatformEmail         string     `dynamodbav:"platform_email,omitempty"`
	PlatformAccessToken   string     `dynamodbav:"platform_access_token,omitempty"`
	PlatformScope         string     `dynamodbav:"platform_scope,omitempty"`
	WebhooksRegistered    bool       `dynamodbav:"webhooks_registered"`
	CRMAccessToken        string     `dynamodbav:"crm_access_token,omitempty"`
	CRMRefreshToken       string     `dynamodbav:"crm_refresh_token,omitempty"`
	CRMTokenExpiry        *time.Time `dynamodbav:"crm_token_expiry,omitempty"`
	CRMHubID              string     `dynamodbav:"crm_hub_id,omitempty"`
	CRMHubDomain          string     `dynamodbav:"crm_hub_domain,omitempty"`
	CRMAppID              string     `dynamodbav:"crm_app_id,omitempty"`
	CRMUser               string     `dynamodbav:"crm_user,omitempty"`
	CRMUserID             string     `dynamodbav:"crm_user_id,omitempty"`
	CRMTokenType          string     `dynamodbav:"crm_token_type,omitempty"`
	CRMScopes             []string   `dynamodbav:"crm_scopes,stringset,omitempty"`
	CRMLinkedAt           *time.Time `dynamodbav:"crm_linked_at,omitempty"`
	BillingSubscriptionID string     `dynamodbav:"billing_subscription_id,omitempty"`
	LastSyncTimestamp     *time.Time `dynamodbav:"last_sync_timestamp,omitempty"`
	CreatedAt             time.Time  `dynamodbav:"created_at"`
	UpdatedAt             time.Time  `dynamodbav:"updated_at"`
	Version               int64      `dynamodbav:"version"`
}

// DynamoRepository implements the tenant repository on a DynamoDB table keyed by
// (store_hash, platform_user_id).
type DynamoRepository struct {
	client dynamo.API
	table  string
}

// NewDynamoRepository constructs a repository for the given table.
func NewDynamoRepository(client dynamo.API, table string) *DynamoRepository {
	if client == nil {
		panic("dynamodb client is required")
	}
	if table == "" {
		panic("dynamodb table is required")
	}
	return &DynamoRepository{client: client, table: table}
}

func (r *DynamoRepository) Get(ctx context.Context, key service.Key) (service.Tenant, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return service.Tenant{}, fmt.Errorf("get tenant item: %w", err)
	}
	if len(out.Item) == 0 {
		return service.Tenant{}, service.ErrNotFound
	}

	var item tenantItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return service.Tenant{}, fmt.Errorf("decode tenant item: %w", err)
	}
	return fromItem(item), nil
}

func (r *DynamoRepository) ListByStoreHash(ctx context.Context, storeHash string) ([]service.Tenant, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		KeyConditionExpression: aws.String("store_hash = :h"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":h": &types.AttributeValueMemberS{Value: storeHash},
		},
		ConsistentRead: aws.Bool(true),
	}

	var tenants []service.Tenant
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query tenant items: %w", err)
		}
		var items []tenantItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("decode tenant items: %w", err)
		}
		for _, item := range items {
			tenants = append(tenants, fromItem(item))
		}
	}
	return tenants, nil
}

func (r *DynamoRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	av, err := attributevalue.MarshalMap(toItem(t))
	if err != nil {
		return service.Tenant{}, fmt.Errorf("encode tenant item: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(store_hash)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return service.Tenant{}, service.ErrAlreadyExists
		}
		return service.Tenant{}, fmt.Errorf("put tenant item: %w", err)
	}
	return t, nil
}

func (r *DynamoRepository) Save(ctx context.Context, t service.Tenant, expectedVersion int64) (service.Tenant, error) {
	t.Version = expectedVersion + 1
	av, err := attributevalue.MarshalMap(toItem(t))
	if err != nil {
		return service.Tenant{}, fmt.Errorf("encode tenant item: %w", err)
	}

	update := newSaveExpression(av)
	update.values[":expected"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       itemKey(t.Key()),
		UpdateExpression:          aws.String(update.expression),
		ConditionExpression:       aws.String("attribute_exists(store_hash) AND " + update.names["version"] + " = :expected"),
		ExpressionAttributeNames:  update.placeholders,
		ExpressionAttributeValues: update.values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err == nil {
		var item tenantItem
		if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
			return service.Tenant{}, fmt.Errorf("decode tenant item: %w", err)
		}
		return fromItem(item), nil
	}
	if !isConditionFailed(err) {
		return service.Tenant{}, fmt.Errorf("update tenant item: %w", err)
	}
	if _, getErr := r.Get(ctx, t.Key()); errors.Is(getErr, service.ErrNotFound) {
		return service.Tenant{}, service.ErrNotFound
	}
	return service.Tenant{}, service.ErrConflict
}

// savedAttributes are the attributes Save writes, in expression order. The key attributes
// and last_sync_timestamp, which the sync worker owns, are never touched.
var savedAttributes = []string{
	"platform_email", "platform_access_token", "platform_scope", "webhooks_registered",
	"crm_access_token", "crm_refresh_token", "crm_token_expiry", "crm_hub_id", "crm_hub_domain",
	"crm_app_id", "crm_user", "crm_user_id", "crm_token_type", "crm_scopes", "crm_linked_at",
	"billing_subscription_id", "created_at", "updated_at", "version",
}

type saveExpression struct {
	expression   string
	names        map[string]string // attribute -> placeholder
	placeholders map[string]string // placeholder -> attribute
	values       map[string]types.AttributeValue
}

// newSaveExpression sets every saved attribute present in av and removes the ones
// omitempty dropped, so cleared fields do not linger.
func newSaveExpression(av map[string]types.AttributeValue) saveExpression {
	e := saveExpression{
		names:        make(map[string]string, len(savedAttributes)),
		placeholders: make(map[string]string, len(savedAttributes)),
		values:       make(map[string]types.AttributeValue, len(savedAttributes)+1),
	}

	var set, remove []string
	for i, attr := range savedAttributes {
		name := fmt.Sprintf("#a%d", i)
		e.names[attr] = name
		e.placeholders[name] = attr

		value, ok := av[attr]
		if !ok {
			remove = append(remove, name)
			continue
		}
		placeholder := fmt.Sprintf(":a%d", i)
		e.values[placeholder] = value
		set = append(set, name+" = "+placeholder)
	}

	e.expression = "SET " + strings.Join(set, ", ")
	if len(remove) > 0 {
		e.expression += " REMOVE " + strings.Join(remove, ", ")
	}
	return e
}

func (r *DynamoRepository) Delete(ctx context.Context, key service.Key) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key:       itemKey(key),
	})
	if err != nil {
		return fmt.Errorf("delete tenant item: %w", err)
	}
	return nil
}

func itemKey(key service.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"store_hash":       &types.AttributeValueMemberS{Value: key.StoreHash},
		"platform_user_id": &types.AttributeValueMemberN{Value: strconv.FormatInt(key.PlatformUserID, 10)},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func toItem(t service.Tenant) tenantItem {
	return tenantItem{
		StoreHash:             t.StoreHash,
		PlatformUserID:        t.PlatformUserID,
		PlatformEmail:         t.PlatformEmail,
		PlatformAccessToken:   t.PlatformAccessToken,
		PlatformScope:         t.PlatformScope,
		WebhooksRegistered:    t.WebhooksRegistered,
		CRMAccessToken:        t.CRMAccessToken,
		CRMRefreshToken:       t.CRMRefreshToken,
		CRMTokenExpiry:        t.CRMTokenExpiry,
		CRMHubID:              t.CRMHubID,
		CRMHubDomain:          t.CRMHubDomain,
		CRMAppID:              t.CRMAppID,
		CRMUser:               t.CRMUser,
		CRMUserID:             t.CRMUserID,
		CRMTokenType:          t.CRMTokenType,
		CRMScopes:             t.CRMScopes,
		CRMLinkedAt:           t.CRMLinkedAt,
		BillingSubscriptionID: t.BillingSubscriptionID,
		LastSyncTimestamp:     t.LastSyncTimestamp,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
		Version:               t.Version,
	}
}

func fromItem(item tenantItem) service.Tenant {
	return service.Tenant{
		StoreHash:             item.StoreHash,
		PlatformUserID:        item.PlatformUserID,
		PlatformEmail:         item.PlatformEmail,
		PlatformAccessToken:   item.PlatformAccessToken,
		PlatformScope:         item.PlatformScope,
		WebhooksRegistered:    item.WebhooksRegistered,
		CRMAccessToken:        item.CRMAccessToken,
		CRMRefreshToken:       item.CRMRefreshToken,
		CRMTokenExpiry:        item.CRMTokenExpiry,
		CRMHubID:              item.CRMHubID,
		CRMHubDomain:          item.CRMHubDomain,
		CRMAppID:              item.CRMAppID,
		CRMUser:               item.CRMUser,
		CRMUserID:             item.CRMUserID,
		CRMTokenType:          item.CRMTokenType,
		CRMScopes:             item.CRMScopes,
		CRMLinkedAt:           item.CRMLinkedAt,
		BillingSubscriptionID: item.BillingSubscriptionID,
		LastSyncTimestamp:     item.LastSyncTimestamp,
		CreatedAt:             item.CreatedAt,
		UpdatedAt:             item.UpdatedAt,
		Version:               item.Version,
	}
}

// Ensure interface compliance.
var _ service.Repository = (*DynamoRepository)(nil)
