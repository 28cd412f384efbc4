package dynamo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-otp/internal/domain"
)

// sameGeneration guards writes so they only apply to the entry the caller read.
const sameGeneration = "#e = :e AND #a = :a"

// VerificationStore keeps one pending OTP per identity.
// PK: identity_id. expires_at doubles as the table's TTL attribute.
type VerificationStore struct {
	client    API
	tableName string
}

func NewVerificationStore(client API, tableName string) *VerificationStore {
	return &VerificationStore{client: client, tableName: tableName}
}

func (s *VerificationStore) Put(ctx context.Context, v *domain.PendingVerification) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	return err
}

func (s *VerificationStore) Get(ctx context.Context, identityID string) (*domain.PendingVerification, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            strKey(attrIdentityID, identityID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	var v domain.PendingVerification
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *VerificationStore) Delete(ctx context.Context, identityID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       strKey(attrIdentityID, identityID),
	})
	return err
}

// CompareAndSwap writes next (or deletes when next is nil) only if the stored
// entry still has old's entry_id and attempts.
func (s *VerificationStore) CompareAndSwap(ctx context.Context, old, next *domain.PendingVerification) (bool, error) {
	names := map[string]string{"#e": attrEntryID, "#a": attrAttempts}
	values := map[string]types.AttributeValue{
		":e": &types.AttributeValueMemberS{Value: old.EntryID},
		":a": &types.AttributeValueMemberN{Value: strconv.Itoa(old.Attempts)},
	}

	var err error
	if next == nil {
		_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                 aws.String(s.tableName),
			Key:                       strKey(attrIdentityID, old.IdentityID),
			ConditionExpression:       aws.String(sameGeneration),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		})
	} else {
		item, mErr := attributevalue.MarshalMap(next)
		if mErr != nil {
			return false, fmt.Errorf("marshal verification: %w", mErr)
		}
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 aws.String(s.tableName),
			Item:                      item,
			ConditionExpression:       aws.String(sameGeneration),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		})
	}
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
