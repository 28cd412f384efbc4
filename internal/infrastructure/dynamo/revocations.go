package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// revocationItem is either a revoked token ("jti#<id>") or an identity
// revocation epoch ("identity#<id>"). ExpiresAt is the TTL attribute.
type revocationItem struct {
	PK        string `dynamodbav:"pk"`
	RevokedAt int64  `dynamodbav:"revoked_at"` // unix millis
	ExpiresAt int64  `dynamodbav:"expires_at"` // unix seconds
}

// RevocationStore records revocations in a single table keyed by pk.
type RevocationStore struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewRevocationStore(client API, tableName string) *RevocationStore {
	return &RevocationStore{client: client, tableName: tableName, now: time.Now}
}

func tokenPK(tokenID string) string       { return "jti#" + tokenID }
func identityPK(identityID string) string { return "identity#" + identityID }

func (s *RevocationStore) RevokeToken(ctx context.Context, tokenID string, until time.Time) error {
	item, err := attributevalue.MarshalMap(revocationItem{
		PK:        tokenPK(tokenID),
		RevokedAt: s.now().UnixMilli(),
		ExpiresAt: until.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal revocation: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	return err
}

func (s *RevocationStore) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	item, err := s.get(ctx, tokenPK(tokenID))
	if err != nil {
		return false, err
	}
	return item != nil, nil
}

// RevokeIdentity records at unless a later epoch is already stored.
func (s *RevocationStore) RevokeIdentity(ctx context.Context, identityID string, at, until time.Time) error {
	item, err := attributevalue.MarshalMap(revocationItem{
		PK:        identityPK(identityID),
		RevokedAt: at.UnixMilli(),
		ExpiresAt: until.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal revocation: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk) OR #r < :r"),
		ExpressionAttributeNames: map[string]string{"#pk": attrPK, "#r": attrRevokedAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":r": &types.AttributeValueMemberN{Value: strconv.FormatInt(at.UnixMilli(), 10)},
		},
	})
	if isConditionFailed(err) {
		return nil
	}
	return err
}

func (s *RevocationStore) IdentityRevokedAt(ctx context.Context, identityID string) (time.Time, bool, error) {
	item, err := s.get(ctx, identityPK(identityID))
	if err != nil || item == nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(item.RevokedAt), true, nil
}

func (s *RevocationStore) get(ctx context.Context, pk string) (*revocationItem, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            strKey(attrPK, pk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var item revocationItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, err
	}
	return &item, nil
}
