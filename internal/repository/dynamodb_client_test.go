package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type stubDynamo struct {
	transactIn  *dynamodb.TransactWriteItemsInput
	transactErr error
	queryIn     *dynamodb.QueryInput
	queryOut    *dynamodb.QueryOutput
	queryErr    error
}

func (s *stubDynamo) PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return &dynamodb.PutItemOutput{}, nil
}

func (s *stubDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	s.queryIn = in
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if s.queryOut != nil {
		return s.queryOut, nil
	}
	return &dynamodb.QueryOutput{}, nil
}

func (s *stubDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	s.transactIn = in
	return &dynamodb.TransactWriteItemsOutput{}, s.transactErr
}

func exchangeAttrs(pk, sk, question, answer string, turns string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":       &types.AttributeValueMemberS{Value: pk},
		"SK":       &types.AttributeValueMemberS{Value: sk},
		"question": &types.AttributeValueMemberS{Value: question},
		"answer":   &types.AttributeValueMemberS{Value: answer},
		"status":   &types.AttributeValueMemberS{Value: "complete"},
		"turns":    &types.AttributeValueMemberN{Value: turns},
	}
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, "table")
	require.Error(t, err)

	_, err = New(&stubDynamo{}, "  ")
	require.Error(t, err)
}

func TestArchiveExchange(t *testing.T) {
	api := &stubDynamo{}
	c, err := New(api, "transcripts")
	require.NoError(t, err)

	err = c.ArchiveExchange(context.Background(), "sess-1", "how are you", "meow, great!", 3)
	require.NoError(t, err)
	require.NotNil(t, api.transactIn)
	require.Len(t, api.transactIn.TransactItems, 2)

	exchange := api.transactIn.TransactItems[0].Put
	require.Equal(t, "transcripts", *exchange.TableName)
	require.Contains(t, *exchange.ConditionExpression, "attribute_not_exists")

	pk := exchange.Item["PK"].(*types.AttributeValueMemberS).Value
	require.Equal(t, "SESSION#sess-1", pk)
	sk := exchange.Item["SK"].(*types.AttributeValueMemberS).Value
	require.True(t, strings.HasPrefix(sk, "MSG#"))
	require.Equal(t, "how are you", exchange.Item["question"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "meow, great!", exchange.Item["answer"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "3", exchange.Item["turns"].(*types.AttributeValueMemberN).Value)

	meta := api.transactIn.TransactItems[1].Put
	require.Equal(t, "META#", meta.Item["SK"].(*types.AttributeValueMemberS).Value)
}

func TestArchiveExchange_RequiresSession(t *testing.T) {
	c, err := New(&stubDynamo{}, "transcripts")
	require.NoError(t, err)

	err = c.ArchiveExchange(context.Background(), " ", "q", "a", 1)
	require.Error(t, err)
}

func TestArchiveExchange_WrapsAPIError(t *testing.T) {
	api := &stubDynamo{transactErr: errors.New("throttled")}
	c, err := New(api, "transcripts")
	require.NoError(t, err)

	err = c.ArchiveExchange(context.Background(), "sess-1", "q", "a", 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "throttled")
}

func TestGetTranscript_ChronologicalOrder(t *testing.T) {
	api := &stubDynamo{queryOut: &dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{
			exchangeAttrs("SESSION#sess-1", "MSG#2026-08-30T10:00:01Z", "second", "two", "2"),
			exchangeAttrs("SESSION#sess-1", "MSG#2026-08-30T10:00:00Z", "first", "one", "1"),
		},
	}}
	c, err := New(api, "transcripts")
	require.NoError(t, err)

	exchanges, err := c.GetTranscript(context.Background(), "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, exchanges, 2)
	require.Equal(t, "first", exchanges[0].Question)
	require.Equal(t, "second", exchanges[1].Question)

	require.False(t, *api.queryIn.ScanIndexForward)
	require.EqualValues(t, 10, *api.queryIn.Limit)
}

func TestNewExchange_SetsTTL(t *testing.T) {
	ex := NewExchange("sess-1", "q", "a", 1)
	require.Equal(t, "SESSION#sess-1", ex.PK)
	require.Equal(t, "complete", ex.Status)

	min := time.Now().Add(29 * 24 * time.Hour).Unix()
	max := time.Now().Add(31 * 24 * time.Hour).Unix()
	require.GreaterOrEqual(t, ex.TTL, min)
	require.LessOrEqual(t, ex.TTL, max)
}
