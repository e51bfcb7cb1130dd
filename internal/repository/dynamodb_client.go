package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"focus-agent/internal/domain"
)

const (
	skPrefixExchange = "MSG#"
	skMeta           = "META#"
	statusComplete   = "complete"
	ttlDuration      = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Archiver is the transcript-archive operation consumed by the assistant.
// The archive is write-only from the assistant's point of view; the
// in-memory history stays the only prompt source.
type Archiver interface {
	ArchiveExchange(ctx context.Context, sessionID, question, answer string, turns int) error
}

// Client wraps a DynamoDB table that archives completed chat exchanges.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new archive Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// sessionPK returns the DynamoDB partition key for an assistant session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// exchangeSK returns the sort key for an exchange using the current UTC
// timestamp.
func exchangeSK(ts time.Time) string {
	return skPrefixExchange + ts.UTC().Format(time.RFC3339Nano)
}

// ttlValue returns a Unix timestamp 30 days in the future.
func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

// ArchiveExchange writes the completed exchange and updated session
// metadata in one transaction.
func (c *Client) ArchiveExchange(ctx context.Context, sessionID, question, answer string, turns int) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("repository: ArchiveExchange: session ID is required")
	}

	ex := NewExchange(sessionID, question, answer, turns)
	meta := NewSessionMeta(sessionID, turns)

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                exchangeItem(ex),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      metaItem(meta),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: ArchiveExchange: %w", err)
	}
	return nil
}

// GetTranscript queries archived exchanges for a session in chronological
// order. Used by operational tooling, not by the prompt path.
func (c *Client) GetTranscript(ctx context.Context, sessionID string, limit int) ([]domain.Exchange, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixExchange},
		},
		// Read newest first so LIMIT favors the most recent exchanges.
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: GetTranscript query: %w", err)
	}

	exchanges := make([]domain.Exchange, 0, len(out.Items))
	for _, item := range out.Items {
		ex, err := itemToExchange(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetTranscript unmarshal: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	// Reverse to chronological order.
	for i, j := 0, len(exchanges)-1; i < j; i, j = i+1, j-1 {
		exchanges[i], exchanges[j] = exchanges[j], exchanges[i]
	}
	return exchanges, nil
}

// NewExchange constructs an Exchange with PK/SK/TTL set from the session ID
// and current time.
func NewExchange(sessionID, question, answer string, turns int) domain.Exchange {
	now := time.Now().UTC()
	return domain.Exchange{
		PK:        sessionPK(sessionID),
		SK:        exchangeSK(now),
		SessionID: sessionID,
		Question:  question,
		Answer:    answer,
		Turns:     turns,
		Status:    statusComplete,
		TTL:       ttlValue(),
	}
}

// NewSessionMeta constructs a SessionMeta record.
func NewSessionMeta(sessionID string, turns int) domain.SessionMeta {
	return domain.SessionMeta{
		PK:           sessionPK(sessionID),
		SK:           skMeta,
		SessionID:    sessionID,
		LastActivity: time.Now().UTC().Format(time.RFC3339),
		Turns:        turns,
		TTL:          ttlValue(),
	}
}

func exchangeItem(ex domain.Exchange) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: ex.PK},
		"SK":         &types.AttributeValueMemberS{Value: ex.SK},
		"session_id": &types.AttributeValueMemberS{Value: ex.SessionID},
		"question":   &types.AttributeValueMemberS{Value: ex.Question},
		"answer":     &types.AttributeValueMemberS{Value: ex.Answer},
		"turns":      &types.AttributeValueMemberN{Value: strconv.Itoa(ex.Turns)},
		"status":     &types.AttributeValueMemberS{Value: ex.Status},
		"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(ex.TTL, 10)},
	}
}

func metaItem(meta domain.SessionMeta) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: meta.PK},
		"SK":            &types.AttributeValueMemberS{Value: meta.SK},
		"session_id":    &types.AttributeValueMemberS{Value: meta.SessionID},
		"last_activity": &types.AttributeValueMemberS{Value: meta.LastActivity},
		"turns":         &types.AttributeValueMemberN{Value: strconv.Itoa(meta.Turns)},
		"ttl":           &types.AttributeValueMemberN{Value: strconv.FormatInt(meta.TTL, 10)},
	}
}

// itemToExchange converts a DynamoDB attribute map to an Exchange.
func itemToExchange(item map[string]types.AttributeValue) (domain.Exchange, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Exchange{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Exchange{}, err
	}
	question, err := strAttr(item, "question")
	if err != nil {
		return domain.Exchange{}, err
	}
	answer, _ := strAttr(item, "answer") // allow empty
	status, _ := strAttr(item, "status") // allow empty
	turns, _ := intAttr(item, "turns")

	return domain.Exchange{
		PK:       pk,
		SK:       sk,
		Question: question,
		Answer:   answer,
		Status:   status,
		Turns:    turns,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	av, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	av, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	v, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("attribute %q: %w", key, err)
	}
	return v, nil
}
