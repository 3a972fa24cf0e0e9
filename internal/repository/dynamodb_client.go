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
	"github.com/google/uuid"

	"navy-registrar/internal/domain"
)

const (
	skPrefixConv    = "CONV#"
	skPrefixMission = "MISSION#"
	skPrefixCrew    = "CREW#"
	skPrefixPort    = "PORT#"
	skShipMeta      = "META#"

	conditionalCheckFailed = "ConditionalCheckFailed"

	// sortableTime keeps a fixed width so sort keys order chronologically.
	sortableTime = "2006-01-02T15:04:05.000000000Z07:00"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client stores conversation records and ship entities in a single DynamoDB table.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
	newID     func() string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now, newID: uuid.NewString}, nil
}

// userPK returns the partition key for a user's conversation records.
func userPK(userID string) string {
	return "USER#" + userID
}

// shipPK returns the partition key shared by a ship and its owned rows.
func shipPK(shipID string) string {
	return "SHIP#" + shipID
}

// convSK returns a chronologically sortable conversation sort key. The id
// suffix keeps appends made in the same instant distinct.
func convSK(ts time.Time, id string) string {
	return childSK(skPrefixConv, ts, id)
}

// childSK returns the sort key of an insert-only row owned by a ship.
func childSK(prefix string, ts time.Time, id string) string {
	return prefix + ts.UTC().Format(sortableTime) + "#" + id
}

// LatestConversation returns the newest conversation data for a user, or an
// empty map when the user has none.
func (c *Client) LatestConversation(ctx context.Context, userID string) (map[string]any, error) {
	records, err := c.queryConversations(ctx, userID, 1)
	if err != nil {
		return nil, fmt.Errorf("repository: LatestConversation: %w", err)
	}
	if len(records) == 0 {
		return map[string]any{}, nil
	}
	return records[0].Data, nil
}

// ConversationHistory returns up to limit records for a user in chronological order.
func (c *Client) ConversationHistory(ctx context.Context, userID string, limit int) ([]domain.ConversationRecord, error) {
	records, err := c.queryConversations(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: ConversationHistory: %w", err)
	}
	// Reverse to chronological order.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (c *Client) queryConversations(ctx context.Context, userID string, limit int) ([]domain.ConversationRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixConv},
		},
		// Newest first so LIMIT favors the most recent records.
		ScanIndexForward: aws.Bool(false),
		ConsistentRead:   aws.Bool(true),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	records := make([]domain.ConversationRecord, 0, len(out.Items))
	for _, item := range out.Items {
		rec, err := itemToConversation(item)
		if err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// AppendConversation writes a new immutable conversation record.
func (c *Client) AppendConversation(ctx context.Context, userID string, data map[string]any) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("repository: AppendConversation: user id is required")
	}
	raw, err := domain.EncodeData(data)
	if err != nil {
		return fmt.Errorf("repository: AppendConversation: %w", err)
	}
	now := c.now().UTC()

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK":        &types.AttributeValueMemberS{Value: convSK(now, c.newID())},
			"userId":    &types.AttributeValueMemberS{Value: userID},
			"data":      &types.AttributeValueMemberS{Value: raw},
			"createdAt": &types.AttributeValueMemberS{Value: now.Format(sortableTime)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendConversation: %w", err)
	}
	return nil
}

// SaveShipMission upserts the ship and inserts the mission in one transaction.
// A nil mission upserts the ship alone.
func (c *Client) SaveShipMission(ctx context.Context, ship domain.Ship, mission *domain.Mission) error {
	if ship.ID == "" {
		return errors.New("repository: SaveShipMission: ship id is required")
	}
	now := c.now().UTC()

	items := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName: aws.String(c.tableName),
				Key:       shipKey(ship.ID),
				UpdateExpression: aws.String(
					"SET shipId = :id, shipName = :name, shipType = :type, updatedAt = :now, createdAt = if_not_exists(createdAt, :now)",
				),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":id":   &types.AttributeValueMemberS{Value: ship.ID},
					":name": &types.AttributeValueMemberS{Value: ship.Name},
					":type": &types.AttributeValueMemberS{Value: ship.Type},
					":now":  &types.AttributeValueMemberS{Value: now.Format(sortableTime)},
				},
			},
		},
	}
	if mission != nil {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(c.tableName),
				Item:                missionItem(*mission, now),
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
			},
		})
	}

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return fmt.Errorf("repository: SaveShipMission: %w", err)
	}
	return nil
}

// GetShip returns the ship with the given ID or domain.ErrShipNotFound.
func (c *Client) GetShip(ctx context.Context, shipID string) (domain.Ship, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            shipKey(shipID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Ship{}, fmt.Errorf("repository: GetShip get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Ship{}, fmt.Errorf("repository: GetShip %q: %w", shipID, domain.ErrShipNotFound)
	}
	ship, err := itemToShip(out.Item)
	if err != nil {
		return domain.Ship{}, fmt.Errorf("repository: GetShip unmarshal: %w", err)
	}
	return ship, nil
}

// CreateCrew inserts a crew row for an existing ship.
func (c *Client) CreateCrew(ctx context.Context, crew domain.Crew) error {
	now := c.now().UTC()
	item := map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: shipPK(crew.ShipID)},
		"SK":            &types.AttributeValueMemberS{Value: childSK(skPrefixCrew, now, crew.ID)},
		"crewId":        &types.AttributeValueMemberS{Value: crew.ID},
		"shipId":        &types.AttributeValueMemberS{Value: crew.ShipID},
		"crewSize":      &types.AttributeValueMemberN{Value: strconv.Itoa(crew.Size)},
		"commanderName": &types.AttributeValueMemberS{Value: crew.CommanderName},
		"commanderRank": &types.AttributeValueMemberS{Value: crew.CommanderRank},
		"createdAt":     &types.AttributeValueMemberS{Value: now.Format(sortableTime)},
	}
	if err := c.putOwned(ctx, crew.ShipID, item); err != nil {
		return fmt.Errorf("repository: CreateCrew: %w", err)
	}
	return nil
}

// CreatePort inserts a port row for an existing ship.
func (c *Client) CreatePort(ctx context.Context, port domain.Port) error {
	now := c.now().UTC()
	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: shipPK(port.ShipID)},
		"SK":        &types.AttributeValueMemberS{Value: childSK(skPrefixPort, now, port.ID)},
		"portId":    &types.AttributeValueMemberS{Value: port.ID},
		"shipId":    &types.AttributeValueMemberS{Value: port.ShipID},
		"homePort":  &types.AttributeValueMemberS{Value: port.HomePort},
		"createdAt": &types.AttributeValueMemberS{Value: now.Format(sortableTime)},
	}
	if err := c.putOwned(ctx, port.ShipID, item); err != nil {
		return fmt.Errorf("repository: CreatePort: %w", err)
	}
	return nil
}

// ListMissions returns the missions recorded for a ship, oldest first.
func (c *Client) ListMissions(ctx context.Context, shipID string) ([]domain.Mission, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: shipPK(shipID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMission},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListMissions query: %w", err)
	}
	missions := make([]domain.Mission, 0, len(out.Items))
	for _, item := range out.Items {
		m, err := itemToMission(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListMissions unmarshal: %w", err)
		}
		missions = append(missions, m)
	}
	return missions, nil
}

// putOwned writes an insert-only row conditioned on its ship existing.
func (c *Client) putOwned(ctx context.Context, shipID string, item map[string]types.AttributeValue) error {
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				ConditionCheck: &types.ConditionCheck{
					TableName:           aws.String(c.tableName),
					Key:                 shipKey(shipID),
					ConditionExpression: aws.String("attribute_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
		},
	})
	if err != nil {
		if shipCheckFailed(err) {
			return fmt.Errorf("ship %q: %w", shipID, domain.ErrShipNotFound)
		}
		return err
	}
	return nil
}

// shipCheckFailed reports whether a canceled transaction failed on its
// leading ship ConditionCheck.
func shipCheckFailed(err error) bool {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return false
	}
	if len(canceled.CancellationReasons) == 0 {
		return false
	}
	code := canceled.CancellationReasons[0].Code
	return code != nil && *code == conditionalCheckFailed
}

func shipKey(shipID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: shipPK(shipID)},
		"SK": &types.AttributeValueMemberS{Value: skShipMeta},
	}
}

func missionItem(m domain.Mission, now time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: shipPK(m.ShipID)},
		"SK":          &types.AttributeValueMemberS{Value: childSK(skPrefixMission, now, m.ID)},
		"missionId":   &types.AttributeValueMemberS{Value: m.ID},
		"shipId":      &types.AttributeValueMemberS{Value: m.ShipID},
		"missionType": &types.AttributeValueMemberS{Value: m.MissionType},
		"createdAt":   &types.AttributeValueMemberS{Value: now.Format(sortableTime)},
	}
}

// itemToConversation converts a DynamoDB attribute map to a ConversationRecord.
func itemToConversation(item map[string]types.AttributeValue) (domain.ConversationRecord, error) {
	userID, err := strAttr(item, "userId")
	if err != nil {
		return domain.ConversationRecord{}, err
	}
	raw, err := strAttr(item, "data")
	if err != nil {
		return domain.ConversationRecord{}, err
	}
	data, err := domain.DecodeData(raw)
	if err != nil {
		return domain.ConversationRecord{}, err
	}
	createdAt, err := timeAttr(item, "createdAt")
	if err != nil {
		return domain.ConversationRecord{}, err
	}
	return domain.ConversationRecord{UserID: userID, Data: data, CreatedAt: createdAt}, nil
}

func itemToShip(item map[string]types.AttributeValue) (domain.Ship, error) {
	id, err := strAttr(item, "shipId")
	if err != nil {
		return domain.Ship{}, err
	}
	name, _ := strAttr(item, "shipName") // allow empty
	shipType, _ := strAttr(item, "shipType")
	return domain.Ship{ID: id, Name: name, Type: shipType}, nil
}

func itemToMission(item map[string]types.AttributeValue) (domain.Mission, error) {
	id, err := strAttr(item, "missionId")
	if err != nil {
		return domain.Mission{}, err
	}
	shipID, err := strAttr(item, "shipId")
	if err != nil {
		return domain.Mission{}, err
	}
	missionType, err := strAttr(item, "missionType")
	if err != nil {
		return domain.Mission{}, err
	}
	return domain.Mission{ID: id, ShipID: shipID, MissionType: missionType}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
}
