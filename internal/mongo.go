package internal

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionLog = "sim_log"

// MongoDB is the optional traffic-log sink. Every connection is opened and
// closed per write; the simulator logs at human rates, not wire rates.
type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(uri, database, user, password string) (*MongoDB, error) {
	clientOptions := options.Client().ApplyURI(uri)
	if user != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   user,
			Password:   password,
			AuthSource: database,
		})
	}
	client := &MongoDB{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      database,
	}
	return client, nil
}

func (m *MongoDB) connect() (*mongo.Client, error) {
	return mongo.Connect(m.ctx, m.clientOptions)
}

func (m *MongoDB) disconnect(connection *mongo.Client) {
	_ = connection.Disconnect(m.ctx)
}

func (m *MongoDB) WriteLogMessage(data Data) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionLog)
	_, err = collection.InsertOne(m.ctx, data)
	return err
}

// ReadLog returns the most recent traffic-log entries, newest first.
func (m *MongoDB) ReadLog(limit int64) ([]FeatureLogMessage, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionLog)
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cursor, err := collection.Find(m.ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	var messages []FeatureLogMessage
	if err = cursor.All(m.ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
