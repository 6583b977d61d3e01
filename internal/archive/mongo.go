// Package archive copies scored transactions to MongoDB for offline review.
package archive

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cardshield/fraud-api/internal/domain"
)

// Connect connects to the mongodb server and returns the client.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	timeout := 5 * time.Second
	opts := &options.ClientOptions{ServerSelectionTimeout: &timeout}

	client, err := mongo.Connect(ctx, opts.ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return client, nil
}

// Document is the BSON shape of an archived transaction. Amounts are stored
// as strings to keep decimal precision.
type Document struct {
	ID          string    `bson:"_id"`
	CardNumber  string    `bson:"card_number"`
	Amount      string    `bson:"amount"`
	Merchant    string    `bson:"merchant"`
	Location    string    `bson:"location"`
	Hour        int       `bson:"hour"`
	Type        string    `bson:"type"`
	AmountRisk  float64   `bson:"amount_risk"`
	LocRisk     float64   `bson:"location_risk"`
	TimeRisk    float64   `bson:"time_risk"`
	PatternRisk float64   `bson:"pattern_risk"`
	TotalRisk   float64   `bson:"total_risk"`
	IsFraud     bool      `bson:"is_fraud"`
	RiskLevel   string    `bson:"risk_level"`
	ProcessedAt time.Time `bson:"processed_at"`
}

// ToDocument flattens a scored transaction for storage.
func ToDocument(st *domain.ScoredTransaction) Document {
	return Document{
		ID:          st.Transaction.ID,
		CardNumber:  st.Transaction.CardNumber,
		Amount:      st.Transaction.Amount.String(),
		Merchant:    st.Transaction.Merchant,
		Location:    st.Transaction.Location,
		Hour:        st.Transaction.Hour,
		Type:        st.Transaction.Type,
		AmountRisk:  st.Analysis.AmountRisk,
		LocRisk:     st.Analysis.LocationRisk,
		TimeRisk:    st.Analysis.TimeRisk,
		PatternRisk: st.Analysis.PatternRisk,
		TotalRisk:   st.Analysis.TotalRisk,
		IsFraud:     st.Analysis.IsFraud,
		RiskLevel:   st.Analysis.RiskLevel,
		ProcessedAt: st.ProcessedAt,
	}
}

// Mongo archives into <database>.scored_transactions.
type Mongo struct {
	client     *mongo.Client
	database   string
	collection string
}

// NewMongo creates an archive writing to the given database.
func NewMongo(client *mongo.Client, database string) *Mongo {
	if database == "" {
		database = "cardshield"
	}
	return &Mongo{client: client, database: database, collection: "scored_transactions"}
}

// Archive upserts one scored transaction keyed by its ID.
func (m *Mongo) Archive(ctx context.Context, st *domain.ScoredTransaction) error {
	doc := ToDocument(st)
	coll := m.client.Database(m.database).Collection(m.collection)
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}
