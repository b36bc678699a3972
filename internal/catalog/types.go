package catalog

import "time"

// DefaultLowStockThreshold is the dashboard alert threshold in grams.
const DefaultLowStockThreshold int64 = 10

// Strain is the item stored in the strains DynamoDB table.
// Prices are integer cents per gram; quantities are integer grams.
type Strain struct {
	StrainID       string    `dynamodbav:"strain_id" json:"strain_id"` // PK
	Name           string    `dynamodbav:"name" json:"name"`
	ImageURL       string    `dynamodbav:"image_url,omitempty" json:"image_url,omitempty"`
	PriceCents     int64     `dynamodbav:"price_cents" json:"price_cents"`         // per gram
	AvailableGrams int64     `dynamodbav:"available_grams" json:"available_grams"` // never negative
	CreatedAt      time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at" json:"updated_at"`
}
