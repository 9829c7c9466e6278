package square

const (
	defaultBaseURL = "https://connect.squareup.com"
	defaultVersion = "2024-01-18"
	pageLimit      = 100
	batchLimit     = 1000
)

type money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type appointmentSegment struct {
	DurationMinutes         int    `json:"duration_minutes"`
	ServiceVariationID      string `json:"service_variation_id"`
	ServiceVariationVersion int64  `json:"service_variation_version"`
	TeamMemberID            string `json:"team_member_id"`
}

type booking struct {
	ID                  string               `json:"id"`
	Version             int                  `json:"version"`
	Status              string               `json:"status"`
	CreatedAt           string               `json:"created_at"`
	UpdatedAt           string               `json:"updated_at"`
	StartAt             string               `json:"start_at"`
	LocationID          string               `json:"location_id"`
	CustomerID          string               `json:"customer_id"`
	CustomerNote        string               `json:"customer_note"`
	AppointmentSegments []appointmentSegment `json:"appointment_segments"`
}

type listBookingsResponse struct {
	Bookings []booking `json:"bookings"`
	Cursor   string    `json:"cursor"`
}

type batchRetrieveRequest struct {
	ObjectIDs             []string `json:"object_ids"`
	IncludeRelatedObjects bool     `json:"include_related_objects"`
}

type catalogObject struct {
	Type              string             `json:"type"`
	ID                string             `json:"id"`
	ItemData          *itemData          `json:"item_data,omitempty"`
	ItemVariationData *itemVariationData `json:"item_variation_data,omitempty"`
}

type itemData struct {
	Name                 string `json:"name"`
	Description          string `json:"description"`
	DescriptionPlaintext string `json:"description_plaintext"`
}

type itemVariationData struct {
	ItemID          string `json:"item_id"`
	Name            string `json:"name"`
	PriceMoney      *money `json:"price_money,omitempty"`
	ServiceDuration int64  `json:"service_duration"`
}

type batchRetrieveResponse struct {
	Objects        []catalogObject `json:"objects"`
	RelatedObjects []catalogObject `json:"related_objects"`
}

type retrieveObjectResponse struct {
	Object catalogObject `json:"object"`
}

// variation is the resolved catalog view of a booked service variation.
type variation struct {
	ID     string
	ItemID string
	Name   string
	Amount *float64
}
