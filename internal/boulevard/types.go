package boulevard

const (
	defaultGraphQLEndpoint = "https://dashboard.joinblvd.com/api/2020-01/admin"
	pageSize               = 100
)

type graphQLRequest struct {
	OperationName string         `json:"operationName,omitempty"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type appointmentService struct {
	Duration int   `json:"duration"`
	Price    int64 `json:"price"`
	Service  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"service"`
}

type appointmentNode struct {
	ID                  string               `json:"id"`
	StartAt             string               `json:"startAt"`
	EndAt               string               `json:"endAt"`
	Duration            int                  `json:"duration"`
	State               string               `json:"state"`
	Cancelled           bool                 `json:"cancelled"`
	Notes               string               `json:"notes"`
	UpdatedAt           string               `json:"updatedAt"`
	LocationID          string               `json:"locationId"`
	AppointmentServices []appointmentService `json:"appointmentServices"`
}

// Narrow response payloads for each API operation.
type appointmentsData struct {
	Appointments struct {
		PageInfo pageInfo `json:"pageInfo"`
		Edges    []struct {
			Node appointmentNode `json:"node"`
		} `json:"edges"`
	} `json:"appointments"`
}

type servicesData struct {
	Services struct {
		PageInfo pageInfo `json:"pageInfo"`
		Edges    []struct {
			Node struct {
				ID          string `json:"id"`
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"services"`
}
