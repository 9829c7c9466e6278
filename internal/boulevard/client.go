package boulevard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/wolfman30/sameday-sync/internal/platform"
)

const (
	queryAppointments = `query Appointments($locationId: ID!, $first: Int!, $after: String, $query: QueryString) {
  appointments(locationId: $locationId, first: $first, after: $after, query: $query) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id
        startAt
        endAt
        duration
        state
        cancelled
        notes
        updatedAt
        locationId
        appointmentServices {
          duration
          price
          service { id name }
        }
      }
    }
  }
}`

	queryServices = `query Services($first: Int!, $after: String) {
  services(first: $first, after: $after) {
    pageInfo { hasNextPage endCursor }
    edges {
      node { id name description }
    }
  }
}`
)

// graphQL posts one operation and decodes the envelope. GraphQL-level errors are
// reported as protocol rejections.
func graphQL[T any](ctx context.Context, a *Adapter, conn platform.Connection, operationName, query string, variables map[string]any) (T, error) {
	var zero T
	if strings.TrimSpace(conn.AccessToken) == "" {
		return zero, fmt.Errorf("boulevard: missing api key")
	}
	if strings.TrimSpace(conn.MerchantID) == "" {
		return zero, fmt.Errorf("boulevard: missing business id")
	}

	body, err := json.Marshal(graphQLRequest{OperationName: operationName, Query: query, Variables: variables})
	if err != nil {
		return zero, fmt.Errorf("boulevard: marshal request: %w", err)
	}

	header := http.Header{}
	header.Set("X-Business-Id", conn.MerchantID)
	respBody, err := a.transport.Send(ctx, conn, http.MethodPost, a.endpoint, body, header)
	if err != nil {
		return zero, err
	}

	var out graphQLResponse[T]
	if err := json.Unmarshal(respBody, &out); err != nil {
		return zero, fmt.Errorf("boulevard: unmarshal response: %w", err)
	}
	if len(out.Errors) > 0 {
		return zero, &platform.APIError{Platform: Name, StatusCode: http.StatusOK, Body: "graphql error: " + out.Errors[0].Message}
	}
	return out.Data, nil
}
