package models

// SortOption represents a single field and direction for sorting list results.
// @Description Defines how to sort list results based on a specific field.
// @name SortOption
type SortOption struct {
	// The field to sort by (e.g., "created_time").
	Property string `json:"property" binding:"required" example:"created_time"`
	// The sort order.
	Order string `json:"order" binding:"required,oneof=asc desc" example:"asc" enums:"asc,desc"`
}

// Paging contains optional paging information.
// @Description Contains the cursor that continues a listing.
// @name Paging
type Paging struct {
	// NextCursor continues the listing; nil on the last page.
	// @description NextCursor continues the listing; nil on the last page.
	NextCursor *string `json:"next_cursor,omitempty" swaggertype:"string"`
}

// PaginatedResponse that leverages a slice of type T.
// @Description PaginatedResponse is a generic struct that contains a slice of results of type T and optional paging information.
// @name PaginatedResponse
type PaginatedResponse[T any] struct {
	// Results is a slice of items of type T.
	// @description Results is a slice of items of type T.
	Results []T `json:"results"`
	// Paging contains optional paging information.
	// @description Paging contains optional paging information.
	Paging Paging `json:"paging,omitempty" swaggertype:"object"`
}

// HasMore reports whether another page is available.
func (p PaginatedResponse[T]) HasMore() bool {
	return p.Paging.NextCursor != nil && *p.Paging.NextCursor != ""
}

// NewPaginatedResponse creates a new PaginatedResponse for a given slice of type T.
func NewPaginatedResponse[T any](results []T, next *string) PaginatedResponse[T] {
	return PaginatedResponse[T]{
		Results: results,
		Paging:  Paging{NextCursor: next},
	}
}

func NewEmptyPaginatedResponse[T any]() PaginatedResponse[T] {
	return PaginatedResponse[T]{
		Results: []T{},
		Paging:  Paging{},
	}
}

// ByIDsRequest retrieves resources by external id.
type ByIDsRequest struct {
	Items         []ExternalIDRef `json:"items"`
	IgnoreUnknown bool            `json:"ignore_unknown_ids,omitempty"`
}

// ExternalIDRef references a resource by external id.
type ExternalIDRef struct {
	ExternalID string `json:"external_id"`
}

// NewByIDsRequest builds a ByIDsRequest for the given external ids.
func NewByIDsRequest(ignoreUnknown bool, externalIDs ...string) ByIDsRequest {
	items := make([]ExternalIDRef, 0, len(externalIDs))
	for _, id := range externalIDs {
		items = append(items, ExternalIDRef{ExternalID: id})
	}
	return ByIDsRequest{Items: items, IgnoreUnknown: ignoreUnknown}
}

// ItemsResponse wraps non-paginated item lists.
type ItemsResponse[T any] struct {
	Items []T `json:"items"`
}
