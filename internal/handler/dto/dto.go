// Package dto provides Data Transfer Objects for API requests and responses.
package dto

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// List wraps a collection response. Data is never null.
type List[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// NewList builds a List from items.
func NewList[T any](items []T) List[T] {
	if items == nil {
		items = []T{}
	}
	return List[T]{Data: items, Total: len(items)}
}
