package qdrant

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/poiesic/chronicle/storage"
)

// response is the envelope Qdrant wraps every successful result in.
type response[T any] struct {
	Result T      `json:"result"`
	Status string `json:"status"`
}

type collectionInfo struct {
	Status string `json:"status"`
	Config struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

type pointStruct struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type recordStruct struct {
	ID      json.RawMessage `json:"id"`
	Payload map[string]any  `json:"payload"`
}

type scrollResult struct {
	Points         []recordStruct  `json:"points"`
	NextPageOffset json.RawMessage `json:"next_page_offset"`
}

type countResult struct {
	Count int `json:"count"`
}

type errorBody struct {
	Status struct {
		Error string `json:"error"`
	} `json:"status"`
}

// APIError is a non-2xx response from Qdrant.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("qdrant: %s (status %d)", e.Message, e.StatusCode)
}

// Unwrap maps 404 responses to storage.ErrCollectionMissing and client
// errors that no retry can fix to storage.ErrRejected.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return storage.ErrCollectionMissing
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
		return storage.ErrRejected
	}
	return nil
}

func apiError(resp *resty.Response) error {
	msg := resp.String()
	if body, ok := resp.Error().(*errorBody); ok && body != nil && body.Status.Error != "" {
		msg = body.Status.Error
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: msg}
}
