package core

import (
	"net/http"

	"github.com/goccy/go-json"
)

// Operation represents a data access operation, one of Select, Insert, Update, Delete, Upsert
type Operation string

// all supported data access operations
const (
	OperationSelect Operation = "select"
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationUpsert Operation = "upsert"
)

// Response is the envelope of every API response, successful or not.
// Code mirrors the HTTP status code.
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data"`
}

// Success returns a 200 response with data
func Success(data interface{}) *Response {
	return &Response{Code: http.StatusOK, Msg: "success", Data: data}
}

// Failure returns an error response without data
func Failure(code int, msg string) *Response {
	return &Response{Code: code, Msg: msg}
}

// WriteResponse writes the response as JSON with its code as HTTP status
func WriteResponse(w http.ResponseWriter, response *Response) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(response.Code)
	w.Write(jsonData)
}
