package utils

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

func ParseRequestBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(dest)
	if err != nil {
		slog.Error("error parsing request body", "error", err)
		WriteError(w, r, http.StatusBadRequest, fmt.Errorf("error parsing request body: %w", err), "")
		return false
	}
	return true
}

func writeJson(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, data)
}

func WriteJsonResponse(w http.ResponseWriter, r *http.Request, data interface{}) {
	writeJson(w, r, http.StatusOK, data)
}

func WriteCreated(w http.ResponseWriter, r *http.Request, data interface{}) {
	writeJson(w, r, http.StatusCreated, data)
}

func WriteAccepted(w http.ResponseWriter, r *http.Request, data interface{}) {
	writeJson(w, r, http.StatusAccepted, data)
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func WriteSuccess(w http.ResponseWriter, r *http.Request) {
	WriteJsonResponse(w, r, struct{}{})
}

func URLParam(r *http.Request, key string) (string, error) {
	param := chi.URLParam(r, key)
	if len(param) == 0 {
		return "", fmt.Errorf("missing {%v} url parameter", key)
	}
	return param, nil
}

func URLParamId(r *http.Request, key string) (uint, error) {
	param, err := URLParam(r, key)
	if err != nil {
		return 0, err
	}

	id, err := strconv.ParseUint(param, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id '%v' provided for {%v}", param, key)
	}

	return uint(id), nil
}

// QueryId returns nil when the query parameter is absent.
func QueryId(r *http.Request, key string) (*uint, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid value '%v' for query parameter %v", value, key)
	}
	res := uint(id)
	return &res, nil
}

func QueryBool(r *http.Request, key string) (*bool, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil, fmt.Errorf("invalid value '%v' for query parameter %v", value, key)
	}
	return &b, nil
}
