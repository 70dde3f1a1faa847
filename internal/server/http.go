/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

package server

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"laterbase/internal/eid"
)

// NewMux builds the HTTP surface §6 describes: POST /db/{name} to
// create, GET /db/{name} to report info, PUT /db/{name}/e to submit an
// event, GET /db/{name}/e to fetch by key.
func NewMux(h *Host) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /db/{name}", h.handleCreate)
	mux.HandleFunc("GET /db/{name}", h.handleInfo)
	mux.HandleFunc("PUT /db/{name}/e", h.handleSubmit)
	mux.HandleFunc("GET /db/{name}/e", h.handleFetch)
	return mux
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Host) handleCreate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.Create(name); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": name})
}

func (h *Host) handleInfo(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	info, err := h.Info(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// submitRequest's Value is base64, since an event's payload is opaque
// bytes (§3) and JSON strings must be valid UTF-8.
type submitRequest struct {
	Value string `json:"value"`
}

type submitResponse struct {
	ID string `json:"id"`
}

func (h *Host) handleSubmit(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	value, err := base64.StdEncoding.DecodeString(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := h.Submit(r.Context(), name, value)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{ID: id.String()})
}

type fetchedEvent struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

func (h *Host) handleFetch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	keysParam := r.URL.Query().Get("keys")
	if keysParam == "" {
		writeJSON(w, http.StatusOK, []fetchedEvent{})
		return
	}

	hexKeys := strings.Split(keysParam, ",")
	keys := make([]eid.ID, 0, len(hexKeys))
	for _, hk := range hexKeys {
		raw, err := hex.DecodeString(hk)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		id, err := eid.Decode(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		keys = append(keys, id)
	}

	events, err := h.Fetch(name, keys)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	out := make([]fetchedEvent, len(events))
	for i, e := range events {
		out[i] = fetchedEvent{ID: e.ID.String(), Value: base64.StdEncoding.EncodeToString(e.Value)}
	}
	writeJSON(w, http.StatusOK, out)
}
