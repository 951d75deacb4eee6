package core

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// HTTPAPI exposes a Node over HTTP, the same controller-over-router shape
// as the teacher's walletserver (routes registered against a Node the way
// routes.Register wires a WalletController), swapping gorilla/mux for
// go-chi/chi since this module already reaches for chi elsewhere.
type HTTPAPI struct {
	node    *Node
	mempool Mempool
}

// NewHTTPAPI builds an HTTPAPI that posts submitted requests through
// mempool and serves polling/manifest reads directly off node.
func NewHTTPAPI(node *Node, mempool Mempool) *HTTPAPI {
	return &HTTPAPI{node: node, mempool: mempool}
}

// Router builds the chi router: POST /requests submits a wire-encoded
// request and returns its transaction reference; GET /responses/{tr} polls
// for the outcome; GET /manifest reports the node's manifest reference.
func (a *HTTPAPI) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Post("/requests", a.postRequest)
	r.Get("/responses/{tr}", a.getResponse)
	r.Get("/manifest", a.getManifest)
	return r
}

type submitResult struct {
	TransactionReference string `json:"transaction_reference"`
}

func (a *HTTPAPI) postRequest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		httpError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	req, err := DecodeRequest(body)
	if err != nil {
		httpError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	tr, err := a.node.AddRequest(ctx, a.mempool, req)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, submitResult{TransactionReference: tr.String()})
}

func (a *HTTPAPI) getResponse(w http.ResponseWriter, r *http.Request) {
	trHex := chi.URLParam(r, "tr")
	tr, err := ParseTransactionReference(trHex)
	if err != nil {
		httpError(w, http.StatusBadRequest, "bad transaction reference: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	resp, err := a.node.GetPolledResponse(ctx, tr)
	if err != nil {
		logrus.WithError(err).WithField("tr", trHex).Warn("httpapi: poll failed")
		httpError(w, http.StatusNotFound, err.Error())
		return
	}
	encoded, err := EncodeResponse(resp)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(encoded)
}

type manifestResult struct {
	Set      bool   `json:"set"`
	Manifest string `json:"manifest,omitempty"`
	TRHex    string `json:"manifest_transaction_hex,omitempty"`
}

func (a *HTTPAPI) getManifest(w http.ResponseWriter, r *http.Request) {
	manifest, ok := a.node.store.Snapshot().GetManifest()
	if !ok {
		writeJSON(w, http.StatusOK, manifestResult{Set: false})
		return
	}
	writeJSON(w, http.StatusOK, manifestResult{
		Set:      true,
		Manifest: manifest.String(),
		TRHex:    hex.EncodeToString(manifest.Transaction[:]),
	})
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
