package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/oscarbot/gateway-service/client"
)

// ClientHandler is the HTTP surface of the outbound half: it forwards
// ANY /client/{group}/{service} to the configured remote gateway through the
// REST client and relays the remote envelope back.
type ClientHandler struct {
	rest *client.RestClient
}

// NewClientHandler creates the outbound relay handler.
func NewClientHandler(rest *client.RestClient) *ClientHandler {
	return &ClientHandler{rest: rest}
}

// Handle serves ANY /client/{group}/{service}.
func (h *ClientHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Malformed request (missing data).")
		return
	}

	var params map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			writeJSONError(w, http.StatusBadRequest, "Malformed request (missing data).")
			return
		}
	}

	endpoint := r.PathValue("group") + "/" + r.PathValue("service")
	envelope, err := h.rest.Call(r.Context(), r.Method, endpoint, params)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, envelope)
}
