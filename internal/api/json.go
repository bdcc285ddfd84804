package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
)

// maxBodyBytes bounds request bodies; a problem with thousands of customers
// still fits comfortably.
const maxBodyBytes = 8 << 20

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Field    string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "decode body")
	}
	return nil
}

// page reads the cursor and limit query parameters.
func page(r *http.Request) (string, int) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	return q.Get("cursor"), limit
}
