package backend

import (
	"io"
	"net/http"

	"github.com/bytedance/sonic"
)

func decodeJSON(r *http.Request, v any) error {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return sonic.Unmarshal(payload, v)
}

func writeJSON(w http.ResponseWriter, v any) {
	payload, _ := sonic.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}
