package intercept

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OfflineMessage is shown by clients when they render a synthetic payload.
const OfflineMessage = "You are offline. Data will sync when connection is restored."

// HeaderOffline marks synthetic offline responses.
const HeaderOffline = "X-Todosync-Offline"

// DefaultResourceMarkers are the path fragments that earn a synthetic payload.
var DefaultResourceMarkers = []string{"/todos", "/tasks"}

// OfflinePayload is the body of a synthetic offline response.
type OfflinePayload struct {
	Data    []json.RawMessage `json:"data"`
	Message string            `json:"message"`
	Offline bool              `json:"offline"`
}

// offlineBody renders the fixed payload.
func offlineBody() []byte {
	data, err := json.Marshal(OfflinePayload{
		Data:    []json.RawMessage{},
		Message: OfflineMessage,
		Offline: true,
	})
	if err != nil {
		// Static struct with no unsupported types
		panic(fmt.Sprintf("intercept: marshal offline payload: %v", err))
	}
	return data
}

// matchesMarker reports whether path contains any configured marker.
func matchesMarker(path string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(path, m) {
			return true
		}
	}
	return false
}

// offlineResponse builds the synthetic 200 application/json response.
func offlineResponse(req *http.Request) *http.Response {
	body := offlineBody()
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set(HeaderOffline, "true")
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
