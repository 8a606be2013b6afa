package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Ask sends a chat question scoped to a unit and returns the reply text.
func (client *Client) Ask(ctx context.Context, message string, unitName string) (string, error) {
	payload, marshalErr := json.Marshal(map[string]string{
		"message":   message,
		"unit_name": unitName,
	})
	if marshalErr != nil {
		return "", fmt.Errorf("platform.ask.encode: %w", marshalErr)
	}
	response, sendErr := client.do(ctx, apiRequest{
		method:      http.MethodPost,
		path:        "/chat/ask",
		body:        payload,
		contentType: jsonContentType,
	})
	if sendErr != nil {
		return "", sendErr
	}
	if response.status != http.StatusOK {
		return "", &APIError{Status: response.status, Detail: decodeDetail(response.body)}
	}
	var reply struct {
		Text string `json:"text"`
	}
	if unmarshalErr := json.Unmarshal(response.body, &reply); unmarshalErr != nil {
		return "", fmt.Errorf("platform.ask.decode: %w", unmarshalErr)
	}
	return reply.Text, nil
}
