package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Translate converts a non-2xx downstream response into user-facing copy.
// The wording is contractual: chat clients render these strings verbatim,
// so changes here are product copy changes, not refactors.
//
// The resource noun is inferred from the URL path and the action verb from
// the HTTP method; both fall back to generic words rather than leaking raw
// downstream messages for permission failures.
func Translate(statusCode int, responseBody, method, apiURL string) string {
	originalMessage := responseBody
	var parsed map[string]any
	if err := json.Unmarshal([]byte(responseBody), &parsed); err == nil {
		if msg, ok := parsed["message"].(string); ok {
			originalMessage = msg
		}
	}

	resource := resourceFromURL(apiURL)
	action := actionFromMethod(method)

	switch {
	case statusCode == 403:
		if strings.Contains(originalMessage, "Forbidden") {
			return fmt.Sprintf("You don't have permission to %s this %s. This %s may belong to another user or you may not have the required access level.", action, resource, resource)
		}
		return fmt.Sprintf("Access denied: You don't have permission to %s this %s.", action, resource)
	case statusCode == 401:
		return "Your session has expired. Please log in again to continue."
	case statusCode == 404:
		return fmt.Sprintf("The %s you're trying to %s was not found. It may have been deleted or never existed.", resource, action)
	case statusCode == 400:
		return fmt.Sprintf("Invalid request: %s", originalMessage)
	case statusCode == 409:
		return fmt.Sprintf("Conflict: The %s cannot be modified because it conflicts with an existing resource.", resource)
	case statusCode == 422:
		return fmt.Sprintf("Validation error: %s", originalMessage)
	case statusCode == 429:
		return "Too many requests. Please wait a moment and try again."
	case statusCode >= 500:
		return "Server error: The service is temporarily unavailable. Please try again later."
	}

	return fmt.Sprintf("Unable to %s %s: %s", action, resource, originalMessage)
}

func resourceFromURL(apiURL string) string {
	switch {
	case strings.Contains(apiURL, "/agents/") || strings.Contains(apiURL, "/agent/"):
		return "agent"
	case strings.Contains(apiURL, "/user/"):
		return "user data"
	case strings.Contains(apiURL, "/conversation"):
		return "conversation"
	default:
		return "resource"
	}
}

func actionFromMethod(method string) string {
	switch strings.ToUpper(method) {
	case "GET":
		return "access"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return "perform this action on"
	}
}
