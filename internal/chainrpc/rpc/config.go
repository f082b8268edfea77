package rpc

import (
	"net/http"
)

// Config holds the configuration of a JSON-RPC client.
type Config struct {
	// URL of the JSON-RPC endpoint
	// Example: http://127.0.0.1:8545/rpc
	Url string
	// Custom headers to send
	CustomHeaders map[string]string
	// HTTP Client to use. Digest authentication is configured through its Transport
	Client *http.Client
}
