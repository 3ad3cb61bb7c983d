package natsx

import (
	"os"

	"github.com/nats-io/nats.go"
)

// DefaultURL is used when NATS_URL is not set.
const DefaultURL = nats.DefaultURL

// URL returns NATS_URL or DefaultURL.
func URL() string {
	if u := os.Getenv("NATS_URL"); u != "" {
		return u
	}
	return DefaultURL
}

// NewClient connects to the NATS server named by NATS_URL. Without options the
// connection is named "strix" and uses compression.
func NewClient(opts ...nats.Option) (*nats.Conn, error) {
	if len(opts) == 0 {
		opts = append(opts, nats.Name("strix"), nats.Compression(true))
	}
	return nats.Connect(URL(), opts...)
}
