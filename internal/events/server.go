// Package events publishes conversation message events over NATS.
package events

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// RandomPort asks the embedded server to pick a free port.
const RandomPort = natsserver.RANDOM_PORT

// Server is an in-process NATS server.
type Server struct {
	server *natsserver.Server
}

// StartServer starts an embedded NATS server on port and waits until it accepts connections.
func StartServer(port int) (*Server, error) {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready")
	}

	return &Server{server: ns}, nil
}

// ClientURL is the URL clients connect to.
func (s *Server) ClientURL() string {
	return s.server.ClientURL()
}

// Close shuts the server down and waits for it to stop.
func (s *Server) Close() {
	s.server.Shutdown()
	s.server.WaitForShutdown()
}
