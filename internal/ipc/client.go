package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	dialTimeout      = 3 * time.Second
	rwTimeout        = 15 * time.Second
	maxResponseBytes = 64 * 1024
)

// Send sends one request and waits for one response. An empty endpoint
// selects the per-user default.
func Send(endpoint string, req Request) (Response, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint()
	}

	conn, err := dialEndpoint(endpoint, dialTimeout)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(rwTimeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}

	rawReq, err := encodeRequest(req)
	if err != nil {
		return Response{}, err
	}
	if _, err := conn.Write(rawReq); err != nil {
		return Response{}, err
	}
	if _, err := conn.Write([]byte{'\n'}); err != nil {
		return Response{}, err
	}

	respRaw, err := readDelimitedFrame(bufio.NewReaderSize(conn, maxResponseBytes+1), maxResponseBytes)
	if err != nil {
		return Response{}, err
	}

	resp, err := decodeResponse(respRaw)
	if err != nil {
		return Response{}, fmt.Errorf("invalid response: %w", err)
	}
	return resp, nil
}

// IsConnectionError reports whether the error indicates that no server is
// listening on the endpoint.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "open"
	}
	return false
}
