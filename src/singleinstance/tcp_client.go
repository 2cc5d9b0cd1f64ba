package singleinstance

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"time"
)

type tcpClient struct{}

func newTcpClient() Client { return &tcpClient{} }

func (c *tcpClient) TryRunOnce(ctx context.Context, outputToStdout bool) (bool, string, error) {
	mode := ModeClipboard
	if outputToStdout {
		mode = ModeStdout
	}
	delegated, body, err := c.roundTrip(ctx, mode, nil)
	return delegated, string(body), err
}

func (c *tcpClient) SendMessage(ctx context.Context, raw []byte) (bool, []byte, error) {
	return c.roundTrip(ctx, ModeMessage, bytes.TrimSpace(raw))
}

// roundTrip scans the configured range for a resident using PING, then sends
// the mode line (and payload line) and reads SUCCESS/ERROR framing.
func (c *tcpClient) roundTrip(ctx context.Context, mode Mode, payload []byte) (bool, []byte, error) {
	deadline := probeTimeout(ctx, 2*time.Second)
	r := ConfiguredPortRange()
	for port := r.Start; port <= r.End; port++ {
		addr := Addr(port)
		if !ping(addr, deadline) {
			continue
		}
		conn, err := net.DialTimeout("tcp", addr, deadline)
		if err != nil {
			continue
		}
		body, err := exchange(ctx, conn, mode, payload)
		conn.Close()
		return true, body, err
	}
	return false, nil, nil
}

func exchange(ctx context.Context, conn net.Conn, mode Mode, payload []byte) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(string(mode) + "\n"); err != nil {
		return nil, err
	}
	if mode == ModeMessage {
		if _, err := w.Write(append(payload, '\n')); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return nil, err
	}
	body, _ := io.ReadAll(br)
	switch status {
	case successLine:
		return body, nil
	case errorLine:
		return nil, errors.New(string(body))
	}
	return nil, errors.New("unexpected response from resident")
}
