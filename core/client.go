package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

const clientTimeout = 10 * time.Second

// Notify asks the bot listening on socketPath to send p.
func Notify(ctx context.Context, socketPath string, p NotifyPayload) (Response, error) {
	return call(ctx, socketPath, ActionNotify, p)
}

// React asks the bot listening on socketPath to add a reaction.
func React(ctx context.Context, socketPath string, p ReactPayload) (Response, error) {
	return call(ctx, socketPath, ActionReact, p)
}

// ConnectedPlatforms lists the platforms the running bot can deliver to.
func ConnectedPlatforms(ctx context.Context, socketPath string) ([]string, error) {
	resp, err := call(ctx, socketPath, ActionPlatforms, nil)
	if err != nil {
		return nil, err
	}
	return resp.Platforms, nil
}

// call sends one request and decodes the response. A response with OK
// false is returned together with its error text.
func call(ctx context.Context, socketPath, action string, payload any) (Response, error) {
	req := Request{Version: CurrentVersion, Action: action}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Response{}, fmt.Errorf("encode payload: %w", err)
		}
		req.Payload = raw
	}
	data, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return Response{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(clientTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	if _, err := conn.Write(data); err != nil {
		return Response{}, fmt.Errorf("write request: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		uc.CloseWrite()
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if !resp.OK {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}
