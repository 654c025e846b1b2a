// SPDX-License-Identifier: GPL-3.0-only

package dbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/shini4i/displaypowerd/internal/power"
)

// Client calls a running daemon.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Dial connects to the daemon on bus.
func Dial(bus Bus) (*Client, error) {
	conn, err := bus.Connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s bus: %w", bus, err)
	}
	return &Client{
		conn: conn,
		obj:  conn.Object(ServiceName, ObjectPath),
	}, nil
}

// Close releases the bus connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// RequestPowerState submits req and returns whether the daemon was already settled.
func (c *Client) RequestPowerState(ctx context.Context, req power.Request, waitForNegativeProximity bool) (bool, error) {
	var ready bool
	err := c.obj.CallWithContext(ctx, InterfaceName+".RequestPowerState", 0, FromRequest(req), waitForNegativeProximity).Store(&ready)
	if err != nil {
		return false, fmt.Errorf("RequestPowerState: %w", err)
	}
	return ready, nil
}

// IsProximitySensorAvailable asks whether the daemon has a proximity sensor.
func (c *Client) IsProximitySensorAvailable(ctx context.Context) (bool, error) {
	var available bool
	if err := c.obj.CallWithContext(ctx, InterfaceName+".IsProximitySensorAvailable", 0).Store(&available); err != nil {
		return false, fmt.Errorf("IsProximitySensorAvailable: %w", err)
	}
	return available, nil
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (power.Status, error) {
	var raw string
	if err := c.obj.CallWithContext(ctx, InterfaceName+".GetStatus", 0).Store(&raw); err != nil {
		return power.Status{}, fmt.Errorf("GetStatus: %w", err)
	}
	var status power.Status
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return power.Status{}, fmt.Errorf("failed to decode status: %w", err)
	}
	return status, nil
}

// Dump returns the daemon state dump.
func (c *Client) Dump(ctx context.Context) (string, error) {
	var out string
	if err := c.obj.CallWithContext(ctx, InterfaceName+".Dump", 0).Store(&out); err != nil {
		return "", fmt.Errorf("Dump: %w", err)
	}
	return out, nil
}
