package client

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/followd/pkg/config"
	"github.com/charlie0129/followd/pkg/types"
)

func (c *Client) GetStatus() (*types.DaemonStatus, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}

	var st types.DaemonStatus
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}
	return &st, nil
}

func (c *Client) GetCount() (int, error) {
	ret, err := c.Get("/count")
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to get follower count")
	}
	n, err := strconv.Atoi(strings.TrimSpace(ret))
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to parse follower count")
	}
	return n, nil
}

func (c *Client) GetInterval() (time.Duration, error) {
	ret, err := c.Get("/interval")
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to get fetch interval")
	}
	var s string
	if err := json.Unmarshal([]byte(ret), &s); err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to unmarshal fetch interval")
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to parse fetch interval")
	}
	return d, nil
}

func (c *Client) SetInterval(d time.Duration) (string, error) {
	return c.Put("/interval", strconv.Quote(d.String()))
}

func (c *Client) SetAccount(account string) (string, error) {
	return c.Put("/account", strconv.Quote(account))
}

func (c *Client) GetLastError() (*types.LastErrorInfo, error) {
	ret, err := c.Get("/last-error")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get last error")
	}
	var info types.LastErrorInfo
	if err := json.Unmarshal([]byte(ret), &info); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal last error")
	}
	return &info, nil
}

func (c *Client) ClearLastError() (string, error) {
	return c.Delete("/last-error")
}

func (c *Client) RestartPortal() (string, error) {
	return c.Send("POST", "/portal/restart", "")
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}

// Unquote strips the JSON string quoting of a plain message response.
func Unquote(msg string) string {
	var s string
	if err := json.Unmarshal([]byte(msg), &s); err != nil {
		return strings.TrimSpace(msg)
	}
	return s
}
