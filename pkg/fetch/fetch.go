// Package fetch retrieves the follower count of an account over a raw TLS
// connection and extracts it from the JSON response.
package fetch

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrSkipped is returned when there is no account to fetch. It is not a
	// failure.
	ErrSkipped = errors.New("no account provided, fetch skipped")
	// ErrConnect is returned when the remote could not be reached or the
	// response could not be read.
	ErrConnect = errors.New("fetch failed")
	// ErrParse is returned when the response body is not valid JSON.
	ErrParse = errors.New("json parse error")
)

const (
	DefaultHost     = "i.instagram.com"
	DefaultPort     = 443
	DefaultTimeout  = 15 * time.Second
	DefaultMaxCount = 99999

	profilePath = "/api/v1/users/web_profile_info/?username="

	// The API only answers clients that look like the mobile app.
	userAgent = "Instagram 76.0.0.15.395"
	appID     = "936619743392459"
)

func wrap(kind, cause error) error {
	return fmt.Errorf("%w: %w", kind, cause)
}

// DialFunc opens the secure byte stream to addr.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Client issues one GET per Fetch and reads until the peer closes the stream.
type Client struct {
	Host     string
	Port     int
	Timeout  time.Duration
	MaxCount int
	Dial     DialFunc
}

// NewClient returns a Client dialing host:port over TLS. insecure disables
// certificate verification.
func NewClient(host string, port int, insecure bool, timeout time.Duration, maxCount int) *Client {
	d := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			ServerName: host,
			//nolint:gosec // opt-in, see config insecureTLS
			InsecureSkipVerify: insecure,
		},
	}
	return &Client{
		Host:     host,
		Port:     port,
		Timeout:  timeout,
		MaxCount: maxCount,
		Dial:     d.DialContext,
	}
}

func (c *Client) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Client) request(account string) string {
	return fmt.Sprintf("GET %s%s HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"User-Agent: %s\r\n"+
		"Accept: application/json\r\n"+
		"X-IG-App-ID: %s\r\n"+
		"Connection: close\r\n"+
		"\r\n",
		profilePath, url.QueryEscape(account), c.Host, userAgent, appID)
}

// Fetch returns the clamped follower count of account.
func (c *Client) Fetch(ctx context.Context, account string) (int, error) {
	if account == "" {
		return 0, ErrSkipped
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logrus.WithFields(logrus.Fields{
		"addr":    c.addr(),
		"account": account,
	}).Debug("connecting to profile api")

	conn, err := c.Dial(ctx, "tcp", c.addr())
	if err != nil {
		return 0, wrap(ErrConnect, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logrus.Tracef("failed to close connection: %v", err)
		}
	}()

	if dl, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(dl); err != nil {
			return 0, wrap(ErrConnect, err)
		}
	}

	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(c.request(account)); err != nil {
		return 0, wrap(ErrConnect, err)
	}
	if err := w.Flush(); err != nil {
		return 0, wrap(ErrConnect, err)
	}

	raw, err := io.ReadAll(conn)
	// Plenty of servers close the socket without a TLS close_notify.
	if err != nil && !(errors.Is(err, io.ErrUnexpectedEOF) && len(raw) > 0) {
		return 0, wrap(ErrConnect, err)
	}

	logrus.WithField("bytes", len(raw)).Trace("response received")

	maxCount := c.MaxCount
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	return ParseCount(raw, maxCount)
}
