package daemon

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/followd/pkg/config"
	"github.com/charlie0129/followd/pkg/events"
	"github.com/charlie0129/followd/pkg/provision"
	"github.com/charlie0129/followd/pkg/types"
	"github.com/charlie0129/followd/pkg/version"
)

// MinFetchInterval is the shortest interval accepted by PUT /interval.
const MinFetchInterval = time.Second

// controller is the part of *provision.Manager the control API drives.
type controller interface {
	DaemonStatus() types.DaemonStatus
	FollowerCount() int
	FetchInterval() time.Duration
	SetFetchInterval(d time.Duration)
	LastError() types.ErrorKind
	ClearLastError()
	RestartPortal() error
	SetAccount(account string) error
}

type api struct {
	ctrl    controller
	conf    config.Config
	hub     *events.EventHub
	metrics http.Handler
	localIP func() (net.IP, error)
}

func abort(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

func (a *api) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(a.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (a *api) getStatus(c *gin.Context) {
	st := a.ctrl.DaemonStatus()
	if a.localIP != nil && st.WiFiStatus == types.WiFiConnected {
		if ip, err := a.localIP(); err == nil {
			st.LocalIP = ip.String()
		}
	}
	c.IndentedJSON(http.StatusOK, st)
}

func (a *api) getCount(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, a.ctrl.FollowerCount())
}

func (a *api) getInterval(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, a.ctrl.FetchInterval().String())
}

func (a *api) setInterval(c *gin.Context) {
	var s string
	if err := c.BindJSON(&s); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if d < MinFetchInterval {
		abort(c, http.StatusBadRequest, fmt.Errorf("interval must be at least %s, got %s", MinFetchInterval, d))
		return
	}

	a.ctrl.SetFetchInterval(d)
	a.conf.SetFetchInterval(d)
	if err := a.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set fetch interval to %s", d)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("set fetch interval to %s", d))
}

func (a *api) setAccount(c *gin.Context) {
	var account string
	if err := c.BindJSON(&account); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	if err := a.ctrl.SetAccount(account); err != nil {
		if errors.Is(err, provision.ErrIncomplete) {
			abort(c, http.StatusBadRequest, errors.New("account must not be empty"))
			return
		}
		logrus.Errorf("setAccount failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	a.conf.SetAccount(account)
	if err := a.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("now following %s", account))
}

func (a *api) getLastError(c *gin.Context) {
	e := a.ctrl.LastError()
	c.IndentedJSON(http.StatusOK, types.LastErrorInfo{Code: int(e), Message: e.String()})
}

func (a *api) clearLastError(c *gin.Context) {
	a.ctrl.ClearLastError()
	logrus.Info("cleared last error")
	c.IndentedJSON(http.StatusOK, "ok")
}

func (a *api) restartPortal(c *gin.Context) {
	err := a.ctrl.RestartPortal()
	switch {
	case err == nil:
	case errors.Is(err, provision.ErrAlreadyConnected), errors.Is(err, provision.ErrConnecting):
		abort(c, http.StatusConflict, err)
		return
	default:
		logrus.Errorf("restartPortal failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, "configuration portal is running")
}

func (a *api) getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func (a *api) streamEvents(c *gin.Context) {
	ch := a.hub.Subscribe()
	defer a.hub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	// send headers right away so clients see the stream open
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		}
	})
}
