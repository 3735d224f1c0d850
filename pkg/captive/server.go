// Package captive serves the configuration portal: the local web page where
// a user enters network credentials and the account to follow, plus the DNS
// redirection that makes clients land on it.
package captive

import (
	"embed"
	"errors"
	"html/template"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/followd/pkg/provision"
	"github.com/charlie0129/followd/pkg/types"
	"github.com/charlie0129/followd/pkg/utils/ginlog"
)

//go:embed assets/*.html
var assets embed.FS

var (
	indexPage     = mustReadAsset("assets/index.html")
	submittedTmpl = template.Must(template.ParseFS(assets, "assets/submitted.html"))
)

func mustReadAsset(name string) []byte {
	b, err := assets.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return b
}

// Backend receives submissions and reports status. *provision.Manager
// implements it.
type Backend interface {
	Submit(creds types.Credentials) error
	Status() types.Status
}

// Server is the HTTP side of the portal.
type Server struct {
	backend Backend

	mu     sync.RWMutex
	apAddr net.IP
}

func NewServer(backend Backend) *Server {
	return &Server{backend: backend}
}

// SetAPAddress sets the address unknown paths are redirected to.
func (s *Server) SetAPAddress(ip net.IP) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apAddr = ip
}

func (s *Server) redirectTarget() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.apAddr == nil {
		return "/"
	}
	return "http://" + s.apAddr.String()
}

// Handler returns the routes of the configuration page.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginlog.Middleware(logrus.WithField("component", "portal")))
	router.SetHTMLTemplate(submittedTmpl)

	router.GET("/", s.getIndex)
	router.POST("/submit", s.postSubmit)
	router.GET("/status", s.getStatus)
	router.NoRoute(s.redirect)

	return router
}

func (s *Server) getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexPage)
}

func (s *Server) postSubmit(c *gin.Context) {
	creds := types.Credentials{
		SSID:     c.PostForm("wifi_ssid"),
		Password: c.PostForm("wifi_password"),
		Account:  c.PostForm("instagram_username"),
	}

	err := s.backend.Submit(creds)
	switch {
	case err == nil:
	case errors.Is(err, provision.ErrIncomplete):
		c.String(http.StatusBadRequest, "Missing form fields.")
		return
	case errors.Is(err, provision.ErrNotProvisioning):
		c.String(http.StatusConflict, "Configuration portal is not active.")
		return
	default:
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	c.HTML(http.StatusOK, "submitted.html", creds)
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.backend.Status())
}

func (s *Server) redirect(c *gin.Context) {
	c.Header("Location", s.redirectTarget())
	c.String(http.StatusFound, "")
}
