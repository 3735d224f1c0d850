package daemon

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/followd/pkg/utils/ginlog"
)

func setupRoutes(a *api) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginlog.Middleware(logrus.StandardLogger()))
	router.GET("/config", a.getConfig)
	router.GET("/status", a.getStatus)
	router.GET("/count", a.getCount)
	router.GET("/interval", a.getInterval)
	router.PUT("/interval", a.setInterval)
	router.PUT("/account", a.setAccount)
	router.GET("/last-error", a.getLastError)
	router.DELETE("/last-error", a.clearLastError)
	router.POST("/portal/restart", a.restartPortal)
	router.GET("/events", a.streamEvents)
	router.GET("/version", a.getVersion)
	if a.metrics != nil {
		router.GET("/metrics", gin.WrapH(a.metrics))
	}

	return router
}
