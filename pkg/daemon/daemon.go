package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/followd/pkg/captive"
	"github.com/charlie0129/followd/pkg/config"
	"github.com/charlie0129/followd/pkg/events"
	"github.com/charlie0129/followd/pkg/fetch"
	"github.com/charlie0129/followd/pkg/metrics"
	"github.com/charlie0129/followd/pkg/prefs"
	"github.com/charlie0129/followd/pkg/provision"
	"github.com/charlie0129/followd/pkg/types"
	"github.com/charlie0129/followd/pkg/wifi"
)

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	store, err := prefs.Open(conf.CredentialStore())
	if err != nil {
		logrus.Fatalf("failed to open credential store: %v", err)
	}

	radio, err := wifi.New(conf.Interface())
	if err != nil {
		logrus.Fatalf("failed to connect to NetworkManager: %v", err)
	}

	fetcher := fetch.NewClient(conf.FetchHost(), conf.FetchPort(), conf.InsecureTLS(), conf.FetchTimeout(), conf.MaxCount())
	hub := events.NewEventHub()

	var m *metrics.Metrics
	mgr := provision.New(provision.Options{
		Store:                  store,
		Radio:                  radio,
		Fetcher:                fetcher,
		Interval:               conf.FetchInterval(),
		DefaultAccount:         conf.Account(),
		RestartPortalOnFailure: conf.RestartPortalOnFailure(),
		OnPhaseChange: func(from, to types.Phase) {
			hub.Publish(events.PhaseChange, events.PhaseChangeEvent{
				From: string(from),
				To:   string(to),
				Ts:   time.Now().Unix(),
			})
		},
		OnError: func(kind types.ErrorKind) {
			m.ObserveError(kind)
		},
	})
	m = metrics.New(mgr)
	mgr.OnFollowerCountUpdate(func(count int) {
		m.ObserveUpdate()
		hub.Publish(events.FollowerCount, events.FollowerCountEvent{
			Account: mgr.Account(),
			Count:   count,
			Ts:      time.Now().Unix(),
		})
	})

	portal := captive.NewPortal(captive.Options{
		AP:       radio,
		SSID:     conf.APSSID(),
		Password: conf.APPassword(),
		HTTPAddr: conf.PortalAddr(),
		DNSAddr:  conf.DNSAddr(),
	}, mgr)
	mgr.SetPortal(portal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			mgr.SetFetchInterval(conf.FetchInterval())
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	var bridge *events.MQTTBridge
	if broker := conf.MQTTBroker(); broker != "" {
		bridge, err = events.DialMQTT(broker, conf.MQTTTopic())
		if err != nil {
			logrus.Errorf("mqtt bridge disabled: %v", err)
		} else {
			go bridge.Run(ctx, hub)
		}
	}

	router := setupRoutes(&api{
		ctrl:    mgr,
		conf:    conf,
		hub:     hub,
		metrics: m.Handler(),
		localIP: radio.LocalIP,
	})
	srv := &http.Server{
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// A socket left over from a crash makes Listen fail.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("failed to remove stale socket %s: %v", unixSocketPath, err)
	}
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	loopDone := &sync.WaitGroup{}
	loopDone.Add(1)
	go func() {
		defer loopDone.Done()
		logrus.Debugln("main loop starts")
		runLoop(ctx, mgr, tickInterval)
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	cancel()
	loopDone.Wait()

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	logrus.Info("stopping configuration portal")
	mgr.Shutdown()

	if bridge != nil {
		bridge.Close()
	}

	logrus.Info("closing credential store")
	if err := store.Close(); err != nil {
		logrus.Errorf("failed to close credential store: %v", err)
	}

	if err := radio.Close(); err != nil {
		logrus.Errorf("failed to close system bus connection: %v", err)
	}

	logrus.Info("exiting")
	return nil
}
