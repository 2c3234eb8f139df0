package admin

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/danmuck/hostkernel/internal/auth"
	"github.com/danmuck/hostkernel/internal/state"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type serviceInfo struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Restarts  int    `json:"restarts"`
	LastError string `json:"last_error,omitempty"`
}

type stateMessage struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

func (s *Service) registerRoutes() {
	r := s.router

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"app":     s.app.ID(),
			"phase":   s.app.Phase(),
			"version": version,
		})
	})
	r.GET("/live", gin.WrapF(s.health.LiveEndpoint))
	r.GET("/ready", gin.WrapF(s.health.ReadyEndpoint))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.app.Metrics().Gatherer(), promhttp.HandlerOpts{})))

	r.GET("/services", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"services": s.listServices()})
	})
	r.GET("/plugins", func(c *gin.Context) {
		if s.catalog == nil {
			c.JSON(http.StatusOK, gin.H{"plugins": []any{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"plugins": s.catalog.Metadata()})
	})
	r.GET("/agents", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"agents": s.agentNames()})
	})

	r.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"state": s.app.Store().Serialize()})
	})
	r.GET("/state/:name", func(c *gin.Context) {
		name := c.Param("name")
		value, err := s.app.Store().SerializeSlice(name)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stateMessage{Name: name, Value: value})
	})
	r.GET("/state/:name/watch", s.watchState)

	r.POST("/shutdown", auth.Require(auth.StaticToken{Token: s.cfg.Token}), func(c *gin.Context) {
		s.logger.Warn().Str("client_ip", c.ClientIP()).Msg("admin shutdown requested")
		c.JSON(http.StatusAccepted, gin.H{"status": "shutting down"})
		s.app.Shutdown()
	})
}

func (s *Service) listServices() []serviceInfo {
	statuses := s.app.ServiceStatuses()
	list := make([]serviceInfo, 0, len(statuses))
	for name, st := range statuses {
		list = append(list, serviceInfo{
			Name:      name,
			State:     st.State,
			Restarts:  st.Restarts,
			LastError: st.LastError,
		})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// watchState streams the named slice over a websocket: the current value
// first, then the latest value after each mutation.
func (s *Service) watchState(c *gin.Context) {
	name := c.Param("name")
	store := s.app.Store()
	if _, err := store.Lookup(name); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("slice", name).Msg("admin.Service.watchState upgrade failed")
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stop := context.AfterFunc(s.app.Context(), cancel)
	defer stop()

	// The client only sends close frames; any read error ends the stream.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	seq, err := store.Watch(ctx, name)
	if err != nil {
		return
	}
	s.logger.Debug().Str("slice", name).Msg("admin.Service.watchState open")
	for range seq {
		value, err := store.SerializeSlice(name)
		if err != nil {
			return
		}
		if err := ws.WriteJSON(stateMessage{Name: name, Value: value}); err != nil {
			s.logger.Debug().Err(err).Str("slice", name).Msg("admin.Service.watchState write failed")
			return
		}
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func statusFor(err error) int {
	if errors.Is(err, state.ErrSliceNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
