// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package httpapi serves health, readiness, metrics and bridge status
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Thermoquad/bmsbridge/internal/config"
	"github.com/Thermoquad/bmsbridge/internal/session"
	"github.com/Thermoquad/bmsbridge/internal/sink"
	"github.com/Thermoquad/bmsbridge/pkg/pace"
)

// Link reports session state; *session.Session implements it
type Link interface {
	State() session.State
	Stats() pace.Statistics
}

// Status is the /api/v1/status response
type Status struct {
	Link       string                      `json:"link"`
	Online     bool                        `json:"online"`
	Identity   pace.Identity               `json:"identity"`
	Records    map[string]sink.RecordEntry `json:"records"`
	Statistics pace.Statistics             `json:"statistics"`
	UpdatedAt  time.Time                   `json:"updated_at"`
}

// Server wraps the HTTP server
type Server struct {
	srv *http.Server
}

// New creates the gin router and HTTP server. metricsHandler may be nil to
// leave metrics unexposed.
func New(cfg config.HTTPConfig, metricsPath string, metricsHandler http.Handler, link Link, memory *sink.Memory) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if link != nil && link.State() == session.Connected {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if metricsHandler != nil {
		r.GET(metricsPath, gin.WrapH(metricsHandler))
	}

	api := r.Group("/api/v1")
	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, status(link, memory))
	})
	api.GET("/records/:kind", func(c *gin.Context) {
		if memory == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no records"})
			return
		}
		entry, ok := memory.State().Records[c.Param("kind")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no record of kind " + c.Param("kind")})
			return
		}
		c.JSON(http.StatusOK, entry)
	})

	return &Server{srv: &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}}
}

func status(link Link, memory *sink.Memory) Status {
	st := Status{Link: session.Disconnected.String(), Records: map[string]sink.RecordEntry{}}
	if link != nil {
		st.Link = link.State().String()
		st.Statistics = link.Stats()
	}
	if memory != nil {
		m := memory.State()
		st.Online = m.Online
		st.Identity = m.Identity
		st.Records = m.Records
		st.UpdatedAt = m.UpdatedAt
	}
	return st
}

// Start serves until Shutdown (blocking)
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
