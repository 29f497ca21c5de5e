// Package api exposes the collected traffic over a read-only HTTP surface.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/netlens/internal/observe"
	"github.com/dgnsrekt/netlens/internal/session"
	"github.com/dgnsrekt/netlens/internal/traffic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Service is the query surface the handlers consume. *session.Context
// implements it.
type Service interface {
	Pages() []session.PageInfo
	Requests(pageID string, scope session.Scope) ([]session.RequestRecord, error)
	RequestByID(pageID string, id int64) (session.RequestRecord, error)
	ConsoleMessages(pageID string, scope session.Scope) ([]session.ConsoleRecord, error)
	Connections(pageID string, scope session.Scope) ([]session.ConnectionRecord, error)
	ConnectionByID(pageID string, id int64) (session.ConnectionRecord, error)
	Analyze(pageID string, id int64, fresh bool) (traffic.Summary, error)
	GroupFrames(pageID string, id int64, groupID string) ([]observe.Frame, error)
}

type pageScopedInput struct {
	PageID string `path:"page_id"`
	Scope  string `query:"scope" enum:"current,all" default:"current" doc:"Epoch window: the current navigation only, or all retained epochs oldest first."`
}

func NewServer(svc Service) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("NetLens Observer API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	registerHealthHandlers(api)
	registerPageHandlers(api, svc)
	registerNetworkHandlers(api, svc)
	registerConsoleHandlers(api, svc)
	registerWebSocketHandlers(api, svc)

	return router
}

func registerHealthHandlers(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *observe.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case observe.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case observe.CodeNotTracked, observe.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case observe.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
