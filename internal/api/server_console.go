package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/netlens/internal/session"
)

func registerConsoleHandlers(api huma.API, svc Service) {
	type consoleOutput struct {
		Body struct {
			Messages []session.ConsoleRecord `json:"messages"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-console", Method: http.MethodGet, Path: "/api/v1/pages/{page_id}/console", Summary: "List captured console messages", Tags: []string{"Console"}},
		func(ctx context.Context, input *pageScopedInput) (*consoleOutput, error) {
			records, err := svc.ConsoleMessages(input.PageID, session.Scope(input.Scope))
			if err != nil {
				return nil, mapErr(err)
			}
			out := &consoleOutput{}
			out.Body.Messages = records
			return out, nil
		})
}
