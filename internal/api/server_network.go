package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/netlens/internal/session"
)

func registerNetworkHandlers(api huma.API, svc Service) {
	type requestsOutput struct {
		Body struct {
			Requests []session.RequestRecord `json:"requests"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-requests", Method: http.MethodGet, Path: "/api/v1/pages/{page_id}/requests", Summary: "List captured network requests", Tags: []string{"Network"}},
		func(ctx context.Context, input *pageScopedInput) (*requestsOutput, error) {
			records, err := svc.Requests(input.PageID, session.Scope(input.Scope))
			if err != nil {
				return nil, mapErr(err)
			}
			out := &requestsOutput{}
			out.Body.Requests = records
			return out, nil
		})

	type requestByIDInput struct {
		PageID string `path:"page_id"`
		ID     int64  `path:"id"`
	}
	type requestOutput struct {
		Body session.RequestRecord
	}
	huma.Register(api, huma.Operation{OperationID: "get-request", Method: http.MethodGet, Path: "/api/v1/pages/{page_id}/requests/{id}", Summary: "Get one network request by stable ID", Tags: []string{"Network"}},
		func(ctx context.Context, input *requestByIDInput) (*requestOutput, error) {
			record, err := svc.RequestByID(input.PageID, input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &requestOutput{Body: record}, nil
		})
}
