package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/netlens/internal/observe"
	"github.com/dgnsrekt/netlens/internal/session"
	"github.com/dgnsrekt/netlens/internal/traffic"
)

func registerWebSocketHandlers(api huma.API, svc Service) {
	type connectionsOutput struct {
		Body struct {
			Connections []session.ConnectionRecord `json:"connections"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-websockets", Method: http.MethodGet, Path: "/api/v1/pages/{page_id}/websockets", Summary: "List captured WebSocket connections", Tags: []string{"WebSocket"}},
		func(ctx context.Context, input *pageScopedInput) (*connectionsOutput, error) {
			records, err := svc.Connections(input.PageID, session.Scope(input.Scope))
			if err != nil {
				return nil, mapErr(err)
			}
			out := &connectionsOutput{}
			out.Body.Connections = records
			return out, nil
		})

	type connectionByIDInput struct {
		PageID string `path:"page_id"`
		ID     int64  `path:"id"`
	}
	type connectionOutput struct {
		Body session.ConnectionRecord
	}
	huma.Register(api, huma.Operation{OperationID: "get-websocket", Method: http.MethodGet, Path: "/api/v1/pages/{page_id}/websockets/{id}", Summary: "Get one WebSocket connection by stable ID", Tags: []string{"WebSocket"}},
		func(ctx context.Context, input *connectionByIDInput) (*connectionOutput, error) {
			record, err := svc.ConnectionByID(input.PageID, input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &connectionOutput{Body: record}, nil
		})

	type analysisInput struct {
		PageID string `path:"page_id"`
		ID     int64  `path:"id"`
		Fresh  bool   `query:"fresh" default:"false" doc:"Recompute instead of serving the cached summary."`
		Format string `query:"format" enum:"json,table" default:"json"`
	}
	type analysisOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{OperationID: "analyze-websocket", Method: http.MethodGet, Path: "/api/v1/pages/{page_id}/websockets/{id}/analysis", Summary: "Fingerprint-group the connection's frames", Tags: []string{"Traffic"}},
		func(ctx context.Context, input *analysisInput) (*analysisOutput, error) {
			summary, err := svc.Analyze(input.PageID, input.ID, input.Fresh)
			if err != nil {
				return nil, mapErr(err)
			}
			if input.Format == "table" {
				return &analysisOutput{
					ContentType: "text/plain; charset=utf-8",
					Body:        []byte(traffic.RenderTable(summary)),
				}, nil
			}
			data, err := json.Marshal(summary)
			if err != nil {
				return nil, huma.Error500InternalServerError(err.Error())
			}
			return &analysisOutput{ContentType: "application/json", Body: data}, nil
		})

	type groupInput struct {
		PageID  string `path:"page_id"`
		ID      int64  `path:"id"`
		GroupID string `path:"group_id"`
	}
	type groupOutput struct {
		Body struct {
			ConnectionID int64           `json:"connection_id"`
			GroupID      string          `json:"group_id"`
			Frames       []observe.Frame `json:"frames"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-websocket-group", Method: http.MethodGet, Path: "/api/v1/pages/{page_id}/websockets/{id}/groups/{group_id}", Summary: "List the frames behind one traffic group", Tags: []string{"Traffic"}},
		func(ctx context.Context, input *groupInput) (*groupOutput, error) {
			frames, err := svc.GroupFrames(input.PageID, input.ID, input.GroupID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &groupOutput{}
			out.Body.ConnectionID = input.ID
			out.Body.GroupID = input.GroupID
			out.Body.Frames = frames
			return out, nil
		})
}
