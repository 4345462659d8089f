package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"choreline/internal/engine"
	"choreline/internal/repo"
)

func registerLog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-log",
		Method:      http.MethodGet,
		Path:        "/log",
		Summary:     "Recent log entries, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Action   string `query:"action"`
		TaskID   int64  `query:"task_id"`
		BeforeID int64  `query:"before_id"`
		Limit    int    `query:"limit"`
	}) (*struct {
		Body LogList `json:"body"`
	}, error) {
		entries, err := e.ListLog(ctx, repo.LogFilters{
			Action:   input.Action,
			TaskID:   input.TaskID,
			BeforeID: input.BeforeID,
			Limit:    input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]LogEntryResponse, 0, len(entries))
		for _, l := range entries {
			items = append(items, logEntryResponse(l))
		}
		return &struct {
			Body LogList `json:"body"`
		}{Body: LogList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reverse-log-entry",
		Method:      http.MethodPost,
		Path:        "/log/{id}/reverse",
		Summary:     "Undo a logged action",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body engine.ReverseResult `json:"body"`
	}, error) {
		res, err := e.Reverse(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ReverseResult `json:"body"`
		}{Body: res}, nil
	})
}
