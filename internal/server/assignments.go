package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"choreline/internal/engine"
	"choreline/internal/repo"
)

type assignmentOutput struct {
	Body AssignmentResponse `json:"body"`
}

// userOrActor picks the explicit user of a request, falling back to the caller.
func userOrActor(ctx context.Context, body *UserRequest) (int64, error) {
	if body != nil && body.UserID != nil {
		return *body.UserID, nil
	}
	if actor := actorFromContext(ctx); actor != nil {
		return *actor, nil
	}
	return 0, newAPIError(http.StatusBadRequest, "invalid_argument", "user_id is required when not acting as a user", nil)
}

func registerAssignments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-assignments",
		Method:      http.MethodGet,
		Path:        "/assignments",
		Summary:     "List assignments",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		UserID int64  `query:"user_id"`
		TaskID int64  `query:"task_id"`
		Status string `query:"status" enum:"pending,done"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body AssignmentList `json:"body"`
	}, error) {
		items, err := e.ListAssignments(ctx, repo.AssignmentFilters{
			UserID: input.UserID,
			TaskID: input.TaskID,
			Status: input.Status,
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentList `json:"body"`
		}{Body: AssignmentList{Items: nonNil(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-assignment",
		Method:      http.MethodGet,
		Path:        "/assignments/{id}",
		Summary:     "Get assignment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*assignmentOutput, error) {
		a, err := e.GetAssignment(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &assignmentOutput{Body: AssignmentResponse{Assignment: a}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "assign-task",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/assign",
		Summary:       "Assign task to a user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   int64         `path:"id"`
		Body AssignRequest `json:"body"`
	}) (*assignmentOutput, error) {
		a, logID, err := e.Assign(ctx, engine.AssignOptions{
			TaskID:  input.ID,
			UserID:  input.Body.UserID,
			DueDays: input.Body.DueDays,
			ActorID: actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &assignmentOutput{Body: AssignmentResponse{Assignment: a, LogID: logID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/claim",
		Summary:     "Claim the open unassigned occurrence",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   int64        `path:"id"`
		Body *UserRequest `json:"body" required:"false"`
	}) (*assignmentOutput, error) {
		userID, err := userOrActor(ctx, input.Body)
		if err != nil {
			return nil, err
		}
		a, logID, err := e.Claim(ctx, input.ID, userID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &assignmentOutput{Body: AssignmentResponse{Assignment: a, LogID: logID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-done",
		Method:      http.MethodPost,
		Path:        "/assignments/{id}/done",
		Summary:     "Mark assignment done and plan the next occurrence",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body engine.MarkDoneResult `json:"body"`
	}, error) {
		res, err := e.MarkDone(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.MarkDoneResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "switch-assignment",
		Method:      http.MethodPost,
		Path:        "/assignments/{id}/switch",
		Summary:     "Hand an open assignment to someone else temporarily",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64         `path:"id"`
		Body SwitchRequest `json:"body"`
	}) (*assignmentOutput, error) {
		a, logID, err := e.SwitchTemporarily(ctx, engine.SwitchOptions{
			AssignmentID: input.ID,
			UserID:       input.Body.UserID,
			Until:        input.Body.Until,
			ActorID:      actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &assignmentOutput{Body: AssignmentResponse{Assignment: a, LogID: logID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cover-assignment",
		Method:      http.MethodPost,
		Path:        "/assignments/{id}/cover",
		Summary:     "Cover someone's turn and earn a skip",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   int64        `path:"id"`
		Body *UserRequest `json:"body" required:"false"`
	}) (*assignmentOutput, error) {
		userID, err := userOrActor(ctx, input.Body)
		if err != nil {
			return nil, err
		}
		a, err := e.Cover(ctx, input.ID, userID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &assignmentOutput{Body: AssignmentResponse{Assignment: a}}, nil
	})
}
