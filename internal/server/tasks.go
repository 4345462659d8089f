package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"choreline/internal/domain"
	"choreline/internal/engine"
	"choreline/internal/repo"
)

type taskPath struct {
	ID int64 `path:"id"`
}

type taskViewOutput struct {
	Body TaskResponse `json:"body"`
}

type taskOutput struct {
	Body domain.Task `json:"body"`
}

// taskAction registers a bodyless POST /tasks/{id}/<verb> that returns the task.
func taskAction(api huma.API, id, verb, summary string, fn func(ctx context.Context, taskID int64, actorID *int64) (domain.Task, error)) {
	huma.Register(api, huma.Operation{
		OperationID: id,
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/" + verb,
		Summary:     summary,
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *taskPath) (*taskOutput, error) {
		t, err := fn(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*taskViewOutput, error) {
		opts := engine.TaskCreateOptions{
			Title:           input.Body.Title,
			Type:            domain.TaskType(input.Body.TaskType),
			IntervalDays:    input.Body.IntervalDays,
			Points:          input.Body.Points,
			RotationUserIDs: input.Body.RotationUserIDs,
			FirstDueAt:      input.Body.FirstDueAt,
			ActorID:         actorFromContext(ctx),
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		view, err := e.DescribeTask(ctx, t.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskViewOutput{Body: taskResponse(view)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		IncludeArchived bool   `query:"include_archived"`
		TaskType        string `query:"task_type" enum:"rotating,recurring_unassigned,one_off"`
	}) (*struct {
		Body TaskList `json:"body"`
	}, error) {
		views, err := e.ListTaskViews(ctx, repo.TaskFilters{IncludeArchived: input.IncludeArchived, Type: input.TaskType})
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]TaskResponse, 0, len(views))
		for _, v := range views {
			items = append(items, taskResponse(v))
		}
		return &struct {
			Body TaskList `json:"body"`
		}{Body: TaskList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*taskViewOutput, error) {
		view, err := e.DescribeTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskViewOutput{Body: taskResponse(view)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Edit task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*taskOutput, error) {
		t, err := e.EditTask(ctx, engine.TaskEditOptions{
			ID:              input.ID,
			Title:           input.Body.Title,
			Description:     input.Body.Description,
			Points:          input.Body.Points,
			IntervalDays:    input.Body.IntervalDays,
			RotationUserIDs: input.Body.RotationUserIDs,
			ActorID:         actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task with its assignments",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		if err := e.DeleteTask(ctx, input.ID, actorFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	taskAction(api, "archive-task", "archive", "Archive task", e.ArchiveTask)
	taskAction(api, "unarchive-task", "unarchive", "Unarchive task", e.UnarchiveTask)
	taskAction(api, "reset-task", "reset", "Restart the interval from now", e.ResetTask)
	taskAction(api, "escalate-task", "escalate", "Bump escalation level", e.Escalate)

	huma.Register(api, huma.Operation{
		OperationID: "vote-urgency",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/votes",
		Summary:     "Vote urgency up or down",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64       `path:"id"`
		Body VoteRequest `json:"body"`
	}) (*struct {
		Body VoteResponse `json:"body"`
	}, error) {
		direction := 1
		if input.Body.Direction == "down" {
			direction = -1
		}
		t, logID, err := e.VoteUrgency(ctx, input.ID, direction, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body VoteResponse `json:"body"`
		}{Body: VoteResponse{Task: t, LogID: logID}}, nil
	})

	blacklist := func(method string, excluded bool, id, summary string) {
		huma.Register(api, huma.Operation{
			OperationID: id,
			Method:      method,
			Path:        "/tasks/{id}/blacklist/{user_id}",
			Summary:     summary,
			Errors:      []int{http.StatusNotFound},
		}, func(ctx context.Context, input *struct {
			ID     int64 `path:"id"`
			UserID int64 `path:"user_id"`
		}) (*taskOutput, error) {
			t, err := e.SetBlacklist(ctx, engine.BlacklistOptions{
				TaskID:   input.ID,
				UserID:   input.UserID,
				Excluded: excluded,
				ActorID:  actorFromContext(ctx),
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &taskOutput{Body: t}, nil
		})
	}
	blacklist(http.MethodPut, true, "blacklist-user", "Exclude a user from selection")
	blacklist(http.MethodDelete, false, "unblacklist-user", "Allow a user to be selected again")

	huma.Register(api, huma.Operation{
		OperationID: "next-assignee",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/next",
		Summary:     "Preview who the task goes to next",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body engine.AssigneePreview `json:"body"`
	}, error) {
		next, err := e.NextAssignee(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.AssigneePreview `json:"body"`
		}{Body: next}, nil
	})
}

func registerRotation(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-rotation",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/rotation",
		Summary:     "Rotation order, skip tokens and countdown",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body engine.RotationState `json:"body"`
	}, error) {
		st, err := e.Rotation(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.RotationState `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "swap-rotation",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/rotation/swap",
		Summary:     "Swap two members, permanently or for one cycle",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   int64       `path:"id"`
		Body SwapRequest `json:"body"`
	}) (*struct {
		Body engine.SwapResult `json:"body"`
	}, error) {
		res, err := e.SwapRotation(ctx, engine.SwapOptions{
			TaskID:   input.ID,
			UserA:    input.Body.UserA,
			UserB:    input.Body.UserB,
			OneCycle: input.Body.OneCycle,
			ActorID:  actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SwapResult `json:"body"`
		}{Body: res}, nil
	})
}
