package server

import (
	"context"
	"net/http"
	"path"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"choreline/internal/domain"
	"choreline/internal/engine"
	"choreline/internal/repo"
	"choreline/internal/uploads"
)

type userPath struct {
	ID int64 `path:"id"`
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, err := e.CreateUser(ctx, engine.UserCreateOptions{
			Name:    input.Body.Name,
			Active:  input.Body.Active,
			ActorID: actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Active string `query:"active" doc:"Filter by active flag (true or false)"`
	}) (*struct {
		Body UserList `json:"body"`
	}, error) {
		var f repo.UserFilters
		if input.Active != "" {
			active, err := strconv.ParseBool(input.Active)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "invalid_argument", "active must be true or false", nil)
			}
			f.Active = &active
		}
		users, err := e.Repo.ListUsers(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserList `json:"body"`
		}{Body: UserList{Items: nonNil(users)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Get user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *userPath) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, err := e.Repo.GetUser(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPatch,
		Path:        "/users/{id}",
		Summary:     "Update user",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id"`
		Body UpdateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, err := e.UpdateUser(ctx, engine.UserUpdateOptions{
			ID:      input.ID,
			Name:    input.Body.Name,
			Active:  input.Body.Active,
			ActorID: actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "adjust-credits",
		Method:      http.MethodPost,
		Path:        "/users/{id}/credits",
		Summary:     "Add or subtract credits",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64         `path:"id"`
		Body CreditRequest `json:"body"`
	}) (*struct {
		Body CreditResponse `json:"body"`
	}, error) {
		u, logID, err := e.AdjustCredit(ctx, engine.CreditOptions{
			UserID:  input.ID,
			Delta:   input.Body.Delta,
			Reason:  input.Body.Reason,
			TaskID:  input.Body.TaskID,
			ActorID: actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreditResponse `json:"body"`
		}{Body: CreditResponse{User: u, LogID: logID}}, nil
	})
}

// registerPhotoUpload serves the multipart endpoint outside huma; the stored
// file is exposed under uploads.URLPrefix.
func registerPhotoUpload(r chi.Router, basePath string, e engine.Engine, store uploads.Store) {
	r.Post(path.Join(basePath, "users/{id}/photo"), func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
		if err != nil || id <= 0 {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "invalid_argument", "invalid user id", nil))
			return
		}
		if store.Dir == "" {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "uploads are not configured", nil))
			return
		}
		if store.MaxBytes > 0 {
			req.Body = http.MaxBytesReader(w, req.Body, store.MaxBytes+1<<20)
		}
		file, header, err := req.FormFile("photo")
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "invalid_argument", "multipart field photo is required", nil))
			return
		}
		defer file.Close()
		if _, err := e.Repo.GetUser(req.Context(), id); err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		url, err := store.Save(header.Filename, file)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		u, err := e.SetUserPhoto(req.Context(), id, url, actorFromContext(req.Context()))
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		respondJSON(w, http.StatusOK, u)
	})
}
