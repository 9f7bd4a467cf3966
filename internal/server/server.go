package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"boardflow/internal/distribution"
	"boardflow/internal/docket"
	"boardflow/internal/domain"
	"boardflow/internal/engine"
	"boardflow/internal/repo"
	"boardflow/internal/schedule"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"disposition_conflict"`
	Message string         `json:"message" example:"hearing disposition is not held"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Boardflow API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Boardflow API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	e := cfg.Engine
	assigner := &schedule.Assigner{DB: e.DB, Repo: e.Repo, Config: e.Config, Logger: cfg.Logger, Now: e.Now}
	coordinator := &docket.Coordinator{Repo: e.Repo, Config: e.Config, Now: e.Now, Logger: cfg.Logger}

	registerDocs(router, basePath)
	registerHealth(group)
	registerAppeals(group, e)
	registerTasks(group, e)
	registerHearings(group, e)
	registerSchedule(group, assigner)
	registerDocket(group, coordinator)
	registerDistribution(group, e, cfg.Logger)
	registerCavcRemands(group, e)
	registerEvents(group, e)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"errors": verr.Errors})
	}
	var cae *schedule.CannotAssignJudgesError
	if errors.As(err, &cae) {
		return newAPIError(http.StatusConflict, "cannot_assign_judges", err.Error(), map[string]any{"remaining": cae.Remaining})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	switch {
	case errors.Is(err, engine.ErrDispositionNotHeld),
		errors.Is(err, engine.ErrDispositionNotCancelled),
		errors.Is(err, engine.ErrDispositionNotPostponed),
		errors.Is(err, engine.ErrDispositionNotNoShow):
		return newAPIError(http.StatusConflict, "disposition_conflict", err.Error(), nil)
	case errors.Is(err, engine.ErrHearingAssociationMissing),
		errors.Is(err, distribution.ErrEmptyAssigneePool),
		errors.Is(err, schedule.ErrHearingDaysNotAllocated),
		errors.Is(err, schedule.ErrNoJudgesProvided):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	case errors.Is(err, engine.ErrNoAssignee):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid task status transition"),
		strings.Contains(lowered, "already closed"),
		strings.Contains(lowered, "already established"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Boardflow API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAppeals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-appeal",
		Method:        http.MethodPost,
		Path:          "/appeals",
		Summary:       "Intake an appeal",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAppealRequest `json:"body"`
	}) (*struct {
		Body AppealResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.AppealCreateOptions{
			Docket:      input.Body.Docket,
			ReceiptDate: input.Body.ReceiptDate,
			AOD:         input.Body.AOD,
			CAVC:        input.Body.CAVC,
			Ready:       input.Body.Ready,
			ActorID:     actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.TiedJudgeID != nil {
			opts.TiedJudgeID = *input.Body.TiedJudgeID
		}
		if input.Body.RegionalOffice != nil {
			opts.RegionalOffice = *input.Body.RegionalOffice
		}
		a, err := e.CreateAppeal(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AppealResponse `json:"body"`
		}{Body: appealResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-appeal",
		Method:      http.MethodGet,
		Path:        "/appeals/{id}",
		Summary:     "Get appeal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body AppealResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetAppeal(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AppealResponse `json:"body"`
		}{Body: appealResponse(a)}, nil
	})

	type treeNode struct {
		Task     TaskResponse `json:"task"`
		Children []treeNode   `json:"children"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "appeal-task-tree",
		Method:      http.MethodGet,
		Path:        "/appeals/{id}/tasks",
		Summary:     "Appeal task tree",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []treeNode `json:"body"`
	}, error) {
		if _, err := e.Repo.GetAppeal(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		tasks, err := e.Repo.ListAppealTasks(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		children := map[string][]domain.Task{}
		var roots []domain.Task
		for _, t := range tasks {
			if t.ParentID != nil {
				children[*t.ParentID] = append(children[*t.ParentID], t)
			} else {
				roots = append(roots, t)
			}
		}
		var build func(domain.Task) treeNode
		build = func(t domain.Task) treeNode {
			kid := []treeNode{}
			for _, c := range children[t.ID] {
				kid = append(kid, build(c))
			}
			return treeNode{Task: taskResponse(t), Children: kid}
		}
		res := []treeNode{}
		for _, r := range roots {
			res = append(res, build(r))
		}
		return &struct {
			Body []treeNode `json:"body"`
		}{Body: res}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TaskCreateOptions{
			AppealID:     input.Body.AppealID,
			Type:         input.Body.Type,
			Instructions: input.Body.Instructions,
			AssignedByID: actorID,
			ActorID:      actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.ParentID != nil {
			opts.ParentID = *input.Body.ParentID
		}
		if input.Body.AssignedToID != nil {
			opts.AssignedToID = *input.Body.AssignedToID
		}
		if input.Body.AssignedToOrg != nil {
			opts.AssignedToOrg = *input.Body.AssignedToOrg
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TaskUpdateOptions{
			ID:           input.ID,
			AssignTo:     input.Body.AssignedToID,
			Instructions: input.Body.Instructions,
			ActorID:      actorID,
		}
		if input.Body.Status != nil {
			opts.Status = *input.Body.Status
		}
		t, err := e.UpdateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "place-task-on-hold",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/hold",
		Summary:     "Place task on a timed hold",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body TimedHoldRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Days <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "days must be positive", nil)
		}
		t, err := e.PlaceOnTimedHold(ctx, input.ID, input.Body.Days, input.Body.Instructions, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-disposition",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/disposition",
		Summary:     "Record hearing disposition",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body SetDispositionRequest `json:"body"`
	}) (*struct {
		Body HearingResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.SetDispositionOptions{
			TaskID:       input.ID,
			Disposition:  input.Body.Disposition,
			Instructions: input.Body.Instructions,
			ActorID:      actorID,
		}
		if input.Body.After != nil {
			opts.After = &engine.AfterDispositionUpdate{
				Action:                  input.Body.After.Action,
				NewHearingDayID:         input.Body.After.NewHearingDayID,
				NewScheduledTime:        input.Body.After.NewScheduledTime,
				WithAdminAction:         input.Body.After.WithAdminAction,
				AdminActionInstructions: input.Body.After.AdminActionInstructions,
			}
		}
		h, err := e.SetHearingDisposition(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HearingResponse `json:"body"`
		}{Body: hearingResponse(h)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-task-disposition",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/change-disposition",
		Summary:     "Route a disposition change to hearings management",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body ChangeDispositionRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CompleteWithChangeDisposition(ctx, input.ID, input.Body.Instructions, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-assign-tasks",
		Method:      http.MethodPost,
		Path:        "/tasks/bulk-assign",
		Summary:     "Bulk assign queue tasks to a member",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body BulkAssignRequest `json:"body"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		created, err := e.BulkAssign(ctx, engine.BulkAssignmentOptions{
			OrgName:        input.Body.Organization,
			TaskType:       input.Body.TaskType,
			AssignedToID:   input.Body.AssignedToID,
			AssignedByID:   actorID,
			Count:          input.Body.Count,
			RegionalOffice: input.Body.RegionalOffice,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(created)}, nil
	})
}

func registerHearings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "schedule-hearing",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/schedule",
		Summary:       "Schedule a hearing from a scheduling task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body ScheduleHearingRequest `json:"body"`
	}) (*struct {
		Body HearingResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.HearingDayID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "hearing_day_id is required", nil)
		}
		h, err := e.ScheduleHearing(ctx, engine.ScheduleHearingOptions{
			TaskID:               input.ID,
			HearingDayID:         input.Body.HearingDayID,
			ScheduledTime:        input.Body.ScheduledTime,
			EvidenceWindowWaived: input.Body.EvidenceWindowWaived,
			ActorID:              actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HearingResponse `json:"body"`
		}{Body: hearingResponse(h)}, nil
	})
}

func registerSchedule(api huma.API, assigner *schedule.Assigner) {
	huma.Register(api, huma.Operation{
		OperationID: "plan-judge-assignments",
		Method:      http.MethodGet,
		Path:        "/schedule-periods/{id}/assignments",
		Summary:     "Plan judge-to-day assignments",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []JudgeAssignmentResponse `json:"body"`
	}, error) {
		plan, err := assigner.Plan(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []JudgeAssignmentResponse `json:"body"`
		}{Body: mapAssignments(plan)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-judge-assignments",
		Method:      http.MethodPost,
		Path:        "/schedule-periods/{id}/assignments",
		Summary:     "Plan and persist judge-to-day assignments",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []JudgeAssignmentResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plan, err := assigner.Plan(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := assigner.Apply(ctx, input.ID, plan, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []JudgeAssignmentResponse `json:"body"`
		}{Body: mapAssignments(plan)}, nil
	})
}

func registerDocket(api huma.API, coordinator *docket.Coordinator) {
	huma.Register(api, huma.Operation{
		OperationID: "docket-proportions",
		Method:      http.MethodGet,
		Path:        "/docket/proportions",
		Summary:     "Docket proportions for the next distribution",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProportionsResponse `json:"body"`
	}, error) {
		proportions, err := coordinator.DocketProportions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		batch, err := coordinator.TotalBatchSize(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		priority, err := coordinator.PriorityCount(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProportionsResponse `json:"body"`
		}{Body: ProportionsResponse{
			Proportions: proportions,
			BatchSize:   batch,
			Priority:    priority,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "docket-upcoming",
		Method:      http.MethodGet,
		Path:        "/docket/upcoming",
		Summary:     "Hearing-docket appeals coming into range",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Days int `query:"days" default:"365"`
	}) (*struct {
		Body []AppealResponse `json:"body"`
	}, error) {
		appeals, err := coordinator.UpcomingAppealsInRange(ctx, input.Days)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]AppealResponse, 0, len(appeals))
		for _, a := range appeals {
			out = append(out, appealResponse(a))
		}
		return &struct {
			Body []AppealResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "docket-mark-in-range",
		Method:      http.MethodPost,
		Path:        "/docket/mark-in-range",
		Summary:     "Stamp appeals with today's docket range date",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Body MarkInRangeRequest `json:"body"`
	}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if len(input.Body.AppealIDs) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "appeal_ids is required", nil)
		}
		if err := coordinator.MarkInRange(ctx, input.Body.AppealIDs); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: map[string]int{"marked": len(input.Body.AppealIDs)}}, nil
	})
}

func registerDistribution(api huma.API, e engine.Engine, logger *slog.Logger) {
	distributors := map[string]distribution.Distributor{}
	if e.Config != nil {
		for name, org := range e.Config.Organizations {
			distributors[name] = distribution.ForOrg(e.DB, name, org.Distributor, logger)
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "next-assignee",
		Method:      http.MethodPost,
		Path:        "/organizations/{name}/next-assignee",
		Summary:     "Pick the next assignee for a task entering the queue",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
		Body struct {
			AppealID string `json:"appeal_id,omitempty"`
			TaskType string `json:"task_type"`
		} `json:"body"`
	}) (*struct {
		Body NextAssigneeResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		d, ok := distributors[input.Name]
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "unknown organization "+input.Name, nil)
		}
		u, err := d.NextAssignee(ctx, distribution.Request{
			AppealID: input.Body.AppealID,
			TaskType: input.Body.TaskType,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body NextAssigneeResponse `json:"body"`
		}{Body: NextAssigneeResponse{
			UserID: u.ID,
			Handle: u.Handle,
			Name:   u.DisplayName(),
		}}, nil
	})
}

func registerCavcRemands(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-cavc-remand",
		Method:        http.MethodPost,
		Path:          "/cavc-remands",
		Summary:       "Record a court decision",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateCavcRemandRequest `json:"body"`
	}) (*struct {
		Body CavcRemandResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCavcRemand(ctx, engine.CavcRemandOptions{
			AppealID:         input.Body.AppealID,
			CavcDocketNumber: input.Body.CavcDocketNumber,
			DecisionType:     input.Body.DecisionType,
			RemandSubtype:    input.Body.RemandSubtype,
			JudgeName:        input.Body.JudgeName,
			DecisionDate:     input.Body.DecisionDate,
			JudgementDate:    input.Body.JudgementDate,
			MandateDate:      input.Body.MandateDate,
			DecisionIssueIDs: input.Body.DecisionIssueIDs,
			Instructions:     input.Body.Instructions,
			CreatedByID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CavcRemandResponse `json:"body"`
		}{Body: cavcRemandResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-cavc-remand",
		Method:      http.MethodPost,
		Path:        "/cavc-remands/{id}/complete",
		Summary:     "Supply judgement and mandate dates",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                    `path:"id"`
		Body CompleteCavcRemandRequest `json:"body"`
	}) (*struct {
		Body CavcRemandResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CompleteCavcRemand(ctx, input.ID, input.Body.JudgementDate, input.Body.MandateDate, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CavcRemandResponse `json:"body"`
		}{Body: cavcRemandResponse(c)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List audit events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AppealID string `query:"appeal_id"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		items, err := e.Repo.ListEvents(ctx, input.AppealID, limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}
