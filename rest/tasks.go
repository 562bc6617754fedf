package rest

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"bitbucket.org/kleinnic74/pinphotos/rest/cursor"
	"bitbucket.org/kleinnic74/pinphotos/tasks"
)

type TaskHandler struct {
	executor tasks.TaskExecutor
}

func NewTaskHandler(executor tasks.TaskExecutor) *TaskHandler {
	return &TaskHandler{executor: executor}
}

func (h *TaskHandler) InitRoutes(r *mux.Router) {
	r.HandleFunc("/tasks", h.listTasks).Methods(http.MethodGet)
}

// listTasks lists the known executions, ?status=running,pending keeps only
// executions in one of the given states
func (h *TaskHandler) listTasks(w http.ResponseWriter, r *http.Request) {
	executions := h.executor.ListTasks(r.Context())
	if raw := r.URL.Query().Get("status"); raw != "" {
		wanted := map[tasks.ExecutionStatus]bool{}
		for _, s := range strings.Split(raw, ",") {
			wanted[tasks.ExecutionStatus(strings.TrimSpace(s))] = true
		}
		filtered := executions[:0:0]
		for _, e := range executions {
			if wanted[e.Status] {
				filtered = append(filtered, e)
			}
		}
		executions = filtered
	}
	Respond(r).WithJSON(w, http.StatusOK, cursor.Unpaged(executions))
}
