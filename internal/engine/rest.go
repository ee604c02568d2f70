package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// WorkItemDTO is the engine's wire shape for a task descriptor.
type WorkItemDTO struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Phase       *string        `json:"phase"`
	PhaseStatus *string        `json:"phaseStatus"`
	Parameters  map[string]any `json:"parameters"`
}

// ToWorkItem converts the wire shape back into a WorkItem.
func (d WorkItemDTO) ToWorkItem() WorkItem {
	return WorkItem{
		ID:          d.ID,
		Name:        d.Name,
		Phase:       d.Phase,
		PhaseStatus: d.PhaseStatus,
		Parameters:  d.Parameters,
	}
}

// NewWorkItemDTO converts a WorkItem into its wire shape.
func NewWorkItemDTO(w WorkItem) WorkItemDTO {
	return WorkItemDTO{
		ID:          w.ID,
		Name:        w.Name,
		Phase:       w.Phase,
		PhaseStatus: w.PhaseStatus,
		Parameters:  w.Parameters,
	}
}

// InstanceDTO is the engine's wire shape for a process instance.
type InstanceDTO struct {
	ID        string         `json:"id"`
	ProcessID string         `json:"processId"`
	Status    string         `json:"status"`
	Variables map[string]any `json:"variables"`
	WorkItems []WorkItemDTO  `json:"workItems"`
}

// StartRequest starts a process instance.
type StartRequest struct {
	Variables map[string]any `json:"variables"`
}

// ErrorResponse is the engine's error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RegisterRoutes mounts the engine's own REST surface on r:
//
//	POST /:processId                                   start instance
//	GET  /:processId/:instanceId                       instance descriptor
//	GET  /:processId/:instanceId/tasks?user=&group=    tasks visible to user/groups
//	POST /:processId/:instanceId/:taskName/:taskId     complete a work item
//
// Authentication is left to the caller's middleware chain.
func RegisterRoutes(r fiber.Router, e *MemoryEngine) {
	h := &restHandler{engine: e}
	r.Post("/:processId", h.start)
	r.Get("/:processId/:instanceId", h.instance)
	r.Get("/:processId/:instanceId/tasks", h.tasks)
	r.Post("/:processId/:instanceId/:taskName/:taskId", h.complete)
}

type restHandler struct {
	engine *MemoryEngine
}

func (h *restHandler) process(c *fiber.Ctx) (*MemoryProcess, bool) {
	return h.engine.MemoryProcess(c.Params("processId"))
}

func processNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
		Error:   "not_found",
		Message: fmt.Sprintf("process %s not found", c.Params("processId")),
	})
}

func (h *restHandler) start(c *fiber.Ctx) error {
	p, ok := h.process(c)
	if !ok {
		return processNotFound(c)
	}

	var req StartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "bad_request",
				Message: err.Error(),
			})
		}
	}

	pi, err := h.engine.StartInstance(c.UserContext(), p.ID(), req.Variables)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{
			Error:   "start_failed",
			Message: err.Error(),
		})
	}
	return c.Status(fiber.StatusCreated).JSON(newInstanceDTO(p.ID(), pi))
}

func (h *restHandler) instance(c *fiber.Ctx) error {
	p, ok := h.process(c)
	if !ok {
		return processNotFound(c)
	}
	pi, found := p.FindByID(c.Params("instanceId"))
	if !found {
		return instanceNotFound(c)
	}
	return c.JSON(newInstanceDTO(p.ID(), pi))
}

func (h *restHandler) tasks(c *fiber.Ctx) error {
	p, ok := h.process(c)
	if !ok {
		return processNotFound(c)
	}
	pi, found := p.FindByID(c.Params("instanceId"))
	if !found || pi.Status() != StatusActive {
		return instanceNotFound(c)
	}

	user := c.Query("user")
	groups := queryValues(c, "group")

	out := make([]WorkItemDTO, 0)
	for _, wi := range pi.WorkItems() {
		if wi.IsPhaseActive() && assignedTo(wi, user, groups) {
			out = append(out, NewWorkItemDTO(wi))
		}
	}
	return c.JSON(out)
}

func (h *restHandler) complete(c *fiber.Ctx) error {
	p, ok := h.process(c)
	if !ok {
		return processNotFound(c)
	}

	results := make(map[string]any)
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&results); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "bad_request",
				Message: err.Error(),
			})
		}
	}

	item, err := p.Complete(c.Params("instanceId"), c.Params("taskName"), c.Params("taskId"), Completion{
		User:    utils.CopyString(c.Query("user")),
		Groups:  queryValues(c, "group"),
		Results: results,
		At:      time.Now(),
	})
	switch {
	case err == nil:
		return c.JSON(NewWorkItemDTO(item))
	case errors.Is(err, ErrInstanceNotFound), errors.Is(err, ErrWorkItemNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, ErrTaskNameMismatch):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "bad_request", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal_error", Message: err.Error()})
	}
}

func instanceNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
		Error:   "not_found",
		Message: fmt.Sprintf("process instance %s not found", c.Params("instanceId")),
	})
}

// assignedTo is the engine's own assignment rule: unassigned items are open
// to everyone, otherwise the user must be the actor or belong to the group.
func assignedTo(wi WorkItem, user string, groups []string) bool {
	actor, hasActor := wi.ActorID()
	group, hasGroup := wi.GroupID()
	if !hasActor && !hasGroup {
		return true
	}
	if hasActor && actor == user {
		return true
	}
	if hasGroup {
		g := fmt.Sprint(group)
		for _, candidate := range groups {
			if candidate == g {
				return true
			}
		}
	}
	return false
}

func queryValues(c *fiber.Ctx, key string) []string {
	raw := c.Context().QueryArgs().PeekMulti(key)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, string(v))
	}
	return out
}

func newInstanceDTO(processID string, pi ProcessInstance) InstanceDTO {
	items := pi.WorkItems()
	dtos := make([]WorkItemDTO, 0, len(items))
	for _, wi := range items {
		dtos = append(dtos, NewWorkItemDTO(wi))
	}
	return InstanceDTO{
		ID:        pi.ID(),
		ProcessID: processID,
		Status:    pi.Status().String(),
		Variables: pi.Variables(),
		WorkItems: dtos,
	}
}
