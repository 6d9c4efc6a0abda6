package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kubestellar/console-assistant/pkg/assistant"
	"github.com/kubestellar/console-assistant/pkg/markdown"
	"github.com/kubestellar/console-assistant/pkg/models"
	"github.com/kubestellar/console-assistant/pkg/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	defaultQueryTimeout = 10 * time.Minute
	refreshTimeout      = 60 * time.Second
)

// Refresher re-reads the host configuration and re-runs discovery
type Refresher func(ctx context.Context) (assistant.DiscoveryResult, error)

// BackendResponse is the API view of a discovered backend
type BackendResponse struct {
	ID             string                  `json:"id"`
	Name           string                  `json:"name"`
	Host           string                  `json:"host"`
	DefaultModelID string                  `json:"defaultModelId,omitempty"`
	Email          string                  `json:"email,omitempty"`
	Models         []ModelResponse         `json:"models"`
	Endpoints      []assistant.EndpointSet `json:"endpoints,omitempty"`
}

// ModelResponse is the API view of a model
type ModelResponse struct {
	ID    string           `json:"id"`
	Label string           `json:"label"`
	Path  string           `json:"path"`
	Tasks []assistant.Task `json:"tasks"`
}

// StateResponse is the session snapshot sent to the console
type StateResponse struct {
	assistant.State
	Backends []BackendResponse `json:"backends"`
}

// NewStateResponse converts a session state into its API view
func NewStateResponse(s assistant.State) StateResponse {
	resp := StateResponse{State: s, Backends: make([]BackendResponse, 0, len(s.Backends))}
	for _, b := range s.Backends {
		resp.Backends = append(resp.Backends, newBackendResponse(b))
	}
	return resp
}

func newBackendResponse(b *assistant.Backend) BackendResponse {
	resp := BackendResponse{
		ID:             b.ID,
		Name:           b.Name,
		Host:           b.HostURL(),
		DefaultModelID: b.DefaultModelID,
		Models:         make([]ModelResponse, 0, len(b.Manifest.Models)),
		Endpoints:      b.Manifest.Endpoints,
	}
	if b.Creds != nil {
		resp.Email = b.Creds.Email
	}
	for _, m := range b.Manifest.Models {
		resp.Models = append(resp.Models, ModelResponse{
			ID:    m.ModelID,
			Label: assistant.ModelLabel(m),
			Path:  m.ModelPath,
			Tasks: m.Tasks,
		})
	}
	return resp
}

// AssistantHandler serves the assistant session
type AssistantHandler struct {
	session      *assistant.Session
	store        store.Store
	refresh      Refresher
	queryTimeout time.Duration
}

// NewAssistantHandler creates the assistant handler. store and refresh may be nil.
func NewAssistantHandler(session *assistant.Session, s store.Store, refresh Refresher) *AssistantHandler {
	return &AssistantHandler{
		session:      session,
		store:        s,
		refresh:      refresh,
		queryTimeout: defaultQueryTimeout,
	}
}

// GetState returns the current session snapshot
func (h *AssistantHandler) GetState(c *fiber.Ctx) error {
	return c.JSON(NewStateResponse(h.session.State()))
}

// ListBackends returns the discovered backends
func (h *AssistantHandler) ListBackends(c *fiber.Ctx) error {
	return c.JSON(NewStateResponse(h.session.State()).Backends)
}

// GetModelTree returns the model hierarchy of the selected backend
func (h *AssistantHandler) GetModelTree(c *fiber.Ctx) error {
	b := h.session.State().CurrentBackend()
	if b == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": assistant.ErrNoBackend.Error()})
	}
	return c.JSON(assistant.BuildModelTree(b.Manifest.Models))
}

type selectRequest struct {
	ID string `json:"id"`
}

func parseSelect(c *fiber.Ctx) (string, error) {
	var req selectRequest
	if err := c.BodyParser(&req); err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ID == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "id is required")
	}
	return req.ID, nil
}

// SelectBackend selects a backend; an unknown id clears the selection
func (h *AssistantHandler) SelectBackend(c *fiber.Ctx) error {
	id, err := parseSelect(c)
	if err != nil {
		return err
	}
	return c.JSON(NewStateResponse(h.session.SelectBackend(id)))
}

// SelectModel selects a model of the current backend
func (h *AssistantHandler) SelectModel(c *fiber.Ctx) error {
	id, err := parseSelect(c)
	if err != nil {
		return err
	}
	return c.JSON(NewStateResponse(h.session.SelectModel(id)))
}

// SelectTask selects a task of the current model
func (h *AssistantHandler) SelectTask(c *fiber.Ctx) error {
	id, err := parseSelect(c)
	if err != nil {
		return err
	}
	return c.JSON(NewStateResponse(h.session.SelectTask(id)))
}

// SetEditor records the YAML open in the console editor
func (h *AssistantHandler) SetEditor(c *fiber.Ctx) error {
	var req struct {
		YAML string `json:"yaml"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return c.JSON(NewStateResponse(h.session.SetEditorYAML(req.YAML)))
}

// Query starts a query and returns immediately; progress and the answer
// arrive over the WebSocket.
func (h *AssistantHandler) Query(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return fiber.NewError(fiber.StatusBadRequest, "query is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.queryTimeout)
	gen, done := h.session.AskAsync(ctx, req.Query)
	go func() {
		defer cancel()
		res := <-done
		if res.Err != nil && !assistant.IsSuperseded(res.Err) {
			log.Printf("[api] query %d failed: %v", gen, res.Err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"generation": gen})
}

// Feedback votes on the current job
func (h *AssistantHandler) Feedback(c *fiber.Ctx) error {
	var req struct {
		Good *bool `json:"good"`
	}
	if err := c.BodyParser(&req); err != nil || req.Good == nil {
		return fiber.NewError(fiber.StatusBadRequest, "good is required")
	}

	if err := h.session.SendFeedback(c.Context(), *req.Good); err != nil {
		if errors.Is(err, assistant.ErrNoBackend) || errors.Is(err, assistant.ErrNoJob) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// ListCodeBlocks returns the code blocks of the current answer
func (h *AssistantHandler) ListCodeBlocks(c *fiber.Ctx) error {
	blocks := h.session.CodeBlocks()
	if blocks == nil {
		blocks = []markdown.CodeBlock{}
	}
	return c.JSON(blocks)
}

// ApplyCodeBlock routes a code block to the editor or the terminal
func (h *AssistantHandler) ApplyCodeBlock(c *fiber.Ctx) error {
	var req struct {
		Language string `json:"language"`
		Code     string `json:"code"`
		Append   bool   `json:"append"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Language == "" {
		req.Language = markdown.DefaultLanguage
	}

	st, err := h.session.ApplyCodeBlock(markdown.CodeBlock{Language: req.Language, Code: req.Code}, req.Append)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(NewStateResponse(st))
}

// DiffCodeBlock previews replacing or appending to the editor YAML
func (h *AssistantHandler) DiffCodeBlock(c *fiber.Ctx) error {
	var req struct {
		Code   string `json:"code"`
		Append bool   `json:"append"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	current := h.session.State().EditorYAML
	proposed := markdown.ApplyYAML(current, req.Code, req.Append)
	diff, err := markdown.Diff(current, proposed)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"diff": diff, "yaml": proposed})
}

// History returns recently recorded jobs
func (h *AssistantHandler) History(c *fiber.Ctx) error {
	if h.store == nil {
		return c.JSON([]models.JobRecord{})
	}

	limit := defaultHistoryLimit
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid limit")
		}
		limit = min(n, maxHistoryLimit)
	}

	jobs, err := h.store.ListJobs(limit)
	if err != nil {
		log.Printf("[api] failed to list history: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list history")
	}
	if jobs == nil {
		jobs = []models.JobRecord{}
	}
	return c.JSON(jobs)
}

// Refresh re-runs backend discovery
func (h *AssistantHandler) Refresh(c *fiber.Ctx) error {
	if h.refresh == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "refresh is not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	result, err := h.refresh(ctx)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(newRefreshResponse(result, h.session.State()))
}

// RefreshResponse summarizes a discovery run
type RefreshResponse struct {
	Discovered int               `json:"discovered"`
	Errors     map[string]string `json:"errors"`
	State      StateResponse     `json:"state"`
}

func newRefreshResponse(result assistant.DiscoveryResult, st assistant.State) RefreshResponse {
	failed := make(map[string]string, len(result.Errors))
	for id, err := range result.Errors {
		failed[id] = err.Error()
	}
	return RefreshResponse{
		Discovered: len(result.Backends),
		Errors:     failed,
		State:      NewStateResponse(st),
	}
}
