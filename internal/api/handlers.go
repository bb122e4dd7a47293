package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/socialchef/ttlcache/internal/cache"
	apperrors "github.com/socialchef/ttlcache/internal/errors"
)

// ChatCompleter is the upstream used by the chat endpoint.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// MaxEntryBytes bounds the size of a value written through the API.
const MaxEntryBytes = 1 << 20

// ChatTTL is how long identical chat prompts are answered from the cache.
const ChatTTL = 300 * time.Second

type Server struct {
	cache *cache.Cache
	chat  func(ctx context.Context, prompt, systemPrompt string) (string, error)
}

func NewServer(c *cache.Cache, completer ChatCompleter) *Server {
	return &Server{
		cache: c,
		chat:  cache.MemoizeContext2(c, completer.ChatCompletion, ChatTTL, cache.WithName("openai.ChatCompletion")),
	}
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/cache", func(r chi.Router) {
			r.Get("/", s.HandleStats)
			r.Delete("/", s.HandleClear)
			r.Get("/{key}", s.HandleGetEntry)
			r.Put("/{key}", s.HandlePutEntry)
			r.Delete("/{key}", s.HandleDeleteEntry)
		})
		r.Post("/test/chat", s.HandleChat)
	})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type StatsResponse struct {
	Entries    int `json:"entries"`
	Capacity   int `json:"capacity"`
	TTLSeconds int `json:"ttl_seconds"`
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Success(StatsResponse{
		Entries:    s.cache.Len(),
		Capacity:   s.cache.Capacity(),
		TTLSeconds: int(s.cache.TTL() / time.Second),
	}))
}

func (s *Server) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	value, ok := s.cache.Get(key)
	if !ok {
		writeError(w, r, apperrors.NewNotFoundError("key not found: "+key, "CACHE_MISS", "Set the key before reading it."))
		return
	}
	writeJSON(w, http.StatusOK, Success(value))
}

func (s *Server) HandlePutEntry(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var value any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxEntryBytes)).Decode(&value); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			appErr := apperrors.NewValidationError("request body too large", "BODY_TOO_LARGE", "Cache values are limited to 1MiB.")
			appErr.StatusCode = http.StatusRequestEntityTooLarge
			writeError(w, r, appErr)
			return
		}
		writeError(w, r, apperrors.NewValidationError("request body must be a JSON value", "INVALID_BODY", "Send the value to cache as JSON."))
		return
	}

	s.cache.Set(key, value)
	writeJSON(w, http.StatusOK, Success(nil))
}

func (s *Server) HandleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	s.cache.Delete(chi.URLParam(r, "key"))
	writeJSON(w, http.StatusOK, Success(nil))
}

func (s *Server) HandleClear(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear()
	writeJSON(w, http.StatusOK, Success(nil))
}

type ChatRequest struct {
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperrors.NewValidationError("invalid request body", "INVALID_BODY", "Send a JSON object with a prompt."))
		return
	}
	if req.Prompt == "" {
		writeError(w, r, apperrors.NewValidationError("prompt is required", "PROMPT_REQUIRED", "Provide a non-empty prompt."))
		return
	}

	reply, err := s.chat(r.Context(), req.Prompt, req.SystemPrompt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Success(ChatResponse{Reply: reply}))
}
