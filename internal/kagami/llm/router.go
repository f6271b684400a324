package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ModelClient pairs a model name with the provider adapter that serves it.
type ModelClient struct {
	Model    string
	Provider Provider
}

// Router tries configured models in declaration order until one succeeds.
//
// A Router is shared by all room agents. It is safe for concurrent use: every
// attempt is an independent call plus an append-only log insert, and the
// client list is immutable after construction.
type Router struct {
	clients []ModelClient
	logs    CallLogger
}

// NewRouter creates a Router over the given clients. The slice order is the
// fallback order. logs may not be nil; every attempt is recorded.
func NewRouter(clients []ModelClient, logs CallLogger) (*Router, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("router needs at least one model client")
	}
	for _, c := range clients {
		if c.Model == "" || c.Provider == nil {
			return nil, fmt.Errorf("router client %q is incomplete", c.Model)
		}
	}
	if logs == nil {
		return nil, fmt.Errorf("router needs a call logger")
	}
	return &Router{clients: append([]ModelClient(nil), clients...), logs: logs}, nil
}

// Models returns the configured model names in fallback order.
func (r *Router) Models() []string {
	names := make([]string, len(r.clients))
	for i, c := range r.clients {
		names[i] = c.Model
	}
	return names
}

// loggedInput is the JSON rendering of one attempt, stored verbatim in the
// call log so the console can replay exactly what a model was asked.
type loggedInput struct {
	Model   string  `json:"model"`
	Request Request `json:"request"`
}

// CallWithFallback runs the request against each configured model in order
// and returns the first success. Every attempt, success or failure, is
// written to the call log before the next model is tried.
//
// When all models fail the joined per-model errors are returned; the caller's
// round fails but the room stays usable.
func (r *Router) CallWithFallback(ctx context.Context, req Request) (*Response, error) {
	var attemptErrs []error

	for _, client := range r.clients {
		input := renderInput(client.Model, req)

		resp, err := client.Provider.Chat(ctx, client.Model, req)
		if err != nil {
			slog.Warn("llm: model call failed, trying next",
				"model", client.Model, "err", err)
			r.log(ctx, StatusFail, input, err.Error())
			attemptErrs = append(attemptErrs, fmt.Errorf("%s: %w", client.Model, err))
			continue
		}

		r.log(ctx, StatusSuccess, input, resp.Content)
		return resp, nil
	}

	return nil, fmt.Errorf("%w (%d models): %w",
		ErrAllModelsFailed, len(r.clients), errors.Join(attemptErrs...))
}

func renderInput(model string, req Request) string {
	b, err := json.Marshal(loggedInput{Model: model, Request: req})
	if err != nil {
		return fmt.Sprintf("{\"model\":%q}", model)
	}
	return string(b)
}

// log writes one attempt record. A failed insert is reported but never fails
// the round.
func (r *Router) log(ctx context.Context, status, input, output string) {
	rec := CallRecord{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Input:     input,
		Output:    output,
	}
	if err := r.logs.InsertCall(ctx, rec); err != nil {
		slog.Error("llm: failed to write call log", "status", status, "err", err)
	}
}
