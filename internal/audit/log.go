// Package audit records admin mutations as structured log lines.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Be1newinner/asaan-hai-coding/internal/auth"
	"github.com/Be1newinner/asaan-hai-coding/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// Actions recorded for admin writes.
const (
	ActionCreate     = "create"
	ActionBulkCreate = "bulk_create"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionSoftDelete = "soft_delete"
	ActionRestore    = "restore"
	ActionUpload     = "upload"
	ActionGenerate   = "generate"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Event describes one change made by an authenticated user.
type Event struct {
	Action   string
	Resource string
	ID       string
	Fields   map[string]any
}

// Record writes e enriched with the request id and the acting user.
func Record(ctx context.Context, e Event) error {
	action := strings.TrimSpace(e.Action)
	resource := strings.TrimSpace(e.Resource)
	if action == "" || resource == "" {
		return errors.New("audit: action and resource are required")
	}
	entry := map[string]any{
		"ts":       time.Now().UTC().Format(time.RFC3339Nano),
		"type":     "audit",
		"event":    resource + "." + action,
		"resource": resource,
		"action":   action,
	}
	if e.ID != "" {
		entry["resource_id"] = e.ID
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if user, ok := auth.UserFromContext(ctx); ok {
		entry["user_id"] = user.ID.String()
		entry["username"] = user.Username
		entry["role"] = string(user.Role)
	}
	fields := make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		fields[k] = v
	}
	entry["fields"] = fields

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
