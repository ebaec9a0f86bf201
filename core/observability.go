package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

func (c *Coordinator) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if c == nil {
		return
	}
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}

	elapsed := c.clock.Now().Sub(startedAt)
	contextFields := cloneFields(fields)
	contextFields["event_type"] = operation
	contextFields["status"] = status
	contextFields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		contextFields["error"] = err.Error()
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"flow_method", "flow_status"} {
		if value := strings.TrimSpace(fmt.Sprint(contextFields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}

	c.recordCounter(ctx, c.metricName(operation, "total"), 1, tags)
	c.recordHistogram(ctx, c.metricName(operation, "duration_ms"), float64(elapsed.Milliseconds()), tags)

	if err != nil {
		c.logError(ctx, operation+" failed", contextFields)
		return
	}
	c.logInfo(ctx, operation+" succeeded", contextFields)
}

func (c *Coordinator) metricName(operation string, suffix string) string {
	prefix := strings.TrimSpace(c.config.ServiceName)
	if prefix == "" {
		prefix = defaultServiceName
	}
	return prefix + "." + operation + "." + suffix
}

func (c *Coordinator) logDebug(ctx context.Context, message string, fields map[string]any) {
	c.logWithLevel(ctx, "debug", message, fields)
}

func (c *Coordinator) logInfo(ctx context.Context, message string, fields map[string]any) {
	c.logWithLevel(ctx, "info", message, fields)
}

func (c *Coordinator) logWarn(ctx context.Context, message string, fields map[string]any) {
	c.logWithLevel(ctx, "warn", message, fields)
}

func (c *Coordinator) logError(ctx context.Context, message string, fields map[string]any) {
	c.logWithLevel(ctx, "error", message, fields)
}

func (c *Coordinator) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logger := c.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (c *Coordinator) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if c == nil || c.metricsRecorder == nil {
		return
	}
	c.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (c *Coordinator) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if c == nil || c.metricsRecorder == nil {
		return
	}
	c.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
