package log

import "log/slog"

func TaskID[T ~string](id T) slog.Attr {
	return slog.String("task_id", string(id))
}

func WorkflowID[T ~string](id T) slog.Attr {
	return slog.String("workflow_id", string(id))
}

func ExecutionID[T ~string](id T) slog.Attr {
	return slog.String("execution_id", string(id))
}

func StepID[T ~string](id T) slog.Attr {
	return slog.String("step_id", string(id))
}

func DecisionID[T ~string](id T) slog.Attr {
	return slog.String("decision_id", string(id))
}

func AlertID[T ~string](id T) slog.Attr {
	return slog.String("alert_id", string(id))
}

func Module(name string) slog.Attr {
	return slog.String("module", name)
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func EventType[T ~string](typ T) slog.Attr {
	return slog.String("event_type", string(typ))
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
