package api

type (
	// DecisionRequest asks the decision engine to choose among options
	DecisionRequest struct {
		Context DecisionContext  `json:"context"`
		Options []DecisionOption `json:"options"`
	}

	// ExecuteRequest starts a workflow execution with initial variables
	ExecuteRequest struct {
		Variables map[string]any `json:"variables,omitempty"`
	}

	// InstantiateRequest supplies the variables of a workflow template
	InstantiateRequest struct {
		Values map[string]any `json:"values,omitempty"`
	}

	// TasksListResponse contains the tasks matching a query
	TasksListResponse struct {
		Tasks []*Task `json:"tasks"`
		Count int     `json:"count"`
	}

	// DecisionsListResponse contains decision history matching a query
	DecisionsListResponse struct {
		Decisions []*Decision `json:"decisions"`
		Count     int         `json:"count"`
	}

	// WorkflowsListResponse contains the registered workflow definitions
	WorkflowsListResponse struct {
		Workflows []*WorkflowDefinition `json:"workflows"`
		Count     int                   `json:"count"`
	}

	// TemplatesListResponse contains the registered workflow templates
	TemplatesListResponse struct {
		Templates []*WorkflowTemplate `json:"templates"`
		Count     int                 `json:"count"`
	}

	// ExecutionsListResponse contains the executions matching a query
	ExecutionsListResponse struct {
		Executions []*WorkflowExecution `json:"executions"`
		Count      int                  `json:"count"`
	}

	// AlertsListResponse contains the alerts matching a query
	AlertsListResponse struct {
		Alerts []*Alert `json:"alerts"`
		Count  int      `json:"count"`
	}

	// MetricsListResponse contains the metric samples matching a query
	MetricsListResponse struct {
		Samples []*MetricSample `json:"samples"`
		Count   int             `json:"count"`
	}

	// MessageResponse contains a simple message string
	MessageResponse struct {
		Message string `json:"message"`
	}

	// ErrorResponse contains error details for failed requests
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status,omitempty"`
	}
)
