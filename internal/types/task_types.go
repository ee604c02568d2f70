package types

// TaskRecord 返回给调用方的任务记录
type TaskRecord struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	ProcessInstanceID string         `json:"processInstanceId"`
	Phase             *string        `json:"phase"`
	PhaseStatus       *string        `json:"phaseStatus"`
	Parameters        map[string]any `json:"parameters"`
}

// DN4 神经病理性疼痛问卷，未作答的项保持 null
type DN4 struct {
	ID                *int64 `json:"id,omitempty"`
	BurningPain       *bool  `json:"burningPain"`
	PainfulCold       *bool  `json:"painfulCold"`
	ElectricShock     *bool  `json:"electricShock"`
	Tingling          *bool  `json:"tingling"`
	PinsAndNeedles    *bool  `json:"pinsAndNeedles"`
	Numbness          *bool  `json:"numbness"`
	Itching           *bool  `json:"itching"`
	TouchHypoesthesia *bool  `json:"touchHypoesthesia"`
	PrickHypoesthesia *bool  `json:"prickHypoesthesia"`
	BrushingPain      *bool  `json:"brushingPain"`
	Score             *int   `json:"score"`
}

// TaskListResponse 任务列表响应
type TaskListResponse struct {
	Tasks             []TaskRecord `json:"tasks"`
	UserName          string       `json:"userName"`
	UserRoles         []string     `json:"userRoles"`
	TotalTasks        int          `json:"totalTasks"`
	ProcessInstanceID string       `json:"processInstanceId,omitempty"`
}

// CompleteTaskResponse 任务完成响应
type CompleteTaskResponse struct {
	Message           string `json:"message"`
	TaskID            string `json:"taskId"`
	ProcessInstanceID string `json:"processInstanceId"`
	CompletedBy       string `json:"completedBy"`
	DN4               *DN4   `json:"dn4"`
}

