package model

// CompletionLog 任务完成审计日志
type CompletionLog struct {
	BaseModel
	RequestID         string `gorm:"size:64;index" json:"requestId"`
	ProcessID         string `gorm:"size:100" json:"processId"`
	ProcessInstanceID string `gorm:"size:64;index" json:"processInstanceId"`
	TaskID            string `gorm:"size:64;index" json:"taskId"`
	Username          string `gorm:"size:50;index" json:"username"`
	Method            string `gorm:"size:10" json:"method"`
	Path              string `gorm:"size:255" json:"path"`
	IP                string `gorm:"size:50" json:"ip"`
	Params            string `gorm:"type:text" json:"params"`
	HTTPStatus        int    `json:"httpStatus"`
	Status            int8   `json:"status"`   // 0:失败 1:成功
	Duration          int64  `json:"duration"` // 毫秒
	ErrorMsg          string `gorm:"size:500" json:"errorMsg"`
}

// TableName 表名
func (CompletionLog) TableName() string {
	return "na_completion_log"
}
