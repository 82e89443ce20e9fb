package model

import "time"

type Goal struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Title       string    `gorm:"not null" json:"title"`
	Priority    int       `gorm:"default:0" json:"priority"`
	ProgressPct float64   `gorm:"default:0" json:"progress_pct"`
	Status      string    `gorm:"type:varchar(50);default:'active'" json:"status"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
}

type Learning struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	Source     string    `json:"source"`
	Lesson     string    `json:"lesson"`
	Category   string    `gorm:"index" json:"category"`
	Confidence float64   `gorm:"default:0.5" json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Learning) TableName() string {
	return "learning_log"
}

type Procedure struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	TaskType      string    `json:"task_type"`
	Strategy      string    `json:"strategy"`
	ToolsSequence string    `json:"tools_sequence"`
	CreatedAt     time.Time `json:"created_at"`
}

type Metric struct {
	ID             uint   `gorm:"primarykey" json:"id"`
	Date           string `json:"date"`
	TasksCompleted int    `json:"tasks_completed"`
	TasksFailed    int    `json:"tasks_failed"`
	ExecAllowed    int    `json:"exec_allowed"`
	ExecBlocked    int    `json:"exec_blocked"`
}

type Task struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	GoalID      *uint     `json:"goal_id"`
	Description string    `json:"description"`
	Status      string    `gorm:"type:varchar(50);default:'pending'" json:"status"`
	Priority    int       `json:"priority"`
	Result      string    `json:"result"`
	CreatedAt   time.Time `json:"created_at"`
}

type SelfModelEntry struct {
	Attribute  string  `gorm:"primarykey" json:"attribute"`
	Value      string  `json:"value"`
	Confidence float64 `gorm:"default:0.5" json:"confidence"`
}

func (SelfModelEntry) TableName() string {
	return "self_model"
}

// TopGoal is the highest priority active goal.
type TopGoal struct {
	Title    string  `json:"title"`
	Progress float64 `json:"progress"`
}

type BrainOverview struct {
	ActiveGoals    int64
	TotalLearnings int64
	Procedures     int64
	Tasks          int64
	TopGoal        *TopGoal
}
