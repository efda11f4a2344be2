package model

import "time"

// BaseModel 不带软删除：考试、题目、作答记录的级联删除均为物理删除
// swagger:model
type BaseModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
