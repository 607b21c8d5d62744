package models

import "time"

// Record represents one logged production entry
type Record struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Date      string    `gorm:"column:date;type:varchar(10);not null;index" json:"date"`
	Machine   string    `gorm:"column:machine;type:text;not null" json:"machine"`
	Product   string    `gorm:"column:product;type:text;not null" json:"product"`
	Quantity  int64     `gorm:"column:quantity;not null" json:"quantity"`
	Rejects   int64     `gorm:"column:rejects;not null;default:0" json:"rejects"`
	Note      *string   `gorm:"column:note;type:text" json:"note"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (Record) TableName() string {
	return "records"
}
