package models

import "time"

type Checkpoint struct {
	Name string `gorm:"primaryKey"`
	At   time.Time
}
