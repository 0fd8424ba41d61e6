package model

import "time"

// Habit はユーザーが追跡する習慣を表す。
// 所有者以外からは見えない（リポジトリ層で全クエリがuser_idにスコープされる）。
type Habit struct {
	ID          string
	UserID      string
	Name        string
	Description string
	Completed   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
