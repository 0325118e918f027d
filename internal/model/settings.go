package model

// swagger:model UserSettings
type UserSettings struct {
	BaseModel
	UserID                        uint `gorm:"not null;uniqueIndex" json:"userId"`
	NotifyWhenCourseIsReady       bool `gorm:"not null" json:"notifyWhenCourseIsReady"`
	NotifyWhenFlashcardSetIsReady bool `gorm:"not null" json:"notifyWhenFlashcardSetIsReady"`
	SendDailyProblems             bool `gorm:"not null" json:"sendDailyProblems"`
}

func (UserSettings) TableName() string {
	return "user_settings"
}

func DefaultUserSettings(userID uint) UserSettings {
	return UserSettings{
		UserID:                        userID,
		NotifyWhenCourseIsReady:       true,
		NotifyWhenFlashcardSetIsReady: true,
		SendDailyProblems:             true,
	}
}
