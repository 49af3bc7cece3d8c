// Package hostdata reads users, courses, issued badges and seminar bookings
// from the host application's tables.
package hostdata

// User is a host account
type User struct {
	ID        int64  `gorm:"primaryKey"`
	FirstName string `gorm:"column:firstname;size:100"`
	LastName  string `gorm:"column:lastname;size:100"`
	Email     string `gorm:"size:100"`
	Deleted   bool   `gorm:"not null;default:false"`
}

func (User) TableName() string { return "users" }

// Backpack is the external badge backpack a user connected
type Backpack struct {
	ID     int64  `gorm:"primaryKey"`
	UserID int64  `gorm:"not null;uniqueIndex"`
	Email  string `gorm:"size:100"`
}

func (Backpack) TableName() string { return "badge_backpack" }

// ProfileField is a custom user profile field definition
type ProfileField struct {
	ID        int64  `gorm:"primaryKey"`
	ShortName string `gorm:"column:shortname;size:255;uniqueIndex"`
}

func (ProfileField) TableName() string { return "user_info_field" }

// ProfileData is one user's value of a custom profile field
type ProfileData struct {
	ID      int64  `gorm:"primaryKey"`
	UserID  int64  `gorm:"not null;index:idx_user_info_data_user_field"`
	FieldID int64  `gorm:"not null;index:idx_user_info_data_user_field"`
	Data    string `gorm:"type:text"`
}

func (ProfileData) TableName() string { return "user_info_data" }

// Course is a host course
type Course struct {
	ID       int64  `gorm:"primaryKey"`
	FullName string `gorm:"column:fullname;size:254"`
}

func (Course) TableName() string { return "courses" }

// Booking is a seminar booking activity
type Booking struct {
	ID       int64  `gorm:"primaryKey"`
	CourseID int64  `gorm:"index"`
	Duration string `gorm:"size:255"`
}

func (Booking) TableName() string { return "bookings" }

// BookingOption is one bookable date of a seminar
type BookingOption struct {
	ID              int64  `gorm:"primaryKey"`
	BookingID       int64  `gorm:"not null;index"`
	Text            string `gorm:"type:text"`
	CourseStartTime int64  `gorm:"column:coursestarttime"`
	CourseEndTime   int64  `gorm:"column:courseendtime"`
}

func (BookingOption) TableName() string { return "booking_options" }

// BookingAnswer is a user's registration for a booking option
type BookingAnswer struct {
	ID        int64 `gorm:"primaryKey"`
	BookingID int64 `gorm:"not null;index"`
	UserID    int64 `gorm:"not null;index"`
	OptionID  int64 `gorm:"not null"`
	Completed bool  `gorm:"not null;default:false"`
}

func (BookingAnswer) TableName() string { return "booking_answers" }

// Models lists the host tables for local migrations
func Models() []interface{} {
	return []interface{}{
		&User{},
		&Backpack{},
		&ProfileField{},
		&ProfileData{},
		&Course{},
		&Booking{},
		&BookingOption{},
		&BookingAnswer{},
	}
}
