package models

// Campaign is the projection of a fundraising campaign that the
// attribution core needs. Campaign CRUD, media and goal tracking live in
// the campaigns service; only these columns are read here.
type Campaign struct {
	Base
	Title        string   `gorm:"type:varchar(255);not null" json:"title"`
	Slug         string   `gorm:"type:varchar(120);uniqueIndex" json:"slug"`
	Currency     Currency `gorm:"type:varchar(3);not null" json:"currency"`
	GoalAmount   float64  `gorm:"type:decimal(20,2);default:0" json:"goal_amount"`
	AmountRaised float64  `gorm:"type:decimal(20,2);default:0" json:"amount_raised"`
	Active       bool     `gorm:"default:true" json:"active"`
}

// User is the identity projection consumed by the core. Registration,
// profiles and authentication are owned by the accounts service.
type User struct {
	Base
	Email string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name  string `gorm:"type:varchar(255)" json:"name"`
}
