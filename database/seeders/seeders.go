package seeders

import (
	"fmt"
	"log"
	"os"
	"time"

	"jpjportal_go/config"
	"jpjportal_go/database"
	"jpjportal_go/models"
	"jpjportal_go/utils"

	"gorm.io/gorm"
)

// SeedAll runs all seeders against the application database
func SeedAll() error {
	return Seed(database.DB, config.AppConfig.Location(), time.Now())
}

// Seed fills an empty database with an administrator, the question bank and
// a fortnight of exam sessions starting the day after now.
func Seed(db *gorm.DB, loc *time.Location, now time.Time) error {
	log.Println("Starting database seeding...")

	if err := SeedAdmin(db); err != nil {
		return err
	}
	if err := SeedQuestions(db); err != nil {
		return err
	}
	if err := SeedExamSessions(db, loc, now); err != nil {
		return err
	}

	log.Println("Database seeding completed successfully!")
	return nil
}

// SeedAdmin creates the first administrator account
func SeedAdmin(db *gorm.DB) error {
	var count int64
	db.Model(&models.User{}).Where("role = ?", "admin").Count(&count)
	if count > 0 {
		log.Println("Admin already seeded, skipping...")
		return nil
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
	}
	hashed, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := models.User{
		Username: "admin",
		Password: hashed,
		Email:    "admin@jpjportal.local",
		Role:     "admin",
		Status:   "active",
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Println("Admin user seeded")
	return nil
}

// SeedQuestions seeds the theory question bank
func SeedQuestions(db *gorm.DB) error {
	var count int64
	db.Model(&models.Question{}).Count(&count)
	if count > 0 {
		log.Println("Questions already seeded, skipping...")
		return nil
	}

	questions := []models.Question{
		{
			Text:          "What does a red octagonal sign mean?",
			QuestionType:  "mcq",
			OptionA:       "Give way",
			OptionB:       "Stop",
			OptionC:       "No entry",
			OptionD:       "Slow down",
			CorrectAnswer: "B",
			Explanation:   "An octagonal red sign always means come to a complete stop.",
			Category:      "road_signs",
			Active:        true,
		},
		{
			Text:          "What is the speed limit in a school zone unless signed otherwise?",
			QuestionType:  "mcq",
			OptionA:       "30 km/h",
			OptionB:       "50 km/h",
			OptionC:       "60 km/h",
			OptionD:       "70 km/h",
			CorrectAnswer: "A",
			Category:      "speed_limits",
			Active:        true,
		},
		{
			Text:          "A solid white centre line may be crossed to overtake a slow vehicle.",
			QuestionType:  "true_false",
			OptionA:       "True",
			OptionB:       "False",
			CorrectAnswer: "B",
			Explanation:   "Solid lines must not be crossed.",
			Category:      "road_markings",
			Active:        true,
		},
		{
			Text:          "At a roundabout, who has the right of way?",
			QuestionType:  "mcq",
			OptionA:       "Vehicles entering",
			OptionB:       "The larger vehicle",
			OptionC:       "Vehicles already on the roundabout, from the right",
			OptionD:       "Vehicles on the left",
			CorrectAnswer: "C",
			Category:      "right_of_way",
			Active:        true,
		},
		{
			Text:          "You should switch on your headlights when visibility is poor during the day.",
			QuestionType:  "true_false",
			OptionA:       "True",
			OptionB:       "False",
			CorrectAnswer: "A",
			Category:      "safe_driving",
			Active:        true,
		},
		{
			Text:          "What should you do when an ambulance with flashing lights approaches from behind?",
			QuestionType:  "mcq",
			OptionA:       "Speed up",
			OptionB:       "Stop in the middle of the road",
			OptionC:       "Move aside safely and let it pass",
			OptionD:       "Ignore it",
			CorrectAnswer: "C",
			Category:      "right_of_way",
			Active:        true,
		},
		{
			Text:          "What is the minimum safe following distance in dry conditions?",
			QuestionType:  "mcq",
			OptionA:       "One second",
			OptionB:       "Two seconds",
			OptionC:       "Five seconds",
			OptionD:       "Half a car length",
			CorrectAnswer: "B",
			Category:      "safe_driving",
			Active:        true,
		},
		{
			Text:          "A yellow box junction may be entered only if your exit is clear.",
			QuestionType:  "true_false",
			OptionA:       "True",
			OptionB:       "False",
			CorrectAnswer: "A",
			Category:      "road_markings",
			Active:        true,
		},
	}

	if err := db.Create(&questions).Error; err != nil {
		return fmt.Errorf("seed questions: %w", err)
	}
	log.Printf("Seeded %d questions", len(questions))
	return nil
}

// SeedExamSessions schedules theory and practical sessions for the next two weeks
func SeedExamSessions(db *gorm.DB, loc *time.Location, now time.Time) error {
	var count int64
	db.Model(&models.ExamSession{}).Count(&count)
	if count > 0 {
		log.Println("Exam sessions already seeded, skipping...")
		return nil
	}
	if loc == nil {
		loc = time.Local
	}

	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)

	var sessions []models.ExamSession
	for day := 0; day < 14; day++ {
		date := start.AddDate(0, 0, day)
		if date.Weekday() == time.Sunday {
			continue
		}
		sessions = append(sessions,
			models.ExamSession{ExamType: "theory", ExamDate: date, ExamTime: "09:00", Center: "JPJ Wangsa Maju", TotalSlots: 30, AvailableSlots: 30, Status: "scheduled"},
			models.ExamSession{ExamType: "practical", ExamDate: date, ExamTime: "14:00", Center: "JPJ Padang Jawa", TotalSlots: 10, AvailableSlots: 10, Status: "scheduled"},
		)
	}

	if err := db.Create(&sessions).Error; err != nil {
		return fmt.Errorf("seed exam sessions: %w", err)
	}
	log.Printf("Seeded %d exam sessions", len(sessions))
	return nil
}
